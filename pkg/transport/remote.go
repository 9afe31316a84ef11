package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/pkg/logger"
)

const redialDelay = 2 * time.Second

// Remote talks to a real backend: requests go over HTTP POST, events come
// in on a websocket feed.
type Remote struct {
	baseURL string
	wsURL   string
	httpc   *http.Client
}

func NewRemote(baseURL, wsURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		wsURL:   wsURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts the request to <base>/<kind>. Any non-2xx status is an error;
// the caller decides whether to retry.
func (r *Remote) Send(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/"+req.Kind, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("backend returned %s", resp.Status)
	}
	return Response{}, nil
}

type eventEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Listen dials the websocket feed and delivers each event to fn. It
// redials on connection loss until ctx is cancelled.
func (r *Remote) Listen(ctx context.Context, fn EventFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.wsURL, nil)
		if err != nil {
			logger.Warn("event_feed_dial_failed", "url", r.wsURL, "error", err)
			select {
			case <-time.After(redialDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		logger.Info("event_feed_connected", "url", r.wsURL)
		r.readLoop(ctx, conn, fn)
		_ = conn.Close()
	}
}

func (r *Remote) readLoop(ctx context.Context, conn *websocket.Conn, fn EventFunc) {
	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("event_feed_read_failed", "error", err)
			}
			return
		}
		var env eventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("event_feed_bad_frame", "error", err)
			continue
		}
		fn(env.Type, env.Payload)
	}
}
