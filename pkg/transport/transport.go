// Package transport defines the contract between the sync core and the
// remote backend: an asynchronous request/response call for outbound
// writes and an inbound event feed. The core assumes requests may fail and
// retries them itself, and that events arrive at least once.
package transport

import (
	"context"

	"chatsync/pkg/models"
)

// Request kinds understood by the backend.
const (
	ReqMessageSend   = "message.send"
	ReqMessageDelete = "message.delete"
)

type Request struct {
	Kind    string         `json:"kind"`
	Message models.Message `json:"message"`
}

// Response is intentionally empty in this scope; a request either succeeds
// or returns an error.
type Response struct{}

// Sender issues one request to the backend. Implementations must honor ctx
// cancellation; they should not retry internally, the sync worker owns
// retry policy.
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// EventFunc receives one inbound event. The payload slice is only valid
// for the duration of the call; consumers copy it if they keep it.
type EventFunc func(kind string, payload []byte)
