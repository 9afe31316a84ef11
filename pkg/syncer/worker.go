// Package syncer drains optimistic local writes to the remote backend and
// applies remote-origin events back into the store. Remote events travel
// the identical write path as local actions, so observers cannot tell the
// origins apart.
package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
	"chatsync/pkg/models"
	"chatsync/pkg/observe"
	"chatsync/pkg/query"
	"chatsync/pkg/store"
	"chatsync/pkg/transport"
)

type Config struct {
	// SendBackoff is the fixed delay between send retries. Sends retry
	// indefinitely; a message is never silently abandoned.
	SendBackoff time.Duration
	// RatePerSec and Burst bound the global outbound request rate.
	RatePerSec float64
	Burst      int
	// EventQueueCapacity bounds the inbound event queue.
	EventQueueCapacity int
}

func (c *Config) defaults() {
	if c.SendBackoff <= 0 {
		c.SendBackoff = 3 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
}

// Worker owns the background synchronization loops: one live query over
// pending-send messages, one over pending-delete messages, and the inbound
// event feed. At most one request is in flight per message id, and a slow
// send never blocks other messages.
type Worker struct {
	store   *store.Store
	sender  transport.Sender
	cfg     Config
	limiter *rate.Limiter

	sendObs *observe.Observer[models.Message]
	delObs  *observe.Observer[models.Message]
	events  *eventQueue

	mu             sync.Mutex
	inflight       map[string]struct{}
	delCompletions map[string][]func(error)

	remoteSeen atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	stop       chan struct{}
	wg         sync.WaitGroup
}

func New(st *store.Store, sender transport.Sender, cfg Config) *Worker {
	cfg.defaults()
	return &Worker{
		store:          st,
		sender:         sender,
		cfg:            cfg,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		events:         newEventQueue(cfg.EventQueueCapacity),
		inflight:       map[string]struct{}{},
		delCompletions: map[string][]func(error){},
	}
}

// Start begins draining. Messages already pending at startup (for example
// after a restart) are picked up before any new commit arrives.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.stop = make(chan struct{})

	w.sendObs = observe.New(w.store, query.MessagesPending(models.PendingSend), nil)
	w.sendObs.AddListener(func(b observe.Batch[models.Message]) { w.drainSends(b.Result) })
	w.sendObs.Start()
	w.drainSends(w.sendObs.Current())

	w.delObs = observe.New(w.store, query.MessagesPending(models.PendingDelete), nil)
	w.delObs.AddListener(func(b observe.Batch[models.Message]) { w.drainDeletes(b.Result) })
	w.delObs.Start()
	w.drainDeletes(w.delObs.Current())

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.events.runWorker(w.stop, w.applyEvent)
	}()
}

// Stop cancels in-flight requests and waits for the loops to exit.
// Messages still pending remain in the store and are drained on the next
// Start.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.sendObs.Stop()
	w.delObs.Stop()
	close(w.stop)
	w.wg.Wait()
	w.events.closeAndDrain()
}

// RemoteConfirmed reports whether the worker has completed at least one
// successful exchange with the backend since Start. References use it to
// flag change batches as local-cache-only or remote-confirmed.
func (w *Worker) RemoteConfirmed() bool { return w.remoteSeen.Load() }

// HandleEvent enqueues one inbound event; wired as the transport's
// EventFunc. Delivery is at-least-once, application is idempotent, so a
// dropped duplicate on a full queue is harmless and a dropped original is
// recovered by the backend's redelivery.
func (w *Worker) HandleEvent(kind string, payload []byte) {
	if err := w.events.tryEnqueue(kind, payload); err != nil {
		logger.Warn("event_enqueue_failed", "kind", kind, "error", err, "dropped", w.events.droppedCount())
	}
}

// RegisterDeleteCompletion attaches a one-shot callback fired when the
// delete of message id is confirmed or rolled back. Register before
// committing the pending-delete write to avoid missing a fast completion.
func (w *Worker) RegisterDeleteCompletion(id string, fn func(error)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.delCompletions[id] = append(w.delCompletions[id], fn)
	w.mu.Unlock()
}

// UnregisterDeleteCompletions drops callbacks for id, used when the local
// pending-delete write itself failed.
func (w *Worker) UnregisterDeleteCompletions(id string) {
	w.mu.Lock()
	delete(w.delCompletions, id)
	w.mu.Unlock()
}

func (w *Worker) completeDelete(id string, err error) {
	w.mu.Lock()
	fns := w.delCompletions[id]
	delete(w.delCompletions, id)
	w.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (w *Worker) drainSends(msgs []models.Message) {
	for _, m := range msgs {
		if m.Pending != models.PendingSend {
			continue
		}
		w.spawn(m, w.sendLoop)
	}
}

func (w *Worker) drainDeletes(msgs []models.Message) {
	for _, m := range msgs {
		if m.Pending != models.PendingDelete {
			continue
		}
		w.spawn(m, w.deleteOnce)
	}
}

// spawn starts fn for the message unless a request for that id is already
// in flight.
func (w *Worker) spawn(m models.Message, fn func(models.Message)) {
	w.mu.Lock()
	if _, busy := w.inflight[m.ID]; busy {
		w.mu.Unlock()
		return
	}
	w.inflight[m.ID] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.inflight, m.ID)
			w.mu.Unlock()
		}()
		fn(m)
	}()
}

// sendLoop pushes one message until the backend accepts it, then clears
// its pending-send state. The clear is a no-op if the message was deleted
// while the request was in flight.
func (w *Worker) sendLoop(m models.Message) {
	for {
		if err := w.limiter.Wait(w.ctx); err != nil {
			return
		}
		_, err := w.sender.Send(w.ctx, transport.Request{Kind: transport.ReqMessageSend, Message: m})
		if err == nil {
			break
		}
		if w.ctx.Err() != nil {
			return
		}
		metrics.SendsTotal.WithLabelValues("error").Inc()
		metrics.SendRetriesTotal.Inc()
		logger.Warn("send_failed_retrying", "message", m.ID, "backoff", w.cfg.SendBackoff, "error", err)
		select {
		case <-time.After(w.cfg.SendBackoff):
		case <-w.ctx.Done():
			return
		}
	}
	metrics.SendsTotal.WithLabelValues("ok").Inc()
	w.remoteSeen.Store(true)

	err := w.store.Write(func(tx *store.Tx) error {
		cur, ok := tx.Message(m.ID)
		if !ok || cur.Pending != models.PendingSend {
			return nil
		}
		cur.Pending = models.PendingNone
		return tx.PutMessage(cur)
	})
	if err != nil {
		logger.Error("send_confirm_write_failed", "message", m.ID, "error", err)
	}
}

// deleteOnce issues a single delete request. Success removes the record;
// failure rolls the message back to full visibility and reports the error
// through the registered completion. This is the only path where a remote
// failure surfaces to the caller.
func (w *Worker) deleteOnce(m models.Message) {
	if err := w.limiter.Wait(w.ctx); err != nil {
		return
	}
	_, err := w.sender.Send(w.ctx, transport.Request{Kind: transport.ReqMessageDelete, Message: m})
	if w.ctx.Err() != nil {
		return
	}
	if err != nil {
		metrics.SendsTotal.WithLabelValues("error").Inc()
		metrics.DeleteRollbacksTotal.Inc()
		logger.Warn("delete_failed_rolling_back", "message", m.ID, "error", err)
		werr := w.store.Write(func(tx *store.Tx) error {
			cur, ok := tx.Message(m.ID)
			if !ok || cur.Pending != models.PendingDelete {
				return nil
			}
			cur.Pending = models.PendingNone
			return tx.PutMessage(cur)
		})
		if werr != nil {
			logger.Error("delete_rollback_write_failed", "message", m.ID, "error", werr)
		}
		w.completeDelete(m.ID, err)
		return
	}
	metrics.SendsTotal.WithLabelValues("ok").Inc()
	w.remoteSeen.Store(true)
	werr := w.store.Write(func(tx *store.Tx) error {
		if _, ok := tx.Message(m.ID); !ok {
			return nil
		}
		return tx.DeleteMessage(m.ID)
	})
	if werr != nil {
		logger.Error("delete_confirm_write_failed", "message", m.ID, "error", werr)
	}
	w.completeDelete(m.ID, werr)
}

// applyEvent writes one remote-origin event into the store. Events are
// idempotent: re-applying one leaves the store untouched, so at-least-once
// delivery never corrupts state.
func (w *Worker) applyEvent(ev *Event) error {
	metrics.RemoteEventsTotal.WithLabelValues(ev.Kind).Inc()
	var err error
	switch ev.Kind {
	case models.EventMessageNew:
		err = w.applyMessageNew(ev.Payload)
	case models.EventTypingStart, models.EventTypingStop:
		err = w.applyTyping(ev.Kind, ev.Payload)
	case models.EventMemberAdded, models.EventMemberRemoved:
		err = w.applyMember(ev.Kind, ev.Payload)
	default:
		logger.Warn("remote_event_unknown", "kind", ev.Kind)
		return nil
	}
	if err != nil {
		logger.Error("remote_event_apply_failed", "kind", ev.Kind, "error", err)
		return err
	}
	w.remoteSeen.Store(true)
	return nil
}

func (w *Worker) applyMessageNew(payload []byte) error {
	var e models.MessageNewEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	m := e.Message
	m.Pending = models.PendingNone
	return w.store.Write(func(tx *store.Tx) error {
		ch, ok := tx.Channel(m.Channel)
		if !ok {
			// First sign of this channel; create a skeleton record so
			// the message has a home. A later member event fills it in.
			ch = models.Channel{ID: m.Channel, Type: models.ChannelTypeMessaging, CreatedTS: m.CreatedTS}
			if err := tx.PutChannel(ch); err != nil {
				return err
			}
		}
		if cur, exists := tx.Message(m.ID); exists && cur.Pending == models.PendingDelete {
			// Echo of a message we are deleting; keep the local flag.
			return nil
		}
		if err := tx.PutMessage(m); err != nil {
			return err
		}
		if m.CreatedTS > ch.LastMessageTS {
			ch.LastMessageTS = m.CreatedTS
		}
		return tx.PutChannel(ch)
	})
}

func (w *Worker) applyTyping(kind string, payload []byte) error {
	var e models.TypingEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	return w.store.Write(func(tx *store.Tx) error {
		ch, ok := tx.Channel(e.Channel)
		if !ok {
			return nil
		}
		typing := make([]string, 0, len(ch.Typing)+1)
		for _, id := range ch.Typing {
			if id != e.User {
				typing = append(typing, id)
			}
		}
		if kind == models.EventTypingStart {
			typing = append(typing, e.User)
		}
		ch.Typing = typing
		return tx.PutChannel(ch)
	})
}

func (w *Worker) applyMember(kind string, payload []byte) error {
	var e models.MemberEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	return w.store.Write(func(tx *store.Tx) error {
		ch, ok := tx.Channel(e.Channel)
		if !ok {
			return nil
		}
		members := make([]string, 0, len(ch.Members)+1)
		for _, id := range ch.Members {
			if id != e.User {
				members = append(members, id)
			}
		}
		if kind == models.EventMemberAdded {
			members = append(members, e.User)
		}
		ch.Members = members
		return tx.PutChannel(ch)
	})
}
