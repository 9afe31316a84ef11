package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

const fallbackEventQueueCapacity = 1024

// maxPooledBuffer caps buffers returned to the pool; larger ones are
// dropped so the pool cannot pin unbounded memory.
const maxPooledBuffer = 256 * 1024

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Event is one inbound remote-origin event queued for application. Payload
// may be backed by a pooled buffer; the queue worker releases it after the
// handler returns.
type Event struct {
	Kind    string
	Payload []byte
	// EnqSeq is a monotonic enqueue sequence for deterministic ordering
	// in logs and tests.
	EnqSeq uint64
}

type eventItem struct {
	ev   *Event
	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

var eventPool = sync.Pool{New: func() any { return &Event{} }}
var itemPool = sync.Pool{New: func() any { return &eventItem{} }}

func (it *eventItem) done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		if it.ev != nil {
			it.ev.Payload = nil
			eventPool.Put(it.ev)
			it.ev = nil
		}
		itemPool.Put(it)
	})
}

// eventQueue is a bounded in-memory queue between the transport's event
// feed and the single worker goroutine that applies events as store
// writes. Payloads are copied into pooled buffers on enqueue, so callers
// may reuse their slices immediately.
type eventQueue struct {
	ch       chan *eventItem
	capacity int
	dropped  uint64
	closed   int32
	enqSeq   uint64
	enqWg    sync.WaitGroup
}

func newEventQueue(capacity int) *eventQueue {
	if capacity <= 0 {
		capacity = fallbackEventQueueCapacity
	}
	return &eventQueue{ch: make(chan *eventItem, capacity), capacity: capacity}
}

// tryEnqueue enqueues without blocking; ErrQueueFull when at capacity.
func (q *eventQueue) tryEnqueue(kind string, payload []byte) error {
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	it := q.wrap(kind, payload)
	select {
	case q.ch <- it:
		return nil
	default:
		it.done()
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// enqueue blocks until space is available or ctx expires.
func (q *eventQueue) enqueue(ctx context.Context, kind string, payload []byte) error {
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	it := q.wrap(kind, payload)
	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		it.done()
		atomic.AddUint64(&q.dropped, 1)
		return ctx.Err()
	}
}

func (q *eventQueue) wrap(kind string, payload []byte) *eventItem {
	ev := eventPool.Get().(*Event)
	ev.Kind = kind
	ev.EnqSeq = atomic.AddUint64(&q.enqSeq, 1)
	var bb *bytebufferpool.ByteBuffer
	if len(payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], payload...)
		ev.Payload = bb.B[:len(payload)]
	} else {
		ev.Payload = nil
	}
	it := itemPool.Get().(*eventItem)
	it.ev = ev
	it.buf = bb
	it.once = sync.Once{}
	return it
}

// runWorker applies queued events with handler until stop closes. Pooled
// resources are released even when the handler fails.
func (q *eventQueue) runWorker(stop <-chan struct{}, handler func(*Event) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *eventItem) {
				defer it.done()
				_ = handler(it.ev)
			}(it)
		case <-stop:
			return
		}
	}
}

// closeAndDrain closes the queue and releases any undelivered items. The
// wait ensures no producer is still inside an enqueue when the channel
// closes.
func (q *eventQueue) closeAndDrain() {
	if !atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		return
	}
	q.enqWg.Wait()
	close(q.ch)
	for it := range q.ch {
		it.done()
	}
}

func (q *eventQueue) droppedCount() uint64 { return atomic.LoadUint64(&q.dropped) }
