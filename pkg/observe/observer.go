// Package observe bridges store change notifications to live queries and
// fans the resulting edit scripts out to listeners.
package observe

import (
	"sync"
	"sync/atomic"

	"chatsync/pkg/diff"
	"chatsync/pkg/query"
	"chatsync/pkg/store"
)

// Metadata qualifies a change batch. FromLocalCache means the data has not
// yet been confirmed against the remote backend and may still change.
type Metadata struct {
	FromLocalCache bool
}

// Batch is one delivered change set. Script transforms the previously
// delivered result into Result; when Script.Reset is set consumers reload
// from Result wholesale.
type Batch[T diff.Record[T]] struct {
	Seq    uint64
	Script diff.Script[T]
	Result []T
	Meta   Metadata
}

// Observer evaluates a live query on every store commit and delivers the
// diff against the previous result to its listeners. All listeners of one
// observer see the same batch for the same commit.
type Observer[T diff.Record[T]] struct {
	store  *store.Store
	query  query.Query[T]
	metaFn func() Metadata

	mu        sync.Mutex
	prev      []T
	lastSeq   uint64
	listeners map[uint64]func(Batch[T])
	nextID    uint64
	started   bool

	sub       *store.Subscription
	cancelled atomic.Bool
}

// New builds an observer for q. metaFn, if non-nil, is sampled at delivery
// time to stamp each batch; a nil metaFn yields zero Metadata.
func New[T diff.Record[T]](st *store.Store, q query.Query[T], metaFn func() Metadata) *Observer[T] {
	return &Observer[T]{
		store:     st,
		query:     q,
		metaFn:    metaFn,
		listeners: map[uint64]func(Batch[T]){},
	}
}

// Start evaluates the query synchronously, so Current is correct before
// any asynchronous notification arrives, then subscribes to store commits.
func (o *Observer[T]) Start() {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	snap := o.store.Snapshot()
	o.prev = o.query.Evaluate(snap)
	o.lastSeq = snap.Seq
	o.sub = o.store.Subscribe()
	o.mu.Unlock()

	go o.loop()
}

// Stop cancels the store subscription and makes the observer inert. No
// listener is invoked after Stop returns its cancellation visible, even
// for a notification already in flight.
func (o *Observer[T]) Stop() {
	o.cancelled.Store(true)
	o.mu.Lock()
	sub := o.sub
	o.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// Current returns the latest evaluated result.
func (o *Observer[T]) Current() []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]T(nil), o.prev...)
}

// AddListener registers an edit-script listener and returns its remove
// function. Listener invocation order across listeners is unspecified.
func (o *Observer[T]) AddListener(fn func(Batch[T])) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.listeners[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// AddResultListener registers a listener that only wants the new full
// sequence. It is layered on the edit-script path, not a separate query
// evaluation, so the two views can never disagree.
func (o *Observer[T]) AddResultListener(fn func([]T, Metadata)) func() {
	return o.AddListener(func(b Batch[T]) {
		fn(append([]T(nil), b.Result...), b.Meta)
	})
}

func (o *Observer[T]) loop() {
	for n := range o.sub.C {
		if o.cancelled.Load() {
			return
		}
		o.handle(n)
	}
}

func (o *Observer[T]) handle(n store.Notification) {
	o.mu.Lock()
	if n.Seq <= o.lastSeq {
		// Already covered by a snapshot read ahead of this notification.
		o.mu.Unlock()
		return
	}
	snap := o.store.Snapshot()
	result := o.query.Evaluate(snap)
	script := diff.Compute(o.prev, result)
	o.prev = result
	o.lastSeq = snap.Seq
	if script.Empty() {
		o.mu.Unlock()
		return
	}
	fns := make([]func(Batch[T]), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	var meta Metadata
	if o.metaFn != nil {
		meta = o.metaFn()
	}
	batch := Batch[T]{Seq: snap.Seq, Script: script, Result: result, Meta: meta}

	// Checked immediately before fan-out so a Stop racing with an
	// in-flight notification cannot reach a torn-down consumer.
	if o.cancelled.Load() {
		return
	}
	for _, fn := range fns {
		fn(batch)
	}
}
