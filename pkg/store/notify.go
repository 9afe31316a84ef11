package store

import (
	"sync"

	"chatsync/pkg/metrics"
)

// Notification announces one committed write. Seq is strictly increasing
// per store; subscribers can use it to discard stale redeliveries.
type Notification struct {
	Seq uint64
}

// Subscription is a handle on the store's change feed. C yields one
// Notification per commit, in commit order, with no drops. Cancel makes
// the subscription inert; no value is delivered on C afterwards.
type Subscription struct {
	C <-chan Notification

	store *Store
	id    uint64
	sub   *subscriber
}

// Cancel detaches the subscription. Idempotent.
func (s *Subscription) Cancel() {
	s.store.subMu.Lock()
	delete(s.store.subs, s.id)
	s.store.subMu.Unlock()
	s.sub.stop()
}

// Subscribe registers a change-feed subscriber. Commits that completed
// before Subscribe returns are not replayed; callers evaluate the current
// snapshot first and use notifications only as re-evaluation triggers.
func (s *Store) Subscribe() *Subscription {
	sub := newSubscriber()
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	s.subMu.Unlock()
	return &Subscription{C: sub.out, store: s, id: id, sub: sub}
}

// publish runs with the writer lock held, so every subscriber's mailbox
// receives commits in the same total order.
func (s *Store) publish(n Notification) {
	s.subMu.Lock()
	for _, sub := range s.subs {
		sub.enqueue(n)
	}
	count := len(s.subs)
	s.subMu.Unlock()
	metrics.NotificationsTotal.Add(float64(count))
}

// subscriber is an unbounded FIFO mailbox drained by its own goroutine. A
// bounded channel here could stall the writer behind a slow observer;
// observers are cheap (they coalesce work by re-evaluating snapshots) so
// the queue stays short in practice.
type subscriber struct {
	mu    sync.Mutex
	queue []Notification
	wake  chan struct{}
	out   chan Notification
	done  chan struct{}
	once  sync.Once
}

func newSubscriber() *subscriber {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan Notification),
		done: make(chan struct{}),
	}
	go sub.run()
	return sub
}

func (b *subscriber) enqueue(n Notification) {
	b.mu.Lock()
	b.queue = append(b.queue, n)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *subscriber) run() {
	// run is the only sender on out; closing it here lets consumers range
	// over the channel and exit cleanly after Cancel.
	defer close(b.out)
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			n := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			select {
			case b.out <- n:
			case <-b.done:
				return
			}
			continue
		}
		b.mu.Unlock()
		select {
		case <-b.wake:
		case <-b.done:
			return
		}
	}
}

func (b *subscriber) stop() {
	b.once.Do(func() { close(b.done) })
}
