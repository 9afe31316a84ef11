package store

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"
	"chatsync/pkg/models"
)

var ErrClosed = errors.New("store closed")

// Store is the single source of truth for users, channels and messages.
// All mutation goes through Write, which serializes transactions on one
// writer lock; reads load an immutable snapshot and never block the writer.
type Store struct {
	db *pebble.DB // nil for an ephemeral (non-durable) store

	writeMu sync.Mutex
	snap    atomic.Pointer[Snapshot]
	closed  atomic.Bool

	subMu   sync.Mutex
	subs    map[uint64]*subscriber
	nextSub uint64
}

// Open opens (or creates) a store persisted at path and loads the full
// entity set into the initial snapshot. An empty path yields an ephemeral
// store with no durability, used by tests and short-lived tools.
func Open(path string) (*Store, error) {
	s := &Store{subs: map[uint64]*subscriber{}}
	snap := emptySnapshot()
	if path != "" {
		db, err := pebble.Open(path, &pebble.Options{})
		if err != nil {
			logger.Error("pebble_open_failed", "path", path, "error", err)
			return nil, err
		}
		s.db = db
		if err := loadSnapshot(db, snap); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("store_opened", "path", path,
			"users", len(snap.users), "channels", len(snap.channels), "messages", len(snap.messages))
	}
	s.snap.Store(snap)
	return s, nil
}

// Close stops all subscriptions and closes the database. Writes after
// Close fail with ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.subMu.Lock()
	for id, sub := range s.subs {
		sub.stop()
		delete(s.subs, id)
	}
	s.subMu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Snapshot returns the current consistent view. Two callers reading after
// the same completed write observe the identical snapshot.
func (s *Store) Snapshot() *Snapshot { return s.snap.Load() }

// Write runs fn as one atomic transaction. If fn returns an error, or the
// durable batch fails to apply, nothing is committed. On success the
// snapshot is swapped and exactly one change notification is published to
// every subscriber, in commit order.
func (s *Store) Write(fn func(tx *Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}

	base := s.snap.Load()
	tx := newTx(base)
	if err := fn(tx); err != nil {
		metrics.CommitFailuresTotal.Inc()
		return err
	}
	if !tx.effective() {
		return nil
	}

	if s.db != nil {
		wb := persistBatch(base, tx)
		if wb.Count() > 0 {
			if err := s.db.Apply(wb, pebble.Sync); err != nil {
				logger.Error("commit_batch_failed", "error", err)
				metrics.CommitFailuresTotal.Inc()
				return err
			}
		}
	}

	next := base.cloneWith(tx.users, tx.channels, tx.messages, tx.deleted)
	s.snap.Store(next)
	metrics.CommitsTotal.Inc()
	s.updatePendingGauge(next)
	s.publish(Notification{Seq: next.Seq})
	return nil
}

func (s *Store) updatePendingGauge(snap *Snapshot) {
	var sends, deletes float64
	for _, m := range snap.messages {
		switch m.Pending {
		case models.PendingSend:
			sends++
		case models.PendingDelete:
			deletes++
		}
	}
	metrics.PendingMessages.WithLabelValues(string(models.PendingSend)).Set(sends)
	metrics.PendingMessages.WithLabelValues(string(models.PendingDelete)).Set(deletes)
}
