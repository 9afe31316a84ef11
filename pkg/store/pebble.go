package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Key layout:
//
//	user:<id>               -> models.User JSON
//	channel:<id>            -> models.Channel JSON (Typing excluded by tag)
//	message:<id>            -> models.Message JSON
//	tombstone:message:<id>  -> delete unix nanos, decimal
//
// Tombstones mark confirmed deletes so the janitor can tell a purged id
// from one that never existed; they carry no message content.
const (
	userPrefix      = "user:"
	channelPrefix   = "channel:"
	messagePrefix   = "message:"
	tombstonePrefix = "tombstone:message:"
)

func loadSnapshot(db *pebble.DB, snap *Snapshot) error {
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		val := iter.Value()
		switch {
		case strings.HasPrefix(key, userPrefix):
			var u models.User
			if err := json.Unmarshal(val, &u); err != nil {
				return fmt.Errorf("corrupt user record %s: %w", key, err)
			}
			snap.users[u.ID] = u
		case strings.HasPrefix(key, channelPrefix):
			var c models.Channel
			if err := json.Unmarshal(val, &c); err != nil {
				return fmt.Errorf("corrupt channel record %s: %w", key, err)
			}
			c.Normalize()
			snap.channels[c.ID] = c
		case strings.HasPrefix(key, messagePrefix):
			var m models.Message
			if err := json.Unmarshal(val, &m); err != nil {
				return fmt.Errorf("corrupt message record %s: %w", key, err)
			}
			snap.messages[m.ID] = m
		}
	}
	return iter.Error()
}

// persistBatch builds the durable batch for a transaction. Typing-only
// channel changes commit and notify but write nothing: typing is live state.
func persistBatch(base *Snapshot, tx *Tx) *pebble.Batch {
	wb := new(pebble.Batch)
	for id, u := range tx.users {
		b, err := json.Marshal(u)
		if err != nil {
			logger.Error("marshal_user_failed", "id", id, "error", err)
			continue
		}
		_ = wb.Set([]byte(userPrefix+id), b, pebble.NoSync)
	}
	for id, c := range tx.channels {
		if cur, ok := base.channels[id]; ok && durableChannelEqual(cur, c) {
			continue
		}
		b, err := json.Marshal(c)
		if err != nil {
			logger.Error("marshal_channel_failed", "id", id, "error", err)
			continue
		}
		_ = wb.Set([]byte(channelPrefix+id), b, pebble.NoSync)
	}
	for id, m := range tx.messages {
		b, err := json.Marshal(m)
		if err != nil {
			logger.Error("marshal_message_failed", "id", id, "error", err)
			continue
		}
		_ = wb.Set([]byte(messagePrefix+id), b, pebble.NoSync)
	}
	now := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
	for id := range tx.deleted {
		_ = wb.Delete([]byte(messagePrefix+id), pebble.NoSync)
		_ = wb.Set([]byte(tombstonePrefix+id), []byte(now), pebble.NoSync)
	}
	return wb
}

func durableChannelEqual(a, b models.Channel) bool {
	a.Typing = nil
	b.Typing = nil
	return a.EqualRecord(b)
}

// PurgeTombstones drops tombstone keys older than maxAge and returns the
// number removed. Called by the retention janitor; safe to run while the
// store serves traffic since tombstones are write-once.
func (s *Store) PurgeTombstones(maxAge time.Duration) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(tombstonePrefix),
		UpperBound: []byte(tombstonePrefix + "\xff"),
	})
	if err != nil {
		return 0, err
	}
	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		ts, perr := strconv.ParseInt(string(iter.Value()), 10, 64)
		if perr != nil || ts < cutoff {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	wb := new(pebble.Batch)
	for _, k := range stale {
		_ = wb.Delete(k, pebble.NoSync)
	}
	if wb.Count() > 0 {
		if err := s.db.Apply(wb, pebble.Sync); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
