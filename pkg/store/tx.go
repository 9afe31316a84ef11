package store

import (
	"errors"
	"fmt"

	"chatsync/pkg/models"
)

var (
	ErrMissingID         = errors.New("entity id missing")
	ErrNotFound          = errors.New("entity not found")
	ErrUnknownChannel    = errors.New("message references unknown channel")
	ErrUserImmutable     = errors.New("users are immutable after creation")
	ErrFieldImmutable    = errors.New("message channel, author and timestamp are immutable")
	ErrInvalidTransition = errors.New("invalid pending state transition")
)

// Tx is a unit of work against the store. Reads observe the base snapshot
// plus this transaction's own staged writes. Any error returned by a
// mutation (or by the transaction function) aborts the whole transaction
// with no effect.
type Tx struct {
	base *Snapshot

	users    map[string]models.User
	channels map[string]models.Channel
	messages map[string]models.Message
	deleted  map[string]struct{}
}

func newTx(base *Snapshot) *Tx {
	return &Tx{
		base:     base,
		users:    map[string]models.User{},
		channels: map[string]models.Channel{},
		messages: map[string]models.Message{},
		deleted:  map[string]struct{}{},
	}
}

func (tx *Tx) User(id string) (models.User, bool) {
	if u, ok := tx.users[id]; ok {
		return u, true
	}
	return tx.base.User(id)
}

func (tx *Tx) Channel(id string) (models.Channel, bool) {
	if c, ok := tx.channels[id]; ok {
		return c.Clone(), true
	}
	return tx.base.Channel(id)
}

func (tx *Tx) Message(id string) (models.Message, bool) {
	if _, ok := tx.deleted[id]; ok {
		return models.Message{}, false
	}
	if m, ok := tx.messages[id]; ok {
		return m, true
	}
	return tx.base.Message(id)
}

// PutUser stages a user. Users never change once created; re-putting an
// identical value is a no-op.
func (tx *Tx) PutUser(u models.User) error {
	if u.ID == "" {
		return ErrMissingID
	}
	if cur, ok := tx.User(u.ID); ok {
		if cur != u {
			return fmt.Errorf("user %s: %w", u.ID, ErrUserImmutable)
		}
		return nil
	}
	tx.users[u.ID] = u
	return nil
}

// PutChannel stages a channel. The member and typing sets are normalized;
// CreatedTS is sticky and LastMessageTS never moves backwards.
func (tx *Tx) PutChannel(c models.Channel) error {
	if c.ID == "" {
		return ErrMissingID
	}
	c = c.Clone()
	c.Normalize()
	if cur, ok := tx.Channel(c.ID); ok {
		if c.CreatedTS == 0 {
			c.CreatedTS = cur.CreatedTS
		}
		if c.LastMessageTS < cur.LastMessageTS {
			c.LastMessageTS = cur.LastMessageTS
		}
	}
	tx.channels[c.ID] = c
	return nil
}

// PutMessage stages a message. New messages may enter in any pending state;
// stored messages only move along the pending state machine, and their
// channel, author and creation timestamp are frozen.
func (tx *Tx) PutMessage(m models.Message) error {
	if m.ID == "" {
		return ErrMissingID
	}
	if _, ok := tx.Channel(m.Channel); !ok {
		return fmt.Errorf("message %s channel %q: %w", m.ID, m.Channel, ErrUnknownChannel)
	}
	if cur, ok := tx.Message(m.ID); ok {
		if cur.Channel != m.Channel || cur.Author != m.Author || cur.CreatedTS != m.CreatedTS {
			return fmt.Errorf("message %s: %w", m.ID, ErrFieldImmutable)
		}
		if !cur.Pending.CanTransition(m.Pending) {
			return fmt.Errorf("message %s: %s -> %s: %w", m.ID, cur.Pending, m.Pending, ErrInvalidTransition)
		}
	}
	tx.messages[m.ID] = m
	return nil
}

// DeleteMessage stages the physical removal of a message.
func (tx *Tx) DeleteMessage(id string) error {
	if id == "" {
		return ErrMissingID
	}
	if _, ok := tx.Message(id); !ok {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	delete(tx.messages, id)
	tx.deleted[id] = struct{}{}
	return nil
}

// effective drops staged writes that leave the entity equal to its base
// value, so re-applying a duplicate remote event produces no commit and no
// notification.
func (tx *Tx) effective() bool {
	for id, u := range tx.users {
		if cur, ok := tx.base.User(id); ok && cur == u {
			delete(tx.users, id)
		}
	}
	for id, c := range tx.channels {
		if cur, ok := tx.base.channels[id]; ok && cur.EqualRecord(c) {
			delete(tx.channels, id)
		}
	}
	for id, m := range tx.messages {
		if cur, ok := tx.base.Message(id); ok && cur == m {
			delete(tx.messages, id)
		}
	}
	for id := range tx.deleted {
		if _, ok := tx.base.Message(id); !ok {
			delete(tx.deleted, id)
		}
	}
	return len(tx.users)+len(tx.channels)+len(tx.messages)+len(tx.deleted) > 0
}
