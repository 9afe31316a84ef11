package store

import "chatsync/pkg/models"

// Snapshot is an immutable point-in-time view of the store. Snapshots are
// swapped wholesale on every commit and are never mutated afterwards, so
// they may be read from any goroutine without locking. Seq is the commit
// sequence number of the write that produced the snapshot.
type Snapshot struct {
	Seq uint64

	users    map[string]models.User
	channels map[string]models.Channel
	messages map[string]models.Message
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		users:    map[string]models.User{},
		channels: map[string]models.Channel{},
		messages: map[string]models.Message{},
	}
}

func (s *Snapshot) User(id string) (models.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

func (s *Snapshot) Channel(id string) (models.Channel, bool) {
	c, ok := s.channels[id]
	if !ok {
		return models.Channel{}, false
	}
	return c.Clone(), true
}

func (s *Snapshot) Message(id string) (models.Message, bool) {
	m, ok := s.messages[id]
	return m, ok
}

// Users returns all users in unspecified order.
func (s *Snapshot) Users() []models.User {
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// Channels returns deep copies of all channels in unspecified order.
func (s *Snapshot) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c.Clone())
	}
	return out
}

// Messages returns all messages in unspecified order.
func (s *Snapshot) Messages() []models.Message {
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m)
	}
	return out
}

// cloneWith builds the successor snapshot from staged changes. The input
// maps are owned by the transaction and must not be touched afterwards.
func (s *Snapshot) cloneWith(users map[string]models.User, channels map[string]models.Channel, messages map[string]models.Message, deleted map[string]struct{}) *Snapshot {
	next := &Snapshot{
		Seq:      s.Seq + 1,
		users:    make(map[string]models.User, len(s.users)+len(users)),
		channels: make(map[string]models.Channel, len(s.channels)+len(channels)),
		messages: make(map[string]models.Message, len(s.messages)+len(messages)),
	}
	for id, u := range s.users {
		next.users[id] = u
	}
	for id, u := range users {
		next.users[id] = u
	}
	for id, c := range s.channels {
		next.channels[id] = c
	}
	for id, c := range channels {
		next.channels[id] = c
	}
	for id, m := range s.messages {
		next.messages[id] = m
	}
	for id, m := range messages {
		next.messages[id] = m
	}
	for id := range deleted {
		delete(next.messages, id)
	}
	return next
}
