package refs

import (
	"fmt"
	"time"

	"chatsync/pkg/ids"
	"chatsync/pkg/models"
	"chatsync/pkg/observe"
	"chatsync/pkg/query"
	"chatsync/pkg/store"
)

// ChannelReference observes one channel: its record (name, members,
// last-message timestamp, typing) and its ordered message list.
type ChannelReference struct {
	client    *Client
	channelID string

	msgObs *observe.Observer[models.Message]
	chObs  *observe.Observer[models.Channel]
}

// ChannelRef builds a reference for the channel id. Call Start before
// reading; the initial evaluation is synchronous, so data is correct
// immediately after.
func (c *Client) ChannelRef(channelID string) *ChannelReference {
	r := &ChannelReference{client: c, channelID: channelID}
	r.msgObs = observe.New(c.store, query.MessagesInChannel(channelID), c.meta)
	r.chObs = observe.New(c.store, query.ChannelByID(channelID), c.meta)
	return r
}

func (r *ChannelReference) Start() {
	r.msgObs.Start()
	r.chObs.Start()
}

// Stop tears down both observers. No listener fires afterwards, even for
// a commit already in flight.
func (r *ChannelReference) Stop() {
	r.msgObs.Stop()
	r.chObs.Stop()
}

// Channel returns the current channel record, or false if it does not
// exist (yet).
func (r *ChannelReference) Channel() (models.Channel, bool) {
	cur := r.chObs.Current()
	if len(cur) == 0 {
		return models.Channel{}, false
	}
	return cur[0], true
}

// Messages returns the current ordered message list, oldest first.
// Messages flagged pending-delete are included; graying them out is the
// presentation layer's call.
func (r *ChannelReference) Messages() []models.Message {
	return r.msgObs.Current()
}

// OnMessageChanges registers an edit-script listener over the message
// list and returns its remove function.
func (r *ChannelReference) OnMessageChanges(fn func(observe.Batch[models.Message])) func() {
	return r.msgObs.AddListener(fn)
}

// OnMessages registers a full-sequence listener for consumers that do not
// want to apply edit scripts themselves.
func (r *ChannelReference) OnMessages(fn func([]models.Message, observe.Metadata)) func() {
	return r.msgObs.AddResultListener(fn)
}

// OnChannelUpdated fires whenever the channel record itself changes.
func (r *ChannelReference) OnChannelUpdated(fn func(models.Channel, observe.Metadata)) func() {
	return r.chObs.AddResultListener(func(cs []models.Channel, meta observe.Metadata) {
		if len(cs) > 0 {
			fn(cs[0], meta)
		}
	})
}

// SendMessage commits the message optimistically in pending-send state and
// bumps the channel's last-message timestamp in the same transaction, so
// there is no window where the message is visible with a stale channel.
// The sync worker picks it up from the pending-send query and retries
// until the backend accepts it. completion, if non-nil, reports the local
// commit outcome; the send itself is never surfaced as a terminal error.
func (r *ChannelReference) SendMessage(text string, completion func(error)) string {
	m := models.Message{
		ID:        ids.New(),
		Channel:   r.channelID,
		Author:    r.client.currentUser.ID,
		Text:      text,
		CreatedTS: time.Now().UTC().UnixNano(),
		Pending:   models.PendingSend,
	}
	err := r.client.store.Write(func(tx *store.Tx) error {
		ch, ok := tx.Channel(r.channelID)
		if !ok {
			return fmt.Errorf("channel %s: %w", r.channelID, store.ErrNotFound)
		}
		if err := tx.PutMessage(m); err != nil {
			return err
		}
		ch.LastMessageTS = m.CreatedTS
		return tx.PutChannel(ch)
	})
	if completion != nil {
		completion(err)
	}
	if err != nil {
		return ""
	}
	return m.ID
}

// DeleteMessage flags the message pending-delete; it stays visible until
// the backend confirms. completion, if non-nil, fires exactly once: nil
// after confirmed removal, or the remote error after the state is rolled
// back. This is the one action whose remote failure reaches the caller.
func (r *ChannelReference) DeleteMessage(messageID string, completion func(error)) {
	// Registered before the commit: the worker may confirm the delete
	// before this call regains control.
	if r.client.worker != nil {
		r.client.worker.RegisterDeleteCompletion(messageID, completion)
	}
	err := r.client.store.Write(func(tx *store.Tx) error {
		cur, ok := tx.Message(messageID)
		if !ok {
			return fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
		}
		cur.Pending = models.PendingDelete
		return tx.PutMessage(cur)
	})
	if err != nil {
		if r.client.worker != nil {
			r.client.worker.UnregisterDeleteCompletions(messageID)
		}
		if completion != nil {
			completion(err)
		}
		return
	}
	if r.client.worker == nil && completion != nil {
		// No worker to confirm against; the local commit is the outcome.
		completion(nil)
	}
}
