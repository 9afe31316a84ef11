package refs

import (
	"time"

	"chatsync/pkg/ids"
	"chatsync/pkg/models"
	"chatsync/pkg/observe"
	"chatsync/pkg/query"
	"chatsync/pkg/store"
)

// ChannelListReference observes the current user's channels, most recently
// active first.
type ChannelListReference struct {
	client *Client
	obs    *observe.Observer[models.Channel]
}

func (c *Client) ChannelListRef() *ChannelListReference {
	r := &ChannelListReference{client: c}
	r.obs = observe.New(c.store, query.ChannelsForMember(c.currentUser.ID), c.meta)
	return r
}

func (r *ChannelListReference) Start() { r.obs.Start() }
func (r *ChannelListReference) Stop()  { r.obs.Stop() }

func (r *ChannelListReference) Channels() []models.Channel {
	return r.obs.Current()
}

func (r *ChannelListReference) OnChanges(fn func(observe.Batch[models.Channel])) func() {
	return r.obs.AddListener(fn)
}

func (r *ChannelListReference) OnChannels(fn func([]models.Channel, observe.Metadata)) func() {
	return r.obs.AddResultListener(fn)
}

// CreateChannel commits a new messaging channel whose member set is the
// given users plus the current user. Returns the new channel id; the empty
// string on failure.
func (r *ChannelListReference) CreateChannel(name string, members []string, completion func(error)) string {
	ch := models.Channel{
		ID:        ids.New(),
		Name:      name,
		Members:   append(append([]string(nil), members...), r.client.currentUser.ID),
		Type:      models.ChannelTypeMessaging,
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	err := r.client.store.Write(func(tx *store.Tx) error {
		return tx.PutChannel(ch)
	})
	if completion != nil {
		completion(err)
	}
	if err != nil {
		return ""
	}
	return ch.ID
}
