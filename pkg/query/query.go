// Package query defines standing filter+order queries re-evaluable against
// store snapshots. Evaluation is pure: the same snapshot always yields the
// same sequence, with ties broken by record id so the order is total.
package query

import (
	"sort"

	"chatsync/pkg/diff"
	"chatsync/pkg/models"
	"chatsync/pkg/store"
)

// Query selects and orders records of one entity type. Source extracts the
// candidate set from a snapshot, Match filters it, Less orders it. A nil
// Match accepts everything; a nil Less sorts by record id alone.
type Query[T diff.Record[T]] struct {
	Name   string
	Source func(*store.Snapshot) []T
	Match  func(T) bool
	Less   func(a, b T) bool
}

// Evaluate returns the ordered result of the query against snap.
func (q Query[T]) Evaluate(snap *store.Snapshot) []T {
	var out []T
	for _, item := range q.Source(snap) {
		if q.Match == nil || q.Match(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Less != nil {
			if q.Less(out[i], out[j]) {
				return true
			}
			if q.Less(out[j], out[i]) {
				return false
			}
		}
		return out[i].RecordID() < out[j].RecordID()
	})
	return out
}

// MessagesInChannel returns a channel's messages, oldest first. Messages
// flagged pending-delete stay in the result; hiding or graying them out is
// a presentation concern.
func MessagesInChannel(channelID string) Query[models.Message] {
	return Query[models.Message]{
		Name:   "messages_in_channel",
		Source: (*store.Snapshot).Messages,
		Match:  func(m models.Message) bool { return m.Channel == channelID },
		Less:   func(a, b models.Message) bool { return a.CreatedTS < b.CreatedTS },
	}
}

// MessagesPending returns all messages in the given pending state, oldest
// first. The sync worker drains these.
func MessagesPending(state models.PendingState) Query[models.Message] {
	return Query[models.Message]{
		Name:   "messages_pending",
		Source: (*store.Snapshot).Messages,
		Match:  func(m models.Message) bool { return m.Pending == state },
		Less:   func(a, b models.Message) bool { return a.CreatedTS < b.CreatedTS },
	}
}

// ChannelByID returns the single channel record, or an empty result.
func ChannelByID(id string) Query[models.Channel] {
	return Query[models.Channel]{
		Name:   "channel_by_id",
		Source: (*store.Snapshot).Channels,
		Match:  func(c models.Channel) bool { return c.ID == id },
	}
}

// ChannelsForMember returns channels the user belongs to, most recent
// message first; channels that never saw a message sort last by creation
// time.
func ChannelsForMember(userID string) Query[models.Channel] {
	return Query[models.Channel]{
		Name:   "channels_for_member",
		Source: (*store.Snapshot).Channels,
		Match:  func(c models.Channel) bool { return c.HasMember(userID) },
		Less:   channelRecencyLess,
	}
}

// AllChannels returns every channel ordered by recency.
func AllChannels() Query[models.Channel] {
	return Query[models.Channel]{
		Name:   "all_channels",
		Source: (*store.Snapshot).Channels,
		Less:   channelRecencyLess,
	}
}

// AllUsers returns every user ordered by display name.
func AllUsers() Query[models.User] {
	return Query[models.User]{
		Name:   "all_users",
		Source: (*store.Snapshot).Users,
		Less:   func(a, b models.User) bool { return a.Name < b.Name },
	}
}

func channelRecencyLess(a, b models.Channel) bool {
	if a.LastMessageTS != b.LastMessageTS {
		return a.LastMessageTS > b.LastMessageTS
	}
	return a.CreatedTS > b.CreatedTS
}
