package models

import "sort"

// ChannelType classifies a channel. Values outside the predefined set are
// treated as custom types and round-trip unchanged.
type ChannelType string

const (
	ChannelTypeUnknown    ChannelType = ""
	ChannelTypeLivestream ChannelType = "livestream"
	ChannelTypeMessaging  ChannelType = "messaging"
	ChannelTypeTeam       ChannelType = "team"
	ChannelTypeGaming     ChannelType = "gaming"
	ChannelTypeCommerce   ChannelType = "commerce"
)

// Custom reports whether t is outside the predefined channel types.
func (t ChannelType) Custom() bool {
	switch t {
	case ChannelTypeUnknown, ChannelTypeLivestream, ChannelTypeMessaging,
		ChannelTypeTeam, ChannelTypeGaming, ChannelTypeCommerce:
		return false
	}
	return true
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (u User) RecordID() string { return u.ID }

func (u User) EqualRecord(o User) bool { return u == o }

type Channel struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Members []string    `json:"members,omitempty"`
	Type    ChannelType `json:"type,omitempty"`
	// CreatedTS and LastMessageTS are unix nanoseconds. LastMessageTS is
	// zero until the first message is committed to the channel.
	CreatedTS     int64 `json:"created_ts"`
	LastMessageTS int64 `json:"last_message_ts,omitempty"`
	// Typing holds user ids currently typing in the channel. It is live
	// state fed by remote events and is not persisted.
	Typing []string `json:"-"`
}

func (c Channel) RecordID() string { return c.ID }

func (c Channel) EqualRecord(o Channel) bool {
	if c.ID != o.ID || c.Name != o.Name || c.Type != o.Type ||
		c.CreatedTS != o.CreatedTS || c.LastMessageTS != o.LastMessageTS {
		return false
	}
	return equalStrings(c.Members, o.Members) && equalStrings(c.Typing, o.Typing)
}

// Clone returns a deep copy so snapshot consumers can never alias the
// store's slices.
func (c Channel) Clone() Channel {
	out := c
	out.Members = append([]string(nil), c.Members...)
	out.Typing = append([]string(nil), c.Typing...)
	return out
}

// HasMember reports whether the user id is in the member set.
func (c Channel) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Normalize sorts and dedupes the member and typing sets so value equality
// is well defined.
func (c *Channel) Normalize() {
	c.Members = normalizeSet(c.Members)
	c.Typing = normalizeSet(c.Typing)
}

type Message struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Author  string `json:"author,omitempty"`
	Text    string `json:"text"`
	// CreatedTS is unix nanoseconds.
	CreatedTS int64        `json:"created_ts"`
	Pending   PendingState `json:"pending,omitempty"`
}

func (m Message) RecordID() string { return m.ID }

func (m Message) EqualRecord(o Message) bool { return m == o }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if i == 0 || out[n-1] != s {
			out[n] = s
			n++
		}
	}
	return out[:n]
}
