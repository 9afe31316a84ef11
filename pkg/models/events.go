package models

// Remote event kinds delivered on the inbound feed. Payloads are JSON.
const (
	EventMessageNew    = "message.new"
	EventTypingStart   = "typing.start"
	EventTypingStop    = "typing.stop"
	EventMemberAdded   = "member.added"
	EventMemberRemoved = "member.removed"
)

// MessageNewEvent announces a message committed on the backend. Delivery is
// at-least-once; applying the same event twice must be a no-op.
type MessageNewEvent struct {
	Message Message `json:"message"`
}

// TypingEvent reports a user starting or stopping typing in a channel.
type TypingEvent struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
}

// MemberEvent reports a membership change on a channel.
type MemberEvent struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
}
