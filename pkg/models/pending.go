package models

// PendingState marks a message as locally mutated but not yet confirmed by
// the remote endpoint. The zero value means the message is fully synced.
type PendingState string

const (
	PendingNone   PendingState = ""
	PendingSend   PendingState = "pending_send"
	PendingDelete PendingState = "pending_delete"
)

// CanTransition reports whether an already-stored message may move from s
// to next. Creation (a message entering the store as PendingSend) is not a
// transition and is always allowed; physical removal is only legal from
// PendingDelete and is checked by the store's delete path, not here.
//
//	pending_send   -> none            send confirmed
//	pending_send   -> pending_delete  deleted before the send was acked
//	none           -> pending_delete  local delete
//	pending_delete -> none            delete failed, rolled back
func (s PendingState) CanTransition(next PendingState) bool {
	if s == next {
		return true
	}
	switch s {
	case PendingSend:
		return next == PendingNone || next == PendingDelete
	case PendingNone:
		return next == PendingDelete
	case PendingDelete:
		return next == PendingNone
	}
	return false
}
