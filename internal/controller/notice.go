package controller

import "github.com/park285/cheese-board/internal/board"

// NoticeKind classifies a transient user-facing message.
type NoticeKind int

const (
	NoticeNone NoticeKind = iota
	NoticeRejected
	NoticeTransport
	NoticePending
)

// Notice is an optional message attached to a transition. It never carries state.
type Notice struct {
	Kind   NoticeKind
	Detail string
	// Move is the request the notice refers to, if any.
	Move *board.MoveRequest
}

// Key returns the message catalog key for the notice.
func (n Notice) Key() string {
	switch n.Kind {
	case NoticeRejected:
		return "notice.rejected"
	case NoticeTransport:
		return "notice.transport"
	case NoticePending:
		return "notice.pending"
	default:
		return ""
	}
}

// Data returns template data for Key.
func (n Notice) Data() map[string]string {
	d := map[string]string{"Detail": n.Detail, "From": "-", "To": "-"}
	if n.Move != nil {
		d["From"] = n.Move.From.Algebraic()
		d["To"] = n.Move.To.Algebraic()
	}
	return d
}
