package realtime

import (
	"encoding/json"
	"strings"

	"github.com/park285/cheese-board/internal/board"
)

// EventKind classifies an inbound item on the ordered queue.
type EventKind int

const (
	// EventSnapshot carries a decoded move or game_state payload.
	EventSnapshot EventKind = iota
	// EventMoveNotice is a move event without a board; the receiver should resync.
	EventMoveNotice
	// EventError is a non-fatal error message from the authority.
	EventError
	// EventMalformed is a payload that could not be decoded.
	EventMalformed
	EventConnected
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventSnapshot:
		return "snapshot"
	case EventMoveNotice:
		return "move_notice"
	case EventError:
		return "error"
	case EventMalformed:
		return "malformed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one item of the per-game inbound queue.
type Event struct {
	Kind EventKind
	// Category is the wire type ("move", "game_state", "error").
	Category string
	// ID echoes the id of the outbound frame this one answers, when the authority sends it.
	ID       string
	Snapshot *board.Snapshot
	Message  string
	Err      error
}

// envelope is the wire frame in both directions.
type envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

const (
	typeMove      = "move"
	typeGameState = "game_state"
	typeError     = "error"
)

// decodeFrame turns a raw frame into an event. ok is false for unknown types.
func decodeFrame(raw []byte) (ev Event, ok bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{Kind: EventMalformed, Err: err}, true
	}
	typ := strings.ToLower(strings.TrimSpace(env.Type))
	ev, ok = decodeBody(typ, env)
	ev.ID = strings.TrimSpace(env.ID)
	return ev, ok
}

func decodeBody(typ string, env envelope) (Event, bool) {
	switch typ {
	case typeMove, typeGameState:
		if !hasBoardState(env.Data) {
			if typ == typeMove {
				return Event{Kind: EventMoveNotice, Category: typ}, true
			}
			return Event{Kind: EventMalformed, Category: typ, Err: board.ErrMalformedSnapshot}, true
		}
		snap, err := board.DecodeSnapshot(env.Data)
		if err != nil {
			return Event{Kind: EventMalformed, Category: typ, Err: err}, true
		}
		return Event{Kind: EventSnapshot, Category: typ, Snapshot: snap}, true
	case typeError:
		msg := strings.TrimSpace(env.Message)
		if msg == "" && len(env.Data) > 0 {
			var inner struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(env.Data, &inner) == nil {
				msg = strings.TrimSpace(inner.Message)
			}
		}
		return Event{Kind: EventError, Category: typ, Message: msg}, true
	default:
		return Event{Category: typ}, false
	}
}

func hasBoardState(data json.RawMessage) bool {
	if len(data) == 0 {
		return false
	}
	var probe struct {
		BoardState json.RawMessage `json:"board_state"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// let DecodeSnapshot report it
		return true
	}
	s := strings.TrimSpace(string(probe.BoardState))
	return s != "" && s != "null"
}
