package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedSnapshot marks payloads that cannot be converted into a Snapshot.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// WirePiece is a cell as sent by the authority; a JSON null is an empty cell.
type WirePiece struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// WireBoardState carries the grid plus optional move counters used to order snapshots.
type WireBoardState struct {
	Board          [][]*WirePiece    `json:"board"`
	MoveHistory    []json.RawMessage `json:"move_history,omitempty"`
	FullmoveNumber int               `json:"fullmove_number,omitempty"`
}

// WireSnapshot is the fetch/move response shape. Move and game_state push payloads reuse it.
type WireSnapshot struct {
	BoardState  *WireBoardState     `json:"board_state"`
	CurrentTurn string              `json:"current_turn"`
	Status      string              `json:"status"`
	Result      *string             `json:"result"`
	LegalMoves  map[string][][2]int `json:"legal_moves,omitempty"`
}

// WireMove is the submit-move request body.
type WireMove struct {
	FromRow   int     `json:"from_row"`
	FromCol   int     `json:"from_col"`
	ToRow     int     `json:"to_row"`
	ToCol     int     `json:"to_col"`
	Promotion *string `json:"promotion,omitempty"`
}

// Wire converts a request into its JSON body.
func (m MoveRequest) Wire() WireMove {
	w := WireMove{FromRow: m.From.Row, FromCol: m.From.Col, ToRow: m.To.Row, ToCol: m.To.Col}
	if name, ok := promotionNames[m.Promotion]; ok {
		w.Promotion = &name
	}
	return w
}

// DecodeSnapshot parses and validates a raw authority payload.
func DecodeSnapshot(raw []byte) (*Snapshot, error) {
	var w WireSnapshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return w.Snapshot()
}

// Snapshot validates the wire payload and converts it into the strict shape.
func (w *WireSnapshot) Snapshot() (*Snapshot, error) {
	if w == nil || w.BoardState == nil {
		return nil, fmt.Errorf("%w: missing board_state", ErrMalformedSnapshot)
	}
	rows := w.BoardState.Board
	if len(rows) != Size {
		return nil, fmt.Errorf("%w: board has %d rows", ErrMalformedSnapshot, len(rows))
	}
	snap := &Snapshot{}
	for r, row := range rows {
		if len(row) != Size {
			return nil, fmt.Errorf("%w: row %d has %d cells", ErrMalformedSnapshot, r, len(row))
		}
		for c, cell := range row {
			if cell == nil {
				continue
			}
			p := Piece{Kind: Kind(strings.ToUpper(strings.TrimSpace(cell.Type))), Color: Color(strings.ToLower(strings.TrimSpace(cell.Color)))}
			if !p.Valid() {
				return nil, fmt.Errorf("%w: bad piece %q/%q at (%d,%d)", ErrMalformedSnapshot, cell.Type, cell.Color, r, c)
			}
			snap.Board[r][c] = p
		}
	}

	snap.Turn = Color(strings.ToLower(strings.TrimSpace(w.CurrentTurn)))
	if !snap.Turn.Valid() {
		return nil, fmt.Errorf("%w: bad current_turn %q", ErrMalformedSnapshot, w.CurrentTurn)
	}

	switch st := strings.ToLower(strings.TrimSpace(w.Status)); st {
	case "":
		return nil, fmt.Errorf("%w: missing status", ErrMalformedSnapshot)
	case string(StatusPlaying):
		snap.Status = StatusPlaying
	default:
		// checkmate, stalemate, draw_*, abandoned ... all end the session
		snap.Status = StatusFinished
		if w.Result != nil {
			switch res := Result(strings.ToLower(strings.TrimSpace(*w.Result))); res {
			case ResultWhite, ResultBlack, ResultDraw:
				snap.Result = res
			}
		}
	}

	snap.Ply = plyOf(w.BoardState, snap.Turn)

	if snap.Status == StatusPlaying && len(w.LegalMoves) > 0 {
		snap.Hints = decodeHints(w.LegalMoves)
	}
	return snap, nil
}

// plyOf counts half-moves played; 0 means the authority did not say.
func plyOf(bs *WireBoardState, turn Color) int {
	if bs.MoveHistory != nil {
		return len(bs.MoveHistory)
	}
	if bs.FullmoveNumber > 0 {
		ply := (bs.FullmoveNumber - 1) * 2
		if turn == Black {
			ply++
		}
		return ply
	}
	return 0
}

// decodeHints drops entries with unparsable keys or off-board squares.
func decodeHints(in map[string][][2]int) LegalHints {
	out := make(LegalHints, len(in))
	for key, dsts := range in {
		from, ok := parseSquareKey(key)
		if !ok {
			continue
		}
		var list []Square
		for _, d := range dsts {
			sq := Square{Row: d[0], Col: d[1]}
			if sq.Valid() {
				list = append(list, sq)
			}
		}
		if len(list) > 0 {
			out[from] = list
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseSquareKey(key string) (Square, bool) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return Square{}, false
	}
	r, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	c, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return Square{}, false
	}
	sq := Square{Row: r, Col: c}
	return sq, sq.Valid()
}

// ToWire is the inverse of Snapshot; used by the cache and test fixtures.
func (s *Snapshot) ToWire() *WireSnapshot {
	if s == nil {
		return nil
	}
	w := &WireSnapshot{
		BoardState:  &WireBoardState{Board: make([][]*WirePiece, Size)},
		CurrentTurn: string(s.Turn),
		Status:      string(s.Status),
	}
	for r := 0; r < Size; r++ {
		w.BoardState.Board[r] = make([]*WirePiece, Size)
		for c := 0; c < Size; c++ {
			if p := s.Board[r][c]; !p.Empty() {
				w.BoardState.Board[r][c] = &WirePiece{Type: string(p.Kind), Color: string(p.Color)}
			}
		}
	}
	if s.Ply > 0 {
		w.BoardState.FullmoveNumber = s.Ply/2 + 1
	}
	if s.Result != ResultNone {
		res := string(s.Result)
		w.Result = &res
	}
	if len(s.Hints) > 0 {
		w.LegalMoves = make(map[string][][2]int, len(s.Hints))
		for from, dsts := range s.Hints {
			key := strconv.Itoa(from.Row) + "," + strconv.Itoa(from.Col)
			for _, d := range dsts {
				w.LegalMoves[key] = append(w.LegalMoves[key], [2]int{d.Row, d.Col})
			}
		}
	}
	return w
}
