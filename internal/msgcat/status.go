package msgcat

import "github.com/park285/cheese-board/internal/board"

// Status renders the turn indicator or the result banner for snap.
func (c *Catalog) Status(snap *board.Snapshot) string {
	if snap == nil {
		return ""
	}
	if snap.Finished() {
		switch snap.Result {
		case board.ResultWhite, board.ResultBlack, board.ResultDraw:
			return c.Text("status.result."+string(snap.Result), nil)
		default:
			return c.Text("status.result.unknown", nil)
		}
	}
	return c.Text("status.turn", map[string]string{"Side": c.Side(snap.Turn)})
}

// Side renders a color name ("White").
func (c *Catalog) Side(col board.Color) string {
	if !col.Valid() {
		return "?"
	}
	return c.Text("side."+string(col), nil)
}
