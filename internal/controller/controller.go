// Package controller holds the selection and move state machine of one game view.
//
// The controller is not safe for concurrent use. The session owns it and feeds it
// clicks, submission results and pushed snapshots from a single goroutine.
package controller

import (
	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/board"
	"github.com/park285/cheese-board/internal/obslog"
)

// Phase is the selection state. Exactly one phase holds at a time.
type Phase int

const (
	Idle Phase = iota
	Selected
	GameOver
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case GameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// Options configure a Controller.
type Options struct {
	// Promotion is attached to pawn moves that reach the last row. Empty disables it.
	Promotion board.Kind
	Logger    *zap.Logger
}

// Effect is what a transition asks of the caller.
type Effect struct {
	// Changed means the rendered state differs from before the call.
	Changed bool
	// Submit is set when a move must be sent to the authority.
	Submit *board.MoveRequest
	Notice Notice
}

func (e *Effect) merge(o Effect) {
	e.Changed = e.Changed || o.Changed
	if o.Submit != nil {
		e.Submit = o.Submit
	}
	if o.Notice.Kind != NoticeNone {
		e.Notice = o.Notice
	}
}

type Controller struct {
	log   *zap.Logger
	promo board.Kind

	snap  *board.Snapshot
	phase Phase
	sel   board.Square
	legal []board.Square

	// pending is the outstanding submission; at most one.
	pending *board.MoveRequest
	// deferred holds pushed snapshots that arrived while pending, in arrival order.
	deferred []*board.Snapshot
	closed   bool
}

// New returns a controller in Idle. initial may be nil when no snapshot is known yet;
// clicks are ignored until one is applied.
func New(initial *board.Snapshot, opts Options) *Controller {
	lg := opts.Logger
	if lg == nil {
		lg = obslog.L()
	}
	c := &Controller{log: lg, promo: opts.Promotion}
	if initial != nil {
		c.apply(initial, "initial")
	}
	return c
}

func (c *Controller) Phase() Phase { return c.phase }

// Selection returns the selected square while in Selected.
func (c *Controller) Selection() (board.Square, bool) {
	if c.phase != Selected {
		return board.Square{}, false
	}
	return c.sel, true
}

// Legal returns a copy of the current legal-move set.
func (c *Controller) Legal() []board.Square {
	if len(c.legal) == 0 {
		return nil
	}
	return append([]board.Square(nil), c.legal...)
}

// Snapshot returns a copy of the current authoritative snapshot, or nil.
func (c *Controller) Snapshot() *board.Snapshot { return c.snap.Clone() }

// Pending returns the outstanding move request, if any.
func (c *Controller) Pending() (board.MoveRequest, bool) {
	if c.pending == nil {
		return board.MoveRequest{}, false
	}
	return *c.pending, true
}

func (c *Controller) Closed() bool { return c.closed }

// Click mediates a click on sq into a selection change or a move submission.
func (c *Controller) Click(sq board.Square) Effect {
	if c.closed || !sq.Valid() || c.snap == nil {
		return Effect{}
	}
	if c.pending != nil {
		return Effect{Notice: Notice{Kind: NoticePending}}
	}
	switch c.phase {
	case Idle:
		if !c.snap.Owns(sq) {
			return Effect{}
		}
		c.selectSquare(sq)
		c.log.Debug("board_select", zap.String("square", sq.Algebraic()), zap.Int("legal", len(c.legal)))
		return Effect{Changed: true}
	case Selected:
		if sq == c.sel {
			c.clearSelection()
			c.log.Debug("board_deselect", zap.String("square", sq.Algebraic()))
			return Effect{Changed: true}
		}
		req := c.moveRequest(c.sel, sq)
		c.pending = &req
		c.log.Info("move_submit",
			zap.String("from", req.From.Algebraic()),
			zap.String("to", req.To.Algebraic()),
			zap.String("promotion", string(req.Promotion)),
		)
		return Effect{Changed: true, Submit: &req}
	default:
		return Effect{}
	}
}

func (c *Controller) moveRequest(from, to board.Square) board.MoveRequest {
	req := board.MoveRequest{From: from, To: to}
	p := c.snap.Board.At(from)
	if c.promo != board.NoKind && p.Kind == board.Pawn && to.Row == board.PromotionRow(p.Color) {
		req.Promotion = c.promo
	}
	return req
}

// Accept resolves the pending submission with the authority's new snapshot.
// A nil snapshot is treated as a transport failure.
func (c *Controller) Accept(snap *board.Snapshot) Effect {
	if c.closed || c.pending == nil {
		return Effect{}
	}
	if snap == nil {
		return c.Fail(board.ErrMalformedSnapshot)
	}
	req := *c.pending
	c.pending = nil
	c.clearSelection()

	eff := Effect{Changed: true}
	eff.merge(c.apply(snap, "accepted"))
	c.log.Info("move_accepted",
		zap.String("from", req.From.Algebraic()),
		zap.String("to", req.To.Algebraic()),
		zap.String("turn", string(c.snap.Turn)),
		zap.String("status", string(c.snap.Status)),
	)
	eff.merge(c.drain())
	return eff
}

// Reject resolves the pending submission as refused by the authority.
// The clicked square is re-inspected in the pre-attempt snapshot: an own piece
// becomes the new selection, anything else returns to Idle.
func (c *Controller) Reject(detail string) Effect {
	if c.closed || c.pending == nil {
		return Effect{}
	}
	req := *c.pending
	c.pending = nil
	// pushes were deferred, so c.snap is still the pre-attempt snapshot
	if c.snap.Owns(req.To) {
		c.selectSquare(req.To)
	} else {
		c.clearSelection()
	}
	c.log.Info("move_rejected",
		zap.String("from", req.From.Algebraic()),
		zap.String("to", req.To.Algebraic()),
		zap.String("detail", detail),
		zap.String("phase", c.phase.String()),
	)
	eff := Effect{Changed: true, Notice: Notice{Kind: NoticeRejected, Detail: detail, Move: &req}}
	eff.merge(c.drain())
	return eff
}

// Fail resolves the pending submission as a transport failure. The selection is kept
// and nothing is retried.
func (c *Controller) Fail(err error) Effect {
	if c.closed || c.pending == nil {
		return Effect{}
	}
	req := *c.pending
	c.pending = nil
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	c.log.Warn("move_transport_failed",
		zap.String("from", req.From.Algebraic()),
		zap.String("to", req.To.Algebraic()),
		zap.Error(err),
	)
	eff := Effect{Changed: true, Notice: Notice{Kind: NoticeTransport, Detail: detail, Move: &req}}
	eff.merge(c.drain())
	return eff
}

// Push applies a snapshot from the sync channel or a resync fetch. While a
// submission is pending the snapshot is queued and applied after resolution.
func (c *Controller) Push(snap *board.Snapshot) Effect {
	if c.closed || snap == nil {
		return Effect{}
	}
	if c.pending != nil {
		c.deferred = append(c.deferred, snap.Clone())
		c.log.Debug("sync_event_deferred", zap.Int("queued", len(c.deferred)))
		return Effect{}
	}
	return c.apply(snap, "push")
}

// Close discards pending work. Every later call is a no-op.
func (c *Controller) Close() {
	c.closed = true
	c.pending = nil
	c.deferred = nil
}

func (c *Controller) drain() Effect {
	var eff Effect
	for len(c.deferred) > 0 && c.pending == nil {
		next := c.deferred[0]
		c.deferred = c.deferred[1:]
		eff.merge(c.apply(next, "deferred"))
	}
	c.deferred = nil
	return eff
}

// apply replaces the snapshot and re-establishes the selection invariant.
func (c *Controller) apply(snap *board.Snapshot, source string) Effect {
	if c.snap != nil {
		if c.snap.Equal(snap) {
			return Effect{}
		}
		if snap.Predates(c.snap) {
			c.log.Debug("sync_event_dropped",
				zap.String("reason", "stale"),
				zap.String("source", source),
				zap.Int("ply", snap.Ply),
				zap.Int("current_ply", c.snap.Ply),
			)
			return Effect{}
		}
	}
	if c.phase == GameOver && !snap.Finished() {
		c.log.Debug("sync_event_dropped", zap.String("reason", "game_over"), zap.String("source", source))
		return Effect{}
	}

	c.snap = snap.Clone()
	switch {
	case c.snap.Finished():
		c.phase = GameOver
		c.sel = board.Square{}
		c.legal = nil
		c.log.Info("game_over", zap.String("result", string(c.snap.Result)), zap.String("source", source))
	case c.phase == Selected:
		if c.snap.Owns(c.sel) {
			c.legal = c.snap.LegalFrom(c.sel)
		} else {
			c.log.Debug("selection_collapsed", zap.String("square", c.sel.Algebraic()), zap.String("turn", string(c.snap.Turn)))
			c.clearSelection()
		}
	}
	return Effect{Changed: true}
}

func (c *Controller) selectSquare(sq board.Square) {
	c.phase = Selected
	c.sel = sq
	c.legal = c.snap.LegalFrom(sq)
}

func (c *Controller) clearSelection() {
	if c.phase == Selected {
		c.phase = Idle
	}
	c.sel = board.Square{}
	c.legal = nil
}
