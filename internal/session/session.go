// Package session runs one game view: it owns the controller and serializes clicks,
// submission results and sync events on a single goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/authority"
	"github.com/park285/cheese-board/internal/board"
	"github.com/park285/cheese-board/internal/controller"
	"github.com/park285/cheese-board/internal/msgcat"
	"github.com/park285/cheese-board/internal/obslog"
	"github.com/park285/cheese-board/internal/realtime"
	"github.com/park285/cheese-board/internal/render"
	"github.com/park285/cheese-board/internal/snapcache"
	"github.com/park285/cheese-board/internal/submit"
)

// ErrNoSnapshot is returned by Run when neither the authority nor the cache has the game.
var ErrNoSnapshot error = staticErr("no snapshot available")

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Fetcher reads the authoritative game state (authority.Client).
type Fetcher interface {
	FetchGame(ctx context.Context, gameID string) (*board.Snapshot, error)
}

// Channel is the per-game sync connection (realtime.Channel).
type Channel interface {
	Connect(ctx context.Context) error
	Events() <-chan realtime.Event
	Close(ctx context.Context) error
}

// Cache keeps the last applied snapshot (snapcache.Store).
type Cache interface {
	Save(ctx context.Context, gameID string, snap *board.Snapshot) error
	Load(ctx context.Context, gameID string) (*snapcache.Entry, error)
}

type Options struct {
	GameID    string
	Flipped   bool
	Promotion board.Kind
	// PNGDir, when set, receives one image per applied snapshot.
	PNGDir         string
	FetchTimeout   time.Duration
	SubmitTimeout  time.Duration
	ResyncInterval time.Duration
}

// Deps are the collaborators of a session. Channel and Cache are optional.
type Deps struct {
	API     Fetcher
	Submit  submit.Transport
	Channel Channel
	Cache   Cache
	Catalog *msgcat.Catalog
	Draw    func(render.Props)
	Logger  *zap.Logger
}

type submitResult struct {
	gen  uint64
	snap *board.Snapshot
	err  error
}

type resyncResult struct {
	snap *board.Snapshot
	err  error
}

type Session struct {
	opts Options
	deps Deps
	log  *zap.Logger
	cat  *msgcat.Catalog

	ctrl *controller.Controller

	clicks  chan board.Square
	cmds    chan func()
	results chan submitResult
	resyncs chan resyncResult
	done    chan struct{}

	// loop-owned state
	flipped       bool
	notice        string
	stale         bool
	gen           uint64
	resyncing     bool
	everConnected bool
	lastSaved     *board.Snapshot
	exported      int
	cancelSubmit  context.CancelFunc
}

func New(opts Options, deps Deps) *Session {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 8 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 10 * time.Second
	}
	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = 5 * time.Second
	}
	lg := deps.Logger
	if lg == nil {
		lg = obslog.L()
	}
	lg = lg.With(zap.String("game_id", opts.GameID))
	cat := deps.Catalog
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	return &Session{
		opts:    opts,
		deps:    deps,
		log:     lg,
		cat:     cat,
		flipped: opts.Flipped,
		clicks:  make(chan board.Square, 16),
		cmds:    make(chan func(), 4),
		results: make(chan submitResult, 1),
		resyncs: make(chan resyncResult, 1),
		done:    make(chan struct{}),
	}
}

// Click hands a board click to the session loop. It is safe to call from any goroutine.
func (s *Session) Click(sq board.Square) {
	select {
	case s.clicks <- sq:
	case <-s.done:
	}
}

// Flip toggles the board orientation.
func (s *Session) Flip() {
	s.do(func() {
		s.flipped = !s.flipped
		s.redraw()
	})
}

func (s *Session) do(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// Run fetches the game, connects the sync channel and processes input until ctx ends.
// Leaving Run tears everything down; no state is applied afterwards.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	initial, err := s.initialSnapshot(ctx)
	if err != nil {
		return err
	}
	s.ctrl = controller.New(initial, controller.Options{Promotion: s.opts.Promotion, Logger: s.log})
	s.afterChange()
	s.redraw()

	var events <-chan realtime.Event
	if s.deps.Channel != nil {
		events = s.deps.Channel.Events()
		if err := s.deps.Channel.Connect(ctx); err != nil {
			s.log.Warn("sync_connect_failed", zap.Error(err))
			s.setNotice("notice.offline", nil)
			s.redraw()
		}
	}

	ticker := time.NewTicker(s.opts.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return nil
		case sq := <-s.clicks:
			s.apply(s.ctrl.Click(sq))
		case fn := <-s.cmds:
			fn()
		case r := <-s.results:
			s.resolve(r)
		case r := <-s.resyncs:
			s.resyncDone(r)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		case <-ticker.C:
			if s.stale {
				s.resync("stale")
			}
		}
	}
}

func (s *Session) initialSnapshot(ctx context.Context) (*board.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	snap, err := s.deps.API.FetchGame(fctx, s.opts.GameID)
	cancel()
	if err == nil {
		return snap, nil
	}
	s.log.Warn("initial_fetch_failed", zap.Error(err))
	if s.deps.Cache != nil {
		entry, cerr := s.deps.Cache.Load(ctx, s.opts.GameID)
		if cerr != nil {
			s.log.Warn("cache_load_failed", zap.Error(cerr))
		}
		if entry != nil {
			s.log.Info("using_cached_snapshot", zap.Time("saved_at", entry.SavedAt))
			s.stale = true
			s.setNotice("notice.stale", nil)
			return entry.Snapshot, nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
}

// apply performs what a controller transition asks for.
func (s *Session) apply(eff controller.Effect) {
	if eff.Submit != nil {
		s.startSubmit(*eff.Submit)
	}
	if eff.Notice.Kind != controller.NoticeNone {
		s.setNotice(eff.Notice.Key(), eff.Notice.Data())
	}
	if eff.Changed {
		s.afterChange()
	}
	if eff.Changed || eff.Notice.Kind != controller.NoticeNone {
		s.redraw()
	}
}

func (s *Session) startSubmit(req board.MoveRequest) {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SubmitTimeout)
	s.cancelSubmit = cancel
	s.notice = ""
	go func() {
		defer cancel()
		snap, err := s.deps.Submit.Submit(ctx, req)
		select {
		case s.results <- submitResult{gen: gen, snap: snap, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) resolve(r submitResult) {
	if r.gen != s.gen {
		s.log.Debug("submit_result_dropped", zap.Uint64("gen", r.gen))
		return
	}
	s.cancelSubmit = nil
	switch {
	case r.err == nil:
		s.stale = false
		s.notice = ""
		s.apply(s.ctrl.Accept(r.snap))
	default:
		if re, ok := authority.IsRejected(r.err); ok {
			s.apply(s.ctrl.Reject(re.Detail))
			return
		}
		s.apply(s.ctrl.Fail(r.err))
		if errors.Is(r.err, board.ErrMalformedSnapshot) {
			s.resync("malformed_reply")
		}
	}
}

func (s *Session) handleEvent(ev realtime.Event) {
	s.log.Debug("sync_event", zap.String("kind", ev.Kind.String()), zap.String("type", ev.Category))
	switch ev.Kind {
	case realtime.EventSnapshot:
		s.stale = false
		s.apply(s.ctrl.Push(ev.Snapshot))
	case realtime.EventMoveNotice:
		s.resync("move_notice")
	case realtime.EventError:
		s.setNotice("notice.sync_error", map[string]string{"Detail": ev.Message})
		s.redraw()
	case realtime.EventMalformed:
		s.setNotice("notice.malformed", nil)
		s.redraw()
		s.resync("malformed_event")
	case realtime.EventConnected:
		if s.everConnected || s.stale {
			s.resync("reconnect")
		}
		s.everConnected = true
		s.setNotice("notice.online", nil)
		s.redraw()
	case realtime.EventDisconnected:
		s.setNotice("notice.offline", nil)
		s.redraw()
	}
}

// resync re-fetches the game; the result is applied like any pushed snapshot.
func (s *Session) resync(reason string) {
	if s.resyncing {
		return
	}
	s.resyncing = true
	s.log.Info("resync", zap.String("reason", reason))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
		defer cancel()
		snap, err := s.deps.API.FetchGame(ctx, s.opts.GameID)
		select {
		case s.resyncs <- resyncResult{snap: snap, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) resyncDone(r resyncResult) {
	s.resyncing = false
	if r.err != nil {
		s.log.Warn("resync_failed", zap.Error(r.err))
		return
	}
	if s.stale {
		s.stale = false
		s.notice = ""
	}
	eff := s.ctrl.Push(r.snap)
	eff.Changed = true
	s.apply(eff)
}

// afterChange persists and exports the snapshot when it differs from the last one saved.
func (s *Session) afterChange() {
	snap := s.ctrl.Snapshot()
	if snap == nil || s.lastSaved.Equal(snap) {
		return
	}
	s.lastSaved = snap
	if s.deps.Cache != nil && !s.stale {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.deps.Cache.Save(ctx, s.opts.GameID, snap); err != nil {
			s.log.Warn("cache_save_failed", zap.Error(err))
		}
		cancel()
	}
	if s.opts.PNGDir != "" {
		s.exportPNG()
	}
}

func (s *Session) exportPNG() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := render.PNG(ctx, s.props())
	if err != nil {
		s.log.Warn("png_render_failed", zap.Error(err))
		return
	}
	s.exported++
	name := filepath.Join(s.opts.PNGDir, fmt.Sprintf("%s-%04d.png", s.opts.GameID, s.exported))
	if err := os.MkdirAll(s.opts.PNGDir, 0o755); err != nil {
		s.log.Warn("png_write_failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(name, raw, 0o644); err != nil {
		s.log.Warn("png_write_failed", zap.Error(err))
		return
	}
	s.log.Debug("png_written", zap.String("path", name))
}

func (s *Session) setNotice(key string, data any) {
	s.notice = s.cat.Text(key, data)
}

func (s *Session) props() render.Props {
	p := render.Props{Flipped: s.flipped, Notice: s.notice}
	snap := s.ctrl.Snapshot()
	if snap == nil {
		return p
	}
	p.Board = snap.Board
	p.Status = s.cat.Status(snap)
	if sq, ok := s.ctrl.Selection(); ok {
		p.Selected = &sq
	}
	p.Legal = s.ctrl.Legal()
	if req, ok := s.ctrl.Pending(); ok {
		p.Pending = &req
	}
	return p
}

func (s *Session) redraw() {
	if s.deps.Draw != nil {
		s.deps.Draw(s.props())
	}
}

func (s *Session) teardown() {
	s.ctrl.Close()
	if s.cancelSubmit != nil {
		s.cancelSubmit()
	}
	if s.deps.Channel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.deps.Channel.Close(ctx); err != nil {
			s.log.Warn("sync_close_failed", zap.Error(err))
		}
		cancel()
	}
	s.log.Info("session_closed")
}
