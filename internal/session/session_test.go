package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/authority"
	"github.com/park285/cheese-board/internal/board"
	"github.com/park285/cheese-board/internal/realtime"
	"github.com/park285/cheese-board/internal/render"
	"github.com/park285/cheese-board/internal/snapcache"
)

func sq(r, c int) board.Square { return board.Square{Row: r, Col: c} }

type fakeAPI struct {
	mu    sync.Mutex
	snaps []*board.Snapshot
	errs  []error
	calls int
}

func (f *fakeAPI) FetchGame(ctx context.Context, gameID string) (*board.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i].Clone(), nil
}

func (f *fakeAPI) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type submitCall struct {
	ctx   context.Context
	req   board.MoveRequest
	reply chan submitReply
}

type submitReply struct {
	snap *board.Snapshot
	err  error
}

type fakeTransport struct {
	calls chan submitCall
	// ignoreCancel makes Submit wait for its reply even after ctx ends.
	ignoreCancel bool
}

func (f *fakeTransport) Submit(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error) {
	c := submitCall{ctx: ctx, req: req, reply: make(chan submitReply, 1)}
	f.calls <- c
	if f.ignoreCancel {
		r := <-c.reply
		return r.snap, r.err
	}
	select {
	case r := <-c.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeChannel struct {
	events chan realtime.Event
	closed chan struct{}
	once   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan realtime.Event, 8), closed: make(chan struct{})}
}

func (f *fakeChannel) Connect(ctx context.Context) error { return nil }

func (f *fakeChannel) Events() <-chan realtime.Event { return f.events }

func (f *fakeChannel) Close(ctx context.Context) error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type harness struct {
	s      *Session
	api    *fakeAPI
	tr     *fakeTransport
	ch     *fakeChannel
	frames chan render.Props
	cancel context.CancelFunc
	errc   chan error
}

func openingSnapshot() *board.Snapshot {
	s := board.StartPosition()
	s.Ply = 1
	s.Hints = board.LegalHints{sq(6, 4): {sq(5, 4), sq(4, 4)}}
	return s
}

func afterE4(prev *board.Snapshot) *board.Snapshot {
	n := prev.Clone()
	n.Board[4][4] = n.Board[6][4]
	n.Board[6][4] = board.Piece{}
	n.Turn = board.Black
	n.Ply = prev.Ply + 1
	n.Hints = board.LegalHints{sq(1, 4): {sq(2, 4), sq(3, 4)}}
	return n
}

func start(t *testing.T, api *fakeAPI, cache Cache, opts Options) *harness {
	t.Helper()
	h := &harness{
		api:    api,
		tr:     &fakeTransport{calls: make(chan submitCall, 4)},
		ch:     newFakeChannel(),
		frames: make(chan render.Props, 64),
		errc:   make(chan error, 1),
	}
	if opts.GameID == "" {
		opts.GameID = "g1"
	}
	h.s = New(opts, Deps{
		API:     api,
		Submit:  h.tr,
		Channel: h.ch,
		Cache:   cache,
		Draw:    func(p render.Props) { h.frames <- p },
		Logger:  zap.NewNop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- h.s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.errc:
		case <-time.After(2 * time.Second):
			t.Errorf("session did not stop")
		}
	})
	return h
}

// waitFrame returns the first drawn frame that satisfies ok.
func (h *harness) waitFrame(t *testing.T, what string, ok func(render.Props) bool) render.Props {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-h.frames:
			if ok(p) {
				return p
			}
		case <-deadline:
			t.Fatalf("timeout waiting for frame: %s", what)
		}
	}
}

func (h *harness) nextSubmit(t *testing.T) submitCall {
	t.Helper()
	select {
	case c := <-h.tr.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no submission")
	}
	return submitCall{}
}

func TestInitialFetchDraws(t *testing.T) {
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{openingSnapshot()}}, nil, Options{})
	p := h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })
	if p.Status != "Turn: White" {
		t.Fatalf("status = %q", p.Status)
	}
	if p.Board.At(sq(7, 4)).Kind != board.King {
		t.Fatalf("expected white king on e1")
	}
}

func TestSelectSubmitAccept(t *testing.T) {
	first := openingSnapshot()
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{first}}, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.s.Click(sq(6, 4))
	p := h.waitFrame(t, "selection", func(p render.Props) bool { return p.Selected != nil })
	if *p.Selected != sq(6, 4) || len(p.Legal) != 2 {
		t.Fatalf("selected=%v legal=%v", p.Selected, p.Legal)
	}

	h.s.Click(sq(4, 4))
	call := h.nextSubmit(t)
	if call.req.From != sq(6, 4) || call.req.To != sq(4, 4) {
		t.Fatalf("submitted %+v", call.req)
	}
	h.waitFrame(t, "pending arrow", func(p render.Props) bool { return p.Pending != nil })

	call.reply <- submitReply{snap: afterE4(first)}
	p = h.waitFrame(t, "accepted", func(p render.Props) bool { return p.Status == "Turn: Black" })
	if p.Pending != nil || p.Selected != nil {
		t.Fatalf("pending=%v selected=%v after accept", p.Pending, p.Selected)
	}
	if p.Board.At(sq(4, 4)).Kind != board.Pawn {
		t.Fatalf("pawn not on e4")
	}
}

func TestRejectedMoveShowsNotice(t *testing.T) {
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{openingSnapshot()}}, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.s.Click(sq(6, 4))
	h.s.Click(sq(3, 4))
	call := h.nextSubmit(t)
	call.reply <- submitReply{err: &authority.RejectedError{Status: 400, Detail: "Illegal move"}}

	p := h.waitFrame(t, "rejection", func(p render.Props) bool { return p.Notice != "" && p.Pending == nil })
	if !strings.Contains(p.Notice, "e2-e5") || !strings.Contains(p.Notice, "Illegal move") {
		t.Fatalf("notice = %q", p.Notice)
	}
	if p.Board.At(sq(6, 4)).Kind != board.Pawn {
		t.Fatalf("board changed after rejection")
	}
}

func TestClickWhilePendingIsRefused(t *testing.T) {
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{openingSnapshot()}}, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.s.Click(sq(6, 4))
	h.s.Click(sq(4, 4))
	call := h.nextSubmit(t)
	h.s.Click(sq(6, 3))
	h.waitFrame(t, "pending notice", func(p render.Props) bool { return strings.HasPrefix(p.Notice, "Waiting") })
	select {
	case c := <-h.tr.calls:
		t.Fatalf("second submission %+v", c.req)
	default:
	}
	call.reply <- submitReply{err: &authority.TransportError{Op: "submit", Err: errors.New("boom")}}
	h.waitFrame(t, "transport notice", func(p render.Props) bool { return p.Pending == nil && p.Notice != "" })
}

func TestPushedSnapshotApplies(t *testing.T) {
	first := openingSnapshot()
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{first}}, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.ch.events <- realtime.Event{Kind: realtime.EventSnapshot, Category: "game_state", Snapshot: afterE4(first)}
	h.waitFrame(t, "pushed", func(p render.Props) bool { return p.Status == "Turn: Black" })

	// older snapshots never roll the board back
	h.ch.events <- realtime.Event{Kind: realtime.EventSnapshot, Category: "game_state", Snapshot: first.Clone()}
	h.ch.events <- realtime.Event{Kind: realtime.EventError, Message: "marker"}
	p := h.waitFrame(t, "marker", func(p render.Props) bool { return strings.Contains(p.Notice, "marker") })
	if p.Status != "Turn: Black" {
		t.Fatalf("stale push applied: %q", p.Status)
	}
}

func TestMoveNoticeTriggersResync(t *testing.T) {
	first := openingSnapshot()
	api := &fakeAPI{snaps: []*board.Snapshot{first, afterE4(first)}}
	h := start(t, api, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.ch.events <- realtime.Event{Kind: realtime.EventMoveNotice, Category: "move"}
	h.waitFrame(t, "resynced", func(p render.Props) bool { return p.Status == "Turn: Black" })
	if api.Calls() != 2 {
		t.Fatalf("fetch calls = %d", api.Calls())
	}
}

func TestGameOverStatus(t *testing.T) {
	first := openingSnapshot()
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{first}}, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	done := afterE4(first)
	done.Status = board.StatusFinished
	done.Result = board.ResultWhite
	done.Hints = nil
	h.ch.events <- realtime.Event{Kind: realtime.EventSnapshot, Snapshot: done}
	h.waitFrame(t, "finished", func(p render.Props) bool { return p.Status == "White wins!" })

	h.s.Click(sq(1, 4))
	select {
	case c := <-h.tr.calls:
		t.Fatalf("submission after game over %+v", c.req)
	case <-time.After(50 * time.Millisecond):
	}
}

func newCache(t *testing.T) *snapcache.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return snapcache.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
}

func TestAppliedSnapshotIsCached(t *testing.T) {
	cache := newCache(t)
	first := openingSnapshot()
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{first}}, cache, Options{GameID: "cached"})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.ch.events <- realtime.Event{Kind: realtime.EventSnapshot, Snapshot: afterE4(first)}
	h.waitFrame(t, "pushed", func(p render.Props) bool { return p.Status == "Turn: Black" })

	entry, err := cache.Load(context.Background(), "cached")
	if err != nil || entry == nil {
		t.Fatalf("Load: %v %v", entry, err)
	}
	if !entry.Snapshot.Equal(afterE4(first)) {
		t.Fatalf("cached snapshot differs: %+v", entry.Snapshot)
	}
}

func TestFallsBackToCacheWhenOffline(t *testing.T) {
	cache := newCache(t)
	first := openingSnapshot()
	if err := cache.Save(context.Background(), "g1", first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	down := &authority.TransportError{Op: "fetch", Err: errors.New("connection refused")}
	api := &fakeAPI{snaps: []*board.Snapshot{first, first, afterE4(first)}, errs: []error{down, down}}
	h := start(t, api, cache, Options{ResyncInterval: 20 * time.Millisecond})

	p := h.waitFrame(t, "cached", func(p render.Props) bool { return p.Status != "" })
	if p.Notice == "" {
		t.Fatalf("expected stale notice on cached board")
	}
	p = h.waitFrame(t, "recovered", func(p render.Props) bool { return p.Status == "Turn: Black" })
	if p.Notice != "" {
		t.Fatalf("stale notice kept after recovery: %q", p.Notice)
	}
}

func TestNoSnapshotWithoutCache(t *testing.T) {
	down := &authority.TransportError{Op: "fetch", Err: errors.New("connection refused")}
	s := New(Options{GameID: "g1"}, Deps{API: &fakeAPI{errs: []error{down}, snaps: []*board.Snapshot{nil}}, Logger: zap.NewNop()})
	err := s.Run(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("err = %v", err)
	}
	var te *authority.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestShutdownClosesChannel(t *testing.T) {
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{openingSnapshot()}}, nil, Options{})
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })
	h.cancel()
	select {
	case <-h.ch.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed on shutdown")
	}
	// clicks after shutdown must not block
	h.s.Click(sq(6, 4))
}

func TestTeardownDiscardsInFlightSubmit(t *testing.T) {
	first := openingSnapshot()
	h := start(t, &fakeAPI{snaps: []*board.Snapshot{first}}, nil, Options{})
	h.tr.ignoreCancel = true
	h.waitFrame(t, "initial", func(p render.Props) bool { return p.Status != "" })

	h.s.Click(sq(6, 4))
	h.s.Click(sq(4, 4))
	call := h.nextSubmit(t)
	h.waitFrame(t, "pending arrow", func(p render.Props) bool { return p.Pending != nil })

	h.cancel()
	select {
	case err := <-h.errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		h.errc <- err
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not stop")
	}
	select {
	case <-call.ctx.Done():
	default:
		t.Fatalf("in-flight submit not canceled on teardown")
	}
	for len(h.frames) > 0 {
		<-h.frames
	}

	call.reply <- submitReply{snap: afterE4(first)}
	select {
	case p := <-h.frames:
		t.Fatalf("drew after teardown: status=%q pending=%v", p.Status, p.Pending)
	case <-time.After(150 * time.Millisecond):
	}
}
