package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-board/internal/board"
)

func newTestClient(t *testing.T, h fasthttp.RequestHandler, opts ...Option) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = ln.Close()
	})
	all := append([]Option{
		WithDial(func(addr string) (net.Conn, error) { return ln.Dial() }),
		WithTimeout(2 * time.Second),
	}, opts...)
	return NewClient("http://authority.test/", all...)
}

func startJSON(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(board.StartPosition().ToWire())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestFetchGame(t *testing.T) {
	body := startJSON(t)
	var gotPath, gotAuth, gotRID string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		gotPath = string(ctx.Path())
		gotAuth = string(ctx.Request.Header.Peek("Authorization"))
		gotRID = string(ctx.Request.Header.Peek("X-Request-Id"))
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}, WithHeaderProvider(func() map[string]string { return map[string]string{"Authorization": "Bearer tok", "X-Empty": " "} }))

	snap, err := c.FetchGame(context.Background(), "42")
	if err != nil {
		t.Fatalf("FetchGame: %v", err)
	}
	if gotPath != "/games/42" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotRID == "" {
		t.Fatalf("missing request id")
	}
	if !snap.Equal(board.StartPosition()) {
		t.Fatalf("snapshot mismatch: %s", snap.Fingerprint())
	}
}

func TestSubmitMoveSendsWireBody(t *testing.T) {
	reply := board.StartPosition()
	reply.Board[4][4] = reply.Board[6][4]
	reply.Board[6][4] = board.Piece{}
	reply.Turn = board.Black
	body, _ := json.Marshal(reply.ToWire())

	var got map[string]any
	var method string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		method = string(ctx.Method())
		if string(ctx.Path()) != "/games/7/move" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetBody(body)
	})

	snap, err := c.SubmitMove(context.Background(), "7", board.MoveRequest{
		From: board.Square{Row: 6, Col: 4}, To: board.Square{Row: 4, Col: 4},
	})
	if err != nil {
		t.Fatalf("SubmitMove: %v", err)
	}
	if method != fasthttp.MethodPost {
		t.Fatalf("method = %s", method)
	}
	want := map[string]any{"from_row": 6.0, "from_col": 4.0, "to_row": 4.0, "to_col": 4.0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("body (-want +got):\n%s", diff)
	}
	if snap.Turn != board.Black || snap.Board.At(board.Square{Row: 4, Col: 4}).Kind != board.Pawn {
		t.Fatalf("unexpected reply snapshot %s", snap.Fingerprint())
	}
}

func TestSubmitMoveRejected(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"detail":"Illegal move"}`)
	})
	_, err := c.SubmitMove(context.Background(), "1", board.MoveRequest{})
	re, ok := IsRejected(err)
	if !ok {
		t.Fatalf("expected RejectedError, got %T %v", err, err)
	}
	if re.Status != 400 || re.Detail != "Illegal move" {
		t.Fatalf("unexpected rejection %+v", re)
	}
}

func TestSubmitMoveServerErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&calls, 1)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	})
	_, err := c.SubmitMove(context.Background(), "1", board.MoveRequest{})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
	if _, ok := IsRejected(err); ok {
		t.Fatalf("server error must not be a rejection")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("submit retried: %d calls", n)
	}
}

func TestUnavailableStatusIsTransportError(t *testing.T) {
	for _, status := range []int{401, 403, 408, 429} {
		var calls int32
		c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
			atomic.AddInt32(&calls, 1)
			ctx.SetStatusCode(status)
			ctx.SetBodyString(`{"detail":"try later"}`)
		})
		_, err := c.SubmitMove(context.Background(), "1", board.MoveRequest{})
		if _, ok := IsRejected(err); ok {
			t.Fatalf("status %d: must not be a rejection: %v", status, err)
		}
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("status %d: expected TransportError, got %T %v", status, err, err)
		}
		if n := atomic.LoadInt32(&calls); n != 1 {
			t.Fatalf("status %d: submit retried: %d calls", status, n)
		}
	}
}

func TestFetchGameRetriesThrottled(t *testing.T) {
	body := startJSON(t)
	var calls int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if atomic.AddInt32(&calls, 1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
			return
		}
		ctx.SetBody(body)
	}, WithRetry(3))
	if _, err := c.FetchGame(context.Background(), "1"); err != nil {
		t.Fatalf("FetchGame: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestNotFoundIsRejected(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"detail":"Game not found"}`)
	})
	_, err := c.FetchGame(context.Background(), "1")
	re, ok := IsRejected(err)
	if !ok || re.Status != 404 || re.Detail != "Game not found" {
		t.Fatalf("expected 404 rejection, got %T %v", err, err)
	}
}

func TestFetchGameRetriesServerError(t *testing.T) {
	body := startJSON(t)
	var calls int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if atomic.AddInt32(&calls, 1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetBody(body)
	}, WithRetry(3))
	if _, err := c.FetchGame(context.Background(), "1"); err != nil {
		t.Fatalf("FetchGame: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestMalformedBodyIsTransportError(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":    `<html>`,
		"short board": `{"board_state":{"board":[[]]},"current_turn":"white","status":"playing"}`,
	} {
		c := newTestClient(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString(payload) })
		_, err := c.SubmitMove(context.Background(), "1", board.MoveRequest{})
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("%s: expected TransportError, got %T %v", name, err, err)
		}
		if !errors.Is(err, board.ErrMalformedSnapshot) {
			t.Fatalf("%s: expected ErrMalformedSnapshot in chain: %v", name, err)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchGame(ctx, "1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestErrorDetail(t *testing.T) {
	cases := map[string]string{
		`{"detail":"Game not found"}`: "Game not found",
		`{"message":"nope"}`:          "nope",
		`{"error":"bad"}`:             "bad",
		`plain text`:                  "plain text",
		`{"detail":[{"msg":"x"}]}`:    `{"detail":[{"msg":"x"}]}`,
	}
	for in, want := range cases {
		if got := errorDetail([]byte(in)); got != want {
			t.Fatalf("errorDetail(%s) = %q want %q", in, got, want)
		}
	}
}
