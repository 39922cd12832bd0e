// Package submit routes local move submissions over HTTP or the sync channel.
package submit

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/authority"
	"github.com/park285/cheese-board/internal/board"
	"github.com/park285/cheese-board/internal/config"
	"github.com/park285/cheese-board/internal/realtime"
)

// Transport sends one MoveRequest and returns the authority's resulting snapshot.
// Errors are *authority.RejectedError or *authority.TransportError.
type Transport interface {
	Submit(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error)
}

// MoveAPI is the request/response side (authority.Client).
type MoveAPI interface {
	SubmitMove(ctx context.Context, gameID string, req board.MoveRequest) (*board.Snapshot, error)
}

// MoveChannel is the realtime side (realtime.Channel).
type MoveChannel interface {
	Connected() bool
	SendMove(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error)
}

var errUnavailable = errors.New("transport not available")

// New creates a Transport based on mode. When mode is auto, the channel is preferred
// while connected; a failed write falls back to HTTP once.
func New(mode config.SubmitTransport, gameID string, api MoveAPI, ch MoveChannel, logger *zap.Logger) Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &httpTransport{api: api, gameID: gameID}
	switch mode {
	case config.TransportWS:
		return &wsTransport{ch: ch}
	case config.TransportAuto:
		return &autoTransport{ws: &wsTransport{ch: ch}, http: h, logger: logger}
	default:
		return h
	}
}

// httpTransport delegates to the authority client.
type httpTransport struct {
	api    MoveAPI
	gameID string
}

func (h *httpTransport) Submit(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error) {
	if h == nil || h.api == nil {
		return nil, &authority.TransportError{Op: "submit_move", Err: errUnavailable}
	}
	return h.api.SubmitMove(ctx, h.gameID, req)
}

// wsTransport writes move frames over the sync channel.
type wsTransport struct {
	ch MoveChannel
}

func (w *wsTransport) Submit(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error) {
	if w == nil || w.ch == nil {
		return nil, &authority.TransportError{Op: "ws_submit", Err: errUnavailable}
	}
	return w.ch.SendMove(ctx, req)
}

func (w *wsTransport) ready() bool { return w != nil && w.ch != nil && w.ch.Connected() }

// autoTransport prefers WS if available, with single fallback to HTTP.
type autoTransport struct {
	ws     *wsTransport
	http   *httpTransport
	logger *zap.Logger
}

func (a *autoTransport) Submit(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error) {
	if a.ws.ready() {
		snap, err := a.ws.Submit(ctx, req)
		// only a write failure is safe to resend; a lost answer may hide an applied move
		if err == nil || !errors.Is(err, realtime.ErrWriteFailed) {
			return snap, err
		}
		a.logger.Warn("submit_fallback", zap.String("from", req.From.Algebraic()), zap.String("to", req.To.Algebraic()), zap.Error(err))
	}
	return a.http.Submit(ctx, req)
}
