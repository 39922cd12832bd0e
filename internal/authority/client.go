// Package authority talks to the remote game service over HTTP.
package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/board"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry sets the attempt count for idempotent reads. Move submission is never retried.
func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDial replaces the dialer, mainly for in-memory listeners in tests.
func WithDial(d fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = d }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		logger:         zap.NewNop(),
		defaultTimeout: 8 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchGame returns the current snapshot of a game.
func (c *Client) FetchGame(ctx context.Context, gameID string) (*board.Snapshot, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "fetch_game", fasthttp.MethodGet, gamePath(gameID, ""), nil, &raw, true); err != nil {
		return nil, err
	}
	snap, err := board.DecodeSnapshot(raw)
	if err != nil {
		return nil, &TransportError{Op: "fetch_game", Err: err}
	}
	return snap, nil
}

// SubmitMove posts req and returns the resulting snapshot.
// A refusal is a *RejectedError; everything else is a *TransportError.
func (c *Client) SubmitMove(ctx context.Context, gameID string, req board.MoveRequest) (*board.Snapshot, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "submit_move", fasthttp.MethodPost, gamePath(gameID, "/move"), req.Wire(), &raw, false); err != nil {
		return nil, err
	}
	snap, err := board.DecodeSnapshot(raw)
	if err != nil {
		return nil, &TransportError{Op: "submit_move", Err: err}
	}
	return snap, nil
}

func gamePath(gameID, suffix string) string {
	return "/games/" + url.PathEscape(strings.TrimSpace(gameID)) + suffix
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	rid := uuid.NewString()
	req.Header.Set("X-Request-Id", rid)

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &TransportError{Op: op, Err: err}
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = &TransportError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
			c.logger.Warn("authority_request_failed", zap.String("op", op), zap.String("request_id", rid), zap.Int("attempt", attempt), zap.Error(err))
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		switch {
		case status >= 400 && status < 500 && !unavailableStatus(status):
			detail := errorDetail(resp.Body())
			c.logger.Info("authority_rejected", zap.String("op", op), zap.String("request_id", rid), zap.Int("status", status), zap.String("detail", detail))
			return &RejectedError{Status: status, Detail: detail}
		case status < 200 || status >= 300:
			lastErr = &TransportError{Op: op, Err: fmt.Errorf("server error: status=%d detail=%s", status, errorDetail(resp.Body()))}
			c.logger.Warn("authority_server_error", zap.String("op", op), zap.String("request_id", rid), zap.Int("status", status), zap.Int("attempt", attempt))
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return &TransportError{Op: op, Err: fmt.Errorf("%w: decode response: %v", board.ErrMalformedSnapshot, err)}
			}
		}
		c.logger.Debug("authority_ok", zap.String("op", op), zap.String("request_id", rid), zap.Int("status", status))
		return nil
	}

	if lastErr == nil {
		lastErr = &TransportError{Op: op, Err: errors.New("unknown error")}
	}
	return lastErr
}

// errorDetail extracts {"detail": "..."} or falls back to the raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

// unavailableStatus marks 4xx answers that say nothing about the move itself:
// auth, timeout and throttling.
func unavailableStatus(code int) bool {
	switch code {
	case 401, 403, 408, 429:
		return true
	default:
		return false
	}
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
