// Package realtime keeps one websocket connection per game and turns its frames
// into an ordered queue of typed events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-board/internal/authority"
	"github.com/park285/cheese-board/internal/board"
)

var (
	ErrClosed       = errors.New("sync channel closed")
	ErrNotConnected = errors.New("sync channel not connected")
	// ErrWriteFailed marks submissions that never left the client.
	ErrWriteFailed = errors.New("sync channel write failed")
	ErrBusy        = errors.New("submission already pending")
)

// HeaderProvider allows injecting per-handshake headers
type HeaderProvider func() map[string]string

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type result struct {
	snap *board.Snapshot
	err  error
}

// waiter is the move sent over the channel that still awaits its answer.
type waiter struct {
	id   string
	req  board.MoveRequest
	done chan result
}

// answers reports whether ev settles w. A frame carrying an id answers only the frame
// with that id. Without an id, an error answers the pending move and a snapshot does
// only when it shows the move made: origin emptied, destination occupied.
func (w *waiter) answers(ev Event) bool {
	if ev.ID != "" {
		return ev.ID == w.id
	}
	switch ev.Kind {
	case EventError:
		return true
	case EventSnapshot:
		b := &ev.Snapshot.Board
		return b.At(w.req.From).Empty() && !b.At(w.req.To).Empty()
	default:
		return false
	}
}

type Channel struct {
	wsURL    string
	clientID string
	logger   *zap.Logger

	conn  *websocket.Conn
	connM sync.Mutex

	state  State
	stateM sync.RWMutex

	events     chan Event
	eventsOnce sync.Once

	waiting *waiter
	wM      sync.Mutex

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration
	submitTimeout        time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// optional: inject headers at handshake (e.g., Authorization)
	headerProvider HeaderProvider
}

type Option func(*Channel)

func WithReconnect(max int, delay time.Duration) Option {
	return func(ch *Channel) {
		ch.maxReconnectAttempts = max
		if delay > 0 {
			ch.reconnectDelay = delay
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(ch *Channel) {
		if d > 0 {
			ch.pingInterval = d
		}
	}
}

// WithSubmitTimeout bounds how long SendMove waits for the authority's answer.
func WithSubmitTimeout(d time.Duration) Option {
	return func(ch *Channel) {
		if d > 0 {
			ch.submitTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(ch *Channel) { ch.headerProvider = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(ch *Channel) {
		if l != nil {
			ch.logger = l
		}
	}
}

// GameURL joins the websocket base URL and the per-game path.
func GameURL(base, gameID string) string {
	return strings.TrimRight(base, "/") + "/ws/game/" + url.PathEscape(strings.TrimSpace(gameID))
}

func NewChannel(wsURL string, opts ...Option) *Channel {
	ch := &Channel{
		wsURL:                wsURL,
		clientID:             uuid.NewString(),
		logger:               zap.NewNop(),
		state:                StateDisconnected,
		events:               make(chan Event, 64),
		maxReconnectAttempts: 5,
		reconnectDelay:       time.Second,
		pingInterval:         30 * time.Second,
		submitTimeout:        10 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ch)
	}
	ch.rootCtx, ch.rootCancel = context.WithCancel(context.Background())
	return ch
}

// Events is the ordered inbound queue. It is closed after Close completes.
func (ch *Channel) Events() <-chan Event { return ch.events }

func (ch *Channel) State() State {
	ch.stateM.RLock()
	defer ch.stateM.RUnlock()
	return ch.state
}

func (ch *Channel) Connected() bool { return ch.State() == StateConnected }

// Connect dials the game channel. On failure a background reconnect is scheduled
// and the dial error is returned.
func (ch *Channel) Connect(ctx context.Context) error {
	if ch.isStopping() {
		return ErrClosed
	}
	ch.stateM.Lock()
	if ch.state == StateConnected || ch.state == StateConnecting || ch.state == StateReconnecting {
		ch.stateM.Unlock()
		return nil
	}
	ch.state = StateConnecting
	ch.stateM.Unlock()

	conn, err := ch.dial(ctx)
	if err != nil {
		ch.logger.Warn("sync_connect_failed", zap.String("url", ch.wsURL), zap.Error(err))
		ch.setState(StateFailed)
		ch.scheduleReconnect()
		return err
	}
	ch.attach(conn)
	return nil
}

func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, ch.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ch.buildHeaders(),
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// attach installs conn and starts its reader and pinger.
func (ch *Channel) attach(conn *websocket.Conn) {
	ch.connM.Lock()
	ch.conn = conn
	ch.connM.Unlock()
	ch.setState(StateConnected)
	ch.logger.Info("sync_connected", zap.String("url", ch.wsURL))
	ch.emit(Event{Kind: EventConnected})

	connCtx, cancel := context.WithCancel(ch.rootCtx)
	ch.wg.Add(2)
	go ch.listen(connCtx, cancel, conn)
	go ch.pingLoop(connCtx, conn)
}

func (ch *Channel) listen(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer ch.wg.Done()
	defer cancel()
	for {
		// conn.Read instead of wsjson.Read: a bad frame must not close the connection
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ch.isStopping() {
				return
			}
			ch.logger.Warn("sync_read_failed", zap.Error(err))
			ch.detach(conn, websocket.StatusGoingAway, "reconnect")
			ch.setState(StateDisconnected)
			ch.resolve(result{err: &authority.TransportError{Op: "ws_submit", Err: err}})
			ch.emit(Event{Kind: EventDisconnected, Err: err})
			ch.scheduleReconnect()
			return
		}
		ch.dispatch(raw)
	}
}

func (ch *Channel) dispatch(raw []byte) {
	ev, ok := decodeFrame(raw)
	if !ok {
		ch.logger.Debug("sync_event_dropped", zap.String("reason", "unknown_type"), zap.String("type", ev.Category))
		return
	}
	switch ev.Kind {
	case EventSnapshot:
		ch.settle(ev, result{snap: ev.Snapshot})
	case EventError:
		if ch.settle(ev, result{err: &authority.RejectedError{Detail: ev.Message}}) {
			// the rejection reaches the caller through SendMove
			ch.logger.Debug("sync_error_settled", zap.String("id", ev.ID), zap.String("message", ev.Message))
			return
		}
	case EventMalformed:
		ch.logger.Warn("sync_event_malformed", zap.String("type", ev.Category), zap.Error(ev.Err))
	}
	ch.emit(ev)
}

// settle resolves the pending move with r when ev answers it.
func (ch *Channel) settle(ev Event, r result) bool {
	ch.wM.Lock()
	w := ch.waiting
	if w == nil || !w.answers(ev) {
		ch.wM.Unlock()
		if w != nil {
			ch.logger.Debug("sync_event_unmatched", zap.String("kind", ev.Kind.String()), zap.String("id", ev.ID))
		}
		return false
	}
	ch.waiting = nil
	ch.wM.Unlock()
	w.done <- r
	return true
}

func (ch *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer ch.wg.Done()
	t := time.NewTicker(ch.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				consecutivePingFailures = 0
				continue
			}
			consecutivePingFailures++
			if consecutivePingFailures >= 2 {
				ch.logger.Warn("sync_ping_failed", zap.Error(err))
				// listen sees the closed conn and reconnects
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (ch *Channel) scheduleReconnect() {
	if ch.maxReconnectAttempts <= 0 || ch.isStopping() {
		return
	}
	ch.stateM.Lock()
	if ch.state == StateReconnecting {
		ch.stateM.Unlock()
		return
	}
	ch.state = StateReconnecting
	ch.stateM.Unlock()

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		for attempt := 1; attempt <= ch.maxReconnectAttempts; attempt++ {
			select {
			case <-ch.stopCh:
				return
			case <-time.After(backoffDuration(ch.reconnectDelay, attempt)):
			}

			conn, err := ch.dial(ch.rootCtx)
			if err != nil {
				ch.logger.Debug("sync_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if ch.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			ch.attach(conn)
			return
		}
		ch.setState(StateFailed)
		ch.logger.Warn("sync_reconnect_exhausted", zap.Int("attempts", ch.maxReconnectAttempts))
	}()
}

// SendMove writes a move frame and waits for the authority's answer on the channel.
// A snapshot answering the move accepts it and an error answering it rejects it;
// other frames stay ordinary events.
func (ch *Channel) SendMove(ctx context.Context, req board.MoveRequest) (*board.Snapshot, error) {
	const op = "ws_submit"
	if ch.isStopping() {
		return nil, &authority.TransportError{Op: op, Err: ErrClosed}
	}
	w := &waiter{id: uuid.NewString(), req: req, done: make(chan result, 1)}
	ch.wM.Lock()
	if ch.waiting != nil {
		ch.wM.Unlock()
		return nil, &authority.TransportError{Op: op, Err: ErrBusy}
	}
	ch.waiting = w
	ch.wM.Unlock()
	defer ch.clearWaiter(w)

	frame := envelope{Type: typeMove, ID: w.id}
	data, err := json.Marshal(req.Wire())
	if err != nil {
		return nil, &authority.TransportError{Op: op, Err: err}
	}
	frame.Data = data
	if err := ch.write(ctx, &frame); err != nil {
		return nil, &authority.TransportError{Op: op, Err: err}
	}
	ch.logger.Debug("sync_move_sent", zap.String("id", frame.ID), zap.String("from", req.From.Algebraic()), zap.String("to", req.To.Algebraic()))

	wctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, ch.submitTimeout)
		defer cancel()
	}
	select {
	case r := <-w.done:
		return r.snap, r.err
	case <-wctx.Done():
		return nil, &authority.TransportError{Op: op, Err: wctx.Err()}
	case <-ch.stopCh:
		return nil, &authority.TransportError{Op: op, Err: ErrClosed}
	}
}

func (ch *Channel) write(ctx context.Context, v any) error {
	ch.connM.Lock()
	conn := ch.conn
	ch.connM.Unlock()
	if conn == nil || ch.State() != StateConnected {
		return fmt.Errorf("%w: %w", ErrWriteFailed, ErrNotConnected)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		// bounded deadline to prevent indefinite blocking
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := conn.Write(dctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func (ch *Channel) resolve(r result) {
	ch.wM.Lock()
	w := ch.waiting
	ch.waiting = nil
	ch.wM.Unlock()
	if w != nil {
		w.done <- r
	}
}

func (ch *Channel) clearWaiter(w *waiter) {
	ch.wM.Lock()
	if ch.waiting == w {
		ch.waiting = nil
	}
	ch.wM.Unlock()
}

func (ch *Channel) emit(ev Event) {
	select {
	case ch.events <- ev:
	case <-ch.stopCh:
	}
}

func (ch *Channel) setState(state State) {
	ch.stateM.Lock()
	prev := ch.state
	ch.state = state
	ch.stateM.Unlock()
	if prev != state {
		ch.logger.Debug("sync_state", zap.String("from", prev.String()), zap.String("to", state.String()))
	}
}

func (ch *Channel) detach(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	ch.connM.Lock()
	if ch.conn == conn {
		ch.conn = nil
	}
	ch.connM.Unlock()
	_ = conn.Close(code, reason)
}

// Close tears the channel down. No event is delivered after it returns nil.
func (ch *Channel) Close(ctx context.Context) error {
	ch.stopOnce.Do(func() { close(ch.stopCh) })
	ch.rootCancel()
	ch.connM.Lock()
	conn := ch.conn
	ch.conn = nil
	ch.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		ch.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		ch.setState(StateDisconnected)
		ch.eventsOnce.Do(func() { close(ch.events) })
		return nil
	}
}

func (ch *Channel) isStopping() bool {
	select {
	case <-ch.stopCh:
		return true
	default:
		return false
	}
}

func (ch *Channel) buildHeaders() http.Header {
	hdr := http.Header{}
	hdr.Set("X-Client-Id", ch.clientID)
	if ch.headerProvider == nil {
		return hdr
	}
	for k, v := range ch.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

// backoffDuration doubles base per attempt, capped at 32x.
func backoffDuration(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * base
}
