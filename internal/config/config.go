package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// SubmitTransport selects how local moves reach the authority.
type SubmitTransport string

const (
	TransportHTTP SubmitTransport = "http"
	TransportWS   SubmitTransport = "ws"
	TransportAuto SubmitTransport = "auto"
)

type AppConfig struct {
	APIBaseURL string
	WSURL      string
	AuthToken  string

	GameID string

	SubmitTransport SubmitTransport
	Flipped         bool
	Promotion       string

	HTTPTimeout      time.Duration
	SubmitTimeout    time.Duration
	WSReconnectMax   int
	WSReconnectDelay time.Duration

	RedisURL string
	CacheTTL time.Duration

	MessagesDir string
	PNGDir      string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		SubmitTransport:  TransportHTTP,
		Promotion:        "QUEEN",
		HTTPTimeout:      8 * time.Second,
		SubmitTimeout:    10 * time.Second,
		WSReconnectMax:   5,
		WSReconnectDelay: time.Second,
		CacheTTL:         24 * time.Hour,
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BOARD_API_BASE_URL")), "/")
	cfg.WSURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BOARD_WS_URL")), "/")
	cfg.AuthToken = strings.TrimSpace(os.Getenv("BOARD_AUTH_TOKEN"))
	cfg.GameID = strings.TrimSpace(os.Getenv("BOARD_GAME_ID"))

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("BOARD_SUBMIT_TRANSPORT"))); v != "" {
		switch SubmitTransport(v) {
		case TransportHTTP, TransportWS, TransportAuto:
			cfg.SubmitTransport = SubmitTransport(v)
		default:
			return nil, errors.New("BOARD_SUBMIT_TRANSPORT must be http, ws or auto")
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOARD_FLIPPED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Flipped = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOARD_PROMOTION")); v != "" {
		cfg.Promotion = strings.ToUpper(v)
	}
	cfg.HTTPTimeout = millisEnv("BOARD_HTTP_TIMEOUT_MS", cfg.HTTPTimeout)
	cfg.SubmitTimeout = millisEnv("BOARD_SUBMIT_TIMEOUT_MS", cfg.SubmitTimeout)
	cfg.WSReconnectDelay = millisEnv("BOARD_WS_RECONNECT_DELAY_MS", cfg.WSReconnectDelay)
	if v := strings.TrimSpace(os.Getenv("BOARD_WS_RECONNECT_MAX")); v != "" {
		// 0 disables reconnects
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.WSReconnectMax = n
		}
	}

	// Optional snapshot cache
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("BOARD_CACHE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTL = time.Duration(n) * time.Second
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("BOARD_MESSAGES_DIR"))
	cfg.PNGDir = strings.TrimSpace(os.Getenv("BOARD_PNG_DIR"))

	if cfg.APIBaseURL == "" {
		return nil, errors.New("BOARD_API_BASE_URL is required")
	}
	if cfg.WSURL == "" && cfg.SubmitTransport != TransportHTTP {
		return nil, errors.New("BOARD_WS_URL is required for ws/auto submit transport")
	}

	return cfg, nil
}

// SyncEnabled reports whether a realtime channel should be opened.
func (c *AppConfig) SyncEnabled() bool { return c != nil && c.WSURL != "" }

// Headers returns the per-request headers for both HTTP and the WS handshake.
func (c *AppConfig) Headers() map[string]string {
	h := map[string]string{}
	if c != nil && c.AuthToken != "" {
		h["Authorization"] = "Bearer " + c.AuthToken
	}
	return h
}

func millisEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}
