// Package snapcache keeps the last applied snapshot per game in redis so a client
// can show the board while the authority is unreachable.
package snapcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-board/internal/board"
)

const defaultTTL = 24 * time.Hour

// Entry is a cached snapshot with its save time.
type Entry struct {
	Snapshot *board.Snapshot
	SavedAt  time.Time
}

// record is the stored JSON. Ply is kept beside the wire shape because
// fullmove_number alone cannot always restore it.
type record struct {
	Snapshot *board.WireSnapshot `json:"snapshot"`
	Ply      int                 `json:"ply"`
	SavedAt  int64               `json:"saved_at"`
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL and verifies the connection.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for snapshot cache")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb, ttl), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keySnap(gameID string) string { return "board:snap:" + strings.TrimSpace(gameID) }

// Save stores snap as the last known state of gameID and refreshes the TTL.
func (s *Store) Save(ctx context.Context, gameID string, snap *board.Snapshot) error {
	if snap == nil {
		return nil
	}
	raw, err := json.Marshal(record{Snapshot: snap.ToWire(), Ply: snap.Ply, SavedAt: time.Now().Unix()})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keySnap(gameID), raw, s.ttl).Err()
}

// Load returns the cached entry, or nil when nothing is cached.
func (s *Store) Load(ctx context.Context, gameID string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, s.keySnap(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: cache entry: %v", board.ErrMalformedSnapshot, err)
	}
	snap, err := rec.Snapshot.Snapshot()
	if err != nil {
		return nil, err
	}
	snap.Ply = rec.Ply
	return &Entry{Snapshot: snap, SavedAt: time.Unix(rec.SavedAt, 0)}, nil
}

func (s *Store) Delete(ctx context.Context, gameID string) error {
	return s.rdb.Del(ctx, s.keySnap(gameID)).Err()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
