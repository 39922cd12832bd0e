package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/authority"
	"github.com/park285/cheese-board/internal/board"
	appcfg "github.com/park285/cheese-board/internal/config"
	"github.com/park285/cheese-board/internal/msgcat"
	"github.com/park285/cheese-board/internal/obslog"
	"github.com/park285/cheese-board/internal/realtime"
	"github.com/park285/cheese-board/internal/render"
)

// boardcheck fetches one game, optionally writes a PNG of it and watches the sync
// channel for a short window. It never submits moves.
func main() {
	_ = os.Setenv("LOG_TO_FILE", getenv("LOG_TO_FILE", "false"))
	if err := obslog.InitFromEnv(obslog.Options{ConsoleDefault: true}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	lg := obslog.With(zap.String("component", "boardcheck"))

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if len(os.Args) > 1 {
		cfg.GameID = os.Args[1]
	}
	if cfg.GameID == "" {
		log.Fatal("BOARD_GAME_ID is required")
	}
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}

	client := authority.NewClient(cfg.APIBaseURL,
		authority.WithHeaderProvider(cfg.Headers),
		authority.WithTimeout(cfg.HTTPTimeout),
		authority.WithLogger(lg),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	snap, err := client.FetchGame(ctx, cfg.GameID)
	cancel()
	if err != nil {
		lg.Error("fetch_failed", zap.Error(err))
	} else {
		lg.Info("fetch_ok",
			zap.String("status", cat.Status(snap)),
			zap.Int("ply", snap.Ply),
			zap.Int("movable", len(snap.Hints)),
			zap.String("fingerprint", snap.Fingerprint()),
		)
		if cfg.PNGDir != "" {
			writePNG(lg, cfg, snap, cat.Status(snap))
		}
	}

	if !cfg.SyncEnabled() {
		lg.Info("BOARD_WS_URL not set; skipping sync check")
		return
	}

	ch := realtime.NewChannel(realtime.GameURL(cfg.WSURL, cfg.GameID),
		realtime.WithReconnect(cfg.WSReconnectMax, cfg.WSReconnectDelay),
		realtime.WithHeaderProvider(cfg.Headers),
		realtime.WithLogger(lg),
	)
	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ch.Connect(cctx); err != nil {
		lg.Error("sync_connect_failed", zap.Error(err))
		return
	}

	// Observe for a short window
	window := time.NewTimer(10 * time.Second)
	defer window.Stop()
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return
			}
			fields := []zap.Field{zap.String("kind", ev.Kind.String()), zap.String("type", ev.Category)}
			if ev.Snapshot != nil {
				fields = append(fields, zap.String("status", cat.Status(ev.Snapshot)), zap.Int("ply", ev.Snapshot.Ply))
			}
			if ev.Message != "" {
				fields = append(fields, zap.String("message", ev.Message))
			}
			if ev.Err != nil {
				fields = append(fields, zap.Error(ev.Err))
			}
			lg.Info("sync_event", fields...)
		case <-window.C:
			_ = ch.Close(context.Background())
			return
		}
	}
}

func writePNG(lg *zap.Logger, cfg *appcfg.AppConfig, snap *board.Snapshot, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := render.PNG(ctx, render.Props{Board: snap.Board, Flipped: cfg.Flipped, Status: status})
	if err != nil {
		lg.Error("png_failed", zap.Error(err))
		return
	}
	if err := os.MkdirAll(cfg.PNGDir, 0o755); err != nil {
		lg.Error("png_failed", zap.Error(err))
		return
	}
	path := filepath.Join(cfg.PNGDir, cfg.GameID+".png")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		lg.Error("png_failed", zap.Error(err))
		return
	}
	lg.Info("png_written", zap.String("path", path))
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return def
}
