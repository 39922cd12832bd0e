package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-board/internal/authority"
	"github.com/park285/cheese-board/internal/board"
	appcfg "github.com/park285/cheese-board/internal/config"
	"github.com/park285/cheese-board/internal/msgcat"
	"github.com/park285/cheese-board/internal/obslog"
	"github.com/park285/cheese-board/internal/realtime"
	"github.com/park285/cheese-board/internal/render"
	"github.com/park285/cheese-board/internal/session"
	"github.com/park285/cheese-board/internal/snapcache"
	"github.com/park285/cheese-board/internal/submit"
	"github.com/park285/cheese-board/internal/view"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if len(os.Args) > 1 {
		cfg.GameID = strings.TrimSpace(os.Args[1])
	}
	if cfg.GameID == "" {
		log.Fatal("BOARD_GAME_ID or a game id argument is required")
	}

	// 터미널은 보드가 쓰므로 기본은 파일 로그만
	if err := obslog.InitFromEnv(obslog.Options{}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	lg := obslog.With(zap.String("component", "board"))

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages error: %v", err)
	}
	promo, ok := board.ParsePromotion(cfg.Promotion)
	if !ok {
		lg.Warn("unknown_promotion", zap.String("value", cfg.Promotion))
		promo = board.Queen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := authority.NewClient(cfg.APIBaseURL,
		authority.WithHeaderProvider(cfg.Headers),
		authority.WithTimeout(cfg.HTTPTimeout),
		authority.WithLogger(lg),
	)

	var (
		syncCh session.Channel
		moveCh submit.MoveChannel
	)
	if cfg.SyncEnabled() {
		ch := realtime.NewChannel(realtime.GameURL(cfg.WSURL, cfg.GameID),
			realtime.WithReconnect(cfg.WSReconnectMax, cfg.WSReconnectDelay),
			realtime.WithSubmitTimeout(cfg.SubmitTimeout),
			realtime.WithHeaderProvider(cfg.Headers),
			realtime.WithLogger(lg),
		)
		syncCh, moveCh = ch, ch
	}

	var cache session.Cache
	if cfg.RedisURL != "" {
		store, err := snapcache.Open(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			lg.Warn("snapshot_cache_disabled", zap.Error(err))
		} else {
			defer store.Close()
			cache = store
		}
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatalf("screen error: %v", err)
	}
	if err := screen.Init(); err != nil {
		log.Fatalf("screen init error: %v", err)
	}
	screen.EnableMouse()
	screen.HideCursor()

	var v *view.View
	sess := session.New(session.Options{
		GameID:        cfg.GameID,
		Flipped:       cfg.Flipped,
		Promotion:     promo,
		PNGDir:        cfg.PNGDir,
		FetchTimeout:  cfg.HTTPTimeout,
		SubmitTimeout: cfg.SubmitTimeout,
	}, session.Deps{
		API:     api,
		Submit:  submit.New(cfg.SubmitTransport, cfg.GameID, api, moveCh, lg),
		Channel: syncCh,
		Cache:   cache,
		Catalog: cat,
		Draw:    func(p render.Props) { v.Draw(p) },
		Logger:  lg,
	})
	v = view.New(screen, sess.Click)

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		errc <- sess.Run(runCtx)
		// unblock PollEvent
		screen.Fini()
	}()

	pollEvents(screen, v, sess, cancel)
	cancel()
	if err := <-errc; err != nil {
		lg.Error("session_failed", zap.Error(err))
		log.Fatalf("session error: %v", err)
	}
}

func pollEvents(screen tcell.Screen, v *view.View, sess *session.Session, quit context.CancelFunc) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		if k, ok := ev.(*tcell.EventKey); ok {
			switch {
			case k.Key() == tcell.KeyEscape, k.Key() == tcell.KeyCtrlC, k.Rune() == 'q':
				quit()
				return
			case k.Rune() == 'f':
				sess.Flip()
				continue
			}
		}
		v.HandleEvent(ev)
	}
}
