package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitFromEnvWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "board.log")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")
	t.Cleanup(func() { Set(nil) })

	if err := InitFromEnv(Options{}); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	L().Info("board_test_event", zap.String("game_id", "g1"))
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"board_test_event"`) || !strings.Contains(string(raw), `"game_id":"g1"`) {
		t.Fatalf("unexpected log content: %s", raw)
	}
}

func TestInitFromEnvNoSinksIsNop(t *testing.T) {
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Cleanup(func() { Set(nil) })
	if err := InitFromEnv(Options{}); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	if L().Core().Enabled(zap.ErrorLevel) {
		t.Fatalf("expected nop logger when all sinks are disabled")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zap.WarnLevel || parseLevel("bogus") != zap.InfoLevel {
		t.Fatalf("unexpected level parsing")
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_TO_CONSOLE", "")
	s := settingsFromEnv(Options{ConsoleDefault: true})
	if s.format != "legacy" || !s.caller || !s.console || s.file != "" {
		t.Fatalf("unexpected settings %+v", s)
	}

	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", "")
	s = settingsFromEnv(Options{FileDefault: "x/probe.log"})
	if s.format != "json" || s.caller || s.console || s.file != "x/probe.log" {
		t.Fatalf("unexpected settings %+v", s)
	}
}
