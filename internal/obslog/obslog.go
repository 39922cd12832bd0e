package obslog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 전역 로거. 보드 화면이 터미널을 점유하므로 기본 출력은 파일.
var globalLogger = zap.NewNop()

// L는 전역 로거를 반환.
func L() *zap.Logger { return globalLogger }

// With returns a child of the global logger, e.g. scoped to one game.
func With(fields ...zap.Field) *zap.Logger { return globalLogger.With(fields...) }

// Set replaces the global logger. nil restores the no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	globalLogger = l
}

// Sync flushes buffered entries; errors from syncing terminals are ignored.
func Sync() { _ = globalLogger.Sync() }

// Options controls InitFromEnv defaults that differ per binary.
type Options struct {
	// ConsoleDefault is used when LOG_TO_CONSOLE is unset.
	ConsoleDefault bool
	// FileDefault is the log path used when LOG_FILE is unset.
	FileDefault string
}

type settings struct {
	level   zapcore.Level
	format  string // legacy | json | console
	console bool
	file    string // empty disables the file sink
	caller  bool
}

// InitFromEnv는 환경설정으로 zap 로거를 초기화.
// LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE, LOG_CALLER.
func InitFromEnv(opts Options) error {
	s := settingsFromEnv(opts)
	if !s.console && s.file == "" {
		Set(nil)
		return nil
	}
	if s.file != "" {
		if dir := filepath.Dir(s.file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}
	l, err := s.config().Build()
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

func settingsFromEnv(opts Options) settings {
	s := settings{
		level:   parseLevel(os.Getenv("LOG_LEVEL")),
		format:  strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		console: envBool("LOG_TO_CONSOLE", opts.ConsoleDefault),
		caller:  envBool("LOG_CALLER", false),
	}
	switch s.format {
	case "json", "console":
	default:
		s.format = "legacy"
		// legacy lines always carry the call site
		s.caller = true
	}
	if envBool("LOG_TO_FILE", true) {
		s.file = strings.TrimSpace(os.Getenv("LOG_FILE"))
		if s.file == "" {
			s.file = opts.FileDefault
		}
		if strings.TrimSpace(s.file) == "" {
			s.file = filepath.Join("logs", "board.log")
		}
	}
	return s
}

func (s settings) config() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(s.level)
	cfg.Sampling = nil
	cfg.DisableCaller = !s.caller
	cfg.OutputPaths = nil
	cfg.ErrorOutputPaths = []string{"stderr"}
	if s.file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, s.file)
	}
	if s.console {
		// stderr: stdout may carry the board when piped
		cfg.OutputPaths = append(cfg.OutputPaths, "stderr")
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	switch s.format {
	case "json":
		cfg.Encoding = "json"
		enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "console":
		cfg.Encoding = "console"
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		cfg.Encoding = "console"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		enc.ConsoleSeparator = " | "
	}
	cfg.EncoderConfig = enc
	return cfg
}

func parseLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
