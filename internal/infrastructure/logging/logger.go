package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
)

const (
	serviceName = "gymdesk"

	defaultMaxAgeDays    = 7
	defaultRotationHours = 24

	redacted = "[REDACTED]"
)

// sensitiveKeys are attribute keys whose values never reach the output.
var sensitiveKeys = []string{"password", "token", "secret", "cookie", "authorization"}

// Logger is a slog.Logger carrying the service and version on every entry.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger for cfg. When a log file is configured but cannot be
// opened, it logs to stderr and says so in its first entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	out, err := openOutput(cfg)
	if err != nil {
		l := NewWithWriter(os.Stderr, cfg, version)
		l.Warn("log file unavailable, using stderr", "path", cfg.File.Path, "error", err)
		return l
	}
	return NewWithWriter(out, cfg, version)
}

// NewWithWriter builds a Logger on w; cfg.Output is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// redact masks attributes whose key names a credential, for example
// "password" or "session_token".
func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}

func openOutput(cfg config.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		return openRotatingFile(cfg.File)
	default:
		return os.Stdout, nil
	}
}

// openRotatingFile writes to <path>.YYYYMMDD, keeps <path> as a symlink to
// the live file and prunes files older than MaxAge days.
func openRotatingFile(cfg config.FileLoggingConfig) (io.Writer, error) {
	if cfg.Path == "" {
		return nil, errors.New("logging.file.path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, err
	}

	days, hours := cfg.MaxAge, cfg.RotationTime
	if days <= 0 {
		days = defaultMaxAgeDays
	}
	if hours <= 0 {
		hours = defaultRotationHours
	}

	return rotatelogs.New(cfg.Path+".%Y%m%d",
		rotatelogs.WithLinkName(cfg.Path),
		rotatelogs.WithMaxAge(time.Duration(days)*24*time.Hour),
		rotatelogs.WithRotationTime(time.Duration(hours)*time.Hour),
	)
}

// parseLevel maps debug, info, warn (or warning) and error, in any case.
// Anything else is info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the pre-configuration logger: JSON to stdout at info.
func Default() *Logger {
	return NewWithWriter(os.Stdout, config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard drops everything. For tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
