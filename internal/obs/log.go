package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/samber/oops"
)

var (
	loggerMu sync.RWMutex
	logger   = NewJSONLogger(os.Stdout, slog.LevelInfo)
)

// NewJSONLogger builds the structured logger format used across the service.
func NewJSONLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the shared logger and returns a func restoring the previous one.
func SetLogger(l *slog.Logger) (restore func()) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	prev := logger
	logger = l
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// ParseLevel maps config strings (debug, info, warn, error) onto slog levels.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LogError logs err with structured context when it carries oops metadata.
func LogError(ctx context.Context, msg string, err error, args ...any) {
	attrs := append([]any{}, args...)
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if c := oopsErr.Context(); len(c) > 0 {
			attrs = append(attrs, "context", c)
		}
	} else {
		attrs = append(attrs, "error", err)
	}
	Logger().ErrorContext(ctx, msg, attrs...)
}
