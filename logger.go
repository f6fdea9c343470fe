package knncache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with knncache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithPiece adds piece and piece-count fields.
func (l *Logger) WithPiece(piece, pieces int) *Logger {
	return &Logger{Logger: l.Logger.With("piece", piece, "pieces", pieces)}
}

// WithHash adds the dataset content hash.
func (l *Logger) WithHash(hash string) *Logger {
	return &Logger{Logger: l.Logger.With("hash", hash)}
}

// WithSuffix adds the cache file suffix.
func (l *Logger) WithSuffix(suffix string) *Logger {
	return &Logger{Logger: l.Logger.With("suffix", suffix)}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{Logger: l.Logger.With("k", k)}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{Logger: l.Logger.With("count", count)}
}

// LogWrite logs a cache write.
func (l *Logger) LogWrite(ctx context.Context, name string, records int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache write failed",
			"file", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "cache written",
		"file", name,
		"records", records,
		"elapsed", elapsed,
	)
}

// LogMerge logs a cache merge.
func (l *Logger) LogMerge(ctx context.Context, name string, read, added int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache merge failed",
			"file", name,
			"error", err,
		)
		return
	}
	if read != added {
		l.WarnContext(ctx, "cache merge skipped known keys",
			"file", name,
			"read", read,
			"added", added,
			"skipped", read-added,
		)
		return
	}
	l.InfoContext(ctx, "cache merged",
		"file", name,
		"read", read,
	)
}

// LogProgress logs piece build progress.
func (l *Logger) LogProgress(ctx context.Context, done, total, row int, elapsed time.Duration) {
	l.InfoContext(ctx, "piece progress",
		"done", done,
		"total", total,
		"row", row,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}
