package pagecorpus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/pagecorpus/model"
)

// Logger wraps slog.Logger with curator-specific operation helpers.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithVersion adds a dataset version field to the logger.
func (l *Logger) WithVersion(v model.Version) *Logger {
	return &Logger{
		Logger: l.Logger.With("version", v.String()),
	}
}

// LogAppend logs an append.
func (l *Logger) LogAppend(ctx context.Context, id model.RecordID, label string, superseded bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "append failed",
			"id", id.String(),
			"error", err,
		)
		return
	}

	l.DebugContext(ctx, "append completed",
		"id", id.String(),
		"label", label,
		"superseded", superseded,
	)
}

// LogDelete logs a page deletion.
func (l *Logger) LogDelete(ctx context.Context, key model.PageKey, err error) {
	if err != nil {
		l.WarnContext(ctx, "delete failed",
			"page", string(key.ID()),
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "page deleted",
		"page", string(key.ID()),
	)
}

// LogQuery logs a suggestion query.
func (l *Logger) LogQuery(ctx context.Context, k, results int, err error) {
	if err != nil {
		l.WarnContext(ctx, "suggest failed",
			"k", k,
			"error", err,
		)
		return
	}

	l.DebugContext(ctx, "suggest completed",
		"k", k,
		"results", results,
	)
}

// LogRebuild logs a dataset rebuild.
func (l *Logger) LogRebuild(ctx context.Context, from, to model.Version, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rebuild failed",
			"from", from.String(),
			"to", to.String(),
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "rebuild completed",
		"from", from.String(),
		"to", to.String(),
		"took", took,
	)
}

// LogManifest logs a manifest write.
func (l *Logger) LogManifest(ctx context.Context, v model.Version, buildID string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "manifest failed",
			"version", v.String(),
			"error", err,
		)
		return
	}

	l.InfoContext(ctx, "manifest written",
		"version", v.String(),
		"build_id", buildID,
	)
}

// LogEmbedding logs the outcome of one embedding job.
func (l *Logger) LogEmbedding(ctx context.Context, id model.PageID, err error) {
	if err != nil {
		l.WarnContext(ctx, "embedding pending",
			"page", string(id),
			"error", err,
		)
		return
	}

	l.DebugContext(ctx, "page searchable",
		"page", string(id),
	)
}
