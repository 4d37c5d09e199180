package pipeline

import (
	"log/slog"

	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// A span is a sequence of operations that can fail in a single, specific
// way. For example, a relay's single connection from accept through dial,
// handshake, and splice to close, or a head interceptor's handling of one
// application connection through chain construction.
//
// We recommend using a span ID for uniquely identifying spans.
//
// The span terminology is borrowed from OTel.
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

// WithSpanID returns an [SLogger] that wraps logger, adding a "spanID"
// attribute to every log record. Use it so every line emitted over a
// relay's single connection, or a head interceptor's handling of one
// application connection, carries the same correlating ID.
func WithSpanID(logger SLogger, spanID string) SLogger {
	return &spanIDLogger{logger: logger, spanID: spanID}
}

// spanIDLogger implements [SLogger] by prepending a fixed spanID attribute
// to every call forwarded to the wrapped logger.
type spanIDLogger struct {
	logger SLogger
	spanID string
}

var _ SLogger = &spanIDLogger{}

// Debug implements [SLogger].
func (l *spanIDLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, append([]any{slog.String("spanID", l.spanID)}, args...)...)
}

// Info implements [SLogger].
func (l *spanIDLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, append([]any{slog.String("spanID", l.spanID)}, args...)...)
}
