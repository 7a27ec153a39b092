package logging

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if debuggee := DebuggeeFromContext(ctx); debuggee != "" {
		fields = append(fields, zap.String("debuggee.id", debuggee))
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session.id", sessionID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type debuggeeCtxKey struct{}
type sessionCtxKey struct{}
type requestCtxKey struct{}

const (
	maxIDLen       = 128
	maxDebuggeeLen = 512
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// WithDebuggee records which debuggee (a server URL or snapshot path) the
// work in ctx is reading from. Panics on an empty or oversized name.
func WithDebuggee(ctx context.Context, debuggee string) context.Context {
	if debuggee == "" || len(debuggee) > maxDebuggeeLen || !utf8.ValidString(debuggee) {
		panic(fmt.Sprintf("logging: invalid debuggee %q", debuggee))
	}
	return context.WithValue(ctx, debuggeeCtxKey{}, debuggee)
}

// DebuggeeName turns s into a name WithDebuggee accepts. Invalid UTF-8 is
// replaced and long names keep their last maxDebuggeeLen bytes, which hold
// the file name of a long path.
func DebuggeeName(s string) string {
	s = strings.ToValidUTF8(s, "?")
	if len(s) > maxDebuggeeLen {
		s = s[len(s)-maxDebuggeeLen:]
		for !utf8.RuneStart(s[0]) {
			s = s[1:]
		}
	}
	if s == "" {
		return "unknown"
	}
	return s
}

// DebuggeeFromContext returns the debuggee set by WithDebuggee.
func DebuggeeFromContext(ctx context.Context) string {
	if d, ok := ctx.Value(debuggeeCtxKey{}).(string); ok {
		return d
	}
	return ""
}

// SessionIDFromContext extracts the session ID from ctx.
func SessionIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSessionID adds a session ID to ctx.
// Panics if sessionID is empty or contains invalid characters.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if err := validateID(sessionID, "sessionID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// RequestIDFromContext extracts the request ID from ctx.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds a request ID to ctx.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

type loggerCtxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
