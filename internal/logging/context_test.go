package logging

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

func fieldMap(fields []zapcore.Field) map[string]any {
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = fieldValue(f)
	}
	return m
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_All(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	ctx = WithDebuggee(ctx, "http://localhost:9300")
	ctx = WithSessionID(ctx, "sess_1")
	ctx = WithRequestID(ctx, "req-2")

	m := fieldMap(ContextFields(ctx))
	assert.Equal(t, sc.TraceID().String(), m["trace_id"])
	assert.Equal(t, sc.SpanID().String(), m["span_id"])
	assert.Equal(t, true, m["trace_sampled"])
	assert.Equal(t, "http://localhost:9300", m["debuggee.id"])
	assert.Equal(t, "sess_1", m["session.id"])
	assert.Equal(t, "req-2", m["request.id"])
}

func TestWithDebuggee_Invalid(t *testing.T) {
	ctx := context.Background()
	assert.Panics(t, func() { WithDebuggee(ctx, "") })
	assert.Panics(t, func() { WithDebuggee(ctx, strings.Repeat("a", maxDebuggeeLen+1)) })
	assert.Panics(t, func() { WithDebuggee(ctx, "bad\xff") })
	assert.NotPanics(t, func() { WithDebuggee(ctx, "testdata/sample.yaml") })
}

func TestDebuggeeName(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("dir/", 200) + "sample.yaml"
	multi := strings.Repeat("é", maxDebuggeeLen)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unchanged", "testdata/sample.yaml", "testdata/sample.yaml"},
		{"empty", "", "unknown"},
		{"invalid utf8", "bad\xffname", "bad?name"},
		{"long path keeps tail", long, long[len(long)-maxDebuggeeLen:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DebuggeeName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotPanics(t, func() { WithDebuggee(ctx, got) })
		})
	}

	got := DebuggeeName(multi)
	assert.LessOrEqual(t, len(got), maxDebuggeeLen)
	assert.True(t, utf8.ValidString(got))
	assert.NotPanics(t, func() { WithDebuggee(ctx, got) })
}

func TestWithIDs_Invalid(t *testing.T) {
	ctx := context.Background()
	for _, id := range []string{"", "has space", "semi;colon", strings.Repeat("x", maxIDLen+1)} {
		assert.Panics(t, func() { WithSessionID(ctx, id) }, "session %q", id)
		assert.Panics(t, func() { WithRequestID(ctx, id) }, "request %q", id)
	}
}

func TestFromContext(t *testing.T) {
	l := FromContext(context.Background())
	assert.NotNil(t, l)
	assert.False(t, l.Enabled(zapcore.ErrorLevel))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}
