package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"postpilot/internal/config"
	"postpilot/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	buf.Reset()
	return rec
}

func TestNewLogger_StampsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "production", "debug")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = observability.WithSweepID(ctx, "sweep-1")

	logger.With(slog.String("component", "dispatch")).DebugContext(ctx, "claimed")
	rec := decodeLine(t, &buf)
	assert.Equal(t, "claimed", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "user-1", rec["user_id"])
	assert.Equal(t, "sweep-1", rec["sweep_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec["trace_id"])
	assert.Equal(t, "dispatch", rec["component"])

	logger.InfoContext(context.Background(), "bare")
	rec = decodeLine(t, &buf)
	assert.NotContains(t, rec, "trace_id")
	assert.NotContains(t, rec, "user_id")
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
	}{
		{"debug", true},
		{"DEBUG", true},
		{"info", false},
		{"", false},
		{"chatty", false},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			NewLogger(&buf, "production", tt.level).Debug("x")
			assert.Equal(t, tt.wantDebug, buf.Len() > 0)
		})
	}
}

func TestAuthRequired_TagsLogContext(t *testing.T) {
	InitMiddleware(&config.Config{JWTSecret: testJWTSecret})

	var seen context.Context
	app := fiber.New()
	app.Use(requestid.New(), ContextMiddleware())
	app.Get("/me", AuthRequired, func(c *fiber.Ctx) error {
		seen = c.UserContext()
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, "user-42", time.Hour))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-42", seen.Value(UserIDKey))
	assert.NotEmpty(t, seen.Value(RequestIDKey))
	assert.Equal(t, seen.Value(RequestIDKey), observability.ExtractCorrelationID(seen))
}
