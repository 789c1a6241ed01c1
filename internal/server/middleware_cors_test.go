package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"postpilot/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dashboardOrigin = "http://localhost:5173"

// corsApp mounts only the middleware chain in front of a stub sweep route.
func corsApp(t *testing.T, origins string) *fiber.App {
	t.Helper()
	srv := &Server{config: &config.Config{AllowedOrigins: origins}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.Post("/api/dispatch/sweep", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "No posts to process"})
	})
	return app
}

func sendFrom(t *testing.T, app *fiber.App, method, origin string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/api/dispatch/sweep", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		origins string
		origin  string
		allowed string
	}{
		{"configured origin", "https://app.postpilot.dev", "https://app.postpilot.dev", "https://app.postpilot.dev"},
		{"unlisted origin", "https://app.postpilot.dev", "https://evil.example", ""},
		{"defaults to local dashboards", "", dashboardOrigin, dashboardOrigin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := sendFrom(t, corsApp(t, tt.origins), http.MethodPost, tt.origin, nil)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.allowed, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_LimiterRejectionKeepsHeaders(t *testing.T) {
	app := corsApp(t, dashboardOrigin)

	for i := 0; i < 100; i++ {
		resp := sendFrom(t, app, http.MethodPost, dashboardOrigin, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp := sendFrom(t, app, http.MethodPost, dashboardOrigin, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, dashboardOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "Too many requests")

	// Preflight is never counted against the limit.
	preflight := sendFrom(t, app, http.MethodOptions, dashboardOrigin, map[string]string{
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "authorization,content-type",
	})
	assert.Equal(t, fiber.StatusNoContent, preflight.StatusCode)
	assert.Contains(t, preflight.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, preflight.Header.Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "86400", preflight.Header.Get("Access-Control-Max-Age"))
}
