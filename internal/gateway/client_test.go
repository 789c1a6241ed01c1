package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		hashtags []string
		want     string
	}{
		{"no hashtags", "Hello world", nil, "Hello world"},
		{"plain tags", "Hello world", []string{"go", "linkedin"}, "Hello world\n\n#go #linkedin"},
		{"existing hash not doubled", "Hi", []string{"#golang", "##dev"}, "Hi\n\n#golang #dev"},
		{"blank tags skipped", "Hi", []string{"", "  ", "#", "ai"}, "Hi\n\n#ai"},
		{"whitespace inside tag removed", "Hi", []string{"open source", "\tweb dev\n"}, "Hi\n\n#opensource #webdev"},
		{"trailing whitespace trimmed before tags", "Hi  \n", []string{"x"}, "Hi\n\n#x"},
		{"only blank tags keeps content", "Hi  ", []string{" "}, "Hi  "},
		{"empty content", "", []string{"x", "y"}, "#x #y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeContent(tt.content, tt.hashtags))
		})
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		scheduled bool
		kind      Kind
		id        string
		message   string
	}{
		{"top-level id", 200, `{"status":"success","id":"urn:li:share:123"}`, false, KindSuccess, "urn:li:share:123", ""},
		{"postIds object string", 200, `{"status":"success","postIds":{"linkedin":"urn:li:share:9"}}`, false, KindSuccess, "urn:li:share:9", ""},
		{"postIds object nested", 200, `{"postIds":{"linkedin":{"id":"urn:li:share:8"}}}`, false, KindSuccess, "urn:li:share:8", ""},
		{"postIds array", 200, `{"status":"success","postIds":[{"platform":"twitter","id":"t1"},{"platform":"linkedin","id":"urn:li:share:7"}]}`, false, KindSuccess, "urn:li:share:7", ""},
		{"scheduled", 200, `{"status":"scheduled","id":"sched-1"}`, true, KindScheduled, "sched-1", ""},
		{"rate limited", 429, `{"status":"error","message":"Too many requests"}`, false, KindRateLimited, "", "Too many requests"},
		{"rate limited empty body", 429, ``, false, KindRateLimited, "", "rate limited by posting gateway"},
		{"payload error", 200, `{"status":"error","message":"Duplicate post"}`, false, KindError, "", "Duplicate post"},
		{"payload error list", 200, `{"status":"error","errors":[{"message":"Media invalid"}]}`, false, KindError, "", "Media invalid"},
		{"http error with message", 400, `{"status":"error","message":"Profile key not found"}`, false, KindError, "", "Profile key not found"},
		{"http error without body", 502, `<html>bad gateway</html>`, false, KindError, "", "posting gateway returned HTTP 502"},
		{"malformed success", 200, `not json`, false, KindError, "", ""},
		{"missing id", 200, `{"status":"success","postIds":{"twitter":"t1"}}`, false, KindError, "", "posting gateway response did not include a post id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResponse(tt.status, []byte(tt.body), tt.scheduled)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.id, got.ID)
			if tt.message != "" {
				assert.Equal(t, tt.message, got.Message)
			}
			if tt.kind == KindError {
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}

func TestClient_Submit(t *testing.T) {
	var captured postRequest
	var authHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/post", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		var req postRequest
		assert.NoError(t, json.Unmarshal(raw, &req))
		captured = req

		w.Header().Set("Content-Type", "application/json")
		if captured.ScheduleDate != "" {
			_, _ = w.Write([]byte(`{"status":"scheduled","id":"sched-42"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","postIds":{"linkedin":"urn:li:share:123"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api/", "secret-key", time.Second)
	require.True(t, client.Configured())

	res := client.Submit(context.Background(), Submission{
		ProfileKey: "pk-1",
		Content:    "Launch day",
		Hashtags:   []string{"go"},
		MediaURL:   "https://cdn.example.com/a.png",
	})
	assert.Equal(t, KindSuccess, res.Kind)
	assert.Equal(t, "urn:li:share:123", res.ID)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Bearer secret-key", authHeader)
	assert.Equal(t, "Launch day\n\n#go", captured.Post)
	assert.Equal(t, []string{"linkedin"}, captured.Platforms)
	assert.Equal(t, "pk-1", captured.ProfileKey)
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, captured.MediaURLs)
	assert.Empty(t, captured.ScheduleDate)

	when := time.Date(2026, 7, 1, 15, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	res = client.Submit(context.Background(), Submission{ProfileKey: "pk-1", Content: "Later", ScheduleDate: &when})
	assert.Equal(t, KindScheduled, res.Kind)
	assert.Equal(t, "sched-42", res.ID)
	assert.Equal(t, "2026-07-01T13:30:00Z", captured.ScheduleDate)
	assert.Nil(t, captured.MediaURLs)
}

func TestClient_SubmitRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status":"error","message":"slow down"}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "k", time.Second).Submit(context.Background(), Submission{ProfileKey: "pk", Content: "x"})
	assert.Equal(t, KindRateLimited, res.Kind)
	assert.Equal(t, "slow down", res.Message)
}

func TestClient_SubmitNeverRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "k", time.Second).Submit(context.Background(), Submission{ProfileKey: "pk", Content: "x"})
	assert.Equal(t, KindError, res.Kind)
	assert.Equal(t, 1, calls)
}

func TestClient_SubmitTransportErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte(`{"id":"late"}`))
		}))
		defer srv.Close()

		res := NewClient(srv.URL, "k", 50*time.Millisecond).Submit(context.Background(), Submission{ProfileKey: "pk", Content: "x"})
		assert.Equal(t, KindError, res.Kind)
		assert.Contains(t, res.Message, "request failed")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := NewClient("http://127.0.0.1:1", "k", time.Second).Submit(ctx, Submission{ProfileKey: "pk", Content: "x"})
		assert.Equal(t, KindError, res.Kind)
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "  ", time.Second)
		assert.False(t, client.Configured())
		res := client.Submit(context.Background(), Submission{ProfileKey: "pk", Content: "x"})
		assert.Equal(t, KindError, res.Kind)
	})
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "success(urn:1)", Success("urn:1").String())
	assert.Equal(t, "rate_limited(rate limited by posting gateway)", RateLimited("").String())
	assert.Equal(t, "error(boom 5)", Failure("boom %d", 5).String())
}
