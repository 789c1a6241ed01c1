package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func decodeError(t *testing.T, raw []byte) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestPostRoutes_RequireAuth(t *testing.T) {
	h := newServerHarness(t)
	id := uuid.NewString()

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/posts"},
		{http.MethodGet, "/api/posts/" + id},
		{http.MethodPost, "/api/posts/" + id + "/retry"},
		{http.MethodPost, "/api/posts/" + id + "/publish"},
		{http.MethodGet, "/api/posts/" + id + "/attempts"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			resp, _ := h.do(t, route.method, route.path, "", "")
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

			resp, _ = h.do(t, route.method, route.path, "garbage", "")
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestListMyPosts(t *testing.T) {
	h := newServerHarness(t)
	now := time.Now()
	testutil.CreatePost(t, h.db, "user-1", now)
	testutil.CreatePost(t, h.db, "user-1", now.Add(time.Hour))
	testutil.CreatePost(t, h.db, "user-2", now)

	resp, raw := h.do(t, http.MethodGet, "/api/posts", signToken(t, "user-1"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var posts []models.Post
	require.NoError(t, json.Unmarshal(raw, &posts))
	assert.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, "user-1", p.UserID)
	}

	resp, raw = h.do(t, http.MethodGet, "/api/posts?limit=1", signToken(t, "user-1"), "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &posts))
	assert.Len(t, posts, 1)
}

func TestListMyPosts_DatabaseError(t *testing.T) {
	db, mock := setupMockDB(t)
	h := newServerHarnessWithDB(t, db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts"`)).
		WillReturnError(assert.AnError)

	resp, raw := h.do(t, http.MethodGet, "/api/posts", signToken(t, "user-1"), "")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := decodeError(t, raw)
	assert.Equal(t, models.CodeInternal, body.Code)
	assert.Empty(t, body.Details, "internal causes stay out of responses")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPost(t *testing.T) {
	h := newServerHarness(t)
	h.createAdmin(t, "admin-1")
	post := testutil.CreatePost(t, h.db, "user-1", time.Now())

	tests := []struct {
		name string
		user string
		id   string
		want int
	}{
		{"owner", "user-1", post.ID, fiber.StatusOK},
		{"admin", "admin-1", post.ID, fiber.StatusOK},
		{"other user", "user-2", post.ID, fiber.StatusForbidden},
		{"unknown post", "user-1", uuid.NewString(), fiber.StatusNotFound},
		{"malformed id", "user-1", "42", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := h.do(t, http.MethodGet, "/api/posts/"+tt.id, signToken(t, tt.user), "")
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRetryPost_Handler(t *testing.T) {
	h := newServerHarness(t)
	h.createAdmin(t, "admin-1")
	now := time.Now()

	failed := testutil.CreatePost(t, h.db, "user-1", now.Add(-time.Hour),
		testutil.WithStatus(models.PostStatusFailed), testutil.WithRetryCount(3))
	posted := testutil.CreatePost(t, h.db, "user-1", now.Add(-time.Hour),
		testutil.WithStatus(models.PostStatusPosted))
	others := testutil.CreatePost(t, h.db, "user-2", now.Add(-time.Hour),
		testutil.WithStatus(models.PostStatusFailed), testutil.WithRetryCount(3))

	t.Run("owner resets a failed post", func(t *testing.T) {
		resp, raw := h.do(t, http.MethodPost, "/api/posts/"+failed.ID+"/retry", signToken(t, "user-1"), "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

		var got models.Post
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, models.PostStatusScheduled, got.Status)
		assert.Equal(t, 0, got.RetryCount)
		assert.Nil(t, got.ErrorMessage)
	})

	t.Run("posted post conflicts", func(t *testing.T) {
		resp, raw := h.do(t, http.MethodPost, "/api/posts/"+posted.ID+"/retry", signToken(t, "user-1"), "")
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
		assert.Equal(t, models.CodeConflict, decodeError(t, raw).Code)
	})

	t.Run("another user's post is forbidden", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodPost, "/api/posts/"+others.ID+"/retry", signToken(t, "user-1"), "")
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, models.PostStatusFailed, testutil.ReloadPost(t, h.db, others.ID).Status)
	})

	t.Run("admin may reset any post", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodPost, "/api/posts/"+others.ID+"/retry", signToken(t, "admin-1"), "")
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, models.PostStatusScheduled, testutil.ReloadPost(t, h.db, others.ID).Status)
	})

	t.Run("reset post is picked up by the next sweep", func(t *testing.T) {
		testutil.CreateAccount(t, h.db, "user-1", true)
		resp, _ := h.do(t, http.MethodPost, "/api/dispatch/sweep", testCronSecret, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, models.PostStatusPosted, testutil.ReloadPost(t, h.db, failed.ID).Status)
	})
}

func TestPublishPost_Handler(t *testing.T) {
	h := newServerHarness(t)
	testutil.CreateAccount(t, h.db, "user-1", true)
	token := signToken(t, "user-1")

	t.Run("immediate publish", func(t *testing.T) {
		post := testutil.CreatePost(t, h.db, "user-1", time.Now(), testutil.WithStatus(models.PostStatusDraft))

		resp, raw := h.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", token, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

		var result map[string]string
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, post.ID, result["postId"])
		assert.Equal(t, "posted", result["status"])
		assert.Equal(t, "urn:li:share:profile-user-1", result["externalId"])

		got := testutil.ReloadPost(t, h.db, post.ID)
		assert.Equal(t, models.PostStatusPosted, got.Status)
		assert.NotNil(t, got.PostedAt)

		resp, raw = h.do(t, http.MethodGet, "/api/posts/"+post.ID+"/attempts", token, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		var attempts []models.DeliveryAttempt
		require.NoError(t, json.Unmarshal(raw, &attempts))
		require.Len(t, attempts, 1)
		assert.Equal(t, models.OutcomePosted, attempts[0].Outcome)
		assert.Equal(t, "manual", attempts[0].Trigger)

		resp, _ = h.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", token, "")
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})

	t.Run("future schedule date hands the post to the gateway", func(t *testing.T) {
		post := testutil.CreatePost(t, h.db, "user-1", time.Now(), testutil.WithStatus(models.PostStatusDraft))
		at := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

		resp, raw := h.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", token,
			`{"schedule_date":"`+at.Format(time.RFC3339)+`"}`)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

		var result map[string]string
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, "scheduled", result["status"])

		got := testutil.ReloadPost(t, h.db, post.ID)
		assert.Equal(t, models.PostStatusScheduled, got.Status)
		require.NotNil(t, got.GatewayRef)
		assert.Equal(t, "sched-profile-user-1", *got.GatewayRef)
		require.NotNil(t, got.ScheduledAt)
		assert.True(t, at.Equal(*got.ScheduledAt))
	})

	t.Run("past schedule date is rejected", func(t *testing.T) {
		post := testutil.CreatePost(t, h.db, "user-1", time.Now(), testutil.WithStatus(models.PostStatusDraft))
		past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

		resp, raw := h.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", token, `{"schedule_date":"`+past+`"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, models.CodeValidation, decodeError(t, raw).Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		post := testutil.CreatePost(t, h.db, "user-1", time.Now(), testutil.WithStatus(models.PostStatusDraft))

		resp, _ := h.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", token, `{"schedule_date":"tomorrow"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, models.PostStatusDraft, testutil.ReloadPost(t, h.db, post.ID).Status)
	})

	t.Run("missing account fails the attempt and keeps the draft", func(t *testing.T) {
		post := testutil.CreatePost(t, h.db, "user-3", time.Now(), testutil.WithStatus(models.PostStatusDraft))

		resp, raw := h.do(t, http.MethodPost, "/api/posts/"+post.ID+"/publish", signToken(t, "user-3"), "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

		var result map[string]string
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, "draft", result["status"])

		got := testutil.ReloadPost(t, h.db, post.ID)
		assert.Equal(t, models.PostStatusDraft, got.Status)
		assert.Zero(t, got.RetryCount)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "LinkedIn account is not connected", *got.ErrorMessage)
	})
}

func TestGetPostAttempts_Forbidden(t *testing.T) {
	h := newServerHarness(t)
	post := testutil.CreatePost(t, h.db, "user-1", time.Now())

	resp, raw := h.do(t, http.MethodGet, "/api/posts/"+post.ID+"/attempts", signToken(t, "user-2"), "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, decodeError(t, raw).Code)
}
