package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"postpilot/internal/models"
	"postpilot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFixture(t *testing.T) {
	fx, err := DefaultFixture()
	require.NoError(t, err)
	require.NotEmpty(t, fx.Users)

	var admins int
	for _, u := range fx.Users {
		if u.Admin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}

func TestLoadFixture_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing id", "users:\n  - email: a@b.c\n", "id is required"},
		{"duplicate id", "users:\n  - id: u1\n  - id: u1\n", "duplicate id"},
		{"empty content", "users:\n  - id: u1\n    posts:\n      - status: draft\n", "content is required"},
		{"unknown status", "users:\n  - id: u1\n    posts:\n      - content: hi\n        status: queued\n", "unknown status"},
		{"bad duration", "users:\n  - id: u1\n    posts:\n      - content: hi\n        scheduled_in: soon\n", "scheduled_in"},
		{"bad hashtag", "users:\n  - id: u1\n    posts:\n      - content: hi\n        hashtags: [c++]\n", "hashtag"},
		{"unknown field", "users:\n  - id: u1\n    nickname: x\n", "nickname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFixtureBuild_ResolvesRelativeSchedule(t *testing.T) {
	doc := `
users:
  - id: u1
    account: {profile_key: pk-1, connected: true}
    posts:
      - content: due
        status: scheduled
        scheduled_in: -90m
      - content: no date
`
	fx, err := LoadFixture(strings.NewReader(doc))
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	users, accounts, posts := fx.build(now)
	require.Len(t, users, 1)
	require.Len(t, accounts, 1)
	require.Len(t, posts, 2)

	assert.True(t, accounts[0].Usable())
	require.NotNil(t, posts[0].ScheduledAt)
	assert.Equal(t, now.Add(-90*time.Minute), *posts[0].ScheduledAt)
	assert.True(t, posts[0].IsDue(now, 3))
	assert.Equal(t, models.PostStatusDraft, posts[1].Status)
	assert.Nil(t, posts[1].ScheduledAt)
}

func TestFactory_IsReproducible(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	u1, a1, p1 := NewFactory(42).Build(3, 4, now)
	u2, a2, p2 := NewFactory(42).Build(3, 4, now)

	require.Len(t, u1, 3)
	require.Len(t, p1, 12)
	assert.Equal(t, u1, u2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, p1, p2)

	for _, p := range p1 {
		assert.True(t, p.Status.Valid())
		assert.NotEmpty(t, p.Content)
		switch p.Status {
		case models.PostStatusPosted:
			assert.NotNil(t, p.PostedAt)
			assert.NotNil(t, p.LinkedInPostID)
		case models.PostStatusFailed:
			assert.NotNil(t, p.ErrorMessage)
		case models.PostStatusScheduled:
			assert.NotNil(t, p.ScheduledAt)
			assert.Less(t, p.RetryCount, 3)
		}
	}
}

func TestRun_SeedsAndCleans(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	summary, err := Run(ctx, db, Options{RandomUsers: 2, PostsPerUser: 3, FakerSeed: 7})
	require.NoError(t, err)

	fx, err := DefaultFixture()
	require.NoError(t, err)
	assert.Equal(t, len(fx.Users)+2, summary.Users)

	var posts int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Equal(t, int64(summary.Posts), posts)

	var admin models.User
	require.NoError(t, db.Where("id = ?", "dev-admin").First(&admin).Error)
	assert.True(t, admin.IsAdmin)

	// Re-running without Clean upserts users and accounts but adds posts again.
	again, err := Run(ctx, db, Options{})
	require.NoError(t, err)
	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(summary.Users), users)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Equal(t, int64(summary.Posts+again.Posts), posts)

	_, err = Run(ctx, db, Options{Clean: true})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(len(fx.Users)), users)
}
