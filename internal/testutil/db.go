// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"testing"
	"time"

	"postpilot/internal/database"
	"postpilot/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens an in-memory SQLite database with the full schema.
// The pool is pinned to one connection so every query sees the same memory database.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// PostOption customises a fixture post.
type PostOption func(*models.Post)

// WithRetryCount sets retry_count.
func WithRetryCount(n int) PostOption {
	return func(p *models.Post) { p.RetryCount = n }
}

// WithStatus sets the status. Posted fixtures also get posted_at.
func WithStatus(s models.PostStatus) PostOption {
	return func(p *models.Post) {
		p.Status = s
		if s == models.PostStatusPosted && p.PostedAt == nil {
			at := time.Now().UTC()
			p.PostedAt = &at
		}
	}
}

// WithScheduledAt sets scheduled_at; nil clears it.
func WithScheduledAt(at *time.Time) PostOption {
	return func(p *models.Post) { p.ScheduledAt = at }
}

// WithID fixes the post id.
func WithID(id string) PostOption {
	return func(p *models.Post) { p.ID = id }
}

// WithHashtags sets hashtags.
func WithHashtags(tags ...string) PostOption {
	return func(p *models.Post) { p.Hashtags = tags }
}

// WithMediaURL sets the media url.
func WithMediaURL(url string) PostOption {
	return func(p *models.Post) { p.MediaURL = &url }
}

// WithGatewayRef marks the post as already scheduled at the gateway.
func WithGatewayRef(ref string) PostOption {
	return func(p *models.Post) { p.GatewayRef = &ref }
}

// CreatePost inserts a scheduled post owned by userID, due at scheduledAt.
func CreatePost(t *testing.T, db *gorm.DB, userID string, scheduledAt time.Time, opts ...PostOption) *models.Post {
	t.Helper()
	at := scheduledAt.UTC()
	p := &models.Post{
		UserID:      userID,
		Content:     "Shipping a new release today.",
		Status:      models.PostStatusScheduled,
		ScheduledAt: &at,
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateAccount inserts a posting account for userID.
func CreateAccount(t *testing.T, db *gorm.DB, userID string, connected bool) *models.PostingAccount {
	t.Helper()
	a := &models.PostingAccount{
		UserID:     userID,
		ProfileKey: "profile-" + userID,
		Connected:  connected,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// ReloadPost reads the post back from db.
func ReloadPost(t *testing.T, db *gorm.DB, id string) *models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, db.Where("id = ?", id).First(&p).Error)
	return &p
}
