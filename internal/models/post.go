// Package models contains data structures for the application's domain models.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPosted    PostStatus = "posted"
	PostStatusFailed    PostStatus = "failed"
)

// IsTerminal reports whether the sweep must never touch a post in this state again.
func (s PostStatus) IsTerminal() bool {
	return s == PostStatusPosted || s == PostStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPosted, PostStatusFailed:
		return true
	}
	return false
}

// StringList is a list of strings stored as a JSON array in a text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
	if strings.TrimSpace(string(raw)) == "" {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = out
	return nil
}

// Post is a LinkedIn post drafted by an agent and delivered by the dispatcher.
type Post struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string     `gorm:"not null;index" json:"user_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Hashtags       StringList `gorm:"type:text" json:"hashtags"`
	MediaURL       *string    `json:"media_url,omitempty"`
	Status         PostStatus `gorm:"type:varchar(16);not null;default:draft;index" json:"status"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	RetryCount     int        `gorm:"not null;default:0" json:"retry_count"`
	ErrorMessage   *string    `gorm:"type:text" json:"error_message,omitempty"`
	LinkedInPostID *string    `gorm:"column:linkedin_post_id" json:"linkedin_post_id,omitempty"`
	// GatewayRef is the gateway's id for a post handed over with a future schedule date.
	GatewayRef *string   `json:"gateway_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BeforeCreate assigns an opaque id to new posts.
func (p *Post) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PostStatusDraft
	}
	return nil
}

// IsDue reports whether the post is eligible for a sweep at now under the given ceiling.
func (p *Post) IsDue(now time.Time, ceiling int) bool {
	return p.Status == PostStatusScheduled &&
		p.ScheduledAt != nil &&
		!p.ScheduledAt.After(now) &&
		p.RetryCount < ceiling
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
