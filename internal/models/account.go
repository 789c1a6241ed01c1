package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostingAccount links a user to their profile at the posting gateway.
// It is written by the connect flow and only read by the dispatcher.
type PostingAccount struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string     `gorm:"not null;uniqueIndex" json:"user_id"`
	ProfileKey  string     `gorm:"not null;default:''" json:"-"`
	Connected   bool       `gorm:"not null;default:false" json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an opaque id to new accounts.
func (a *PostingAccount) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Usable reports whether the account can be used to submit posts.
func (a *PostingAccount) Usable() bool {
	return a != nil && a.Connected && strings.TrimSpace(a.ProfileKey) != ""
}
