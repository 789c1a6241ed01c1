package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptOutcome classifies a single delivery attempt.
type AttemptOutcome string

const (
	OutcomePosted      AttemptOutcome = "posted"
	OutcomeScheduled   AttemptOutcome = "scheduled"
	OutcomeRateLimited AttemptOutcome = "rate_limited"
	OutcomeFailed      AttemptOutcome = "failed"
	OutcomeNoAccount   AttemptOutcome = "no_account"
	OutcomeSkipped     AttemptOutcome = "skipped"
)

// DeliveryAttempt is an audit row written for every attempt the dispatcher makes.
type DeliveryAttempt struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID        string         `gorm:"not null;index" json:"post_id"`
	AttemptNumber int            `gorm:"not null" json:"attempt_number"`
	Outcome       AttemptOutcome `gorm:"type:varchar(32);not null" json:"outcome"`
	ErrorMessage  *string        `gorm:"type:text" json:"error_message,omitempty"`
	ExternalID    *string        `json:"external_id,omitempty"`
	DurationMS    int64          `gorm:"not null;default:0" json:"duration_ms"`
	Trigger       string         `gorm:"column:triggered_by;type:varchar(32);not null" json:"trigger"`
	CreatedAt     time.Time      `json:"created_at"`
}

// BeforeCreate assigns an opaque id to new attempts.
func (a *DeliveryAttempt) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
