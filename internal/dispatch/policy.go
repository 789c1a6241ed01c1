// Package dispatch runs sweeps that deliver due posts through the posting gateway
// and moves each post through its retry state machine.
package dispatch

import (
	"time"

	"postpilot/internal/gateway"
	"postpilot/internal/models"
	"postpilot/internal/repository"
)

// DefaultCeiling is the number of failed attempts after which a post is marked failed.
const DefaultCeiling = 3

// MissingAccountMessage is stored on posts whose owner has no usable posting account.
const MissingAccountMessage = "LinkedIn account is not connected"

// Tally is how an attempt counts towards a sweep report.
type Tally int

const (
	TallyNone Tally = iota
	TallySuccess
	TallyFailure
)

// Outcome is what happened when a post was attempted, before the policy is applied.
type Outcome struct {
	Result gateway.Result
	// NoAccount marks a failure produced without calling the gateway.
	NoAccount bool
	// ScheduleDate is the date handed to the gateway for a Scheduled result.
	ScheduleDate *time.Time
	// Manual marks a delivery the owner started by hand rather than a sweep.
	Manual bool
}

// Transition is the policy's decision for one outcome.
// An empty Changes means the post row must not be written.
type Transition struct {
	Status  models.PostStatus
	Changes repository.PostChanges
	Record  models.AttemptOutcome
	Reason  string
	Tally   Tally
}

// Policy is the post state machine. It is pure: Apply never performs I/O.
type Policy struct {
	Ceiling int
}

// Apply maps an attempt outcome on post at now to the post's next state.
func (p Policy) Apply(post *models.Post, out Outcome, now time.Time) Transition {
	res := out.Result
	switch res.Kind {
	case gateway.KindSuccess:
		postedAt := now.UTC()
		return Transition{
			Status: models.PostStatusPosted,
			Changes: repository.PostChanges{
				"status":           models.PostStatusPosted,
				"posted_at":        postedAt,
				"linkedin_post_id": res.ID,
				"error_message":    nil,
			},
			Record: models.OutcomePosted,
			Tally:  TallySuccess,
		}

	case gateway.KindScheduled:
		// The gateway now owns delivery; the sweep only has to complete the row,
		// so the post gets a full retry budget back.
		changes := repository.PostChanges{
			"status":        models.PostStatusScheduled,
			"gateway_ref":   res.ID,
			"retry_count":   0,
			"error_message": nil,
		}
		if out.ScheduleDate != nil {
			changes["scheduled_at"] = out.ScheduleDate.UTC()
		}
		return Transition{
			Status:  models.PostStatusScheduled,
			Changes: changes,
			Record:  models.OutcomeScheduled,
			Tally:   TallySuccess,
		}

	case gateway.KindRateLimited:
		return Transition{
			Status: post.Status,
			Record: models.OutcomeRateLimited,
			Reason: res.Message,
			Tally:  TallyNone,
		}
	}

	reason := res.Message
	record := models.OutcomeFailed
	if out.NoAccount {
		reason = MissingAccountMessage
		record = models.OutcomeNoAccount
	}
	if reason == "" {
		reason = "delivery failed"
	}

	if out.Manual && post.Status == models.PostStatusDraft {
		// A draft has no schedule for the sweep to retry on; it stays a draft.
		return Transition{
			Status:  models.PostStatusDraft,
			Changes: repository.PostChanges{"error_message": reason},
			Record:  record,
			Reason:  reason,
			Tally:   TallyFailure,
		}
	}

	changes := repository.PostChanges{}
	base := post.RetryCount
	if out.Manual && post.Status == models.PostStatusFailed {
		// Publishing a failed post by hand starts a fresh budget, as RetryPost does.
		base = 0
		if post.ScheduledAt == nil {
			changes["scheduled_at"] = now.UTC()
		}
	}

	next := min(base+1, p.ceiling())
	status := models.PostStatusScheduled
	if next >= p.ceiling() {
		status = models.PostStatusFailed
	}
	changes["status"] = status
	changes["retry_count"] = next
	changes["error_message"] = reason
	return Transition{
		Status:  status,
		Changes: changes,
		Record:  record,
		Reason:  reason,
		Tally:   TallyFailure,
	}
}

func (p Policy) ceiling() int {
	if p.Ceiling <= 0 {
		return DefaultCeiling
	}
	return p.Ceiling
}
