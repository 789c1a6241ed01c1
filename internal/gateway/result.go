// Package gateway submits posts to the external social posting gateway.
package gateway

import "fmt"

// Kind tags a gateway Result.
type Kind int

const (
	KindError Kind = iota
	KindSuccess
	KindScheduled
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindScheduled:
		return "scheduled"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}

// Result is the parsed outcome of one submission.
// ID is set for KindSuccess and KindScheduled, Message for KindError and KindRateLimited.
type Result struct {
	Kind       Kind
	ID         string
	Message    string
	StatusCode int
}

// Success is an immediate publish with the platform's post id.
func Success(id string) Result { return Result{Kind: KindSuccess, ID: id} }

// Scheduled is a post accepted for publishing at a later date.
func Scheduled(id string) Result { return Result{Kind: KindScheduled, ID: id} }

// RateLimited means the gateway asked us to back off.
func RateLimited(message string) Result {
	if message == "" {
		message = "rate limited by posting gateway"
	}
	return Result{Kind: KindRateLimited, Message: message, StatusCode: 429}
}

// Failure is any rejection, transport error or unreadable response.
func Failure(format string, args ...interface{}) Result {
	return Result{Kind: KindError, Message: fmt.Sprintf(format, args...)}
}

func (r Result) String() string {
	switch r.Kind {
	case KindSuccess, KindScheduled:
		return fmt.Sprintf("%s(%s)", r.Kind, r.ID)
	default:
		return fmt.Sprintf("%s(%s)", r.Kind, r.Message)
	}
}
