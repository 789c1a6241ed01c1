package dispatch

import (
	"context"
	"time"
)

// Pacer spaces out consecutive gateway calls within a sweep.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FixedPacer waits a constant delay, returning early when ctx is done.
type FixedPacer struct {
	Delay time.Duration
}

func (p FixedPacer) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoPacer never waits.
type NoPacer struct{}

func (NoPacer) Wait(context.Context) error { return nil }
