package service

import (
	"context"
	"fmt"
	"time"

	"geocoding-enricher/internal/provider"
)

// Pacer throttles outbound requests between lookups.
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// SleepPacer blocks the calling goroutine for the full duration.
// A cancelled context ends the wait early with provider.ErrInterruptedWait.
type SleepPacer struct{}

// Wait implements Pacer.
func (SleepPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w after %s: %v", provider.ErrInterruptedWait, d, ctx.Err())
	}
}
