package scheduler

import (
	"context"
	"time"

	"feedcorpus/internal/ports"
)

// RealSleeper blocks on the wall clock while honoring context cancellation.
type RealSleeper struct{}

var _ ports.Sleeper = RealSleeper{}

// Sleep waits for d or until the context is done.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IntervalRunner triggers the pipeline on a fixed period in watch mode.
// The first run fires immediately.
type IntervalRunner struct {
	period time.Duration
	stop   chan struct{}
}

var _ ports.Runner = (*IntervalRunner)(nil)

// NewIntervalRunner builds a runner with the given period.
func NewIntervalRunner(period time.Duration) *IntervalRunner {
	return &IntervalRunner{period: period}
}

// Start begins ticking in a background goroutine.
func (r *IntervalRunner) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	if r.stop != nil {
		return nil
	}

	r.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.period)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (r *IntervalRunner) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	close(r.stop)
	r.stop = nil
	return nil
}
