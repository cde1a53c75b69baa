package poller

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/healthrelay/internal/domain"
)

// Reporter is the slice of the ingest orchestrator the daily task drives.
type Reporter interface {
	ProcessDailyReports(ctx context.Context, date domain.Day) error
}

// DailyReporter fires the daily summary pass once per day at a fixed UTC
// time. The timer is re-armed after each run against the wall clock, so a
// missed or slow run never causes a double fire.
type DailyReporter struct {
	reporter         Reporter
	hour             int
	minute           int
	now              func() time.Time
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewDailyReporter constructs a DailyReporter firing at hour:minute UTC.
func NewDailyReporter(reporter Reporter, hour, minute int, opts ...ReporterOption) *DailyReporter {
	r := &DailyReporter{
		reporter:         reporter,
		hour:             hour,
		minute:           minute,
		now:              time.Now,
		logger:           log.New(log.Writer(), "[daily-report] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReporterOption configures optional DailyReporter behaviour.
type ReporterOption func(*DailyReporter)

// WithReporterClock overrides the time source, for tests.
func WithReporterClock(now func() time.Time) ReporterOption {
	return func(r *DailyReporter) {
		r.now = now
	}
}

// Start launches the daily loop. It should be called in a goroutine and
// stops when ctx is cancelled.
func (r *DailyReporter) Start(ctx context.Context) {
	defer close(r.shutdownComplete)

	for {
		now := r.now().UTC()
		timer := time.NewTimer(nextFire(now, r.hour, r.minute).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		date := domain.DayOf(r.now().UTC())
		if err := r.reporter.ProcessDailyReports(ctx, date); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Printf("daily report run failed (date=%s): %v", date, err)
		}
	}
}

// Wait blocks until the reporter has stopped.
func (r *DailyReporter) Wait() {
	<-r.shutdownComplete
}

// nextFire returns the next hour:minute instant strictly after now.
func nextFire(now time.Time, hour, minute int) time.Time {
	fire := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
