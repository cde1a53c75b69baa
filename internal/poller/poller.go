// Package poller runs the background loops: the periodic per-user poll and
// the once-per-day report task.
package poller

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/healthrelay/internal/debounce"
	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/ingest"
	"example.com/healthrelay/internal/observability"
)

// Users lists the identities the poll cycle visits.
type Users interface {
	AllUserIdentities(ctx context.Context) ([]domain.UserIdentity, error)
}

// Ingestor is the slice of the ingest orchestrator the poller drives.
type Ingestor interface {
	ProcessActivities(ctx context.Context, userID string, when time.Time) (int, error)
	ProcessSleep(ctx context.Context, userID string, date domain.Day) (bool, error)
	NotifyLoggedOut(ctx context.Context, userID string) error
}

// Poller periodically re-runs ingestion for every known user. The timer is
// re-armed after each cycle completes, so a slow cycle never overlaps the
// next one.
type Poller struct {
	users            Users
	ingestor         Ingestor
	status           *debounce.StatusTracker
	interval         time.Duration
	now              func() time.Time
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// Option configures optional Poller behaviour.
type Option func(*Poller)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// New constructs a Poller.
func New(users Users, ingestor Ingestor, status *debounce.StatusTracker, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{
		users:            users,
		ingestor:         ingestor,
		status:           status,
		interval:         interval,
		now:              time.Now,
		logger:           log.New(log.Writer(), "[poller] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the poll loop. It should be called in a goroutine and stops
// when ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	defer close(p.shutdownComplete)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.runCycle(ctx)
		timer.Reset(p.interval)
	}
}

// Wait blocks until the poller has stopped.
func (p *Poller) Wait() {
	<-p.shutdownComplete
}

// runCycle polls every known user once. A failure for one user never affects
// the others.
func (p *Poller) runCycle(ctx context.Context) {
	identities, err := p.users.AllUserIdentities(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Printf("listing users failed: %v", err)
		}
		return
	}

	for _, identity := range identities {
		if ctx.Err() != nil {
			return
		}
		p.pollUser(ctx, identity.UserID)
	}
	observability.RecordPollCycle()
}

func (p *Poller) pollUser(ctx context.Context, userID string) {
	now := p.now().UTC()
	today := domain.DayOf(now)

	// Sleep is polled until one successful fetch per day; activities are
	// polled every cycle.
	if p.status.SuccessDue(userID, today) {
		processed, err := p.ingestor.ProcessSleep(ctx, userID, today)
		switch {
		case err == nil && processed:
			p.status.MarkSuccess(userID, today)
		case err != nil:
			p.handleError(ctx, userID, today, "sleep", err)
		}
	}

	if _, err := p.ingestor.ProcessActivities(ctx, userID, now); err != nil {
		p.handleError(ctx, userID, today, "activities", err)
	}
}

func (p *Poller) handleError(ctx context.Context, userID string, today domain.Day, kind string, err error) {
	if ingest.IsAuthError(err) {
		if p.status.MarkAuthFailure(userID, today) {
			if notifyErr := p.ingestor.NotifyLoggedOut(ctx, userID); notifyErr != nil {
				p.logger.Printf("logged-out notification failed (user=%s): %v", userID, notifyErr)
			}
		}
		return
	}
	if !errors.Is(err, context.Canceled) {
		p.logger.Printf("%s poll failed (user=%s): %v", kind, userID, err)
	}
}
