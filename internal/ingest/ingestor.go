// Package ingest orchestrates fetching provider data, folding novel records
// into daily aggregates, and deciding which notifications to emit.
package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/notify"
	"example.com/healthrelay/internal/observability"
	"example.com/healthrelay/internal/ranking"
	"example.com/healthrelay/internal/streak"
)

// Store captures the persistence operations the ingestor needs.
type Store interface {
	UserIdentity(ctx context.Context, userID string) (*domain.UserIdentity, error)
	AllUserIdentities(ctx context.Context) ([]domain.UserIdentity, error)
	Credentials(ctx context.Context, userID string) (domain.Credentials, error)
	AppendActivity(ctx context.Context, userID string, rec domain.ActivityRecord) (created bool, err error)
	DailyHistory(ctx context.Context, userID string, typeID int, before domain.Day, limit int) ([]domain.DailyAggregate, error)
	LatestDailyBefore(ctx context.Context, userID string, typeID int, before domain.Day) (*domain.DailyAggregate, error)
	DailyAggregatesOn(ctx context.Context, typeIDs []int, date domain.Day) ([]domain.DailyAggregate, error)
	Top(ctx context.Context, userID string, typeID int, metric domain.Metric, since *time.Time) (float64, error)
	LastSleep(ctx context.Context, userID string) (*domain.SleepData, error)
	UpdateSleep(ctx context.Context, userID string, sleep domain.SleepData) error
	RecordNotification(ctx context.Context, userID, kind, text string) error
}

// Provider fetches a user's data from the upstream fitness API.
type Provider interface {
	FetchActivities(ctx context.Context, creds domain.Credentials, when time.Time) ([]domain.ActivityRecord, error)
	FetchSleep(ctx context.Context, creds domain.Credentials, date domain.Day) (*domain.SleepData, error)
}

// Notifier delivers a rendered notification. It returns true when the text
// was accepted (not suppressed as a duplicate).
type Notifier interface {
	Notify(ctx context.Context, text string) bool
}

// Report configures how one activity type is reported.
type Report struct {
	TypeID     int
	Name       string
	Realtime   bool
	Daily      bool
	Goal       *streak.Goal
	StreakMode streak.Mode
}

// Config holds the ingestor's reporting configuration.
type Config struct {
	Reports      map[int]Report
	HistoryDays  int // recent-record window, in days
	HistoryLimit int // max daily aggregates fetched for streak/ranking
	ProviderName string
	LoginURL     string
}

// Ingestor folds provider data into the store and produces notifications.
type Ingestor struct {
	store    Store
	provider Provider
	notifier Notifier
	cfg      Config
	now      func() time.Time
	logger   *log.Logger
}

// Option configures optional behaviour for the Ingestor.
type Option func(*Ingestor)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		i.now = now
	}
}

// New constructs an Ingestor.
func New(store Store, provider Provider, notifier Notifier, cfg Config, opts ...Option) *Ingestor {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 730
	}
	ing := &Ingestor{
		store:    store,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// ProcessActivities fetches the user's recent activities and folds the novel
// ones in. It returns the number of novel records. A failing record is
// logged and skipped; the rest of the batch continues. Auth failures
// propagate as domain.ErrAuthExpired without any retry.
func (i *Ingestor) ProcessActivities(ctx context.Context, userID string, when time.Time) (int, error) {
	identity, err := i.store.UserIdentity(ctx, userID)
	if err != nil {
		return 0, err
	}
	creds, err := i.store.Credentials(ctx, userID)
	if err != nil {
		return 0, err
	}

	records, err := i.provider.FetchActivities(ctx, creds, when)
	if err != nil {
		return 0, err
	}

	novel := 0
	for _, rec := range records {
		report, ok := i.cfg.Reports[rec.TypeID]
		if !ok {
			continue
		}

		created, err := i.store.AppendActivity(ctx, userID, rec)
		if err != nil {
			i.logger.Printf("append failed (user=%s, log_id=%d): %v", userID, rec.LogID, err)
			continue
		}
		if !created {
			observability.RecordDuplicateSkipped()
			continue
		}
		observability.RecordActivityIngested()
		novel++

		if !report.Realtime {
			continue
		}
		if err := i.reportRealtime(ctx, identity, report, rec); err != nil {
			i.logger.Printf("realtime report failed (user=%s, log_id=%d): %v", userID, rec.LogID, err)
		}
	}
	return novel, nil
}

// reportRealtime classifies the new record against per-record maxima and
// emits one candidate notification. The maxima are read after the fold, so
// they include the new value and ties classify as records.
func (i *Ingestor) reportRealtime(ctx context.Context, identity *domain.UserIdentity, report Report, rec domain.ActivityRecord) error {
	recentSince := i.now().UTC().AddDate(0, 0, -i.cfg.HistoryDays)

	allTime, err := i.topStats(ctx, identity.UserID, report.TypeID, nil)
	if err != nil {
		return err
	}
	recent, err := i.topStats(ctx, identity.UserID, report.TypeID, &recentSince)
	if err != nil {
		return err
	}

	text := notify.ActivityMessage(identity.Alias, activityName(report, rec.Name), rec, allTime, recent, i.cfg.HistoryDays)
	if i.notifier.Notify(ctx, text) {
		return i.store.RecordNotification(ctx, identity.UserID, "activity", text)
	}
	return nil
}

// ProcessSleep fetches the user's sleep for the date, persists it, and emits
// a notification comparing it with the previous one. It returns true when
// sleep data was found and processed.
func (i *Ingestor) ProcessSleep(ctx context.Context, userID string, date domain.Day) (bool, error) {
	identity, err := i.store.UserIdentity(ctx, userID)
	if err != nil {
		return false, err
	}
	creds, err := i.store.Credentials(ctx, userID)
	if err != nil {
		return false, err
	}

	sleep, err := i.provider.FetchSleep(ctx, creds, date)
	if err != nil {
		return false, err
	}
	if sleep == nil {
		return false, nil
	}

	prev, err := i.store.LastSleep(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := i.store.UpdateSleep(ctx, userID, *sleep); err != nil {
		return false, err
	}

	text := notify.SleepMessage(identity.Alias, *sleep, prev)
	if i.notifier.Notify(ctx, text) {
		if err := i.store.RecordNotification(ctx, userID, "sleep", text); err != nil {
			i.logger.Printf("recording sleep notification failed (user=%s): %v", userID, err)
		}
	}
	return true, nil
}

// ProcessDailyReports runs the once-per-day pass: for every configured daily
// activity type, each user who logged that type on the date gets one summary
// notification with streak and record rankings. A failure for one aggregate
// never affects the others.
func (i *Ingestor) ProcessDailyReports(ctx context.Context, date domain.Day) error {
	typeIDs := make([]int, 0, len(i.cfg.Reports))
	for id, report := range i.cfg.Reports {
		if report.Daily {
			typeIDs = append(typeIDs, id)
		}
	}
	if len(typeIDs) == 0 {
		return nil
	}

	aggs, err := i.store.DailyAggregatesOn(ctx, typeIDs, date)
	if err != nil {
		return err
	}

	for _, agg := range aggs {
		if err := i.reportDaily(ctx, agg, date); err != nil {
			i.logger.Printf("daily report failed (user=%s, type=%d): %v", agg.UserID, agg.TypeID, err)
		}
	}
	return nil
}

func (i *Ingestor) reportDaily(ctx context.Context, agg domain.DailyAggregate, date domain.Day) error {
	report := i.cfg.Reports[agg.TypeID]

	identity, err := i.store.UserIdentity(ctx, agg.UserID)
	if err != nil {
		return err
	}

	history, err := i.store.DailyHistory(ctx, agg.UserID, agg.TypeID, date, i.cfg.HistoryLimit)
	if err != nil {
		return err
	}

	streakDays := streak.Days(history, date, report.Goal, report.StreakMode)
	allTime := ranking.Tops(history, nil)
	recentSince := date.AddDays(-i.cfg.HistoryDays)
	recent := ranking.Tops(history, &recentSince)

	prev, err := i.store.LatestDailyBefore(ctx, agg.UserID, agg.TypeID, date)
	if err != nil {
		return err
	}

	text := notify.DailyMessage(identity.Alias, activityName(report, ""), agg, prev, allTime, recent, streakDays, i.cfg.HistoryDays, report.Goal)
	if i.notifier.Notify(ctx, text) {
		return i.store.RecordNotification(ctx, agg.UserID, "daily_activity", text)
	}
	return nil
}

// NotifyLoggedOut emits the one-shot logged-out notification for a user.
// Callers gate it through the status tracker so it fires at most once per
// user per day.
func (i *Ingestor) NotifyLoggedOut(ctx context.Context, userID string) error {
	identity, err := i.store.UserIdentity(ctx, userID)
	if err != nil {
		return err
	}

	text := notify.LoggedOutMessage(identity.Alias, i.cfg.ProviderName, i.cfg.LoginURL)
	if i.notifier.Notify(ctx, text) {
		return i.store.RecordNotification(ctx, userID, "logged_out", text)
	}
	return nil
}

// IsAuthError reports whether err is the distinguished logged-out condition.
func IsAuthError(err error) bool {
	return errors.Is(err, domain.ErrAuthExpired)
}

func (i *Ingestor) topStats(ctx context.Context, userID string, typeID int, since *time.Time) (ranking.TopStats, error) {
	stats := ranking.TopStats{ZoneMinutes: make(map[domain.Zone]int)}

	calories, err := i.store.Top(ctx, userID, typeID, domain.MetricCalories, since)
	if err != nil {
		return stats, err
	}
	distance, err := i.store.Top(ctx, userID, typeID, domain.MetricDistanceKM, since)
	if err != nil {
		return stats, err
	}
	minutes, err := i.store.Top(ctx, userID, typeID, domain.MetricDuration, since)
	if err != nil {
		return stats, err
	}
	stats.Calories = int(calories)
	stats.DistanceKM = distance
	stats.TotalMinutes = int(minutes)

	for _, zone := range domain.Zones {
		top, err := i.store.Top(ctx, userID, typeID, domain.ZoneMetric(zone), since)
		if err != nil {
			return stats, err
		}
		stats.ZoneMinutes[zone] = int(top)
	}
	return stats, nil
}

func activityName(report Report, fallback string) string {
	if report.Name != "" {
		return report.Name
	}
	if fallback != "" {
		return fallback
	}
	return "Unknown"
}
