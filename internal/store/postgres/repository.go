// Package postgres implements the aggregate store on top of pgx.
//
// Schema (managed externally, no migrations here):
//
//	users            (user_id PK, alias, access_token, refresh_token,
//	                  token_expires_at, last_sleep_start, last_sleep_end,
//	                  last_sleep_minutes, last_wake_minutes)
//	activities       (user_id, log_id, type_id, calories, distance_km,
//	                  total_minutes, fat_burn_minutes, cardio_minutes,
//	                  peak_minutes, out_of_zone_minutes, started_at,
//	                  created_at, PRIMARY KEY (user_id, log_id))
//	daily_activities (user_id, type_id, date, count_activities, sum_calories,
//	                  sum_distance_km, sum_total_minutes,
//	                  sum_fat_burn_minutes, sum_cardio_minutes,
//	                  sum_peak_minutes, sum_out_of_zone_minutes,
//	                  PRIMARY KEY (user_id, type_id, date))
//	outbox           (event_id, event_type, topic, partition_key, payload,
//	                  created_at, published_at)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/eventlog"
)

// Repository provides Postgres-backed persistence for users, activity
// records, daily aggregates and the event outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserIdentity looks up a user by provider user id.
func (r *Repository) UserIdentity(ctx context.Context, userID string) (*domain.UserIdentity, error) {
	const query = `SELECT user_id, alias FROM users WHERE user_id = $1`

	var identity domain.UserIdentity
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&identity.UserID, &identity.Alias); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownUser
		}
		return nil, err
	}
	return &identity, nil
}

// AllUserIdentities returns every known user, for the poll cycle.
func (r *Repository) AllUserIdentities(ctx context.Context) ([]domain.UserIdentity, error) {
	const query = `SELECT user_id, alias FROM users ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []domain.UserIdentity
	for rows.Next() {
		var identity domain.UserIdentity
		if err := rows.Scan(&identity.UserID, &identity.Alias); err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// Credentials returns the stored provider credentials for a user.
func (r *Repository) Credentials(ctx context.Context, userID string) (domain.Credentials, error) {
	const query = `SELECT access_token, refresh_token, token_expires_at FROM users WHERE user_id = $1`

	var creds domain.Credentials
	err := r.pool.QueryRow(ctx, query, userID).Scan(&creds.AccessToken, &creds.RefreshToken, &creds.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credentials{}, domain.ErrUnknownUser
	}
	return creds, err
}

// AppendActivity persists a novel activity record and additively folds its
// metrics into the daily aggregate row, in one transaction. It returns
// created=false, with aggregates untouched, when the log id pre-exists.
func (r *Repository) AppendActivity(ctx context.Context, userID string, rec domain.ActivityRecord) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const insertActivity = `INSERT INTO activities
        (user_id, log_id, type_id, calories, distance_km, total_minutes,
         fat_burn_minutes, cardio_minutes, peak_minutes, out_of_zone_minutes,
         started_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
        ON CONFLICT (user_id, log_id) DO NOTHING`

	tag, err := tx.Exec(ctx, insertActivity,
		userID,
		rec.LogID,
		rec.TypeID,
		rec.Calories,
		rec.DistanceKM,
		rec.TotalMinutes,
		rec.ZoneValue(domain.ZoneFatBurn),
		rec.ZoneValue(domain.ZoneCardio),
		rec.ZoneValue(domain.ZonePeak),
		rec.ZoneValue(domain.ZoneOutOfRange),
		rec.StartedAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	const upsertDaily = `INSERT INTO daily_activities
        (user_id, type_id, date, count_activities, sum_calories,
         sum_distance_km, sum_total_minutes, sum_fat_burn_minutes,
         sum_cardio_minutes, sum_peak_minutes, sum_out_of_zone_minutes)
        VALUES ($1,$2,$3,1,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id, type_id, date) DO UPDATE SET
            count_activities        = daily_activities.count_activities + 1,
            sum_calories            = daily_activities.sum_calories + EXCLUDED.sum_calories,
            sum_distance_km         = daily_activities.sum_distance_km + EXCLUDED.sum_distance_km,
            sum_total_minutes       = daily_activities.sum_total_minutes + EXCLUDED.sum_total_minutes,
            sum_fat_burn_minutes    = daily_activities.sum_fat_burn_minutes + EXCLUDED.sum_fat_burn_minutes,
            sum_cardio_minutes      = daily_activities.sum_cardio_minutes + EXCLUDED.sum_cardio_minutes,
            sum_peak_minutes        = daily_activities.sum_peak_minutes + EXCLUDED.sum_peak_minutes,
            sum_out_of_zone_minutes = daily_activities.sum_out_of_zone_minutes + EXCLUDED.sum_out_of_zone_minutes`

	_, err = tx.Exec(ctx, upsertDaily,
		userID,
		rec.TypeID,
		rec.Day().Time(),
		rec.Calories,
		rec.DistanceKM,
		rec.TotalMinutes,
		rec.ZoneValue(domain.ZoneFatBurn),
		rec.ZoneValue(domain.ZoneCardio),
		rec.ZoneValue(domain.ZonePeak),
		rec.ZoneValue(domain.ZoneOutOfRange),
	)
	if err != nil {
		return false, err
	}

	if err := eventlog.Enqueue(ctx, tx, eventlog.EventActivityRecorded, userID, eventlog.ActivityRecorded{
		UserID:       userID,
		LogID:        rec.LogID,
		TypeID:       rec.TypeID,
		Calories:     rec.Calories,
		DistanceKM:   rec.DistanceKM,
		TotalMinutes: rec.TotalMinutes,
		StartedAt:    rec.StartedAt.UTC(),
	}); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

const dailyColumns = `user_id, type_id, date, count_activities, sum_calories,
    sum_distance_km, sum_total_minutes, sum_fat_burn_minutes,
    sum_cardio_minutes, sum_peak_minutes, sum_out_of_zone_minutes`

// DailyHistory returns daily aggregates up to and including the given date,
// descending by date.
func (r *Repository) DailyHistory(ctx context.Context, userID string, typeID int, before domain.Day, limit int) ([]domain.DailyAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM daily_activities
        WHERE user_id = $1 AND type_id = $2 AND date <= $3
        ORDER BY date DESC LIMIT $4`, dailyColumns)

	rows, err := r.pool.Query(ctx, query, userID, typeID, before.Time(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyAggregates(rows)
}

// LatestDailyBefore returns the most recent aggregate strictly before the
// given date, or nil.
func (r *Repository) LatestDailyBefore(ctx context.Context, userID string, typeID int, before domain.Day) (*domain.DailyAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM daily_activities
        WHERE user_id = $1 AND type_id = $2 AND date < $3
        ORDER BY date DESC LIMIT 1`, dailyColumns)

	rows, err := r.pool.Query(ctx, query, userID, typeID, before.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggs, err := scanDailyAggregates(rows)
	if err != nil || len(aggs) == 0 {
		return nil, err
	}
	return &aggs[0], nil
}

// DailyAggregatesOn returns every user's aggregate for the given types on one
// date, for the daily report pass.
func (r *Repository) DailyAggregatesOn(ctx context.Context, typeIDs []int, date domain.Day) ([]domain.DailyAggregate, error) {
	query := fmt.Sprintf(`SELECT %s FROM daily_activities
        WHERE type_id = ANY($1) AND date = $2
        ORDER BY user_id, type_id`, dailyColumns)

	rows, err := r.pool.Query(ctx, query, typeIDs, date.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyAggregates(rows)
}

// metricColumns whitelists the queryable activity columns per metric.
var metricColumns = map[domain.Metric]string{
	domain.MetricCalories:                    "calories",
	domain.MetricDistanceKM:                  "distance_km",
	domain.MetricDuration:                    "total_minutes",
	domain.ZoneMetric(domain.ZoneFatBurn):    "fat_burn_minutes",
	domain.ZoneMetric(domain.ZoneCardio):     "cardio_minutes",
	domain.ZoneMetric(domain.ZonePeak):       "peak_minutes",
	domain.ZoneMetric(domain.ZoneOutOfRange): "out_of_zone_minutes",
}

// Top returns the maximum observed value of the metric over the user's raw
// activity records, optionally restricted to records started at or after
// since.
func (r *Repository) Top(ctx context.Context, userID string, typeID int, metric domain.Metric, since *time.Time) (float64, error) {
	column, ok := metricColumns[metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric: %s", metric)
	}

	query := fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) FROM activities
        WHERE user_id = $1 AND type_id = $2`, column)
	args := []interface{}{userID, typeID}
	if since != nil {
		query += ` AND started_at >= $3`
		args = append(args, since.UTC())
	}

	var top float64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&top); err != nil {
		return 0, err
	}
	return top, nil
}

// RecordNotification enqueues a notification.sent event for downstream
// consumers.
func (r *Repository) RecordNotification(ctx context.Context, userID, kind, text string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := eventlog.Enqueue(ctx, tx, eventlog.EventNotificationSent, userID, eventlog.NotificationSent{
		UserID: userID,
		Kind:   kind,
		Text:   text,
		SentAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LastSleep returns the user's last recorded sleep, or nil when none exists.
func (r *Repository) LastSleep(ctx context.Context, userID string) (*domain.SleepData, error) {
	const query = `SELECT last_sleep_start, last_sleep_end, last_sleep_minutes, last_wake_minutes
        FROM users WHERE user_id = $1`

	var start, end *time.Time
	var sleepMinutes, wakeMinutes *int
	err := r.pool.QueryRow(ctx, query, userID).Scan(&start, &end, &sleepMinutes, &wakeMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	if end == nil {
		return nil, nil
	}
	return &domain.SleepData{
		StartTime:    start.UTC(),
		EndTime:      end.UTC(),
		SleepMinutes: *sleepMinutes,
		WakeMinutes:  *wakeMinutes,
	}, nil
}

// UpdateSleep stores the user's latest sleep.
func (r *Repository) UpdateSleep(ctx context.Context, userID string, sleep domain.SleepData) error {
	const stmt = `UPDATE users SET
        last_sleep_start = $2, last_sleep_end = $3,
        last_sleep_minutes = $4, last_wake_minutes = $5
        WHERE user_id = $1`

	tag, err := r.pool.Exec(ctx, stmt, userID,
		sleep.StartTime.UTC(), sleep.EndTime.UTC(), sleep.SleepMinutes, sleep.WakeMinutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownUser
	}
	return nil
}

func scanDailyAggregates(rows pgx.Rows) ([]domain.DailyAggregate, error) {
	var aggs []domain.DailyAggregate
	for rows.Next() {
		var agg domain.DailyAggregate
		var date time.Time
		var fatBurn, cardio, peak, outOfZone int
		if err := rows.Scan(
			&agg.UserID, &agg.TypeID, &date, &agg.Count, &agg.Calories,
			&agg.DistanceKM, &agg.TotalMinutes, &fatBurn, &cardio, &peak, &outOfZone,
		); err != nil {
			return nil, err
		}
		agg.Date = domain.DayOf(date)
		agg.ZoneMinutes = map[domain.Zone]int{
			domain.ZoneFatBurn:    fatBurn,
			domain.ZoneCardio:     cardio,
			domain.ZonePeak:       peak,
			domain.ZoneOutOfRange: outOfZone,
		}
		aggs = append(aggs, agg)
	}
	return aggs, rows.Err()
}
