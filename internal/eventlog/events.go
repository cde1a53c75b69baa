// Package eventlog persists domain events to a transactional outbox and
// delivers them to Kafka.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Event types and the topics they route to.
const (
	EventActivityRecorded = "activity.recorded"
	EventNotificationSent = "notification.sent"

	TopicActivityRecorded = "health.activity.recorded"
	TopicNotificationSent = "health.notification.sent"
)

var eventTopics = map[string]string{
	EventActivityRecorded: TopicActivityRecorded,
	EventNotificationSent: TopicNotificationSent,
}

// ActivityRecorded is published for every novel activity record.
type ActivityRecorded struct {
	UserID       string    `json:"user_id"`
	LogID        int64     `json:"log_id"`
	TypeID       int       `json:"type_id"`
	Calories     int       `json:"calories"`
	DistanceKM   float64   `json:"distance_km"`
	TotalMinutes int       `json:"total_minutes"`
	StartedAt    time.Time `json:"started_at"`
}

// NotificationSent is published for every notification handed to the sink.
type NotificationSent struct {
	UserID string    `json:"user_id"`
	Kind   string    `json:"kind"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Enqueue writes an event row inside the caller's transaction so the event
// is persisted if and only if the mutation commits.
func Enqueue(ctx context.Context, tx pgx.Tx, eventType, partitionKey string, payload interface{}) error {
	topic, ok := eventTopics[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (event_id, event_type, topic, partition_key, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,NOW())`
	_, err = tx.Exec(ctx, stmt, uuid.NewString(), eventType, topic, partitionKey, body)
	return err
}
