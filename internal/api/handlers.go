// Package api exposes the HTTP surface: the provider webhook receiver,
// the subscriber verification endpoint, and the health check.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"example.com/healthrelay/internal/debounce"
	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/observability"
)

// webhookSchema constrains the provider's notification payload: a non-empty
// array of {ownerId, collectionType, date} entries.
const webhookSchema = `{
    "type": "array",
    "minItems": 1,
    "items": {
        "type": "object",
        "required": ["ownerId", "collectionType", "date"],
        "properties": {
            "ownerId": {"type": "string", "minLength": 1},
            "collectionType": {"type": "string", "enum": ["activities", "sleep", "weight"]},
            "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
        }
    }
}`

// Ingestor is the slice of the ingest orchestrator the handlers need.
type Ingestor interface {
	ProcessActivities(ctx context.Context, userID string, when time.Time) (int, error)
	ProcessSleep(ctx context.Context, userID string, date domain.Day) (bool, error)
	NotifyLoggedOut(ctx context.Context, userID string) error
}

// Debouncer gates repeated deliveries of the same logical event.
type Debouncer interface {
	Do(ctx context.Context, key string, fn func(context.Context) (bool, error)) (debounce.Outcome, error)
}

// Handler receives provider webhook deliveries and drives ingestion.
type Handler struct {
	ingestor   Ingestor
	debouncer  Debouncer
	status     *debounce.StatusTracker
	verifyCode string
	schema     *jsonschema.Schema
	now        func() time.Time
	logger     *log.Logger
}

// Option configures optional Handler behaviour.
type Option func(*Handler)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler builds a Handler.
func NewHandler(ingestor Ingestor, debouncer Debouncer, status *debounce.StatusTracker, verifyCode string, opts ...Option) *Handler {
	h := &Handler{
		ingestor:   ingestor,
		debouncer:  debouncer,
		status:     status,
		verifyCode: verifyCode,
		schema:     mustCompileWebhookSchema(),
		now:        time.Now,
		logger:     log.New(log.Writer(), "[webhook] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func mustCompileWebhookSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(webhookSchema)))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", doc); err != nil {
		panic(err)
	}
	return compiler.MustCompile("webhook.json")
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", h.webhook)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.deliver(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verify answers the provider's subscriber verification challenge: 204 when
// the presented code matches, 404 otherwise.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	if h.verifyCode != "" && r.URL.Query().Get("verify") == h.verifyCode {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

type webhookEvent struct {
	OwnerID        string `json:"ownerId"`
	CollectionType string `json:"collectionType"`
	Date           string `json:"date"`
}

// deliver handles one webhook delivery. Deliveries are at-least-once and may
// arrive concurrently; the debouncer keeps the fold-and-notify sequence
// at-most-once per (owner, kind, date) fingerprint. An unknown owner yields
// 404 so the subscription can be cleaned up upstream; everything else is
// acknowledged with 204 to stop provider redelivery.
func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.schema.Validate(doc); err != nil {
		h.logger.Printf("rejected malformed delivery (delivery=%s): %v", deliveryID, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var events []webhookEvent
	if err := json.Unmarshal(body, &events); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	unknownUser := false
	for _, event := range events {
		if err := h.processEvent(r.Context(), deliveryID, event); err != nil {
			if errors.Is(err, domain.ErrUnknownUser) {
				unknownUser = true
				continue
			}
			h.logger.Printf("event failed (delivery=%s, owner=%s, kind=%s): %v",
				deliveryID, event.OwnerID, event.CollectionType, err)
		}
	}

	if unknownUser {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) processEvent(ctx context.Context, deliveryID string, event webhookEvent) error {
	key := event.OwnerID + "|" + event.CollectionType + "|" + event.Date

	outcome, err := h.debouncer.Do(ctx, key, func(ctx context.Context) (bool, error) {
		return h.runEvent(ctx, event)
	})
	if outcome == debounce.Skipped {
		observability.RecordEventDebounced()
		h.logger.Printf("debounced duplicate delivery (delivery=%s, key=%s)", deliveryID, key)
		return nil
	}
	if err != nil && h.handleAuthFailure(ctx, event.OwnerID, err) {
		return nil
	}
	return err
}

// runEvent performs the actual ingestion for one event. It reports
// processed=true only when provider data was folded in, leaving the
// debounce window open for redeliveries of events that yielded nothing.
func (h *Handler) runEvent(ctx context.Context, event webhookEvent) (bool, error) {
	switch event.CollectionType {
	case "activities":
		novel, err := h.ingestor.ProcessActivities(ctx, event.OwnerID, h.now())
		return novel > 0, err
	case "sleep":
		date, err := domain.ParseDay(event.Date)
		if err != nil {
			return false, err
		}
		return h.ingestor.ProcessSleep(ctx, event.OwnerID, date)
	default:
		// Subscribed collections we do not process, such as weight.
		return false, nil
	}
}

// handleAuthFailure converts an expired-credentials error into at most one
// logged-out notification per user per day. It reports whether err was an
// auth failure.
func (h *Handler) handleAuthFailure(ctx context.Context, userID string, err error) bool {
	if !errors.Is(err, domain.ErrAuthExpired) {
		return false
	}
	today := domain.DayOf(h.now().UTC())
	if h.status.MarkAuthFailure(userID, today) {
		if notifyErr := h.ingestor.NotifyLoggedOut(ctx, userID); notifyErr != nil {
			h.logger.Printf("logged-out notification failed (user=%s): %v", userID, notifyErr)
		}
	}
	return true
}
