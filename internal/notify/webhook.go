package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"example.com/healthrelay/internal/domain"
)

// Sink delivers a rendered notification text.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// WebhookSink posts notifications to an incoming-webhook URL as
// {"text": "..."}. Requests carry a bounded timeout and a small fixed retry
// budget; exhausting it surfaces as a delivery error.
type WebhookSink struct {
	url     string
	client  *http.Client
	retries int
}

// NewWebhookSink constructs a WebhookSink.
func NewWebhookSink(url string, timeout time.Duration, retries int) *WebhookSink {
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		retries: retries,
	}
}

// Send posts the text, retrying transport failures up to the retry budget.
func (s *WebhookSink) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return fmt.Errorf("%w: %v", domain.ErrDelivery, lastErr)
}
