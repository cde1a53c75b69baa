package notify

import (
	"context"
	"log"

	"example.com/healthrelay/internal/debounce"
	"example.com/healthrelay/internal/observability"
)

// Notifier gates rendered texts through the content-identity dedup layer and
// hands survivors to the sink. Delivery failures are logged, never fatal.
type Notifier struct {
	sink      Sink
	debouncer *debounce.Debouncer
	logger    *log.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(sink Sink, debouncer *debounce.Debouncer) *Notifier {
	return &Notifier{
		sink:      sink,
		debouncer: debouncer,
		logger:    log.New(log.Writer(), "[notify] ", log.LstdFlags),
	}
}

// Notify sends the text unless an identical text went out within the content
// window. Returns true when the text was accepted (sent or attempted).
func (n *Notifier) Notify(ctx context.Context, text string) bool {
	if n.debouncer.SuppressContent(text) {
		n.logger.Printf("suppressing duplicate notification text")
		observability.RecordNotificationSuppressed()
		return false
	}

	if err := n.sink.Send(ctx, text); err != nil {
		n.logger.Printf("delivery failed: %v", err)
		observability.RecordDeliveryError()
		return true
	}
	observability.RecordNotificationSent()
	return true
}
