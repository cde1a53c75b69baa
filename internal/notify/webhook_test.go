package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthrelay/internal/debounce"
	"example.com/healthrelay/internal/domain"
)

func TestWebhookSinkPostsText(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second, 0)
	require.NoError(t, sink.Send(context.Background(), "hello"))
	require.Equal(t, "hello", got["text"])
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second, 2)
	require.NoError(t, sink.Send(context.Background(), "hello"))
	require.Equal(t, int32(2), calls.Load())
}

func TestWebhookSinkExhaustedBudgetIsDeliveryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second, 1)
	err := sink.Send(context.Background(), "hello")
	require.ErrorIs(t, err, domain.ErrDelivery)
}

type recordingSink struct {
	texts []string
	err   error
}

func (s *recordingSink) Send(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return s.err
}

func newContentDebouncer(t *testing.T) *debounce.Debouncer {
	t.Helper()
	d := debounce.New(10*time.Second, 5*time.Second)
	t.Cleanup(d.Close)
	return d
}

func TestNotifierSuppressesIdenticalText(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier(sink, newContentDebouncer(t))

	require.True(t, n.Notify(context.Background(), "same text"))
	require.False(t, n.Notify(context.Background(), "same text"))
	require.True(t, n.Notify(context.Background(), "other text"))
	require.Equal(t, []string{"same text", "other text"}, sink.texts)
}

func TestNotifierDeliveryFailureIsNonFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("boom")}
	n := NewNotifier(sink, newContentDebouncer(t))

	// The text was accepted even though delivery failed; the caller still
	// records the notification decision.
	require.True(t, n.Notify(context.Background(), "hello"))
}
