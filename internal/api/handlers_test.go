package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthrelay/internal/debounce"
	"example.com/healthrelay/internal/domain"
)

type stubIngestor struct {
	activityCalls int
	sleepCalls    int
	loggedOut     int
	lastSleepDay  domain.Day
	novel         int
	activityErr   error
}

func (s *stubIngestor) ProcessActivities(context.Context, string, time.Time) (int, error) {
	s.activityCalls++
	return s.novel, s.activityErr
}

func (s *stubIngestor) ProcessSleep(_ context.Context, _ string, date domain.Day) (bool, error) {
	s.sleepCalls++
	s.lastSleepDay = date
	return true, nil
}

func (s *stubIngestor) NotifyLoggedOut(context.Context, string) error {
	s.loggedOut++
	return nil
}

func newTestHandler(t *testing.T, ingestor *stubIngestor) *Handler {
	t.Helper()
	debouncer := debounce.New(10*time.Second, 5*time.Second)
	t.Cleanup(debouncer.Close)
	return NewHandler(ingestor, debouncer, debounce.NewStatusTracker(), "verify-me")
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	mux.ServeHTTP(rec, req)
	return rec
}

func TestVerificationChallenge(t *testing.T) {
	h := newTestHandler(t, &stubIngestor{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?verify=verify-me", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?verify=wrong", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeliverActivitiesEvent(t *testing.T) {
	ingestor := &stubIngestor{novel: 1}
	h := newTestHandler(t, ingestor)

	rec := post(h, `[{"ownerId":"user-1","collectionType":"activities","date":"2025-06-20"}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, ingestor.activityCalls)
}

func TestDeliverSleepEventParsesDate(t *testing.T) {
	ingestor := &stubIngestor{}
	h := newTestHandler(t, ingestor)

	rec := post(h, `[{"ownerId":"user-1","collectionType":"sleep","date":"2025-06-20"}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, ingestor.sleepCalls)
	require.Equal(t, domain.Day{Year: 2025, Month: 6, Date: 20}, ingestor.lastSleepDay)
}

func TestDeliverIgnoresUnhandledCollections(t *testing.T) {
	ingestor := &stubIngestor{}
	h := newTestHandler(t, ingestor)

	rec := post(h, `[{"ownerId":"user-1","collectionType":"weight","date":"2025-06-20"}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, ingestor.activityCalls)
	require.Zero(t, ingestor.sleepCalls)
}

func TestDuplicateDeliveryIngestsOnce(t *testing.T) {
	ingestor := &stubIngestor{novel: 1}
	h := newTestHandler(t, ingestor)
	body := `[{"ownerId":"user-1","collectionType":"activities","date":"2025-06-20"}]`

	require.Equal(t, http.StatusNoContent, post(h, body).Code)
	require.Equal(t, http.StatusNoContent, post(h, body).Code)
	require.Equal(t, 1, ingestor.activityCalls)
}

func TestEmptyDeliveryIngestsAgain(t *testing.T) {
	// A delivery that yields no novel records leaves the debounce window
	// open, so a redelivery runs the ingestion again.
	ingestor := &stubIngestor{novel: 0}
	h := newTestHandler(t, ingestor)
	body := `[{"ownerId":"user-1","collectionType":"activities","date":"2025-06-20"}]`

	post(h, body)
	post(h, body)
	require.Equal(t, 2, ingestor.activityCalls)
}

func TestMalformedPayloadRejected(t *testing.T) {
	ingestor := &stubIngestor{}
	h := newTestHandler(t, ingestor)

	for _, body := range []string{
		`not json`,
		`{}`,
		`[]`,
		`[{"ownerId":"user-1"}]`,
		`[{"ownerId":"","collectionType":"activities","date":"2025-06-20"}]`,
		`[{"ownerId":"user-1","collectionType":"activities","date":"June 20"}]`,
	} {
		rec := post(h, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	require.Zero(t, ingestor.activityCalls)
}

func TestUnknownOwnerYieldsNotFound(t *testing.T) {
	ingestor := &stubIngestor{activityErr: domain.ErrUnknownUser}
	h := newTestHandler(t, ingestor)

	rec := post(h, `[{"ownerId":"ghost","collectionType":"activities","date":"2025-06-20"}]`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthFailureNotifiesLoggedOutOncePerDay(t *testing.T) {
	ingestor := &stubIngestor{activityErr: domain.ErrAuthExpired}
	h := newTestHandler(t, ingestor)

	// The failing run reports processed=false, so redeliveries run again;
	// the status tracker still gates the notification to one per day.
	rec := post(h, `[{"ownerId":"user-1","collectionType":"activities","date":"2025-06-20"}]`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	post(h, `[{"ownerId":"user-1","collectionType":"activities","date":"2025-06-21"}]`)

	require.Equal(t, 2, ingestor.activityCalls)
	require.Equal(t, 1, ingestor.loggedOut)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, &stubIngestor{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
