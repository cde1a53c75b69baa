// Package fitbit implements the activity provider client against a
// Fitbit-style web API.
package fitbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/observability"
)

// ErrTransient indicates a provider failure worth retrying on the next poll.
var ErrTransient = errors.New("transient provider error")

// Client talks to the provider's web API. Requests carry a bounded timeout
// and a small fixed retry budget; a rejected token surfaces as
// domain.ErrAuthExpired.
type Client struct {
	baseURL string
	client  *http.Client
	retries int
	logger  *log.Logger
}

// NewClient constructs a Client.
func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		logger:  log.New(log.Writer(), "[provider] ", log.LstdFlags),
	}
}

type wireZone struct {
	Minutes int    `json:"minutes"`
	Type    string `json:"type"`
}

type wireActivity struct {
	LogID          int64   `json:"logId"`
	ActivityName   string  `json:"activityName"`
	ActivityTypeID int     `json:"activityTypeId"`
	Calories       int     `json:"calories"`
	DurationMillis int64   `json:"duration"`
	Distance       float64 `json:"distance"`
	StartTime      string  `json:"startTime"`
	ActiveZones    struct {
		MinutesInHeartRateZones []wireZone `json:"minutesInHeartRateZones"`
	} `json:"activeZoneMinutes"`
}

// FetchActivities lists the user's most recent activities before the given
// instant. Individual records that fail to parse are logged and skipped; the
// rest of the batch is returned.
func (c *Client) FetchActivities(ctx context.Context, creds domain.Credentials, when time.Time) ([]domain.ActivityRecord, error) {
	query := url.Values{
		"beforeDate": []string{when.UTC().Format("2006-01-02T15:04:05")},
		"sort":       []string{"desc"},
		"offset":     []string{"0"},
		"limit":      []string{"100"},
	}
	body, err := c.get(ctx, creds, "/1/user/-/activities/list.json", query)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Activities []json.RawMessage `json:"activities"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: parsing activity list: %v", ErrTransient, err)
	}

	records := make([]domain.ActivityRecord, 0, len(envelope.Activities))
	for _, raw := range envelope.Activities {
		var wire wireActivity
		if err := json.Unmarshal(raw, &wire); err != nil {
			c.logger.Printf("skipping malformed activity record: %v", err)
			observability.RecordProviderError("malformed")
			continue
		}
		rec, err := toRecord(wire)
		if err != nil {
			c.logger.Printf("skipping malformed activity record (log_id=%d): %v", wire.LogID, err)
			observability.RecordProviderError("malformed")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FetchSleep returns the user's main sleep for the given date, or nil when
// none was logged.
func (c *Client) FetchSleep(ctx context.Context, creds domain.Credentials, date domain.Day) (*domain.SleepData, error) {
	body, err := c.get(ctx, creds, fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", date), nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Sleep []struct {
			StartTime     string `json:"startTime"`
			EndTime       string `json:"endTime"`
			MinutesAsleep int    `json:"minutesAsleep"`
			MinutesAwake  int    `json:"minutesAwake"`
			IsMainSleep   bool   `json:"isMainSleep"`
		} `json:"sleep"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: parsing sleep: %v", ErrTransient, err)
	}

	for _, s := range envelope.Sleep {
		if !s.IsMainSleep {
			continue
		}
		start, err := parseLocalTime(s.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing sleep start: %v", ErrTransient, err)
		}
		end, err := parseLocalTime(s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing sleep end: %v", ErrTransient, err)
		}
		return &domain.SleepData{
			StartTime:    start,
			EndTime:      end,
			SleepMinutes: s.MinutesAsleep,
			WakeMinutes:  s.MinutesAwake,
		}, nil
	}
	return nil, nil
}

func (c *Client) get(ctx context.Context, creds domain.Credentials, path string, query url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			observability.RecordProviderError("auth")
			return nil, domain.ErrAuthExpired
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("provider returned status %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			observability.RecordProviderError("transient")
			return nil, fmt.Errorf("%w: provider returned status %d", ErrTransient, resp.StatusCode)
		case readErr != nil:
			lastErr = readErr
			continue
		}
		return body, nil
	}

	observability.RecordProviderError("transient")
	return nil, fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

func toRecord(wire wireActivity) (domain.ActivityRecord, error) {
	if wire.LogID == 0 {
		return domain.ActivityRecord{}, errors.New("missing logId")
	}
	startedAt, err := parseLocalTime(wire.StartTime)
	if err != nil {
		return domain.ActivityRecord{}, fmt.Errorf("parsing startTime: %w", err)
	}

	rec := domain.ActivityRecord{
		LogID:        wire.LogID,
		TypeID:       wire.ActivityTypeID,
		Name:         wire.ActivityName,
		Calories:     wire.Calories,
		DistanceKM:   wire.Distance,
		TotalMinutes: int(wire.DurationMillis / 60000),
		StartedAt:    startedAt,
	}
	for _, zone := range wire.ActiveZones.MinutesInHeartRateZones {
		mapped, ok := zoneFromWire(zone.Type)
		if !ok || zone.Minutes == 0 {
			continue
		}
		rec.ZoneMinutes = append(rec.ZoneMinutes, domain.ZoneMinutes{Zone: mapped, Minutes: zone.Minutes})
	}
	return rec, nil
}

func zoneFromWire(wireType string) (domain.Zone, bool) {
	switch strings.ToUpper(wireType) {
	case "FAT_BURN":
		return domain.ZoneFatBurn, true
	case "CARDIO":
		return domain.ZoneCardio, true
	case "PEAK":
		return domain.ZonePeak, true
	case "OUT_OF_ZONE_MINUTES", "OUT_OF_RANGE":
		return domain.ZoneOutOfRange, true
	}
	return "", false
}

func parseLocalTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000-07:00", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}
