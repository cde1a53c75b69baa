// Package domain defines the core healthrelay types shared across packages.
package domain

import "time"

// Zone is a heart-rate zone reported by the activity provider.
type Zone string

const (
	ZoneFatBurn    Zone = "fat_burn"
	ZoneCardio     Zone = "cardio"
	ZonePeak       Zone = "peak"
	ZoneOutOfRange Zone = "out_of_zone"
)

// Zones lists all heart-rate zones in display order.
var Zones = []Zone{ZoneFatBurn, ZoneCardio, ZonePeak, ZoneOutOfRange}

// ZoneMinutes is the time spent in one heart-rate zone during an activity.
type ZoneMinutes struct {
	Zone    Zone
	Minutes int
}

// ActivityRecord is one logged workout as reported by the provider.
// Records are create-once and immutable; LogID is the sole novelty check.
type ActivityRecord struct {
	LogID        int64
	TypeID       int
	Name         string
	Calories     int
	DistanceKM   float64 // zero when the provider reports no distance
	TotalMinutes int
	ZoneMinutes  []ZoneMinutes
	StartedAt    time.Time
}

// Day returns the calendar date the activity belongs to.
func (r ActivityRecord) Day() Day {
	return DayOf(r.StartedAt)
}

// ZoneValue returns the minutes recorded for the given zone, or zero.
func (r ActivityRecord) ZoneValue(zone Zone) int {
	for _, zm := range r.ZoneMinutes {
		if zm.Zone == zone {
			return zm.Minutes
		}
	}
	return 0
}

// DailyAggregate accumulates all same-type activities a user logged on one
// calendar date. Exactly one row exists per (user, type, date); sums only
// ever grow as new same-day records fold in.
type DailyAggregate struct {
	UserID       string
	TypeID       int
	Date         Day
	Count        int
	Calories     int
	DistanceKM   float64
	TotalMinutes int
	ZoneMinutes  map[Zone]int
}

// Metric names one measurable dimension of an activity or daily aggregate.
type Metric string

const (
	MetricCalories   Metric = "calories"
	MetricDistanceKM Metric = "distance_km"
	MetricDuration   Metric = "total_minutes"
)

// ZoneMetric returns the metric for minutes in the given heart-rate zone.
func ZoneMetric(zone Zone) Metric {
	return Metric(string(zone) + "_minutes")
}

// Value extracts the metric from a daily aggregate.
func (m Metric) Value(agg DailyAggregate) float64 {
	switch m {
	case MetricCalories:
		return float64(agg.Calories)
	case MetricDistanceKM:
		return agg.DistanceKM
	case MetricDuration:
		return float64(agg.TotalMinutes)
	}
	for _, zone := range Zones {
		if m == ZoneMetric(zone) {
			return float64(agg.ZoneMinutes[zone])
		}
	}
	return 0
}

// RecordValue extracts the metric from a single activity record.
func (m Metric) RecordValue(rec ActivityRecord) float64 {
	switch m {
	case MetricCalories:
		return float64(rec.Calories)
	case MetricDistanceKM:
		return rec.DistanceKM
	case MetricDuration:
		return float64(rec.TotalMinutes)
	}
	for _, zone := range Zones {
		if m == ZoneMetric(zone) {
			return float64(rec.ZoneValue(zone))
		}
	}
	return 0
}

// ActivityTypeNames maps the provider's numeric activity types to display
// names. Unknown types fall back to the name the provider sent.
var ActivityTypeNames = map[int]string{
	55001: "Spinning",
	90001: "Bike",
	90013: "Walking",
	90019: "Treadmill",
}

// SleepData is the most recent sleep reported for a user.
type SleepData struct {
	StartTime    time.Time
	EndTime      time.Time
	SleepMinutes int
	WakeMinutes  int
}
