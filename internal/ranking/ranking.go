// Package ranking computes all-time and recent-window maxima per metric and
// classifies new values against them.
package ranking

import "example.com/healthrelay/internal/domain"

// TopStats holds the maximum observed value per metric.
type TopStats struct {
	Calories     int
	DistanceKM   float64
	TotalMinutes int
	ZoneMinutes  map[domain.Zone]int
}

// Top returns the stats' value for the given metric.
func (s TopStats) Top(metric domain.Metric) float64 {
	switch metric {
	case domain.MetricCalories:
		return float64(s.Calories)
	case domain.MetricDistanceKM:
		return s.DistanceKM
	case domain.MetricDuration:
		return float64(s.TotalMinutes)
	}
	for _, zone := range domain.Zones {
		if metric == domain.ZoneMetric(zone) {
			return float64(s.ZoneMinutes[zone])
		}
	}
	return 0
}

// Tops computes per-metric maxima over the daily-aggregate series. A non-nil
// since restricts the computation to aggregates dated since or later.
func Tops(history []domain.DailyAggregate, since *domain.Day) TopStats {
	stats := TopStats{ZoneMinutes: make(map[domain.Zone]int)}
	for _, agg := range history {
		if since != nil && agg.Date.Before(*since) {
			continue
		}
		if agg.Calories > stats.Calories {
			stats.Calories = agg.Calories
		}
		if agg.DistanceKM > stats.DistanceKM {
			stats.DistanceKM = agg.DistanceKM
		}
		if agg.TotalMinutes > stats.TotalMinutes {
			stats.TotalMinutes = agg.TotalMinutes
		}
		for zone, minutes := range agg.ZoneMinutes {
			if minutes > stats.ZoneMinutes[zone] {
				stats.ZoneMinutes[zone] = minutes
			}
		}
	}
	return stats
}

// Class is the record classification of a new observed value.
type Class int

const (
	// NoRecord means the value beats neither maximum.
	NoRecord Class = iota
	// RecentRecord means the value ties or beats the recent-window maximum
	// but not the all-time one.
	RecentRecord
	// AllTimeRecord means the value ties or beats the all-time maximum.
	AllTimeRecord
)

// Classify compares a new value against the all-time and recent maxima.
// Ties count as records. Each metric is classified independently; the maxima
// are expected to already include the new value (they are computed after the
// record is folded in).
func Classify(value, allTimeTop, recentTop float64) Class {
	if value <= 0 {
		return NoRecord
	}
	if value >= allTimeTop {
		return AllTimeRecord
	}
	if value >= recentTop {
		return RecentRecord
	}
	return NoRecord
}
