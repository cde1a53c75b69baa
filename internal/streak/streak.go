// Package streak counts qualifying consecutive days over a daily-aggregate
// time series. The functions are pure: callers fetch the series from storage
// and pass goals explicitly.
package streak

import "example.com/healthrelay/internal/domain"

// Mode controls how missing calendar days affect a streak.
type Mode int

const (
	// Strict breaks the streak on any calendar day without a qualifying
	// aggregate.
	Strict Mode = iota
	// Lax only breaks the streak on a logged day that fails the goal;
	// calendar gaps between logged days are skipped.
	Lax
)

// Goal is an optional minimum threshold on one metric. A day meets the goal
// when its value is >= Min; without a goal, any aggregate qualifies.
type Goal struct {
	Metric domain.Metric
	Min    float64
}

// Days returns the length of the streak ending at asOf.
//
// history must be ordered by date descending. Entries dated after asOf are
// ignored. If asOf has no aggregate, or the goal is set and asOf's value is
// below it, the streak is 0.
func Days(history []domain.DailyAggregate, asOf domain.Day, goal *Goal, mode Mode) int {
	series := trimAfter(history, asOf)
	if len(series) == 0 || !sameDay(series[0].Date, asOf) || !meets(series[0], goal) {
		return 0
	}

	if mode == Strict {
		return strictDays(series, asOf, goal)
	}
	return laxDays(series, goal)
}

func strictDays(series []domain.DailyAggregate, asOf domain.Day, goal *Goal) int {
	count := 0
	expected := asOf
	for _, agg := range series {
		if !sameDay(agg.Date, expected) || !meets(agg, goal) {
			break
		}
		count++
		expected = expected.AddDays(-1)
	}
	return count
}

func laxDays(series []domain.DailyAggregate, goal *Goal) int {
	count := 0
	for _, agg := range series {
		if !meets(agg, goal) {
			break
		}
		count++
	}
	return count
}

func trimAfter(history []domain.DailyAggregate, asOf domain.Day) []domain.DailyAggregate {
	for i, agg := range history {
		if !asOf.Before(agg.Date) {
			return history[i:]
		}
	}
	return nil
}

func meets(agg domain.DailyAggregate, goal *Goal) bool {
	if goal == nil {
		return true
	}
	return goal.Metric.Value(agg) >= goal.Min
}

func sameDay(a, b domain.Day) bool {
	return a == b
}
