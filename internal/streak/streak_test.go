package streak

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/healthrelay/internal/domain"
)

var day0 = domain.Day{Year: 2025, Month: 6, Date: 20}

// distances maps day offsets (0 = asOf, 1 = the day before, ...) to summed
// distance. Offsets not listed have no aggregate at all.
func historyOf(distances map[int]float64) []domain.DailyAggregate {
	history := make([]domain.DailyAggregate, 0, len(distances))
	for offset := 0; offset <= 60; offset++ {
		km, ok := distances[offset]
		if !ok {
			continue
		}
		history = append(history, domain.DailyAggregate{
			UserID:     "user-1",
			TypeID:     90019,
			Date:       day0.AddDays(-offset),
			Count:      1,
			DistanceKM: km,
		})
	}
	return history
}

func distanceGoal(min float64) *Goal {
	return &Goal{Metric: domain.MetricDistanceKM, Min: min}
}

func TestStreakSevenDayScenario(t *testing.T) {
	// Distances over 7 consecutive days ending at asOf:
	// [25, 22, none, 21, 15, none, 23], goal 20km.
	history := historyOf(map[int]float64{
		0: 25,
		1: 22,
		3: 21,
		4: 15,
		6: 23,
	})

	require.Equal(t, 2, Days(history, day0, distanceGoal(20), Strict))
	require.Equal(t, 3, Days(history, day0, distanceGoal(20), Lax))
}

func TestStreakZeroWhenAsOfHasNoAggregate(t *testing.T) {
	history := historyOf(map[int]float64{1: 25, 2: 25})

	require.Equal(t, 0, Days(history, day0, distanceGoal(20), Strict))
	require.Equal(t, 0, Days(history, day0, distanceGoal(20), Lax))
}

func TestStreakZeroWhenAsOfFailsGoal(t *testing.T) {
	history := historyOf(map[int]float64{0: 15, 1: 25, 2: 25})

	require.Equal(t, 0, Days(history, day0, distanceGoal(20), Strict))
	require.Equal(t, 0, Days(history, day0, distanceGoal(20), Lax))
}

func TestStreakGoalTieCounts(t *testing.T) {
	history := historyOf(map[int]float64{0: 20, 1: 20})

	require.Equal(t, 2, Days(history, day0, distanceGoal(20), Strict))
}

func TestStreakWithoutGoalCountsLoggedDays(t *testing.T) {
	history := historyOf(map[int]float64{0: 1, 1: 1, 2: 1, 4: 1})

	require.Equal(t, 3, Days(history, day0, nil, Strict))
	require.Equal(t, 4, Days(history, day0, nil, Lax))
}

func TestStreakLaxSkipsUnboundedGaps(t *testing.T) {
	history := historyOf(map[int]float64{0: 25, 30: 25, 60: 25})

	require.Equal(t, 1, Days(history, day0, distanceGoal(20), Strict))
	require.Equal(t, 3, Days(history, day0, distanceGoal(20), Lax))
}

func TestStreakIgnoresEntriesAfterAsOf(t *testing.T) {
	history := historyOf(map[int]float64{0: 25, 1: 25})
	future := domain.DailyAggregate{
		UserID:     "user-1",
		TypeID:     90019,
		Date:       day0.AddDays(1),
		Count:      1,
		DistanceKM: 40,
	}
	history = append([]domain.DailyAggregate{future}, history...)

	require.Equal(t, 2, Days(history, day0, distanceGoal(20), Strict))
}

func TestStrictNeverExceedsLax(t *testing.T) {
	scenarios := []map[int]float64{
		{0: 25, 1: 22, 3: 21, 4: 15, 6: 23},
		{0: 20, 1: 20, 2: 20, 3: 20},
		{0: 25, 2: 25, 4: 25, 6: 25},
		{0: 19},
		{},
		{5: 30},
	}
	for _, distances := range scenarios {
		history := historyOf(distances)
		strict := Days(history, day0, distanceGoal(20), Strict)
		lax := Days(history, day0, distanceGoal(20), Lax)
		require.LessOrEqual(t, strict, lax, "distances: %v", distances)
	}
}
