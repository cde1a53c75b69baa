// Package notify renders human-readable notifications and delivers them to
// the configured chat webhook.
package notify

import (
	"fmt"
	"strings"

	"example.com/healthrelay/internal/domain"
	"example.com/healthrelay/internal/ranking"
	"example.com/healthrelay/internal/streak"
)

// RankingText renders the record suffix for a metric value, or "".
func RankingText(value, allTimeTop, recentTop float64, historyDays int) string {
	switch ranking.Classify(value, allTimeTop, recentTop) {
	case ranking.AllTimeRecord:
		return "New all-time record! 🏆"
	case ranking.RecentRecord:
		return fmt.Sprintf("New record over the last %d days! 🏅", historyDays)
	}
	return ""
}

// MinutesChangeIcon maps a minutes delta versus the previous day to an icon.
func MinutesChangeIcon(delta int) string {
	return changeIcon(float64(delta), 2, 30)
}

// CaloriesChangeIcon maps a calories delta versus the previous day to an icon.
func CaloriesChangeIcon(delta int) string {
	return changeIcon(float64(delta), 2, 50)
}

// DistanceChangeIcon maps a distance change percentage to an icon.
func DistanceChangeIcon(pct float64) string {
	return changeIcon(pct, 2, 25)
}

func changeIcon(delta, flat, steep float64) string {
	switch {
	case delta >= steep:
		return "⬆️"
	case delta >= flat:
		return "↗️"
	case delta > -flat:
		return "➡️"
	case delta > -steep:
		return "↘️"
	default:
		return "⬇️"
	}
}

// ZoneLabel renders a heart-rate zone for display.
func ZoneLabel(zone domain.Zone) string {
	switch zone {
	case domain.ZoneFatBurn:
		return "Fat burn"
	case domain.ZoneCardio:
		return "Cardio"
	case domain.ZonePeak:
		return "Peak"
	case domain.ZoneOutOfRange:
		return "Out of zone"
	}
	return string(zone)
}

// ActivityMessage renders the realtime notification for one novel activity.
// The top stats are computed after the record was folded in, so ties with
// the new value classify as records.
func ActivityMessage(alias, activityName string, rec domain.ActivityRecord, allTime, recent ranking.TopStats, historyDays int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s activity from @%s:\n", activityName, alias)

	fmt.Fprintf(&b, "    • Duration: %d minutes %s\n",
		rec.TotalMinutes,
		RankingText(float64(rec.TotalMinutes), float64(allTime.TotalMinutes), float64(recent.TotalMinutes), historyDays))
	fmt.Fprintf(&b, "    • Calories: %d %s\n",
		rec.Calories,
		RankingText(float64(rec.Calories), float64(allTime.Calories), float64(recent.Calories), historyDays))
	if rec.DistanceKM > 0 {
		fmt.Fprintf(&b, "    • Distance: %.3f km %s\n",
			rec.DistanceKM,
			RankingText(rec.DistanceKM, allTime.DistanceKM, recent.DistanceKM, historyDays))
	}
	for _, zm := range rec.ZoneMinutes {
		fmt.Fprintf(&b, "    • %s minutes: %d %s\n",
			ZoneLabel(zm.Zone),
			zm.Minutes,
			RankingText(float64(zm.Minutes), float64(allTime.ZoneMinutes[zm.Zone]), float64(recent.ZoneMinutes[zm.Zone]), historyDays))
	}
	return tidy(b.String())
}

// DailyMessage renders the once-per-day summary for one (user, type).
func DailyMessage(alias, activityName string, agg domain.DailyAggregate, prev *domain.DailyAggregate, allTime, recent ranking.TopStats, streakDays, historyDays int, goal *streak.Goal) string {
	var caloriesIcon, distanceIcon, minutesIcon string
	zoneIcons := make(map[domain.Zone]string)
	if prev != nil {
		caloriesIcon = CaloriesChangeIcon(agg.Calories - prev.Calories)
		minutesIcon = MinutesChangeIcon(agg.TotalMinutes - prev.TotalMinutes)
		if agg.DistanceKM > 0 && prev.DistanceKM > 0 {
			distanceIcon = DistanceChangeIcon((agg.DistanceKM - prev.DistanceKM) * 100 / agg.DistanceKM)
		}
		for _, zone := range domain.Zones {
			if agg.ZoneMinutes[zone] > 0 && prev.ZoneMinutes[zone] > 0 {
				zoneIcons[zone] = MinutesChangeIcon(agg.ZoneMinutes[zone] - prev.ZoneMinutes[zone])
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New daily %s activity from @%s:\n", activityName, alias)
	fmt.Fprintf(&b, "    • Activity count: %d\n", agg.Count)
	fmt.Fprintf(&b, "    • Total duration: %d minutes %s %s\n",
		agg.TotalMinutes, minutesIcon,
		RankingText(float64(agg.TotalMinutes), float64(allTime.TotalMinutes), float64(recent.TotalMinutes), historyDays))
	fmt.Fprintf(&b, "    • Total calories: %d %s %s\n",
		agg.Calories, caloriesIcon,
		RankingText(float64(agg.Calories), float64(allTime.Calories), float64(recent.Calories), historyDays))
	if agg.DistanceKM > 0 {
		fmt.Fprintf(&b, "    • Distance: %.3f km %s %s\n",
			agg.DistanceKM, distanceIcon,
			RankingText(agg.DistanceKM, allTime.DistanceKM, recent.DistanceKM, historyDays))
		if goal != nil && goal.Metric.Value(agg) >= goal.Min {
			fmt.Fprintf(&b, "    Goal reached! 👍\n")
		}
		if streakDays > 0 {
			fmt.Fprintf(&b, "    %d day streak! 👏\n", streakDays)
		}
	}
	for _, zone := range domain.Zones {
		if agg.ZoneMinutes[zone] == 0 {
			continue
		}
		fmt.Fprintf(&b, "    • Total %s minutes: %d %s %s\n",
			strings.ToLower(ZoneLabel(zone)), agg.ZoneMinutes[zone], zoneIcons[zone],
			RankingText(float64(agg.ZoneMinutes[zone]), float64(allTime.ZoneMinutes[zone]), float64(recent.ZoneMinutes[zone]), historyDays))
	}
	return tidy(b.String())
}

// SleepMessage renders the sleep notification with change icons versus the
// previous sleep when one is known.
func SleepMessage(alias string, sleep domain.SleepData, prev *domain.SleepData) string {
	var sleepIcon, wakeIcon string
	if prev != nil {
		sleepIcon = MinutesChangeIcon(sleep.SleepMinutes - prev.SleepMinutes)
		wakeIcon = MinutesChangeIcon(sleep.WakeMinutes - prev.WakeMinutes)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New sleep from @%s:\n", alias)
	fmt.Fprintf(&b, "    • Went to bed at %s\n", sleep.StartTime.Format("15:04"))
	fmt.Fprintf(&b, "    • Woke up at %s\n", sleep.EndTime.Format("15:04"))
	fmt.Fprintf(&b, "    • Time asleep: %d minutes %s\n", sleep.SleepMinutes, sleepIcon)
	fmt.Fprintf(&b, "    • Time awake: %d minutes %s\n", sleep.WakeMinutes, wakeIcon)
	return tidy(b.String())
}

// LoggedOutMessage renders the one-shot notification sent when a user's
// provider credentials expire.
func LoggedOutMessage(alias, provider, loginURL string) string {
	return fmt.Sprintf("Oh no @%s, looks like you were logged out of %s! 😳 You can log in again here: %s", alias, provider, loginURL)
}

// tidy trims trailing whitespace per line and around the message.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
