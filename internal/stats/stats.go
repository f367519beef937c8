// Package stats derives streaks and period summaries from the tracked
// menu and workout entries.
package stats

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/alexjbarnes/fittrack/internal/models"
)

const dayKeyLayout = "2006-01-02"

// DecodeMenuDays extracts the menu payloads from raw cache entries,
// skipping any that fail to decode.
func DecodeMenuDays(entries map[string]models.Entry) map[string]models.MenuDay {
	days := make(map[string]models.MenuDay, len(entries))

	for key, entry := range entries {
		var day models.MenuDay
		if err := json.Unmarshal(entry.Payload, &day); err != nil {
			continue
		}

		days[key] = day
	}

	return days
}

// DecodeWorkoutDays extracts the workout payloads from raw cache
// entries, skipping any that fail to decode.
func DecodeWorkoutDays(entries map[string]models.Entry) map[string]models.WorkoutDay {
	days := make(map[string]models.WorkoutDay, len(entries))

	for key, entry := range entries {
		var day models.WorkoutDay
		if err := json.Unmarshal(entry.Payload, &day); err != nil {
			continue
		}

		days[key] = day
	}

	return days
}

// MeetsMenuGoals reports whether a day hit every category allowance
// without exceeding the free-calorie budget.
func MeetsMenuGoals(day models.MenuDay, allowances models.Allowances) bool {
	return len(day.Protein) >= allowances.Protein &&
		len(day.Carbs) >= allowances.Carbs &&
		len(day.Fat) >= allowances.Fat &&
		day.FreeCalories <= allowances.FreeCalories
}

// MenuStreak counts consecutive goal-meeting days ending at today.
func MenuStreak(days map[string]models.MenuDay, today time.Time, allowances models.Allowances) int {
	streak := 0
	current := today

	for {
		day, ok := days[current.Format(dayKeyLayout)]
		if !ok || !MeetsMenuGoals(day, allowances) {
			return streak
		}

		streak++
		current = current.AddDate(0, 0, -1)
	}
}

// StartOfWeek returns the Sunday starting the week containing t.
func StartOfWeek(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())

	return t.AddDate(0, 0, -int(t.Weekday()))
}

func weekCounts(days map[string]models.WorkoutDay, weekStart time.Time, end time.Time) (muscle, cardio int) {
	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i)
		if !end.IsZero() && date.After(end) {
			break
		}

		if day, ok := days[date.Format(dayKeyLayout)]; ok {
			if day.Muscle {
				muscle++
			}

			if day.Cardio {
				cardio++
			}
		}
	}

	return muscle, cardio
}

// WorkoutStreak counts consecutive weeks, ending with the week
// containing today, that met both weekly workout goals.
func WorkoutStreak(days map[string]models.WorkoutDay, today time.Time, schedule models.WorkoutSchedule) int {
	streak := 0
	weekStart := StartOfWeek(today)

	for {
		muscle, cardio := weekCounts(days, weekStart, time.Time{})
		if muscle < schedule.WeeklyMuscle || cardio < schedule.WeeklyCardio {
			return streak
		}

		streak++
		weekStart = weekStart.AddDate(0, 0, -7)
	}
}

// MenuStats is the summary for a date range.
type MenuStats struct {
	TotalDays       int
	DaysWithData    int
	CompletedDays   int
	AvgProtein      float64
	AvgCarbs        float64
	AvgFat          float64
	AvgFreeCalories float64
	CompletionRate  float64
}

// CalcMenuStats summarizes the menu entries between start and end
// inclusive.
func CalcMenuStats(days map[string]models.MenuDay, start, end time.Time, allowances models.Allowances) MenuStats {
	var stats MenuStats

	var totalProtein, totalCarbs, totalFat, totalFree int

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		stats.TotalDays++

		day, ok := days[date.Format(dayKeyLayout)]
		if !ok {
			continue
		}

		stats.DaysWithData++
		totalProtein += len(day.Protein)
		totalCarbs += len(day.Carbs)
		totalFat += len(day.Fat)
		totalFree += day.FreeCalories

		if MeetsMenuGoals(day, allowances) {
			stats.CompletedDays++
		}
	}

	if stats.DaysWithData > 0 {
		n := float64(stats.DaysWithData)
		stats.AvgProtein = float64(totalProtein) / n
		stats.AvgCarbs = float64(totalCarbs) / n
		stats.AvgFat = float64(totalFat) / n
		stats.AvgFreeCalories = float64(totalFree) / n
	}

	if stats.TotalDays > 0 {
		stats.CompletionRate = float64(stats.CompletedDays) / float64(stats.TotalDays) * 100
	}

	return stats
}

// WeekSummary is one week's workout counts within a range.
type WeekSummary struct {
	WeekStart time.Time
	Muscle    int
	Cardio    int
	Completed bool
}

// WorkoutStats is the summary for a date range.
type WorkoutStats struct {
	TotalWeeks     int
	CompletedWeeks int
	TotalMuscle    int
	TotalCardio    int
	TotalWorkouts  int
	CompletionRate float64
	Weeks          []WeekSummary
}

// CalcWorkoutStats summarizes whole weeks overlapping [start, end].
func CalcWorkoutStats(days map[string]models.WorkoutDay, start, end time.Time, schedule models.WorkoutSchedule) WorkoutStats {
	var stats WorkoutStats

	for weekStart := StartOfWeek(start); !weekStart.After(end); weekStart = weekStart.AddDate(0, 0, 7) {
		muscle, cardio := weekCounts(days, weekStart, end)

		week := WeekSummary{
			WeekStart: weekStart,
			Muscle:    muscle,
			Cardio:    cardio,
			Completed: muscle >= schedule.WeeklyMuscle && cardio >= schedule.WeeklyCardio,
		}

		stats.Weeks = append(stats.Weeks, week)
		stats.TotalMuscle += muscle
		stats.TotalCardio += cardio

		if week.Completed {
			stats.CompletedWeeks++
		}
	}

	stats.TotalWeeks = len(stats.Weeks)
	stats.TotalWorkouts = stats.TotalMuscle + stats.TotalCardio

	if stats.TotalWeeks > 0 {
		stats.CompletionRate = float64(stats.CompletedWeeks) / float64(stats.TotalWeeks) * 100
	}

	return stats
}

// FoodCount is one entry in the most-used-foods ranking.
type FoodCount struct {
	Name  string
	Count int
}

// mostUsedLimit caps the ranking length.
const mostUsedLimit = 5

// MostUsedFoods ranks the foods logged between start and end, top five,
// preferring the English name as the ranking key.
func MostUsedFoods(days map[string]models.MenuDay, start, end time.Time) []FoodCount {
	counts := make(map[string]int)

	tally := func(items []models.FoodItem) {
		for _, item := range items {
			name := item.NameEn
			if name == "" {
				name = item.Name
			}

			counts[name]++
		}
	}

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if day, ok := days[date.Format(dayKeyLayout)]; ok {
			tally(day.Protein)
			tally(day.Carbs)
			tally(day.Fat)
		}
	}

	ranked := make([]FoodCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, FoodCount{Name: name, Count: count})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}

		return ranked[i].Name < ranked[j].Name
	})

	if len(ranked) > mostUsedLimit {
		ranked = ranked[:mostUsedLimit]
	}

	return ranked
}
