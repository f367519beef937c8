package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/stats"
)

var statsDays int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show streaks and period summaries",
	Long:  "Stats summarizes the last N days of cached entries: goal streaks, menu averages against your allowances, and weekly workout completion against your schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _, err := requireSession()
		if err != nil {
			return err
		}

		menuEntries, err := cachedEntries(user.ID, models.DomainMenu)
		if err != nil {
			return err
		}

		workoutEntries, err := cachedEntries(user.ID, models.DomainWorkouts)
		if err != nil {
			return err
		}

		menuDays := stats.DecodeMenuDays(menuEntries)
		workoutDays := stats.DecodeWorkoutDays(workoutEntries)

		allowances := fetchAllowances(cmd.Context())
		schedule := fetchSchedule(cmd.Context())

		today := time.Now()
		start := today.AddDate(0, 0, -(statsDays - 1))

		out := struct {
			MenuStreak    int                `json:"menuStreak"`
			WorkoutStreak int                `json:"workoutStreak"`
			Menu          stats.MenuStats    `json:"menu"`
			Workouts      stats.WorkoutStats `json:"workouts"`
			TopFoods      []stats.FoodCount  `json:"topFoods"`
		}{
			MenuStreak:    stats.MenuStreak(menuDays, today, allowances),
			WorkoutStreak: stats.WorkoutStreak(workoutDays, today, schedule),
			Menu:          stats.CalcMenuStats(menuDays, start, today, allowances),
			Workouts:      stats.CalcWorkoutStats(workoutDays, start, today, schedule),
			TopFoods:      stats.MostUsedFoods(menuDays, start, today),
		}

		if flagJSON {
			return printJSON(out)
		}

		fmt.Printf("Last %d days\n\n", statsDays)
		fmt.Printf("Menu streak:    %d days\n", out.MenuStreak)
		fmt.Printf("Workout streak: %d weeks\n\n", out.WorkoutStreak)

		fmt.Printf("Menu: %d/%d days logged, %d complete (%.0f%%)\n",
			out.Menu.DaysWithData, out.Menu.TotalDays, out.Menu.CompletedDays, out.Menu.CompletionRate)
		fmt.Printf("  avg protein %.1f/%d, carbs %.1f/%d, fat %.1f/%d, free calories %.0f/%d\n",
			out.Menu.AvgProtein, allowances.Protein,
			out.Menu.AvgCarbs, allowances.Carbs,
			out.Menu.AvgFat, allowances.Fat,
			out.Menu.AvgFreeCalories, allowances.FreeCalories)

		fmt.Printf("\nWorkouts: %d/%d weeks complete (%.0f%%), %d sessions total\n",
			out.Workouts.CompletedWeeks, out.Workouts.TotalWeeks,
			out.Workouts.CompletionRate, out.Workouts.TotalWorkouts)
		for _, week := range out.Workouts.Weeks {
			mark := " "
			if week.Completed {
				mark = "*"
			}

			fmt.Printf("  %s week of %s: muscle %d/%d, cardio %d/%d\n",
				mark, week.WeekStart.Format(dayKeyLayout),
				week.Muscle, schedule.WeeklyMuscle,
				week.Cardio, schedule.WeeklyCardio)
		}

		if len(out.TopFoods) > 0 {
			fmt.Println("\nMost logged foods:")
			for _, food := range out.TopFoods {
				fmt.Printf("  %2dx %s\n", food.Count, food.Name)
			}
		}

		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 30, "number of days to summarize")
}
