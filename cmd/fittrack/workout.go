package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/catalog"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/reconcile"
	"github.com/alexjbarnes/fittrack/internal/state"
	"github.com/alexjbarnes/fittrack/internal/stats"
)

var (
	workoutDate    string
	workoutMuscle  bool
	workoutCardio  bool
	workoutNotes   string
	workoutUncheck bool
)

var workoutCmd = &cobra.Command{
	Use:   "workout",
	Short: "Track workouts against your weekly schedule",
}

var workoutLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Log a workout for the day",
	Long: `Log marks the day's workout. Use --muscle and/or --cardio to set
what was done; omitting both clears the day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, s, err := requireSession()
		if err != nil {
			return err
		}

		key, err := resolveDayKey(workoutDate)
		if err != nil {
			return err
		}

		day, err := loadDay[models.WorkoutDay](user.ID, models.DomainWorkouts, key)
		if err != nil {
			return err
		}

		day.Muscle = workoutMuscle
		day.Cardio = workoutCardio
		if cmd.Flags().Changed("notes") {
			day.Notes = workoutNotes
		}

		payload, err := json.Marshal(day)
		if err != nil {
			return fmt.Errorf("encoding workout day: %w", err)
		}

		if err := s.Apply(cmd.Context(), models.DomainWorkouts, key, payload); err != nil {
			return fmt.Errorf("saving workout day: %w", err)
		}

		fmt.Printf("Logged %s: muscle=%v cardio=%v\n", key, day.Muscle, day.Cardio)

		return nil
	},
}

var workoutDoneCmd = &cobra.Command{
	Use:   "done <exercise>",
	Short: "Check off an exercise for the day",
	Long: `Done marks one exercise of the day's workout as completed, found by
its Hebrew or English catalog name. Use --uncheck to undo a mark.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, s, err := requireSession()
		if err != nil {
			return err
		}

		key, err := resolveDayKey(workoutDate)
		if err != nil {
			return err
		}

		name := strings.Join(args, " ")

		part, exercise, ok := catalog.FindExercise(name)
		if !ok {
			return fmt.Errorf("unknown exercise %q", name)
		}

		day, err := loadDay[models.WorkoutDay](user.ID, models.DomainWorkouts, key)
		if err != nil {
			return err
		}

		day = markExercise(day, catalog.ExerciseKey(part.Key, exercise.ID), !workoutUncheck)

		payload, err := json.Marshal(day)
		if err != nil {
			return fmt.Errorf("encoding workout day: %w", err)
		}

		if err := s.Apply(cmd.Context(), models.DomainWorkouts, key, payload); err != nil {
			return fmt.Errorf("saving workout day: %w", err)
		}

		if workoutUncheck {
			fmt.Printf("Unchecked %s for %s\n", exercise.NameEn, key)
		} else {
			fmt.Printf("Checked off %s for %s\n", exercise.NameEn, key)
		}

		return nil
	},
}

var workoutWeightCmd = &cobra.Command{
	Use:   "weight <exercise> <kg>",
	Short: "Record the working weight for an exercise",
	Long: `Weight records what you currently lift for an exercise. The log is
kept on this device only and is never uploaded.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _, err := requireSession()
		if err != nil {
			return err
		}

		value, err := strconv.ParseFloat(args[len(args)-1], 64)
		if err != nil || value <= 0 {
			return fmt.Errorf("invalid weight %q, expected kilograms", args[len(args)-1])
		}

		name := strings.Join(args[:len(args)-1], " ")

		part, exercise, ok := catalog.FindExercise(name)
		if !ok {
			return fmt.Errorf("unknown exercise %q", name)
		}

		if err := saveWeight(user.ID, catalog.ExerciseKey(part.Key, exercise.ID), value); err != nil {
			return err
		}

		fmt.Printf("%s: %g kg\n", exercise.NameEn, value)

		return nil
	},
}

var workoutShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the day's workout and which split workout is due",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _, err := requireSession()
		if err != nil {
			return err
		}

		key, err := resolveDayKey(workoutDate)
		if err != nil {
			return err
		}

		date, err := time.Parse(dayKeyLayout, key)
		if err != nil {
			return err
		}

		entries, err := loadWorkoutDays(user.ID)
		if err != nil {
			return err
		}

		schedule := fetchSchedule(cmd.Context())
		number := catalog.WorkoutNumber(date, stats.StartOfWeek(date), entries, len(schedule.WorkoutRoutine))
		routine := schedule.WorkoutRoutine[strconv.Itoa(number)]
		day := entries[key]

		weights, err := loadWeights(user.ID)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(struct {
				Date          string                `json:"date"`
				Day           models.WorkoutDay     `json:"day"`
				WorkoutNumber int                   `json:"workoutNumber"`
				Routine       models.RoutineWorkout `json:"routine"`
				Weights       map[string]float64    `json:"weights,omitempty"`
			}{key, day, number, routine, weights})
		}

		fmt.Printf("Workout for %s\n", key)
		fmt.Printf("  muscle: %v  cardio: %v\n", day.Muscle, day.Cardio)
		if day.Notes != "" {
			fmt.Printf("  notes: %s\n", day.Notes)
		}

		name := routine.Name
		if name == "" {
			name = fmt.Sprintf("Workout %d", number)
		}

		fmt.Printf("Scheduled: %s\n", name)
		for _, partKey := range routine.BodyParts {
			part, ok := catalog.BodyPartByKey(partKey)
			if !ok {
				continue
			}

			fmt.Printf("  %s\n", part.NameEn)
			for _, exercise := range part.Exercises {
				exerciseKey := catalog.ExerciseKey(part.Key, exercise.ID)

				marker := " "
				if day.CompletedExercises[exerciseKey] {
					marker = "x"
				}

				line := fmt.Sprintf("    [%s] %s, %d x %s", marker, exercise.NameEn, exercise.Sets, exercise.Reps)
				if weight, ok := weights[exerciseKey]; ok {
					line += fmt.Sprintf(" @ %g kg", weight)
				}

				fmt.Println(line)
			}
		}

		return nil
	},
}

func init() {
	workoutCmd.PersistentFlags().StringVar(&workoutDate, "date", "", "day to operate on, YYYY-MM-DD (default: today)")
	workoutLogCmd.Flags().BoolVar(&workoutMuscle, "muscle", false, "mark a muscle workout")
	workoutLogCmd.Flags().BoolVar(&workoutCardio, "cardio", false, "mark a cardio session")
	workoutLogCmd.Flags().StringVar(&workoutNotes, "notes", "", "free-form notes for the day")
	workoutDoneCmd.Flags().BoolVar(&workoutUncheck, "uncheck", false, "undo the completion mark instead")

	workoutCmd.AddCommand(workoutLogCmd)
	workoutCmd.AddCommand(workoutDoneCmd)
	workoutCmd.AddCommand(workoutWeightCmd)
	workoutCmd.AddCommand(workoutShowCmd)
}

// markExercise flips one exercise's completion on a day. Checking off
// an exercise implies a muscle session; unchecking leaves the session
// mark in place, the day still happened.
func markExercise(day models.WorkoutDay, exerciseKey string, done bool) models.WorkoutDay {
	if done {
		if day.CompletedExercises == nil {
			day.CompletedExercises = map[string]bool{}
		}

		day.CompletedExercises[exerciseKey] = true
		day.Muscle = true

		return day
	}

	delete(day.CompletedExercises, exerciseKey)
	if len(day.CompletedExercises) == 0 {
		day.CompletedExercises = nil
	}

	return day
}

// weightRecord is the weight-log payload, keyed by exercise.
type weightRecord struct {
	Weight float64 `json:"weight"`
}

// saveWeight writes a weight-log entry straight to the local cache.
// The weights domain never syncs, so no syncer is involved.
func saveWeight(userID, exerciseKey string, weight float64) error {
	ns := state.Namespace{UserID: userID, Domain: models.DomainWeights}

	entries, err := appState.Entries(ns)
	if err != nil {
		return fmt.Errorf("reading weights cache: %w", err)
	}

	payload, err := json.Marshal(weightRecord{Weight: weight})
	if err != nil {
		return fmt.Errorf("encoding weight: %w", err)
	}

	if err := appState.SaveEntries(ns, reconcile.ApplyLocalMutation(entries, exerciseKey, payload)); err != nil {
		return fmt.Errorf("saving weight: %w", err)
	}

	return nil
}

// loadWeights decodes the local weight log, skipping undecodable
// entries.
func loadWeights(userID string) (map[string]float64, error) {
	entries, err := cachedEntries(userID, models.DomainWeights)
	if err != nil {
		return nil, err
	}

	weights := make(map[string]float64, len(entries))

	for key, entry := range entries {
		var rec weightRecord
		if err := json.Unmarshal(entry.Payload, &rec); err != nil {
			continue
		}

		weights[key] = rec.Weight
	}

	return weights, nil
}

// loadWorkoutDays decodes every cached workout entry for the user.
func loadWorkoutDays(userID string) (map[string]models.WorkoutDay, error) {
	entries, err := cachedEntries(userID, models.DomainWorkouts)
	if err != nil {
		return nil, err
	}

	return stats.DecodeWorkoutDays(entries), nil
}
