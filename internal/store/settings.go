package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/alexjbarnes/fittrack/internal/errors"
	"github.com/alexjbarnes/fittrack/internal/models"
)

// Allowances returns a user's daily menu limits, falling back to the
// defaults when an admin has not configured them.
func (s *Store) Allowances(ctx context.Context, userID string) (models.Allowances, error) {
	var a models.Allowances

	err := s.db.QueryRowContext(ctx,
		"SELECT protein, carbs, fat, free_calories FROM allowances WHERE user_id = ?",
		userID).Scan(&a.Protein, &a.Carbs, &a.Fat, &a.FreeCalories)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultAllowances, nil
	}

	if err != nil {
		return models.Allowances{}, fmt.Errorf("querying allowances: %w", err)
	}

	return a, nil
}

// SetAllowances stores a user's daily menu limits.
func (s *Store) SetAllowances(ctx context.Context, userID string, a models.Allowances) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO allowances (user_id, protein, carbs, fat, free_calories) VALUES (?, ?, ?, ?, ?)"+
			" ON CONFLICT (user_id) DO UPDATE SET protein = excluded.protein, carbs = excluded.carbs,"+
			" fat = excluded.fat, free_calories = excluded.free_calories",
		userID, a.Protein, a.Carbs, a.Fat, a.FreeCalories)
	if err != nil {
		return fmt.Errorf("storing allowances: %w", err)
	}

	return nil
}

// WorkoutSchedule returns a user's weekly plan, with defaults when no
// row exists.
func (s *Store) WorkoutSchedule(ctx context.Context, userID string) (models.WorkoutSchedule, error) {
	var (
		schedule        models.WorkoutSchedule
		routineJSON     string
		customExercises string
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT weekly_muscle, weekly_cardio, workout_routine, custom_exercises FROM workout_schedules WHERE user_id = ?",
		userID).Scan(&schedule.WeeklyMuscle, &schedule.WeeklyCardio, &routineJSON, &customExercises)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WorkoutSchedule{
			WeeklyMuscle:    models.DefaultWeeklyMuscle,
			WeeklyCardio:    models.DefaultWeeklyCardio,
			WorkoutRoutine:  map[string]models.RoutineWorkout{},
			CustomExercises: map[string]json.RawMessage{},
		}, nil
	}

	if err != nil {
		return models.WorkoutSchedule{}, fmt.Errorf("querying workout schedule: %w", err)
	}

	if err := json.Unmarshal([]byte(routineJSON), &schedule.WorkoutRoutine); err != nil {
		return models.WorkoutSchedule{}, fmt.Errorf("decoding workout routine: %w", err)
	}

	if err := json.Unmarshal([]byte(customExercises), &schedule.CustomExercises); err != nil {
		return models.WorkoutSchedule{}, fmt.Errorf("decoding custom exercises: %w", err)
	}

	return schedule, nil
}

// SetWorkoutSchedule stores a user's weekly plan. A zero weekly muscle
// count is backfilled from the default so a partial admin update cannot
// zero out the plan.
func (s *Store) SetWorkoutSchedule(ctx context.Context, userID string, schedule models.WorkoutSchedule) error {
	if schedule.WeeklyMuscle <= 0 {
		schedule.WeeklyMuscle = models.DefaultWeeklyMuscle
	}

	if schedule.WeeklyCardio < 0 {
		schedule.WeeklyCardio = models.DefaultWeeklyCardio
	}

	if schedule.WorkoutRoutine == nil {
		schedule.WorkoutRoutine = map[string]models.RoutineWorkout{}
	}

	if schedule.CustomExercises == nil {
		schedule.CustomExercises = map[string]json.RawMessage{}
	}

	routineJSON, err := json.Marshal(schedule.WorkoutRoutine)
	if err != nil {
		return fmt.Errorf("encoding workout routine: %w", err)
	}

	customJSON, err := json.Marshal(schedule.CustomExercises)
	if err != nil {
		return fmt.Errorf("encoding custom exercises: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO workout_schedules (user_id, weekly_muscle, weekly_cardio, workout_routine, custom_exercises) VALUES (?, ?, ?, ?, ?)"+
			" ON CONFLICT (user_id) DO UPDATE SET weekly_muscle = excluded.weekly_muscle,"+
			" weekly_cardio = excluded.weekly_cardio, workout_routine = excluded.workout_routine,"+
			" custom_exercises = excluded.custom_exercises",
		userID, schedule.WeeklyMuscle, schedule.WeeklyCardio, string(routineJSON), string(customJSON))
	if err != nil {
		return fmt.Errorf("storing workout schedule: %w", err)
	}

	return nil
}

func scanTemplate(scan func(dest ...any) error) (models.MenuTemplate, error) {
	var (
		tpl               models.MenuTemplate
		protein, carbs, f string
	)

	if err := scan(&tpl.ID, &tpl.Name, &protein, &carbs, &f, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return models.MenuTemplate{}, err
	}

	if err := json.Unmarshal([]byte(protein), &tpl.Protein); err != nil {
		return models.MenuTemplate{}, fmt.Errorf("decoding template protein: %w", err)
	}

	if err := json.Unmarshal([]byte(carbs), &tpl.Carbs); err != nil {
		return models.MenuTemplate{}, fmt.Errorf("decoding template carbs: %w", err)
	}

	if err := json.Unmarshal([]byte(f), &tpl.Fat); err != nil {
		return models.MenuTemplate{}, fmt.Errorf("decoding template fat: %w", err)
	}

	return tpl, nil
}

const templateColumns = "id, name, protein, carbs, fat, created_at, updated_at"

// MenuTemplates lists all templates.
func (s *Store) MenuTemplates(ctx context.Context) ([]models.MenuTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM menu_templates ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	templates := []models.MenuTemplate{}

	for rows.Next() {
		tpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}

		templates = append(templates, tpl)
	}

	return templates, rows.Err()
}

// MenuTemplateByID returns one template.
func (s *Store) MenuTemplateByID(ctx context.Context, id int64) (models.MenuTemplate, error) {
	tpl, err := scanTemplate(s.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM menu_templates WHERE id = ?", id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MenuTemplate{}, apperrors.ErrTemplateNotFound
	}

	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("querying template: %w", err)
	}

	return tpl, nil
}

// MenuTemplateForUser returns the template assigned to a user, or an
// unnamed empty template when none is assigned.
func (s *Store) MenuTemplateForUser(ctx context.Context, userID string) (models.MenuTemplate, error) {
	user, err := s.UserByID(ctx, userID)
	if err != nil {
		return models.MenuTemplate{}, err
	}

	if user.MenuTemplateID == nil {
		return models.MenuTemplate{
			Protein: []models.FoodItem{},
			Carbs:   []models.FoodItem{},
			Fat:     []models.FoodItem{},
		}, nil
	}

	return s.MenuTemplateByID(ctx, *user.MenuTemplateID)
}

func encodeTemplate(tpl models.MenuTemplate) (protein, carbs, fat string, err error) {
	if tpl.Protein == nil {
		tpl.Protein = []models.FoodItem{}
	}

	if tpl.Carbs == nil {
		tpl.Carbs = []models.FoodItem{}
	}

	if tpl.Fat == nil {
		tpl.Fat = []models.FoodItem{}
	}

	p, err := json.Marshal(tpl.Protein)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding protein: %w", err)
	}

	c, err := json.Marshal(tpl.Carbs)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding carbs: %w", err)
	}

	f, err := json.Marshal(tpl.Fat)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding fat: %w", err)
	}

	return string(p), string(c), string(f), nil
}

// CreateMenuTemplate inserts a template and returns it with its ID.
func (s *Store) CreateMenuTemplate(ctx context.Context, tpl models.MenuTemplate) (models.MenuTemplate, error) {
	protein, carbs, fat, err := encodeTemplate(tpl)
	if err != nil {
		return models.MenuTemplate{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO menu_templates (name, protein, carbs, fat, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		tpl.Name, protein, carbs, fat, now, now)
	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("inserting template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("inserting template: %w", err)
	}

	return s.MenuTemplateByID(ctx, id)
}

// UpdateMenuTemplate replaces a template's name and food lists.
func (s *Store) UpdateMenuTemplate(ctx context.Context, tpl models.MenuTemplate) (models.MenuTemplate, error) {
	protein, carbs, fat, err := encodeTemplate(tpl)
	if err != nil {
		return models.MenuTemplate{}, err
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE menu_templates SET name = ?, protein = ?, carbs = ?, fat = ?, updated_at = ? WHERE id = ?",
		tpl.Name, protein, carbs, fat, time.Now().UTC().Format(time.RFC3339), tpl.ID)
	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("updating template: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("updating template: %w", err)
	}

	if affected == 0 {
		return models.MenuTemplate{}, apperrors.ErrTemplateNotFound
	}

	return s.MenuTemplateByID(ctx, tpl.ID)
}

// UpsertMenuTemplateByName creates or replaces a template keyed by its
// name. Used by the template directory watcher, where the file name is
// the stable identity.
func (s *Store) UpsertMenuTemplateByName(ctx context.Context, tpl models.MenuTemplate) (models.MenuTemplate, error) {
	protein, carbs, fat, err := encodeTemplate(tpl)
	if err != nil {
		return models.MenuTemplate{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO menu_templates (name, protein, carbs, fat, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"+
			" ON CONFLICT (name) DO UPDATE SET protein = excluded.protein, carbs = excluded.carbs,"+
			" fat = excluded.fat, updated_at = excluded.updated_at",
		tpl.Name, protein, carbs, fat, now, now)
	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("upserting template: %w", err)
	}

	tplOut, err := scanTemplate(s.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM menu_templates WHERE name = ?", tpl.Name).Scan)
	if err != nil {
		return models.MenuTemplate{}, fmt.Errorf("reloading template: %w", err)
	}

	return tplOut, nil
}

// DeleteMenuTemplate removes a template. Users assigned to it fall back
// to no template through the SET NULL constraint.
func (s *Store) DeleteMenuTemplate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM menu_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}

	if affected == 0 {
		return apperrors.ErrTemplateNotFound
	}

	return nil
}
