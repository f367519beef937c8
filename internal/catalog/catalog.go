// Package catalog embeds the built-in food and exercise databases and
// the default weekly routine derived from them.
package catalog

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/alexjbarnes/fittrack/internal/models"
)

//go:embed data/foods.yaml data/exercises.yaml
var dataFS embed.FS

// Food categories.
const (
	CategoryProtein = "protein"
	CategoryCarbs   = "carbs"
	CategoryFat     = "fat"
)

// Categories lists the food categories in display order.
var Categories = []string{CategoryProtein, CategoryCarbs, CategoryFat}

// Exercise is one catalog movement with its prescription.
type Exercise struct {
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	NameEn string `yaml:"nameEn"`
	Sets   int    `yaml:"sets"`
	Reps   string `yaml:"reps"`
	Video  string `yaml:"video"`
}

// BodyPart groups the exercises for one muscle group.
type BodyPart struct {
	Key       string     `yaml:"key"`
	Name      string     `yaml:"name"`
	NameEn    string     `yaml:"nameEn"`
	Exercises []Exercise `yaml:"exercises"`
}

type foodsFile struct {
	Protein []models.FoodItem `yaml:"protein"`
	Carbs   []models.FoodItem `yaml:"carbs"`
	Fat     []models.FoodItem `yaml:"fat"`
}

var (
	loadOnce  sync.Once
	foods     map[string][]models.FoodItem
	bodyParts []BodyPart
)

// load parses the embedded catalogs once. The data ships inside the
// binary, so a parse failure is a build defect and panics.
func load() {
	loadOnce.Do(func() {
		var ff foodsFile

		data, err := dataFS.ReadFile("data/foods.yaml")
		if err == nil {
			err = yaml.Unmarshal(data, &ff)
		}

		if err != nil {
			panic(fmt.Sprintf("catalog: embedded foods.yaml: %v", err))
		}

		foods = map[string][]models.FoodItem{
			CategoryProtein: ff.Protein,
			CategoryCarbs:   ff.Carbs,
			CategoryFat:     ff.Fat,
		}

		data, err = dataFS.ReadFile("data/exercises.yaml")
		if err == nil {
			err = yaml.Unmarshal(data, &bodyParts)
		}

		if err != nil {
			panic(fmt.Sprintf("catalog: embedded exercises.yaml: %v", err))
		}
	})
}

// Foods returns the catalog items for a category, nil for an unknown
// category.
func Foods(category string) []models.FoodItem {
	load()

	return foods[category]
}

// normalizeName canonicalizes a food name for lookup. Hebrew names
// typed on different keyboards can differ in Unicode composition, so
// compare in NFC.
func normalizeName(name string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(name)))
}

// FindFood locates a catalog item by Hebrew or English name,
// case-insensitively and composition-insensitively.
func FindFood(category, name string) (models.FoodItem, bool) {
	load()

	want := normalizeName(name)
	if want == "" {
		return models.FoodItem{}, false
	}

	for _, item := range foods[category] {
		if normalizeName(item.Name) == want || normalizeName(item.NameEn) == want {
			return item, true
		}
	}

	return models.FoodItem{}, false
}

// ExerciseKey identifies one catalog exercise within a body part. It is
// the key used in WorkoutDay.CompletedExercises and the weight log.
func ExerciseKey(partKey string, exerciseID int64) string {
	return fmt.Sprintf("%s-%d", partKey, exerciseID)
}

// FindExercise locates an exercise by Hebrew or English name across all
// body parts, case-insensitively and composition-insensitively.
func FindExercise(name string) (BodyPart, Exercise, bool) {
	load()

	want := normalizeName(name)
	if want == "" {
		return BodyPart{}, Exercise{}, false
	}

	for _, part := range bodyParts {
		for _, exercise := range part.Exercises {
			if normalizeName(exercise.Name) == want || normalizeName(exercise.NameEn) == want {
				return part, exercise, true
			}
		}
	}

	return BodyPart{}, Exercise{}, false
}

// BodyParts returns every muscle group in catalog order.
func BodyParts() []BodyPart {
	load()

	return bodyParts
}

// BodyPartByKey returns one muscle group.
func BodyPartByKey(key string) (BodyPart, bool) {
	load()

	for _, part := range bodyParts {
		if part.Key == key {
			return part, true
		}
	}

	return BodyPart{}, false
}

// DefaultRoutine is the built-in four-workout split used when no
// custom routine is configured.
func DefaultRoutine() map[string]models.RoutineWorkout {
	return map[string]models.RoutineWorkout{
		"1": {Name: "Workout 1", BodyParts: []string{"chest", "middleShoulder", "triceps"}},
		"2": {Name: "Workout 2", BodyParts: []string{"back", "rearShoulder", "biceps", "abs"}},
		"3": {Name: "Workout 3", BodyParts: []string{"quadriceps", "hamstrings", "calves"}},
		"4": {Name: "Workout 4", BodyParts: []string{"triceps", "biceps", "abs"}},
	}
}

// dayKeyLayout matches the entry keys used across the synced domains.
const dayKeyLayout = "2006-01-02"

// WorkoutNumber returns which numbered workout (1..routineSize) a
// muscle session on date is, counting muscle days already logged this
// week. The date itself always counts, logged or not, so the tracker
// can show the upcoming workout before it is marked done. Cycles past
// routineSize.
func WorkoutNumber(date, weekStart time.Time, days map[string]models.WorkoutDay, routineSize int) int {
	if routineSize <= 0 {
		routineSize = len(DefaultRoutine())
	}

	count := 0

	for i := 0; i < 7; i++ {
		weekDate := weekStart.AddDate(0, 0, i)
		if weekDate.After(date) {
			break
		}

		if weekDate.Equal(date) {
			count++

			continue
		}

		if day, ok := days[weekDate.Format(dayKeyLayout)]; ok && day.Muscle {
			count++
		}
	}

	if count == 0 {
		count = 1
	}

	return ((count - 1) % routineSize) + 1
}
