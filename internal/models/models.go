// Package models holds the wire and domain types shared between the
// fittrack client, server, and sync core.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Domain identifies one synced collection of tracked entries.
type Domain string

const (
	DomainMenu      Domain = "menu"
	DomainWorkouts  Domain = "workouts"
	DomainFavorites Domain = "favorites"

	// DomainWeights is the per-exercise weight log. It is a local-only
	// namespace: the cache stores it like any other domain, but it is
	// never uploaded.
	DomainWeights Domain = "weights"
)

// SyncedDomains are the domains that participate in client-server sync.
var SyncedDomains = []Domain{DomainMenu, DomainWorkouts, DomainFavorites}

// Entry is one tracked record in a synced collection. The payload is
// opaque to the sync layer; UpdatedAt is the ISO-8601 last-write stamp
// used as the sole merge tie-breaker.
type Entry struct {
	Payload   json.RawMessage `json:"data"`
	UpdatedAt string          `json:"updatedAt"`
}

// WireEntry is the upload/download element for day-keyed domains.
type WireEntry struct {
	Key       string          `json:"dayKey"`
	Payload   json.RawMessage `json:"data"`
	UpdatedAt string          `json:"updatedAt"`
}

// WireFavorite is the upload/download element for the favorites domain,
// which keys by (category, itemId) instead of a day string.
type WireFavorite struct {
	Category  string          `json:"category"`
	ItemID    int64           `json:"itemId"`
	Item      json.RawMessage `json:"item"`
	UpdatedAt string          `json:"updatedAt"`
}

// FavoriteKey builds the composite mapping key for a favorite. The
// slash is safe as a separator because categories are fixed identifiers
// (protein/carbs/fat) and item IDs are numeric.
func FavoriteKey(category string, itemID int64) string {
	return category + "/" + strconv.FormatInt(itemID, 10)
}

// SplitFavoriteKey is the inverse of FavoriteKey. ok is false when the
// key is not a well-formed composite.
func SplitFavoriteKey(key string) (category string, itemID int64, ok bool) {
	idx := strings.LastIndex(key, "/")
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, false
	}

	id, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}

	return key[:idx], id, true
}

// UpsertResult reports what a store upsert did, replacing the
// driver-specific last-insert-id callback pattern.
type UpsertResult struct {
	AffectedKey string
	WasInsert   bool
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account as stored server-side and cached client-side.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// IsAdmin reports whether the user may call admin endpoints.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// FoodItem is one catalog food option. The yaml tags cover the embedded
// catalogs and the server's template directory files.
type FoodItem struct {
	ID       int64  `json:"id"       yaml:"id"`
	Name     string `json:"name"     yaml:"name"`
	NameEn   string `json:"nameEn,omitempty"   yaml:"nameEn,omitempty"`
	Amount   string `json:"amount,omitempty"   yaml:"amount,omitempty"`
	AmountEn string `json:"amountEn,omitempty" yaml:"amountEn,omitempty"`
}

// MenuDay is the payload of one menu entry: the foods chosen per
// category plus free calories spent.
type MenuDay struct {
	Protein      []FoodItem `json:"protein"`
	Carbs        []FoodItem `json:"carbs"`
	Fat          []FoodItem `json:"fat"`
	FreeCalories int        `json:"freeCalories"`
}

// WorkoutDay is the payload of one workout entry.
type WorkoutDay struct {
	Muscle             bool            `json:"muscle"`
	Cardio             bool            `json:"cardio"`
	Notes              string          `json:"notes,omitempty"`
	CompletedExercises map[string]bool `json:"completedExercises,omitempty"`
}

// Allowances are the per-user daily menu limits.
type Allowances struct {
	Protein      int `json:"protein"`
	Carbs        int `json:"carbs"`
	Fat          int `json:"fat"`
	FreeCalories int `json:"freeCalories"`
}

// DefaultAllowances are used when an admin has not configured a user.
var DefaultAllowances = Allowances{Protein: 5, Carbs: 5, Fat: 1, FreeCalories: 200}

// RoutineWorkout is one numbered workout within a weekly routine. The
// exercises map is admin-defined and opaque to the sync layer.
type RoutineWorkout struct {
	Name      string                     `json:"name"`
	BodyParts []string                   `json:"bodyParts,omitempty"`
	Exercises map[string]json.RawMessage `json:"exercises,omitempty"`
}

// WorkoutSchedule is the per-user weekly plan.
type WorkoutSchedule struct {
	WeeklyMuscle    int                        `json:"weeklyMuscle"`
	WeeklyCardio    int                        `json:"weeklyCardio"`
	WorkoutRoutine  map[string]RoutineWorkout  `json:"workoutRoutine"`
	CustomExercises map[string]json.RawMessage `json:"customExercises"`
}

// DefaultWeeklyMuscle and DefaultWeeklyCardio are the schedule defaults
// applied when no schedule row exists.
const (
	DefaultWeeklyMuscle = 4
	DefaultWeeklyCardio = 3
)

// MenuTemplate is an admin-managed set of allowed foods assignable to
// users.
type MenuTemplate struct {
	ID        int64      `json:"id,omitempty"`
	Name      string     `json:"name"`
	Protein   []FoodItem `json:"protein"`
	Carbs     []FoodItem `json:"carbs"`
	Fat       []FoodItem `json:"fat"`
	CreatedAt string     `json:"createdAt,omitempty"`
	UpdatedAt string     `json:"updatedAt,omitempty"`
}
