package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/alexjbarnes/fittrack/internal/api"
	"github.com/alexjbarnes/fittrack/internal/catalog"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/state"
)

const dayKeyLayout = "2006-01-02"

func domainNames() []string {
	names := make([]string, 0, len(models.SyncedDomains))
	for _, domain := range models.SyncedDomains {
		names = append(names, string(domain))
	}

	return names
}

func parseDomain(name string) (models.Domain, error) {
	for _, domain := range models.SyncedDomains {
		if string(domain) == name {
			return domain, nil
		}
	}

	return "", fmt.Errorf("unknown domain %q, expected one of: %s", name, strings.Join(domainNames(), ", "))
}

// resolveDayKey turns the --date flag into an entry key, defaulting to
// today.
func resolveDayKey(flagDate string) (string, error) {
	if flagDate == "" {
		return time.Now().Format(dayKeyLayout), nil
	}

	t, err := time.Parse(dayKeyLayout, flagDate)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", flagDate)
	}

	return t.Format(dayKeyLayout), nil
}

// cachedEntries reads a domain's raw cached entries for the user.
func cachedEntries(userID string, domain models.Domain) (map[string]models.Entry, error) {
	entries, err := appState.Entries(state.Namespace{UserID: userID, Domain: domain})
	if err != nil {
		return nil, fmt.Errorf("reading %s cache: %w", domain, err)
	}

	return entries, nil
}

// loadDay decodes the cached payload for one day, returning the zero
// value when the day has no entry yet.
func loadDay[T any](userID string, domain models.Domain, key string) (T, error) {
	var day T

	entries, err := appState.Entries(state.Namespace{UserID: userID, Domain: domain})
	if err != nil {
		return day, fmt.Errorf("reading %s cache: %w", domain, err)
	}

	entry, ok := entries[key]
	if !ok {
		return day, nil
	}

	if err := json.Unmarshal(entry.Payload, &day); err != nil {
		return day, fmt.Errorf("decoding %s entry %s: %w", domain, key, err)
	}

	return day, nil
}

func parseCategory(name string) (string, error) {
	for _, category := range catalog.Categories {
		if category == name {
			return category, nil
		}
	}

	return "", fmt.Errorf("unknown category %q, expected one of: %s", name, strings.Join(catalog.Categories, ", "))
}

func foldName(name string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(name)))
}

// findFood resolves a food by name, preferring the menu template the
// server assigned to this user and falling back to the built-in catalog
// when the server is unreachable or no template is assigned.
func findFood(ctx context.Context, category, name string) (models.FoodItem, error) {
	if template, err := client.FetchMenuTemplate(ctx); err == nil {
		items := map[string][]models.FoodItem{
			catalog.CategoryProtein: template.Protein,
			catalog.CategoryCarbs:   template.Carbs,
			catalog.CategoryFat:     template.Fat,
		}[category]

		if len(items) > 0 {
			want := foldName(name)
			for _, item := range items {
				if foldName(item.Name) == want || foldName(item.NameEn) == want {
					return item, nil
				}
			}

			return models.FoodItem{}, fmt.Errorf("%q is not in your assigned %s list", name, category)
		}
	} else if !api.IsTransient(err) {
		return models.FoodItem{}, fmt.Errorf("fetching menu template: %w", err)
	}

	item, ok := catalog.FindFood(category, name)
	if !ok {
		return models.FoodItem{}, fmt.Errorf("unknown %s food %q", category, name)
	}

	return item, nil
}

// fetchAllowances returns the user's configured limits, falling back to
// the defaults when the server is unreachable.
func fetchAllowances(ctx context.Context) models.Allowances {
	allowances, err := client.FetchAllowances(ctx)
	if err != nil {
		return models.DefaultAllowances
	}

	return allowances
}

// fetchSchedule returns the user's weekly plan, falling back to the
// defaults when the server is unreachable.
func fetchSchedule(ctx context.Context) models.WorkoutSchedule {
	schedule, err := client.FetchWorkoutSchedule(ctx)
	if err != nil || schedule.WeeklyMuscle <= 0 {
		return models.WorkoutSchedule{
			WeeklyMuscle:   models.DefaultWeeklyMuscle,
			WeeklyCardio:   models.DefaultWeeklyCardio,
			WorkoutRoutine: catalog.DefaultRoutine(),
		}
	}

	if len(schedule.WorkoutRoutine) == 0 {
		schedule.WorkoutRoutine = catalog.DefaultRoutine()
	}

	return schedule
}
