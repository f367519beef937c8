package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/catalog"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/stats"
	"github.com/alexjbarnes/fittrack/internal/syncer"
)

var menuDate string

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Track daily menu choices",
}

var menuShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a day's menu log against your allowances",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _, err := requireSession()
		if err != nil {
			return err
		}

		key, err := resolveDayKey(menuDate)
		if err != nil {
			return err
		}

		day, err := loadDay[models.MenuDay](user.ID, models.DomainMenu, key)
		if err != nil {
			return err
		}

		allowances := fetchAllowances(cmd.Context())

		if flagJSON {
			return printJSON(struct {
				Date       string            `json:"date"`
				Day        models.MenuDay    `json:"day"`
				Allowances models.Allowances `json:"allowances"`
				GoalsMet   bool              `json:"goalsMet"`
			}{key, day, allowances, stats.MeetsMenuGoals(day, allowances)})
		}

		fmt.Printf("Menu for %s\n", key)
		printMenuCategory("protein", day.Protein, allowances.Protein)
		printMenuCategory("carbs", day.Carbs, allowances.Carbs)
		printMenuCategory("fat", day.Fat, allowances.Fat)
		fmt.Printf("  free calories: %d/%d\n", day.FreeCalories, allowances.FreeCalories)

		if stats.MeetsMenuGoals(day, allowances) {
			fmt.Println("All goals met")
		}

		return nil
	},
}

var menuAddCmd = &cobra.Command{
	Use:   "add <category> <food>",
	Short: "Log a food for the day",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, s, err := requireSession()
		if err != nil {
			return err
		}

		category, err := parseCategory(args[0])
		if err != nil {
			return err
		}

		item, err := findFood(cmd.Context(), category, args[1])
		if err != nil {
			return err
		}

		key, err := resolveDayKey(menuDate)
		if err != nil {
			return err
		}

		day, err := loadDay[models.MenuDay](user.ID, models.DomainMenu, key)
		if err != nil {
			return err
		}

		switch category {
		case catalog.CategoryProtein:
			day.Protein = append(day.Protein, item)
		case catalog.CategoryCarbs:
			day.Carbs = append(day.Carbs, item)
		case catalog.CategoryFat:
			day.Fat = append(day.Fat, item)
		}

		if err := saveMenuDay(cmd, s, key, day); err != nil {
			return err
		}

		fmt.Printf("Added %s (%s) to %s\n", displayName(item), category, key)

		return nil
	},
}

var menuRemoveCmd = &cobra.Command{
	Use:   "remove <category> <food>",
	Short: "Remove a logged food from the day",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, s, err := requireSession()
		if err != nil {
			return err
		}

		category, err := parseCategory(args[0])
		if err != nil {
			return err
		}

		key, err := resolveDayKey(menuDate)
		if err != nil {
			return err
		}

		day, err := loadDay[models.MenuDay](user.ID, models.DomainMenu, key)
		if err != nil {
			return err
		}

		removed := false

		switch category {
		case catalog.CategoryProtein:
			day.Protein, removed = removeFood(day.Protein, args[1])
		case catalog.CategoryCarbs:
			day.Carbs, removed = removeFood(day.Carbs, args[1])
		case catalog.CategoryFat:
			day.Fat, removed = removeFood(day.Fat, args[1])
		}

		if !removed {
			return fmt.Errorf("%q is not logged under %s on %s", args[1], category, key)
		}

		if err := saveMenuDay(cmd, s, key, day); err != nil {
			return err
		}

		fmt.Printf("Removed %s (%s) from %s\n", args[1], category, key)

		return nil
	},
}

var menuFreeCmd = &cobra.Command{
	Use:   "free <calories>",
	Short: "Set the day's free calories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, s, err := requireSession()
		if err != nil {
			return err
		}

		calories, err := strconv.Atoi(args[0])
		if err != nil || calories < 0 {
			return fmt.Errorf("invalid calorie count %q", args[0])
		}

		key, err := resolveDayKey(menuDate)
		if err != nil {
			return err
		}

		day, err := loadDay[models.MenuDay](user.ID, models.DomainMenu, key)
		if err != nil {
			return err
		}

		day.FreeCalories = calories

		if err := saveMenuDay(cmd, s, key, day); err != nil {
			return err
		}

		fmt.Printf("Set free calories to %d on %s\n", calories, key)

		return nil
	},
}

func init() {
	menuCmd.PersistentFlags().StringVar(&menuDate, "date", "", "day to operate on, YYYY-MM-DD (default: today)")

	menuCmd.AddCommand(menuShowCmd)
	menuCmd.AddCommand(menuAddCmd)
	menuCmd.AddCommand(menuRemoveCmd)
	menuCmd.AddCommand(menuFreeCmd)
}

// saveMenuDay writes the day back through the syncer. A fully cleared
// day deletes the entry instead of storing an empty shell.
func saveMenuDay(cmd *cobra.Command, s *syncer.Syncer, key string, day models.MenuDay) error {
	payload, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("encoding menu day: %w", err)
	}

	if err := s.Apply(cmd.Context(), models.DomainMenu, key, payload); err != nil {
		return fmt.Errorf("saving menu day: %w", err)
	}

	return nil
}

func removeFood(items []models.FoodItem, name string) ([]models.FoodItem, bool) {
	want := foldName(name)

	for i, item := range items {
		if foldName(item.Name) == want || foldName(item.NameEn) == want {
			return append(items[:i], items[i+1:]...), true
		}
	}

	return items, false
}

func displayName(item models.FoodItem) string {
	if item.NameEn != "" {
		return item.NameEn
	}

	return item.Name
}

func printMenuCategory(label string, items []models.FoodItem, allowance int) {
	fmt.Printf("  %-8s %d/%d\n", label+":", len(items), allowance)
	for _, item := range items {
		amount := item.AmountEn
		if amount == "" {
			amount = item.Amount
		}

		fmt.Printf("    - %s (%s)\n", displayName(item), amount)
	}
}
