package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/models"
)

var favCmd = &cobra.Command{
	Use:   "fav",
	Short: "Manage favorite foods",
}

var favAddCmd = &cobra.Command{
	Use:   "add <category> <food>",
	Short: "Mark a food as a favorite",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := requireSession()
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

		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encoding favorite: %w", err)
		}

		key := models.FavoriteKey(category, item.ID)
		if err := s.Apply(cmd.Context(), models.DomainFavorites, key, payload); err != nil {
			return fmt.Errorf("saving favorite: %w", err)
		}

		fmt.Printf("Favorited %s (%s)\n", displayName(item), category)

		return nil
	},
}

var favRemoveCmd = &cobra.Command{
	Use:   "remove <category> <food>",
	Short: "Remove a favorite",
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

		entries, err := cachedEntries(user.ID, models.DomainFavorites)
		if err != nil {
			return err
		}

		want := foldName(args[1])

		for key, entry := range entries {
			cat, _, ok := models.SplitFavoriteKey(key)
			if !ok || cat != category {
				continue
			}

			var item models.FoodItem
			if err := json.Unmarshal(entry.Payload, &item); err != nil {
				continue
			}

			if foldName(item.Name) == want || foldName(item.NameEn) == want {
				if err := s.Remove(cmd.Context(), models.DomainFavorites, key); err != nil {
					return fmt.Errorf("removing favorite: %w", err)
				}

				fmt.Printf("Removed favorite %s (%s)\n", displayName(item), category)

				return nil
			}
		}

		return fmt.Errorf("%q is not a %s favorite", args[1], category)
	},
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _, err := requireSession()
		if err != nil {
			return err
		}

		entries, err := cachedEntries(user.ID, models.DomainFavorites)
		if err != nil {
			return err
		}

		byCategory := make(map[string][]models.FoodItem)

		for key, entry := range entries {
			category, _, ok := models.SplitFavoriteKey(key)
			if !ok {
				continue
			}

			var item models.FoodItem
			if err := json.Unmarshal(entry.Payload, &item); err != nil {
				continue
			}

			byCategory[category] = append(byCategory[category], item)
		}

		for _, items := range byCategory {
			sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
		}

		if flagJSON {
			return printJSON(byCategory)
		}

		if len(byCategory) == 0 {
			fmt.Println("No favorites yet")

			return nil
		}

		categories := make([]string, 0, len(byCategory))
		for category := range byCategory {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			fmt.Printf("%s:\n", category)
			for _, item := range byCategory[category] {
				fmt.Printf("  - %s\n", displayName(item))
			}
		}

		return nil
	},
}

func init() {
	favCmd.AddCommand(favAddCmd)
	favCmd.AddCommand(favRemoveCmd)
	favCmd.AddCommand(favListCmd)
}
