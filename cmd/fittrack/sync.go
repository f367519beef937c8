package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/api"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/state"
	"github.com/alexjbarnes/fittrack/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:       "sync [domain]",
	Short:     "Reconcile the local cache with the server",
	Long:      "Sync pulls the server copy of each domain, merges it with the local cache by last-write timestamp, and uploads the merged view. With no argument all domains are synced.",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: domainNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := requireSession()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			domain, err := parseDomain(args[0])
			if err != nil {
				return err
			}

			if err := s.Sync(cmd.Context(), domain); err != nil {
				return fmt.Errorf("syncing %s: %w", domain, err)
			}

			reportSynced(domain)

			return nil
		}

		if err := s.SyncAll(cmd.Context()); err != nil {
			return err
		}

		for _, domain := range models.SyncedDomains {
			reportSynced(domain)
		}

		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync, then keep following changes from other devices",
	Long:  "Watch runs a full sync and then stays connected to the server's change stream, re-syncing a domain whenever another session uploads to it. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := requireSession()
		if err != nil {
			return err
		}

		s.OnStatus(func(domain models.Domain, st syncer.Status) {
			if st.Phase == syncer.PhaseIdle && st.Err == nil {
				return
			}

			fmt.Printf("%s: %s\n", domain, st.Phase)
		})

		if err := s.SyncAll(cmd.Context()); err != nil && !api.IsTransient(err) {
			return err
		}

		fmt.Println("Watching for changes (ctrl-c to stop)")

		events := api.NewEvents(client.DialEvents(), logger)

		return s.Watch(cmd.Context(), events)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and cache contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _, err := requireSession()
		if err != nil {
			return err
		}

		type domainStatus struct {
			Domain  models.Domain `json:"domain"`
			Entries int           `json:"entries"`
		}

		out := struct {
			Server  string         `json:"server"`
			Email   string         `json:"email"`
			Role    string         `json:"role"`
			Domains []domainStatus `json:"domains"`
		}{
			Server: cfg.ServerURL,
			Email:  user.Email,
			Role:   user.Role,
		}

		for _, domain := range models.SyncedDomains {
			entries, err := appState.Entries(state.Namespace{UserID: user.ID, Domain: domain})
			if err != nil {
				return fmt.Errorf("reading %s cache: %w", domain, err)
			}

			out.Domains = append(out.Domains, domainStatus{Domain: domain, Entries: len(entries)})
		}

		if flagJSON {
			return printJSON(out)
		}

		fmt.Printf("Server: %s\nLogged in as %s (%s)\n", out.Server, out.Email, out.Role)
		for _, ds := range out.Domains {
			fmt.Printf("  %-10s %d cached entries\n", ds.Domain, ds.Entries)
		}

		return nil
	},
}

func reportSynced(domain models.Domain) {
	fmt.Printf("synced %s\n", domain)
}
