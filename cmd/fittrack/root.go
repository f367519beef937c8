package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/api"
	"github.com/alexjbarnes/fittrack/internal/config"
	apperrors "github.com/alexjbarnes/fittrack/internal/errors"
	"github.com/alexjbarnes/fittrack/internal/logging"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/state"
	"github.com/alexjbarnes/fittrack/internal/syncer"
)

var Version = "dev"

// Global flag values.
var (
	flagServerURL string
	flagJSON      bool
)

// Process-wide instances, initialized by PersistentPreRunE.
var (
	cfg      *config.ClientConfig
	appState *state.State
	client   *api.Client
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "fittrack",
	Short:   "fittrack is an offline-first menu and workout tracker",
	Version: Version,
	Long: `fittrack tracks daily menu choices and workouts against the goals
your coach configured. Entries are written to a local cache first and
reconciled with the server whenever it is reachable, so the tracker
keeps working offline.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "server base URL (default: FITTRACK_SERVER_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(workoutCmd)
	rootCmd.AddCommand(favCmd)
	rootCmd.AddCommand(statsCmd)
}

// initApp loads configuration, opens the local cache, and builds the
// API client with any cached session token.
func initApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagServerURL != "" {
		cfg.ServerURL = flagServerURL
	}

	logger = logging.NewLogger(cfg.Environment)

	appState, err = state.Load(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("opening local cache: %w", err)
	}

	client = api.NewClient(cfg.ServerURL, nil)
	// The device name makes the session identity stable-ish across
	// restarts and readable in server logs; the random suffix keeps two
	// processes on the same machine distinct.
	client.SetSessionID(cfg.DeviceName + "-" + uuid.New().String())

	if token := appState.Token(); token != "" {
		client.SetToken(token)
	}

	return nil
}

func closeApp() error {
	if appState != nil {
		return appState.Close()
	}

	return nil
}

// requireSession returns the logged-in user and a syncer bound to their
// cache namespaces.
func requireSession() (*models.User, *syncer.Syncer, error) {
	user, err := appState.CurrentUser()
	if err != nil {
		return nil, nil, fmt.Errorf("reading session: %w", err)
	}

	if user == nil || appState.Token() == "" {
		return nil, nil, fmt.Errorf("%w, run `fittrack login` first", apperrors.ErrNotLoggedIn)
	}

	return user, syncer.New(client, appState, user.ID, logger), nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
