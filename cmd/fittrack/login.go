package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/fittrack/internal/api"
	"github.com/alexjbarnes/fittrack/internal/syncer"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and pull your data from the server",
	Long: `Login authenticates against the server, stores the session locally,
and runs a first sync. On a fresh device the server copy of your data
is taken as-is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd.Context(), client.Login)
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuth(cmd.Context(), client.Signup)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session and local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := appState.CurrentUser()
		if err != nil {
			return fmt.Errorf("reading session: %w", err)
		}

		if user != nil {
			if err := appState.ClearUser(user.ID); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
		}

		if err := appState.ClearSession(); err != nil {
			return fmt.Errorf("clearing session: %w", err)
		}

		fmt.Println("Logged out")

		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, signupCmd} {
		cmd.Flags().StringVar(&loginEmail, "email", "", "account email (default: FITTRACK_EMAIL)")
		cmd.Flags().StringVar(&loginPassword, "password", "", "account password (default: FITTRACK_PASSWORD)")
	}
}

func runAuth(ctx context.Context, authenticate func(context.Context, string, string) (*api.AuthResponse, error)) error {
	email := loginEmail
	if email == "" {
		email = cfg.Email
	}

	password := loginPassword
	if password == "" {
		password = cfg.Password
	}

	var err error

	if email == "" {
		if email, err = prompt("Email: "); err != nil {
			return err
		}
	}

	if password == "" {
		if password, err = prompt("Password: "); err != nil {
			return err
		}
	}

	resp, err := authenticate(ctx, email, password)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	// Switching accounts on the same machine drops the previous user's
	// cache so their data never leaks into the new session.
	if previous, err := appState.CurrentUser(); err == nil && previous != nil && previous.ID != resp.User.ID {
		if err := appState.ClearUser(previous.ID); err != nil {
			return fmt.Errorf("clearing previous user cache: %w", err)
		}
	}

	if err := appState.SetSession(resp.Token, resp.User); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	client.SetToken(resp.Token)
	fmt.Printf("Logged in as %s (%s)\n", resp.User.Email, resp.User.Role)

	s := syncer.New(client, appState, resp.User.ID, logger)
	if err := s.SyncAll(ctx); err != nil {
		if api.IsTransient(err) {
			fmt.Println("Server unreachable, initial sync deferred")

			return nil
		}

		return fmt.Errorf("initial sync: %w", err)
	}

	fmt.Println("Synced")

	return nil
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("no input")
	}

	return scanner.Text(), nil
}
