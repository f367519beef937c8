// Package api is the HTTP client for the fittrack sync server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alexjbarnes/fittrack/internal/models"
)

// sessionHeader carries this client's session identity on every
// request. The server excludes the originating session when fanning a
// change event out, so a client is never told about its own uploads.
const sessionHeader = "X-Session-Id"

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 4 * 1024 * 1024
)

// Client talks to the fittrack server REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	sessionID  string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client for the given server base URL.
// If httpClient is nil, a client with a 30-second timeout and
// same-host redirect policy is created.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  uuid.New().String(),
	}
}

// SetToken attaches a bearer credential to every subsequent request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetSessionID replaces the generated session identity, letting callers
// fold a stable device name into it.
func (c *Client) SetSessionID(id string) {
	if id != "" {
		c.sessionID = id
	}
}

// SessionID returns the session identity sent with every request.
func (c *Client) SessionID() string {
	return c.sessionID
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// do sends a JSON request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, c.sessionID)

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", endpoint, err)
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			err := fmt.Errorf("API %s (%d): %s", endpoint, resp.StatusCode, apiErr.Error)
			if isTransientStatus(resp.StatusCode) {
				return &TransientError{Err: err}
			}

			return err
		}

		err := fmt.Errorf("API %s returned status %d: %s", endpoint, resp.StatusCode, sanitizeResponseBody(respBody))
		if isTransientStatus(resp.StatusCode) {
			return &TransientError{Err: err}
		}

		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// Login authenticates with email and password, returning a session
// token and the user identity.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", authRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}

	return &resp, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", authRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}

	return &resp, nil
}

// Download returns the full server-side collection for a domain. The
// favorites domain's (category, itemId) wire shape is folded into the
// generic composite-keyed form so the sync layer sees one entry type.
func (c *Client) Download(ctx context.Context, domain models.Domain) ([]models.WireEntry, error) {
	if domain == models.DomainFavorites {
		var env favoritesEnvelope
		if err := c.do(ctx, http.MethodGet, "/sync/favorites", nil, &env); err != nil {
			return nil, fmt.Errorf("fetching favorites: %w", err)
		}

		entries := make([]models.WireEntry, 0, len(env.Favorites))
		for _, fav := range env.Favorites {
			entries = append(entries, models.WireEntry{
				Key:       models.FavoriteKey(fav.Category, fav.ItemID),
				Payload:   fav.Item,
				UpdatedAt: fav.UpdatedAt,
			})
		}

		return entries, nil
	}

	var env entriesEnvelope
	if err := c.do(ctx, http.MethodGet, "/sync/"+string(domain), nil, &env); err != nil {
		return nil, fmt.Errorf("fetching %s entries: %w", domain, err)
	}

	return env.Entries, nil
}

// Upload pushes the full reconciled collection for a domain. The server
// performs a per-key upsert and no merging of its own.
func (c *Client) Upload(ctx context.Context, domain models.Domain, entries []models.WireEntry) error {
	var (
		body     interface{}
		endpoint = "/sync/" + string(domain)
	)

	if domain == models.DomainFavorites {
		favorites := make([]models.WireFavorite, 0, len(entries))

		for _, e := range entries {
			category, itemID, ok := models.SplitFavoriteKey(e.Key)
			if !ok {
				continue
			}

			favorites = append(favorites, models.WireFavorite{
				Category:  category,
				ItemID:    itemID,
				Item:      e.Payload,
				UpdatedAt: e.UpdatedAt,
			})
		}

		body = favoritesEnvelope{Favorites: favorites}
	} else {
		body = entriesEnvelope{Entries: entries}
	}

	var resp successResponse
	if err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return fmt.Errorf("uploading %s entries: %w", domain, err)
	}

	if !resp.Success {
		return fmt.Errorf("uploading %s entries: server did not acknowledge", domain)
	}

	return nil
}

// FetchAllowances returns the user's daily menu allowances.
func (c *Client) FetchAllowances(ctx context.Context) (models.Allowances, error) {
	var env allowancesEnvelope
	if err := c.do(ctx, http.MethodGet, "/sync/allowances", nil, &env); err != nil {
		return models.Allowances{}, fmt.Errorf("fetching allowances: %w", err)
	}

	return env.Allowances, nil
}

// FetchWorkoutSchedule returns the user's weekly workout schedule.
func (c *Client) FetchWorkoutSchedule(ctx context.Context) (models.WorkoutSchedule, error) {
	var env scheduleEnvelope
	if err := c.do(ctx, http.MethodGet, "/sync/workout-schedule", nil, &env); err != nil {
		return models.WorkoutSchedule{}, fmt.Errorf("fetching workout schedule: %w", err)
	}

	return env.Schedule, nil
}

// FetchMenuTemplate returns the food template assigned to the user, or
// an empty template when none is assigned.
func (c *Client) FetchMenuTemplate(ctx context.Context) (models.MenuTemplate, error) {
	var env templateEnvelope
	if err := c.do(ctx, http.MethodGet, "/sync/menu-template", nil, &env); err != nil {
		return models.MenuTemplate{}, fmt.Errorf("fetching menu template: %w", err)
	}

	return env.Template, nil
}
