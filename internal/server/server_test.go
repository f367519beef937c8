package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/fittrack/internal/auth"
	"github.com/alexjbarnes/fittrack/internal/metrics"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/store"
)

type testEnv struct {
	srv   *httptest.Server
	store *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	manager := auth.NewManager("test-secret-at-least-16", time.Hour)
	s := New(st, manager, slog.Default(), metrics.New(), true)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	t.Cleanup(s.Hub().CloseAll)

	return &testEnv{srv: srv, store: st}
}

// request sends a JSON request and decodes the body into out (if non-nil),
// returning the status code.
func (e *testEnv) request(t *testing.T, method, path, token string, body, out interface{}) int {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
		}
	}

	return resp.StatusCode
}

func (e *testEnv) signup(t *testing.T, email string) (token string, user models.User) {
	t.Helper()

	var resp authResponse
	code := e.request(t, http.MethodPost, "/auth/signup", "",
		credentialsRequest{Email: email, Password: "password123"}, &resp)
	require.Equal(t, http.StatusOK, code)

	return resp.Token, resp.User
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	_, first := env.signup(t, "owner@example.com")
	assert.Equal(t, models.RoleAdmin, first.Role, "first account bootstraps as admin")

	_, second := env.signup(t, "user@example.com")
	assert.Equal(t, models.RoleUser, second.Role)

	var resp authResponse
	code := env.request(t, http.MethodPost, "/auth/login", "",
		credentialsRequest{Email: "user@example.com", Password: "password123"}, &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, resp.Token)

	var errResp map[string]string
	code = env.request(t, http.MethodPost, "/auth/login", "",
		credentialsRequest{Email: "user@example.com", Password: "wrong-password"}, &errResp)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid email or password", errResp["error"])
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)

	code := env.request(t, http.MethodPost, "/auth/signup", "",
		credentialsRequest{Email: "not-an-email", Password: "password123"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.request(t, http.MethodPost, "/auth/signup", "",
		credentialsRequest{Email: "user@example.com", Password: "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	env.signup(t, "user@example.com")
	code = env.request(t, http.MethodPost, "/auth/signup", "",
		credentialsRequest{Email: "user@example.com", Password: "password123"}, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestSyncRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	code := env.request(t, http.MethodGet, "/sync/menu", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSyncRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "user@example.com")

	upload := entriesEnvelope{Entries: []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"protein":[{"id":1}]}`), UpdatedAt: "2024-06-01T10:00:00Z"},
	}}

	var postResp map[string]interface{}
	code := env.request(t, http.MethodPost, "/sync/menu", token, upload, &postResp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, postResp["success"])

	var getResp entriesEnvelope
	code = env.request(t, http.MethodGet, "/sync/menu", token, nil, &getResp)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, getResp.Entries, 1)
	assert.Equal(t, "2024-06-01", getResp.Entries[0].Key)
	assert.JSONEq(t, `{"protein":[{"id":1}]}`, string(getResp.Entries[0].Payload))
}

func TestServerTrustsClientTimestamps(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "user@example.com")

	env.request(t, http.MethodPost, "/sync/workouts", token, entriesEnvelope{Entries: []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"muscle":true}`), UpdatedAt: "2024-06-05T00:00:00Z"},
	}}, nil)

	// An upload carrying an older stamp still overwrites: the client
	// already merged, the server stores verbatim.
	env.request(t, http.MethodPost, "/sync/workouts", token, entriesEnvelope{Entries: []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"cardio":true}`), UpdatedAt: "2024-06-01T00:00:00Z"},
	}}, nil)

	var resp entriesEnvelope
	env.request(t, http.MethodGet, "/sync/workouts", token, nil, &resp)
	require.Len(t, resp.Entries, 1)
	assert.JSONEq(t, `{"cardio":true}`, string(resp.Entries[0].Payload))
	assert.Equal(t, "2024-06-01T00:00:00Z", resp.Entries[0].UpdatedAt)
}

func TestUsersAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	tokenA, _ := env.signup(t, "alice@example.com")
	tokenB, _ := env.signup(t, "bob@example.com")

	env.request(t, http.MethodPost, "/sync/menu", tokenA, entriesEnvelope{Entries: []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"v":"alice"}`), UpdatedAt: "2024-06-01T00:00:00Z"},
	}}, nil)

	var resp entriesEnvelope
	env.request(t, http.MethodGet, "/sync/menu", tokenB, nil, &resp)
	assert.Empty(t, resp.Entries)
}

func TestFavoritesRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "user@example.com")

	env.request(t, http.MethodPost, "/sync/favorites", token, favoritesEnvelope{Favorites: []models.WireFavorite{
		{Category: "protein", ItemID: 3, Item: json.RawMessage(`{"id":3}`), UpdatedAt: "2024-06-01T00:00:00Z"},
		{Category: "carbs", ItemID: 5, Item: json.RawMessage(`{"id":5}`), UpdatedAt: "2024-06-01T00:00:00Z"},
	}}, nil)

	// Upload without carbs/5 unfavorites it.
	env.request(t, http.MethodPost, "/sync/favorites", token, favoritesEnvelope{Favorites: []models.WireFavorite{
		{Category: "protein", ItemID: 3, Item: json.RawMessage(`{"id":3}`), UpdatedAt: "2024-06-01T00:00:00Z"},
	}}, nil)

	var resp favoritesEnvelope
	env.request(t, http.MethodGet, "/sync/favorites", token, nil, &resp)
	require.Len(t, resp.Favorites, 1)
	assert.Equal(t, "protein", resp.Favorites[0].Category)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "user@example.com")

	var allowancesResp map[string]models.Allowances
	code := env.request(t, http.MethodGet, "/sync/allowances", token, nil, &allowancesResp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.DefaultAllowances, allowancesResp["allowances"])

	var scheduleResp map[string]models.WorkoutSchedule
	code = env.request(t, http.MethodGet, "/sync/workout-schedule", token, nil, &scheduleResp)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.DefaultWeeklyMuscle, scheduleResp["schedule"].WeeklyMuscle)

	var templateResp map[string]models.MenuTemplate
	code = env.request(t, http.MethodGet, "/sync/menu-template", token, nil, &templateResp)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, templateResp["template"].Name)
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	adminToken, admin := env.signup(t, "owner@example.com")
	userToken, user := env.signup(t, "user@example.com")

	code := env.request(t, http.MethodGet, "/admin/users", userToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var listResp struct {
		Users []models.User `json:"users"`
	}
	code = env.request(t, http.MethodGet, "/admin/users", adminToken, nil, &listResp)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, listResp.Users, 2)

	// Admins cannot delete themselves.
	code = env.request(t, http.MethodDelete, "/admin/users/"+admin.ID, adminToken, nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = env.request(t, http.MethodDelete, "/admin/users/"+user.ID, adminToken, nil, nil)
	assert.Equal(t, http.StatusOK, code)

	code = env.request(t, http.MethodPost, "/auth/login", "",
		credentialsRequest{Email: "user@example.com", Password: "password123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdminTemplateLifecycle(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.signup(t, "owner@example.com")
	userToken, user := env.signup(t, "user@example.com")

	var createResp map[string]models.MenuTemplate
	code := env.request(t, http.MethodPost, "/admin/templates", adminToken, models.MenuTemplate{
		Name:    "cutting",
		Protein: []models.FoodItem{{ID: 1, Name: "chicken"}},
	}, &createResp)
	require.Equal(t, http.StatusOK, code)
	tplID := createResp["template"].ID
	require.NotZero(t, tplID)

	code = env.request(t, http.MethodPut, "/admin/users/"+user.ID+"/menu-template", adminToken,
		map[string]int64{"templateId": tplID}, nil)
	require.Equal(t, http.StatusOK, code)

	var templateResp map[string]models.MenuTemplate
	env.request(t, http.MethodGet, "/sync/menu-template", userToken, nil, &templateResp)
	assert.Equal(t, "cutting", templateResp["template"].Name)

	code = env.request(t, http.MethodDelete, "/admin/templates/"+jsonInt(tplID), adminToken, nil, nil)
	require.Equal(t, http.StatusOK, code)

	env.request(t, http.MethodGet, "/sync/menu-template", userToken, nil, &templateResp)
	assert.Empty(t, templateResp["template"].Name, "deleting a template unassigns users")
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)

	return string(data)
}

func TestAdminEditsUserEntries(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.signup(t, "owner@example.com")
	userToken, user := env.signup(t, "user@example.com")

	code := env.request(t, http.MethodPost, "/admin/users/"+user.ID+"/menu", adminToken,
		entriesEnvelope{Entries: []models.WireEntry{
			{Key: "2024-06-01", Payload: json.RawMessage(`{"v":"edited"}`), UpdatedAt: "2024-06-01T00:00:00Z"},
		}}, nil)
	require.Equal(t, http.StatusOK, code)

	var resp entriesEnvelope
	env.request(t, http.MethodGet, "/sync/menu", userToken, nil, &resp)
	require.Len(t, resp.Entries, 1)
	assert.JSONEq(t, `{"v":"edited"}`, string(resp.Entries[0].Payload))

	code = env.request(t, http.MethodPost, "/admin/users/missing/menu", adminToken,
		entriesEnvelope{}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestChangeEventFanOut(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "user@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + env.srv.URL[len("http"):] + "/sync/events"

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The handler registers with the hub just after the handshake, so
	// give it a moment before uploading.
	time.Sleep(100 * time.Millisecond)

	// Another session of the same user uploads.
	env.request(t, http.MethodPost, "/sync/menu", token, entriesEnvelope{Entries: []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"v":1}`), UpdatedAt: "2024-06-01T00:00:00Z"},
	}}, nil)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event changeEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "changed", event.Op)
	assert.Equal(t, models.DomainMenu, event.Domain)
}

// postEntries uploads one entry with the given originating session ID.
func (e *testEnv) postEntries(t *testing.T, token, sessionID, path string) {
	t.Helper()

	payload, err := json.Marshal(entriesEnvelope{Entries: []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"v":1}`), UpdatedAt: "2024-06-01T00:00:00Z"},
	}})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(sessionHeader, sessionID)

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChangeEventSkipsOriginSession(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "user@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + env.srv.URL[len("http"):] + "/sync/events"

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + token},
			sessionHeader:   []string{"laptop-1"},
		},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	time.Sleep(100 * time.Millisecond)

	// An upload from the session holding the watch connection must not
	// echo back to it: a watcher that re-syncs on its own upload events
	// would feed itself uploads forever.
	env.postEntries(t, token, "laptop-1", "/sync/menu")

	// A different session's upload still fans out.
	env.postEntries(t, token, "phone-1", "/sync/workouts")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var event changeEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "changed", event.Op)
	assert.Equal(t, models.DomainWorkouts, event.Domain, "first frame must be the foreign upload, not the watcher's own")

	// Nothing else is pending: the watcher's own upload produced no frame.
	readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	code := env.request(t, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	resp, err := env.srv.Client().Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
