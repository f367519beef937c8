package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/fittrack/internal/models"
)

// newTestClient creates a Client pointed at the given httptest server.
func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
	}
}

// --- do() internals ---

func TestDo_SetsContentTypeAndBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.SetToken("tok-1")
	err := c.do(context.Background(), http.MethodGet, "/test", nil, nil)
	require.NoError(t, err)
}

func TestDo_NoAuthHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.do(context.Background(), http.MethodGet, "/test", nil, nil)
	require.NoError(t, err)
}

func TestDo_SendsSessionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "laptop-1", r.Header.Get("X-Session-Id"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.SetSessionID("laptop-1")
	err := c.do(context.Background(), http.MethodPost, "/sync/menu", nil, nil)
	require.NoError(t, err)
}

func TestNewClientGeneratesSessionID(t *testing.T) {
	c := NewClient("http://localhost:1", nil)
	require.NotEmpty(t, c.SessionID())

	// An empty override is ignored; the generated ID stays.
	generated := c.SessionID()
	c.SetSessionID("")
	assert.Equal(t, generated, c.SessionID())

	c.SetSessionID("laptop-1")
	assert.Equal(t, "laptop-1", c.SessionID())
}

func TestDo_NonOKStatusWithAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.do(context.Background(), http.MethodGet, "/sync/menu", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
	assert.Contains(t, err.Error(), "401")
	assert.False(t, IsTransient(err))
}

func TestDo_NonOKStatusWithoutAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`Bad Request`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.do(context.Background(), http.MethodGet, "/test", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Bad Request")
}

func TestDo_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"maintenance"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.do(context.Background(), http.MethodGet, "/sync/menu", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestDo_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv)
	err := c.do(context.Background(), http.MethodGet, "/test", nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

// --- auth ---

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, _ := io.ReadAll(r.Body)
		var req authRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "user@example.com", req.Email)
		assert.Equal(t, "secret", req.Password)

		w.Write([]byte(`{"token":"abc123","user":{"id":"u1","email":"user@example.com","role":"user"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	resp, err := c.Login(context.Background(), "user@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.Token)
	assert.Equal(t, "u1", resp.User.ID)
}

func TestLoginBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Login(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

// --- sync endpoints ---

func TestDownloadEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/menu", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"entries":[{"dayKey":"2024-06-01","data":{"protein":[]},"updatedAt":"2024-06-01T10:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	entries, err := c.Download(context.Background(), models.DomainMenu)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-06-01", entries[0].Key)
	assert.Equal(t, "2024-06-01T10:00:00Z", entries[0].UpdatedAt)
}

func TestDownloadFavoritesFoldsCompositeKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/favorites", r.URL.Path)
		w.Write([]byte(`{"favorites":[{"category":"protein","itemId":3,"item":{"id":3,"name":"chicken"},"updatedAt":"2024-06-01T10:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	entries, err := c.Download(context.Background(), models.DomainFavorites)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "protein/3", entries[0].Key)
	assert.JSONEq(t, `{"id":3,"name":"chicken"}`, string(entries[0].Payload))
}

func TestUploadEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/workouts", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body, _ := io.ReadAll(r.Body)
		var env entriesEnvelope
		require.NoError(t, json.Unmarshal(body, &env))
		require.Len(t, env.Entries, 1)
		assert.Equal(t, "2024-06-01", env.Entries[0].Key)

		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.Upload(context.Background(), models.DomainWorkouts, []models.WireEntry{
		{Key: "2024-06-01", Payload: json.RawMessage(`{"muscle":true}`), UpdatedAt: "2024-06-01T10:00:00Z"},
	})
	require.NoError(t, err)
}

func TestUploadFavoritesSplitsCompositeKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env favoritesEnvelope
		require.NoError(t, json.Unmarshal(body, &env))
		require.Len(t, env.Favorites, 1)
		assert.Equal(t, "protein", env.Favorites[0].Category)
		assert.Equal(t, int64(3), env.Favorites[0].ItemID)

		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.Upload(context.Background(), models.DomainFavorites, []models.WireEntry{
		{Key: "protein/3", Payload: json.RawMessage(`{"id":3}`), UpdatedAt: "2024-06-01T10:00:00Z"},
	})
	require.NoError(t, err)
}

func TestUploadNotAcknowledged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	err := c.Upload(context.Background(), models.DomainMenu, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not acknowledge")
}

func TestFetchAllowances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sync/allowances", r.URL.Path)
		w.Write([]byte(`{"allowances":{"protein":6,"carbs":4,"fat":2,"freeCalories":150}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	got, err := c.FetchAllowances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, got.Protein)
	assert.Equal(t, 150, got.FreeCalories)
}

// --- helpers ---

func TestSanitizeResponseBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"control chars replaced", "a\x00b\x1bc", "a?b?c"},
		{"newlines kept", "line1\nline2", "line1\nline2"},
		{"truncated", strings.Repeat("x", 300), strings.Repeat("x", 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeResponseBody([]byte(tt.in)))
		})
	}
}

func TestSameHostRedirectPolicy(t *testing.T) {
	first := httptest.NewRequest(http.MethodGet, "http://origin.example/a", nil)

	sameHost := httptest.NewRequest(http.MethodGet, "http://origin.example/b", nil)
	assert.NoError(t, sameHostRedirectPolicy(sameHost, []*http.Request{first}))

	otherHost := httptest.NewRequest(http.MethodGet, "http://evil.example/b", nil)
	assert.Error(t, sameHostRedirectPolicy(otherHost, []*http.Request{first}))
}
