package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(payload, updatedAt string) models.Entry {
	return models.Entry{Payload: json.RawMessage(payload), UpdatedAt: updatedAt}
}

func wire(key, payload, updatedAt string) models.WireEntry {
	return models.WireEntry{Key: key, Payload: json.RawMessage(payload), UpdatedAt: updatedAt}
}

func TestParseStamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", "2024-06-01T10:00:00Z", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"rfc3339 nano", "2024-06-01T10:00:00.5Z", time.Date(2024, 6, 1, 10, 0, 0, 500_000_000, time.UTC)},
		{"bare date", "2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"no zone", "2024-06-01T10:00:00", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"space separated", "2024-06-01 10:00:00", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "not-a-date", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, ParseStamp(tt.input).Equal(tt.want))
		})
	}
}

func TestMergeLastWriteWins(t *testing.T) {
	tests := []struct {
		name   string
		local  map[string]models.Entry
		server []models.WireEntry
		want   map[string]models.Entry
	}{
		{
			name:   "server strictly newer wins",
			local:  map[string]models.Entry{"2024-06-01": entry(`{"protein":["x"]}`, "2024-06-01T10:00:00Z")},
			server: []models.WireEntry{wire("2024-06-01", `{"protein":["x","y"]}`, "2024-06-01T12:00:00Z")},
			want:   map[string]models.Entry{"2024-06-01": entry(`{"protein":["x","y"]}`, "2024-06-01T12:00:00Z")},
		},
		{
			name:   "local newer kept",
			local:  map[string]models.Entry{"2024-06-01": entry(`{"v":1}`, "2024-06-02T00:00:00Z")},
			server: []models.WireEntry{wire("2024-06-01", `{"v":2}`, "2024-06-01T00:00:00Z")},
			want:   map[string]models.Entry{"2024-06-01": entry(`{"v":1}`, "2024-06-02T00:00:00Z")},
		},
		{
			name:   "tie keeps local",
			local:  map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
			server: []models.WireEntry{wire("k", `{"v":2}`, "2024-06-01T10:00:00Z")},
			want:   map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
		},
		{
			name:   "server-only key added",
			local:  map[string]models.Entry{},
			server: []models.WireEntry{wire("k", `{"v":2}`, "2024-06-01T10:00:00Z")},
			want:   map[string]models.Entry{"k": entry(`{"v":2}`, "2024-06-01T10:00:00Z")},
		},
		{
			name:   "local-only key survives",
			local:  map[string]models.Entry{"only-local": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
			server: nil,
			want:   map[string]models.Entry{"only-local": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
		},
		{
			name:   "missing local stamp treated as oldest",
			local:  map[string]models.Entry{"k": entry(`{"v":1}`, "")},
			server: []models.WireEntry{wire("k", `{"v":2}`, "2024-06-01T10:00:00Z")},
			want:   map[string]models.Entry{"k": entry(`{"v":2}`, "2024-06-01T10:00:00Z")},
		},
		{
			name:   "invalid server stamp never preferred",
			local:  map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
			server: []models.WireEntry{wire("k", `{"v":2}`, "garbage")},
			want:   map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
		},
		{
			name:   "malformed server payload skipped",
			local:  map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
			server: []models.WireEntry{wire("k", `{broken`, "2024-06-02T10:00:00Z")},
			want:   map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")},
		},
		{
			name:   "empty both",
			local:  map[string]models.Entry{},
			server: []models.WireEntry{},
			want:   map[string]models.Entry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.local, tt.server, false)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergePrioritizeServer(t *testing.T) {
	local := map[string]models.Entry{
		"A": entry(`{"payload":1}`, "2024-01-02T00:00:00Z"),
		"B": entry(`{"payload":9}`, "2024-01-05T00:00:00Z"),
	}
	server := []models.WireEntry{
		// Older than local A, still wins: server is authoritative.
		wire("A", `{"payload":2}`, "2024-01-01T00:00:00Z"),
	}

	got := Merge(local, server, true)

	want := map[string]models.Entry{
		"A": entry(`{"payload":2}`, "2024-01-01T00:00:00Z"),
	}
	assert.Equal(t, want, got)
}

func TestMergeEmptyServerWithPriorityYieldsEmpty(t *testing.T) {
	local := map[string]models.Entry{"A": entry(`{"v":1}`, "2024-01-01T00:00:00Z")}

	assert.Empty(t, Merge(local, nil, true))
	assert.Empty(t, Merge(map[string]models.Entry{}, []models.WireEntry{}, true))
	assert.Empty(t, Merge(map[string]models.Entry{}, []models.WireEntry{}, false))
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	local := map[string]models.Entry{"k": entry(`{"v":1}`, "2024-06-01T10:00:00Z")}
	server := []models.WireEntry{wire("k", `{"v":2}`, "2024-06-02T10:00:00Z")}

	_ = Merge(local, server, false)

	assert.Equal(t, entry(`{"v":1}`, "2024-06-01T10:00:00Z"), local["k"])
}

func TestMergeIdempotence(t *testing.T) {
	m := map[string]models.Entry{
		"2024-06-01": entry(`{"protein":["x"]}`, "2024-06-01T10:00:00Z"),
		"2024-06-02": entry(`{"protein":["y"]}`, "2024-06-02T10:00:00Z"),
	}

	assert.Equal(t, m, Merge(m, ProjectToWire(m), false))
}

func TestMergeRoundTrip(t *testing.T) {
	local := map[string]models.Entry{
		"2024-06-01": entry(`{"a":1}`, "2024-06-01T10:00:00Z"),
		"2024-06-03": entry(`{"b":2}`, "2024-06-03T08:30:00Z"),
	}

	got := ProjectToWire(Merge(local, ProjectToWire(local), false))
	assert.Equal(t, ProjectToWire(local), got)
}

func TestMergeDeterminism(t *testing.T) {
	local := map[string]models.Entry{
		"a": entry(`{"v":1}`, "2024-06-01T00:00:00Z"),
		"b": entry(`{"v":2}`, "2024-06-02T00:00:00Z"),
		"c": entry(`{"v":3}`, "2024-06-03T00:00:00Z"),
	}
	server := []models.WireEntry{
		wire("b", `{"v":20}`, "2024-06-05T00:00:00Z"),
		wire("d", `{"v":4}`, "2024-06-04T00:00:00Z"),
	}

	first, err := json.Marshal(ProjectToWire(Merge(local, server, false)))
	require.NoError(t, err)

	for range 20 {
		again, err := json.Marshal(ProjectToWire(Merge(local, server, false)))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestProjectToWireSortsAndDefaultsStamps(t *testing.T) {
	m := map[string]models.Entry{
		"2024-06-03": entry(`{"v":3}`, "2024-06-03T00:00:00Z"),
		"2024-06-01": entry(`{"v":1}`, "2024-06-01T00:00:00Z"),
		"2024-06-02": entry(`{"v":2}`, ""),
	}

	got := ProjectToWire(m)
	require.Len(t, got, 3)

	assert.Equal(t, "2024-06-01", got[0].Key)
	assert.Equal(t, "2024-06-02", got[1].Key)
	assert.Equal(t, "2024-06-03", got[2].Key)

	// The stampless entry gets a fresh parseable timestamp.
	assert.False(t, ParseStamp(got[1].UpdatedAt).IsZero())
}

func TestApplyLocalMutation(t *testing.T) {
	before := map[string]models.Entry{
		"2024-06-01": entry(`{"v":1}`, "2024-06-01T10:00:00Z"),
	}

	after := ApplyLocalMutation(before, "2024-06-01", []byte(`{"v":2}`))

	// Original mapping untouched.
	assert.Equal(t, entry(`{"v":1}`, "2024-06-01T10:00:00Z"), before["2024-06-01"])

	got := after["2024-06-01"]
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
	assert.True(t, ParseStamp(got.UpdatedAt).After(ParseStamp("2024-06-01T10:00:00Z")))
}

func TestApplyLocalMutationStampStrictlyIncreases(t *testing.T) {
	// Prior entry stamped in the future: the new stamp must still be
	// strictly greater.
	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339Nano)
	before := map[string]models.Entry{"k": entry(`{"v":1}`, future)}

	after := ApplyLocalMutation(before, "k", []byte(`{"v":2}`))
	assert.True(t, ParseStamp(after["k"].UpdatedAt).After(ParseStamp(future)))
}

func TestApplyLocalMutationAddsNewKey(t *testing.T) {
	after := ApplyLocalMutation(nil, "2024-06-09", []byte(`{"muscle":true}`))

	require.Contains(t, after, "2024-06-09")
	assert.False(t, ParseStamp(after["2024-06-09"].UpdatedAt).IsZero())
}

func TestPrune(t *testing.T) {
	before := map[string]models.Entry{
		"cleared": entry(`{"protein":[],"carbs":[],"fat":[],"freeCalories":0}`, "2024-06-02T00:00:00Z"),
		"kept":    entry(`{"protein":[{"id":1,"name":"Tofu"}]}`, "2024-06-01T00:00:00Z"),
	}

	after := Prune(before)

	assert.Len(t, before, 2)
	assert.Len(t, after, 1)
	assert.Contains(t, after, "kept")
	assert.NotContains(t, after, "cleared")
}

func TestValidPayload(t *testing.T) {
	assert.True(t, ValidPayload([]byte(`{"v":1}`)))
	assert.True(t, ValidPayload([]byte(`[]`)))
	assert.False(t, ValidPayload(nil))
	assert.False(t, ValidPayload([]byte(`{broken`)))
}

func TestEmptyPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"empty menu day", `{"protein":[],"carbs":[],"fat":[],"freeCalories":0}`, true},
		{"menu day with food", `{"protein":[{"id":1,"name":"Tofu"}],"carbs":[],"fat":[],"freeCalories":0}`, false},
		{"free calories only", `{"protein":[],"carbs":[],"fat":[],"freeCalories":150}`, false},
		{"empty workout day", `{"muscle":false,"cardio":false,"notes":"","completedExercises":{}}`, true},
		{"cardio day", `{"muscle":false,"cardio":true}`, false},
		{"notes only", `{"muscle":false,"cardio":false,"notes":"rest"}`, false},
		{"empty object", `{}`, true},
		{"null", `null`, true},
		{"malformed counts as empty", `{broken`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmptyPayload([]byte(tt.payload)))
		})
	}
}
