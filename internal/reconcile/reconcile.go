// Package reconcile implements the client-side merge core: pure
// functions that combine a locally cached entry mapping with a
// server-provided entry list and project mappings back into the upload
// wire format. Nothing here performs I/O, and malformed records degrade
// per-entry instead of failing a whole merge.
package reconcile

import (
	"sort"
	"time"

	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/tidwall/gjson"
)

// stampLayout is the format used when writing timestamps. Nanosecond
// precision keeps rapid successive local writes distinguishable.
const stampLayout = time.RFC3339Nano

// stampLayouts are tried in order when parsing an entry timestamp.
// Server rows written by older deployments carry bare dates or
// second-precision stamps without a zone.
var stampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseStamp parses an ISO-8601 timestamp. A missing or unparseable
// value returns the zero time, which compares older than any valid
// stamp, so such an entry is never preferred over one with a real
// timestamp.
func ParseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// Merge combines a local mapping with a server entry list.
//
// With prioritizeServer the result is exactly the server entries
// reindexed by key: local content is discarded. Callers select this
// mode when the local cache was empty before the sync (a fresh login on
// this device), so admin-edited server state is not shadowed by stale
// or absent local data.
//
// Otherwise last-write-wins applies per key: a server entry replaces
// the local one only when its timestamp is strictly greater; ties keep
// local. Keys present only locally always survive — the server list is
// never a deletion signal.
//
// Server entries with an invalid payload are skipped rather than
// aborting the merge. Neither input is mutated.
func Merge(local map[string]models.Entry, server []models.WireEntry, prioritizeServer bool) map[string]models.Entry {
	merged := make(map[string]models.Entry, len(local)+len(server))

	if !prioritizeServer {
		for key, entry := range local {
			merged[key] = entry
		}
	}

	for _, se := range server {
		if se.Key == "" || !ValidPayload(se.Payload) {
			continue
		}

		if prioritizeServer {
			merged[se.Key] = models.Entry{Payload: se.Payload, UpdatedAt: se.UpdatedAt}
			continue
		}

		localEntry, exists := merged[se.Key]
		if !exists || ParseStamp(se.UpdatedAt).After(ParseStamp(localEntry.UpdatedAt)) {
			merged[se.Key] = models.Entry{Payload: se.Payload, UpdatedAt: se.UpdatedAt}
		}
	}

	return merged
}

// ProjectToWire flattens a mapping into the list the upload endpoint
// expects, sorted by key so identical mappings always serialize
// identically. An entry missing a timestamp is stamped now; the cache
// contract makes that impossible in practice.
func ProjectToWire(m map[string]models.Entry) []models.WireEntry {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	entries := make([]models.WireEntry, 0, len(keys))

	for _, key := range keys {
		entry := m[key]
		if entry.UpdatedAt == "" {
			entry.UpdatedAt = time.Now().UTC().Format(stampLayout)
		}

		entries = append(entries, models.WireEntry{
			Key:       key,
			Payload:   entry.Payload,
			UpdatedAt: entry.UpdatedAt,
		})
	}

	return entries
}

// ApplyLocalMutation returns a copy of m with the entry at key replaced
// by newPayload stamped now. The input mapping is left untouched so
// callers can keep the prior snapshot for rollback. The new stamp is
// always strictly greater than the replaced entry's stamp, even when
// the wall clock has not advanced past it.
func ApplyLocalMutation(m map[string]models.Entry, key string, newPayload []byte) map[string]models.Entry {
	next := make(map[string]models.Entry, len(m)+1)
	for k, v := range m {
		next[k] = v
	}

	stamp := time.Now().UTC()
	if prev, ok := m[key]; ok {
		if prevStamp := ParseStamp(prev.UpdatedAt); !stamp.After(prevStamp) {
			stamp = prevStamp.Add(time.Nanosecond)
		}
	}

	next[key] = models.Entry{
		Payload:   append([]byte(nil), newPayload...),
		UpdatedAt: stamp.Format(stampLayout),
	}

	return next
}

// Prune returns a copy of m without entries whose payload is empty.
// Cleared entries are kept in uploads as empty tombstones so every
// replica converges on the deletion, but the local cache never stores
// the empty shells. Neither input is mutated.
func Prune(m map[string]models.Entry) map[string]models.Entry {
	next := make(map[string]models.Entry, len(m))

	for k, v := range m {
		if EmptyPayload(v.Payload) {
			continue
		}

		next[k] = v
	}

	return next
}

// ValidPayload reports whether raw is well-formed JSON. The merge skips
// entries that fail this rather than aborting a sync over one bad
// record.
func ValidPayload(raw []byte) bool {
	return len(raw) > 0 && gjson.ValidBytes(raw)
}

// EmptyPayload reports whether a payload carries no information: an
// object whose values are all empty arrays/objects, empty strings,
// zeros, false, or null. Domains use this to drop an entry entirely
// when its last item is removed (e.g. clearing the final food from a
// menu day). The check stays generic so the sync layer never learns
// domain shapes.
func EmptyPayload(raw []byte) bool {
	if !ValidPayload(raw) {
		return true
	}

	return emptyValue(gjson.ParseBytes(raw))
}

func emptyValue(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.True:
		return false
	case gjson.Number:
		return v.Num == 0
	case gjson.String:
		return v.Str == ""
	default:
		empty := true

		v.ForEach(func(_, value gjson.Result) bool {
			if !emptyValue(value) {
				empty = false
				return false
			}

			return true
		})

		return empty
	}
}
