// Package syncer reconciles the local cache with the server. The client
// is the smart side: it merges, then uploads the merged view for the
// server to store verbatim.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alexjbarnes/fittrack/internal/api"
	"github.com/alexjbarnes/fittrack/internal/models"
	"github.com/alexjbarnes/fittrack/internal/reconcile"
	"github.com/alexjbarnes/fittrack/internal/state"
)

const (
	// errorDisplayDuration is how long a failed sync keeps its error
	// status before reverting to idle.
	errorDisplayDuration = 5 * time.Second

	// watchBackoffInitial and watchBackoffMax bound the reconnect delay
	// for the change-notification stream.
	watchBackoffInitial = time.Second
	watchBackoffMax     = time.Minute
)

// Phase describes what a domain's sync is currently doing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseOffline
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseSyncing:
		return "syncing"
	case PhaseOffline:
		return "offline"
	case PhaseError:
		return "error"
	default:
		return "idle"
	}
}

// Status is the last observed sync outcome for one domain.
type Status struct {
	Phase    Phase
	Err      error
	LastSync time.Time
}

// API is the server surface the syncer needs. *api.Client satisfies it.
type API interface {
	Download(ctx context.Context, domain models.Domain) ([]models.WireEntry, error)
	Upload(ctx context.Context, domain models.Domain, entries []models.WireEntry) error
}

// Syncer coordinates per-domain reconciliation between the local cache
// and the server. Safe for concurrent use; concurrent syncs of the
// same domain are coalesced into one.
type Syncer struct {
	api    API
	state  *state.State
	userID string
	logger *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	statuses map[models.Domain]Status

	// onStatus, when set, is invoked after every status transition.
	// Used by the CLI to render progress.
	onStatus func(domain models.Domain, st Status)
}

// New creates a Syncer for the given user's namespaces.
func New(apiClient API, st *state.State, userID string, logger *slog.Logger) *Syncer {
	return &Syncer{
		api:      apiClient,
		state:    st,
		userID:   userID,
		logger:   logger,
		statuses: make(map[models.Domain]Status),
	}
}

// OnStatus registers a status-transition callback. Must be called
// before the first Sync.
func (s *Syncer) OnStatus(fn func(domain models.Domain, st Status)) {
	s.onStatus = fn
}

func (s *Syncer) namespace(domain models.Domain) state.Namespace {
	return state.Namespace{UserID: s.userID, Domain: domain}
}

// Sync reconciles one domain with the server. Concurrent calls for the
// same domain share a single flight; each caller receives the shared
// result.
func (s *Syncer) Sync(ctx context.Context, domain models.Domain) error {
	_, err, _ := s.group.Do(string(domain), func() (interface{}, error) {
		return nil, s.syncOnce(ctx, domain)
	})

	return err
}

// SyncAll reconciles every synced domain, continuing past individual
// failures and returning the first error encountered.
func (s *Syncer) SyncAll(ctx context.Context) error {
	var firstErr error

	for _, domain := range models.SyncedDomains {
		if err := s.Sync(ctx, domain); err != nil {
			s.logger.Warn("sync failed",
				slog.String("domain", string(domain)),
				slog.Any("error", err),
			)

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// syncOnce is the full pull-merge-store-push cycle for one domain.
//
// An empty local namespace means this is the first sync after login on
// this device, so the server copy is taken as authoritative. Any
// failure before the local save leaves the cache exactly as it was.
func (s *Syncer) syncOnce(ctx context.Context, domain models.Domain) error {
	s.setStatus(domain, Status{Phase: PhaseSyncing})

	ns := s.namespace(domain)

	local, err := s.state.Entries(ns)
	if err != nil {
		return s.fail(domain, fmt.Errorf("loading local %s entries: %w", domain, err))
	}

	prioritizeServer := len(local) == 0

	server, err := s.api.Download(ctx, domain)
	if err != nil {
		return s.fail(domain, fmt.Errorf("downloading %s: %w", domain, err))
	}

	merged := reconcile.Merge(local, server, prioritizeServer)

	if err := s.state.SaveEntries(ns, merged); err != nil {
		return s.fail(domain, fmt.Errorf("saving merged %s entries: %w", domain, err))
	}

	if err := s.api.Upload(ctx, domain, reconcile.ProjectToWire(merged)); err != nil {
		// The merged view is already durable locally. The next sync
		// re-uploads it, so an upload failure only delays convergence.
		return s.fail(domain, fmt.Errorf("uploading %s: %w", domain, err))
	}

	// Deletion tombstones (empty payloads) have now been asserted on
	// the server, so the cache can drop the empty shells. Pruning before
	// the upload acknowledgment would lose an unpushed deletion.
	if err := s.state.SaveEntries(ns, reconcile.Prune(merged)); err != nil {
		return s.fail(domain, fmt.Errorf("pruning %s entries: %w", domain, err))
	}

	s.setStatus(domain, Status{Phase: PhaseIdle, LastSync: time.Now()})
	s.logger.Debug("sync complete",
		slog.String("domain", string(domain)),
		slog.Int("entries", len(merged)),
		slog.Bool("server_priority", prioritizeServer),
	)

	return nil
}

// Apply records a local mutation for key and pushes it to the server.
// A payload with no meaningful values deletes the entry: the local
// cache drops it, while the upload carries it as a freshly stamped
// empty tombstone so the deletion wins the timestamp merge on the
// server and on other devices instead of being resurrected by their
// stale copies. The local write is the source of truth: an unreachable
// server does not fail the mutation, it only defers the push to the
// next sync.
func (s *Syncer) Apply(ctx context.Context, domain models.Domain, key string, payload []byte) error {
	if !reconcile.ValidPayload(payload) {
		return fmt.Errorf("applying %s/%s: payload is not valid JSON", domain, key)
	}

	ns := s.namespace(domain)

	local, err := s.state.Entries(ns)
	if err != nil {
		return fmt.Errorf("loading local %s entries: %w", domain, err)
	}

	next := reconcile.ApplyLocalMutation(local, key, payload)

	if err := s.state.SaveEntries(ns, next); err != nil {
		return fmt.Errorf("saving %s entries: %w", domain, err)
	}

	if err := s.api.Upload(ctx, domain, reconcile.ProjectToWire(next)); err != nil {
		if api.IsTransient(err) {
			// The mutation (or its tombstone) stays in the cache, so
			// the next sync's merge still carries it.
			s.setStatus(domain, Status{Phase: PhaseOffline, Err: err})
			s.logger.Warn("mutation saved locally, push deferred",
				slog.String("domain", string(domain)),
				slog.String("key", key),
				slog.Any("error", err),
			)

			return nil
		}

		return fmt.Errorf("uploading %s after mutation: %w", domain, err)
	}

	// Acknowledged: a cleared entry is durable on the server as an
	// empty tombstone, so the cache no longer needs the empty shell.
	if err := s.state.SaveEntries(ns, reconcile.Prune(next)); err != nil {
		return fmt.Errorf("pruning %s entries: %w", domain, err)
	}

	s.setStatus(domain, Status{Phase: PhaseIdle, LastSync: time.Now()})

	return nil
}

// Remove deletes the entry for key locally and on the server.
func (s *Syncer) Remove(ctx context.Context, domain models.Domain, key string) error {
	return s.Apply(ctx, domain, key, []byte(`{}`))
}

// Watch consumes the change-notification stream, re-syncing a domain
// whenever another session uploads to it. Reconnects with exponential
// backoff until the context is cancelled.
func (s *Syncer) Watch(ctx context.Context, events *api.Events) error {
	backoff := watchBackoffInitial

	for {
		start := time.Now()

		err := events.Listen(ctx, func(domain models.Domain) {
			if err := s.Sync(ctx, domain); err != nil {
				s.logger.Warn("event-triggered sync failed",
					slog.String("domain", string(domain)),
					slog.Any("error", err),
				)
			}
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that survived a while earns a fresh backoff.
		if time.Since(start) > watchBackoffMax {
			backoff = watchBackoffInitial
		}

		s.logger.Warn("event stream dropped, reconnecting",
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > watchBackoffMax {
			backoff = watchBackoffMax
		}
	}
}

// Status returns the last observed status for a domain.
func (s *Syncer) Status(domain models.Domain) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statuses[domain]
}

func (s *Syncer) setStatus(domain models.Domain, st Status) {
	s.mu.Lock()
	if st.LastSync.IsZero() {
		st.LastSync = s.statuses[domain].LastSync
	}
	s.statuses[domain] = st
	s.mu.Unlock()

	if s.onStatus != nil {
		s.onStatus(domain, st)
	}
}

// fail records the error status, schedules its reversion to idle, and
// returns the error for the caller.
func (s *Syncer) fail(domain models.Domain, err error) error {
	phase := PhaseError
	if api.IsTransient(err) {
		phase = PhaseOffline
	}

	s.setStatus(domain, Status{Phase: phase, Err: err})

	time.AfterFunc(errorDisplayDuration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if cur := s.statuses[domain]; cur.Phase == phase && cur.Err == err {
			s.statuses[domain] = Status{Phase: PhaseIdle, LastSync: cur.LastSync}
		}
	})

	return err
}
