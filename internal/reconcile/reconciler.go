// Package reconcile re-derives reward-intent truth from the ledger
// independently of the original request path. It is the recovery mechanism
// for flows that timed out, failed in the provider, or were interrupted by
// the app being suspended.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	xlog "github.com/arrowpuzzle/rewardflow/internal/log"
	"github.com/arrowpuzzle/rewardflow/internal/metrics"
	"github.com/arrowpuzzle/rewardflow/internal/rewarded"
)

const defaultInterval = 5 * time.Second

// AuthState answers whether the session can talk to the ledger at all.
// Cycles are skipped entirely while unauthenticated.
type AuthState interface {
	Authenticated() bool
}

// AuthStateFunc adapts a func to AuthState.
type AuthStateFunc func() bool

func (f AuthStateFunc) Authenticated() bool { return f() }

// Reconciler runs a periodic, event-triggered reconciliation loop.
// Concurrent triggers collapse onto one in-flight cycle (single-flight);
// that is the only concurrency-control primitive in the subsystem.
type Reconciler struct {
	ledger   ledger.ClientInterface
	store    *intentstore.Store
	auth     AuthState
	interval time.Duration
	sf       singleflight.Group
	triggers chan string
	expired  func()
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInterval overrides the fixed reconcile cadence.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// WithSessionExpiredHook installs a callback invoked when a cycle aborts on
// session expiry, so the host can clear state and force re-authentication.
func WithSessionExpiredHook(fn func()) Option {
	return func(r *Reconciler) { r.expired = fn }
}

// New creates a reconciler over the given collaborators.
func New(lc ledger.ClientInterface, store *intentstore.Store, auth AuthState, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:   lc,
		store:    store,
		auth:     auth,
		interval: defaultInterval,
		triggers: make(chan string, 8),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify feeds an external trigger signal (foreground, resume, reachability
// change) into the loop. Never blocks; while a cycle is in flight the
// single-flight group absorbs the extra trigger anyway.
func (r *Reconciler) Notify(reason string) {
	select {
	case r.triggers <- reason:
	default:
	}
}

// Run blocks until ctx is cancelled, reconciling on session start, on every
// external trigger and on the fixed interval.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runGuarded(ctx, "session_start")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runGuarded(ctx, "interval")
		case reason := <-r.triggers:
			r.runGuarded(ctx, reason)
		}
	}
}

func (r *Reconciler) runGuarded(ctx context.Context, trigger string) {
	if err := r.ReconcileNow(ctx, trigger); err != nil {
		if errors.Is(err, ledger.ErrSessionExpired) && r.expired != nil {
			r.expired()
		}
	}
}

// ReconcileNow runs one cycle, or attaches to the cycle already in flight.
// The returned error is non-nil only for session expiry; everything else is
// absorbed with per-intent isolation.
func (r *Reconciler) ReconcileNow(ctx context.Context, trigger string) error {
	// Decouple the shared cycle from the lifetime of whichever trigger
	// started it, so one caller going away cannot cancel everyone's cycle.
	shared := context.WithoutCancel(ctx)
	_, err, _ := r.sf.Do("cycle", func() (any, error) {
		return nil, r.cycle(shared, trigger)
	})
	return err
}

func (r *Reconciler) cycle(ctx context.Context, trigger string) error {
	if !r.auth.Authenticated() {
		metrics.ReconcileCycleTotal.WithLabelValues("skipped_unauthenticated").Inc()
		return nil
	}

	ctx = xlog.ContextWithCycleID(ctx, uuid.NewString())
	logger := xlog.WithComponentFromContext(ctx, "reconcile").With().
		Str(xlog.FieldTrigger, trigger).Logger()
	logger.Debug().Str(xlog.FieldEvent, "reconcile.start").Msg("cycle started")

	// Remember what the client still has a private interest in before the
	// authoritative snapshot replaces the map. An intent that just polled
	// into timeout is not necessarily surfaced by the bulk listing anymore.
	prior := r.store.ActiveIntents()

	tracked := make(map[string]ledger.Intent, len(prior))
	for _, in := range prior {
		tracked[in.IntentID] = in
	}

	list, err := r.ledger.ActiveIntents(ctx)
	switch {
	case errors.Is(err, ledger.ErrSessionExpired):
		metrics.ReconcileCycleTotal.WithLabelValues("session_expired").Inc()
		return err
	case err != nil:
		// Keep working from the client's own references this cycle; the next
		// one will replace the map.
		logger.Warn().Err(err).Str(xlog.FieldEvent, "reconcile.list_failed").Msg("active-intent listing failed")
	default:
		r.store.SetActiveIntents(list)
		for _, in := range list {
			tracked[in.IntentID] = in
		}
		// Re-track prior references the snapshot dropped: an intent the
		// listing no longer surfaces may simply have settled server-side, and
		// its resolution must still pass through the store's choke point. A
		// placement the snapshot did claim keeps the server's entry.
		for _, in := range prior {
			if _, ok := r.store.ActiveIntent(in.Placement); !ok {
				r.store.UpsertActiveIntent(in)
			}
		}
	}

	ids := make([]string, 0, len(tracked))
	for id := range tracked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resolved := 0
	for _, id := range ids {
		if err := r.reconcileIntent(ctx, logger, tracked[id], &resolved); err != nil {
			// Session expiry aborts the remaining cycle without touching the
			// intents not yet visited; everything else was absorbed below.
			metrics.ReconcileCycleTotal.WithLabelValues("session_expired").Inc()
			return err
		}
	}

	metrics.ReconcileCycleTotal.WithLabelValues("ok").Inc()
	logger.Debug().
		Str(xlog.FieldEvent, "reconcile.done").
		Int("tracked", len(ids)).
		Int("resolved", resolved).
		Msg("cycle finished")
	return nil
}

// reconcileIntent fetches one intent's truth and applies it. A non-auth
// error skips just this intent, so one bad intent cannot block the rest.
func (r *Reconciler) reconcileIntent(ctx context.Context, logger zerolog.Logger, in ledger.Intent, resolved *int) error {
	st, err := r.ledger.IntentStatus(ctx, in.IntentID)
	if err != nil {
		if errors.Is(err, ledger.ErrSessionExpired) {
			return err
		}
		logger.Debug().Err(err).
			Str(xlog.FieldEvent, "reconcile.intent_skipped").
			Str(xlog.FieldIntentID, in.IntentID).
			Msg("status fetch failed, will retry next cycle")
		return nil
	}

	if !st.Status.Terminal() {
		refreshed := in
		refreshed.Status = st.Status
		r.store.UpsertActiveIntent(refreshed)
		return nil
	}

	// Same resolution path as the orchestrator's fast path; MarkResolved's
	// applied check is what keeps the two from double-announcing one intent.
	if r.store.MarkResolved(st) {
		msg, tone := rewarded.ToastFor(st)
		r.store.EnqueueToast(msg, tone)
		metrics.ReconcileResolvedTotal.WithLabelValues(string(st.Placement), string(st.Status)).Inc()
		*resolved++
		logger.Info().
			Str(xlog.FieldEvent, "reconcile.resolved").
			Str(xlog.FieldIntentID, st.IntentID).
			Str(xlog.FieldPlacement, string(st.Placement)).
			Str(xlog.FieldStatus, string(st.Status)).
			Str(xlog.FieldFailureCode, st.FailureCode).
			Msg("intent settled in background")
	}
	return nil
}
