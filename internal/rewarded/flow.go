package rewarded

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/arrowpuzzle/rewardflow/internal/adprovider"
	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	xlog "github.com/arrowpuzzle/rewardflow/internal/log"
	"github.com/arrowpuzzle/rewardflow/internal/metrics"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 45 * time.Second
)

// AdUnit is the static client-side configuration for one placement.
type AdUnit struct {
	BlockID string
	Enabled bool
}

// Request describes one rewarded-flow invocation.
type Request struct {
	Placement ledger.Placement `json:"placement"`
	SessionID string           `json:"session_id,omitempty"`
	Level     *int             `json:"level,omitempty"`
}

// Flow runs exactly one rewarded-ad attempt per call. Every failure becomes
// a typed Outcome; the only error that unwinds the call stack is session
// expiry, which the caller's session handler must consume.
type Flow struct {
	ledger       ledger.ClientInterface
	provider     adprovider.Provider
	store        *intentstore.Store
	units        map[ledger.Placement]AdUnit
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Option tweaks flow timing, mainly for tests.
type Option func(*Flow)

// WithPollInterval overrides the delay between status-poll iterations.
func WithPollInterval(d time.Duration) Option {
	return func(f *Flow) { f.pollInterval = d }
}

// WithPollTimeout overrides the total status-poll budget.
func WithPollTimeout(d time.Duration) Option {
	return func(f *Flow) { f.pollTimeout = d }
}

// NewFlow creates an orchestrator over the given collaborators.
func NewFlow(lc ledger.ClientInterface, provider adprovider.Provider, store *intentstore.Store, units map[ledger.Placement]AdUnit, opts ...Option) *Flow {
	f := &Flow{
		ledger:       lc,
		provider:     provider,
		store:        store,
		units:        units,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run drives one attempt: preflight, create intent, show ad, resolve.
func (f *Flow) Run(ctx context.Context, req Request) (Outcome, error) {
	out, err := f.run(ctx, req)
	if err == nil {
		metrics.ObserveFlowOutcome(string(req.Placement), string(out.Kind))
	}
	return out, err
}

func (f *Flow) run(ctx context.Context, req Request) (Outcome, error) {
	logger := xlog.WithComponentFromContext(ctx, "rewarded").With().
		Str(xlog.FieldPlacement, string(req.Placement)).Logger()

	// Preflight: no network contact when the unit cannot serve.
	unit, ok := f.units[req.Placement]
	if !req.Placement.Valid() || !ok || !unit.Enabled || unit.BlockID == "" {
		logger.Info().Str(xlog.FieldEvent, "flow.unavailable").Msg("ad unit not configured or disabled")
		return Outcome{Kind: OutcomeUnavailable}, nil
	}

	intent, err := f.ledger.CreateIntent(ctx, ledger.CreateRequest{
		Placement: req.Placement,
		SessionID: req.SessionID,
		Level:     req.Level,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrSessionExpired) {
			return Outcome{}, err
		}
		if rej, ok := ledger.AsRejection(err); ok {
			logger.Info().
				Str(xlog.FieldEvent, "flow.create_rejected").
				Str(xlog.FieldFailureCode, rej.FailureCode).
				Msg("ledger refused to open intent")
			return Outcome{Kind: OutcomeRejected, FailureCode: rej.FailureCode}, nil
		}
		logger.Warn().Err(err).Str(xlog.FieldEvent, "flow.create_failed").Msg("create intent failed")
		return Outcome{Kind: OutcomeError, Retriable: true}, nil
	}

	ctx = xlog.ContextWithIntentID(ctx, intent.IntentID)
	logger = logger.With().Str(xlog.FieldIntentID, intent.IntentID).Logger()
	f.store.UpsertActiveIntent(intent)
	logger.Info().Str(xlog.FieldEvent, "flow.intent_created").Msg("intent opened, showing ad")

	// The provider owns its own timeout; no second deadline here.
	if _, err := f.provider.Show(ctx, unit.BlockID); err != nil {
		if errors.Is(err, adprovider.ErrNotCompleted) {
			// The user action makes a later grant from this attempt impossible,
			// so the intent must not stay trackable. Cancel is fire-and-forget;
			// the ledger's own expiry backstops a lost cancel.
			if cerr := f.ledger.Cancel(ctx, intent.IntentID); cerr != nil {
				logger.Debug().Err(cerr).Str(xlog.FieldEvent, "flow.cancel_failed").Msg("best-effort cancel failed")
			}
			f.store.ClearActiveIntent(intent.Placement, intent.IntentID)
			logger.Info().Str(xlog.FieldEvent, "flow.not_completed").Msg("user closed ad before completion")
			return Outcome{Kind: OutcomeNotCompleted, IntentID: intent.IntentID, Retriable: true}, nil
		}
		// SDK/network fault: the provider's backend may still settle the
		// intent asynchronously, so it stays tracked for the reconciler.
		logger.Warn().Err(err).Str(xlog.FieldEvent, "flow.provider_error").Msg("ad display failed")
		return Outcome{Kind: OutcomeProviderError, IntentID: intent.IntentID, Retriable: true}, nil
	}

	logger.Info().Str(xlog.FieldEvent, "flow.ad_completed").Msg("ad finished, settling intent")

	// Fast path: synchronous client-complete.
	st, err := f.ledger.ClientComplete(ctx, intent.IntentID)
	switch {
	case err == nil && st.Status.Terminal():
		return f.resolve(logger, st), nil
	case err == nil:
		// Still pending: the ledger has not settled a race with its own
		// webhook yet. Fall through to polling.
	case errors.Is(err, ledger.ErrSessionExpired):
		return Outcome{}, err
	default:
		logger.Warn().Err(err).Str(xlog.FieldEvent, "flow.complete_failed").Msg("client-complete failed, polling")
	}

	return f.poll(ctx, logger, intent.IntentID, req.Placement)
}

// Resume continues polling an intent preserved by an earlier timeout outcome
// instead of opening a duplicate.
func (f *Flow) Resume(ctx context.Context, placement ledger.Placement, intentID string) (Outcome, error) {
	ctx = xlog.ContextWithIntentID(ctx, intentID)
	logger := xlog.WithComponentFromContext(ctx, "rewarded").With().
		Str(xlog.FieldPlacement, string(placement)).Logger()

	if _, ok := f.store.ActiveIntent(placement); !ok {
		// Re-track so a resolution observed while polling flows through the
		// store's single choke point.
		f.store.UpsertActiveIntent(ledger.Intent{IntentID: intentID, Placement: placement, Status: ledger.StatusPending})
	}
	out, err := f.poll(ctx, logger, intentID, placement)
	if err == nil {
		metrics.ObserveFlowOutcome(string(placement), string(out.Kind))
	}
	return out, err
}

// poll queries the intent status every pollInterval for up to pollTimeout.
// Transient errors are absorbed; session expiry escapes immediately; any
// terminal status ends the loop. Running out of budget while still pending
// yields a timeout outcome with the intent ID preserved.
func (f *Flow) poll(ctx context.Context, logger zerolog.Logger, intentID string, placement ledger.Placement) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.FlowPollDuration.WithLabelValues(string(placement)).Observe(time.Since(start).Seconds())
	}()

	deadline := start.Add(f.pollTimeout)
	var last *ledger.IntentStatus

	for {
		st, err := f.ledger.IntentStatus(ctx, intentID)
		switch {
		case err == nil && st.Status.Terminal():
			return f.resolve(logger, st), nil
		case err == nil:
			cp := st
			last = &cp
		case errors.Is(err, ledger.ErrSessionExpired):
			return Outcome{}, err
		default:
			logger.Debug().Err(err).Str(xlog.FieldEvent, "flow.poll_error").Msg("status query failed, continuing")
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			logger.Info().Str(xlog.FieldEvent, "flow.poll_timeout").Msg("poll budget exhausted, intent left for reconciler")
			return Outcome{Kind: OutcomeTimeout, IntentID: intentID, Status: last, Retriable: true}, nil
		}

		wait := f.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			// Caller went away mid-poll; the intent stays tracked exactly like
			// a timeout so the reconciler or Resume can finish the job.
			return Outcome{Kind: OutcomeTimeout, IntentID: intentID, Status: last, Retriable: true}, nil
		}
	}
}

// resolve applies a terminal status through the store's choke point and maps
// it to an outcome.
func (f *Flow) resolve(logger zerolog.Logger, st ledger.IntentStatus) Outcome {
	f.store.MarkResolved(st)
	cp := st
	if st.Status == ledger.StatusGranted {
		logger.Info().Str(xlog.FieldEvent, "flow.granted").Msg("reward granted")
		return Outcome{Kind: OutcomeGranted, IntentID: st.IntentID, Status: &cp}
	}
	logger.Info().
		Str(xlog.FieldEvent, "flow.rejected").
		Str(xlog.FieldStatus, string(st.Status)).
		Str(xlog.FieldFailureCode, st.FailureCode).
		Msg("intent settled without grant")
	return Outcome{Kind: OutcomeRejected, IntentID: st.IntentID, Status: &cp, FailureCode: st.FailureCode}
}
