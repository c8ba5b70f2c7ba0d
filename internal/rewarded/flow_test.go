package rewarded_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowpuzzle/rewardflow/internal/adprovider"
	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	"github.com/arrowpuzzle/rewardflow/internal/rewarded"
)

type fakeLedger struct {
	mu          sync.Mutex
	createFn    func(ledger.CreateRequest) (ledger.Intent, error)
	statusFn    func(string) (ledger.IntentStatus, error)
	completeFn  func(string) (ledger.IntentStatus, error)
	cancelErr   error
	cancelled   []string
	statusCalls int
}

func (f *fakeLedger) CreateIntent(_ context.Context, req ledger.CreateRequest) (ledger.Intent, error) {
	if f.createFn != nil {
		return f.createFn(req)
	}
	return ledger.Intent{IntentID: "intent-1", Placement: req.Placement, Status: ledger.StatusPending}, nil
}

func (f *fakeLedger) IntentStatus(_ context.Context, id string) (ledger.IntentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()
	if f.statusFn != nil {
		return f.statusFn(id)
	}
	return ledger.IntentStatus{IntentID: id, Status: ledger.StatusPending}, nil
}

func (f *fakeLedger) ClientComplete(_ context.Context, id string) (ledger.IntentStatus, error) {
	if f.completeFn != nil {
		return f.completeFn(id)
	}
	return ledger.IntentStatus{IntentID: id, Status: ledger.StatusGranted}, nil
}

func (f *fakeLedger) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()
	return f.cancelErr
}

func (f *fakeLedger) ActiveIntents(_ context.Context) ([]ledger.Intent, error) {
	return nil, nil
}

type fakeProvider struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (p *fakeProvider) Show(_ context.Context, blockID string) (adprovider.ShowResult, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return adprovider.ShowResult{}, p.err
	}
	return adprovider.ShowResult{Done: true, State: "completed"}, nil
}

func (p *fakeProvider) showCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func allUnits() map[ledger.Placement]rewarded.AdUnit {
	return map[ledger.Placement]rewarded.AdUnit{
		ledger.PlacementDailyCoins: {BlockID: "block-daily", Enabled: true},
		ledger.PlacementHint:       {BlockID: "block-hint", Enabled: true},
		ledger.PlacementRevive:     {BlockID: "block-revive", Enabled: true},
	}
}

func newFlow(lc ledger.ClientInterface, p adprovider.Provider, store *intentstore.Store) *rewarded.Flow {
	return rewarded.NewFlow(lc, p, store, allUnits(),
		rewarded.WithPollInterval(10*time.Millisecond),
		rewarded.WithPollTimeout(150*time.Millisecond),
	)
}

func TestFlow_GrantedFastPath(t *testing.T) {
	coins := 470
	lc := &fakeLedger{
		completeFn: func(id string) (ledger.IntentStatus, error) {
			return ledger.IntentStatus{
				IntentID:  id,
				Placement: ledger.PlacementDailyCoins,
				Status:    ledger.StatusGranted,
				Coins:     &coins,
			}, nil
		},
	}
	store := intentstore.New(time.Minute)
	flow := newFlow(lc, &fakeProvider{}, store)

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)

	assert.Equal(t, rewarded.OutcomeGranted, out.Kind)
	require.NotNil(t, out.Status)
	require.NotNil(t, out.Status.Coins)
	assert.Equal(t, 470, *out.Status.Coins)

	// Resolution went through the store's choke point.
	_, active := store.ActiveIntent(ledger.PlacementDailyCoins)
	assert.False(t, active)
	res, ok := store.LastResolved(ledger.PlacementDailyCoins)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusGranted, res.Status.Status)
}

func TestFlow_PollTimeoutPreservesIntent(t *testing.T) {
	lc := &fakeLedger{
		completeFn: func(id string) (ledger.IntentStatus, error) {
			return ledger.IntentStatus{}, &ledger.APIError{Sentinel: ledger.ErrUnavailable, Operation: "client_complete"}
		},
		statusFn: func(id string) (ledger.IntentStatus, error) {
			return ledger.IntentStatus{IntentID: id, Placement: ledger.PlacementDailyCoins, Status: ledger.StatusPending}, nil
		},
	}
	store := intentstore.New(time.Minute)
	flow := newFlow(lc, &fakeProvider{}, store)

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)

	assert.Equal(t, rewarded.OutcomeTimeout, out.Kind)
	assert.Equal(t, "intent-1", out.IntentID, "intent ID preserved so polling can resume")
	assert.True(t, out.Retriable)
	require.NotNil(t, out.Status)
	assert.Equal(t, ledger.StatusPending, out.Status.Status)

	// Still tracked for the reconciler.
	got, ok := store.ActiveIntent(ledger.PlacementDailyCoins)
	require.True(t, ok)
	assert.Equal(t, "intent-1", got.IntentID)
}

func TestFlow_CreateRejectedShowsNoAd(t *testing.T) {
	lc := &fakeLedger{
		createFn: func(ledger.CreateRequest) (ledger.Intent, error) {
			return ledger.Intent{}, &ledger.RejectionError{
				Operation:   "create_intent",
				Status:      409,
				FailureCode: ledger.FailureDailyLimitReached,
			}
		},
	}
	provider := &fakeProvider{}
	flow := newFlow(lc, provider, intentstore.New(time.Minute))

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)

	assert.Equal(t, rewarded.OutcomeRejected, out.Kind)
	assert.Equal(t, ledger.FailureDailyLimitReached, out.FailureCode)
	assert.False(t, out.Retriable)
	assert.Zero(t, provider.showCalls(), "no ad display on create rejection")
}

func TestFlow_PreflightUnavailable(t *testing.T) {
	lc := &fakeLedger{
		createFn: func(ledger.CreateRequest) (ledger.Intent, error) {
			t.Fatal("preflight failure must not contact the ledger")
			return ledger.Intent{}, nil
		},
	}
	units := allUnits()
	units[ledger.PlacementHint] = rewarded.AdUnit{BlockID: "block-hint", Enabled: false}
	flow := rewarded.NewFlow(lc, &fakeProvider{}, intentstore.New(time.Minute), units)

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementHint})
	require.NoError(t, err)
	assert.Equal(t, rewarded.OutcomeUnavailable, out.Kind)
	assert.False(t, out.Retriable)
}

func TestFlow_UserClosedCancelsIntent(t *testing.T) {
	lc := &fakeLedger{}
	provider := &fakeProvider{err: &adprovider.ShowError{Sentinel: adprovider.ErrNotCompleted, BlockID: "block-daily"}}
	store := intentstore.New(time.Minute)
	flow := newFlow(lc, provider, store)

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)

	assert.Equal(t, rewarded.OutcomeNotCompleted, out.Kind)
	assert.True(t, out.Retriable)
	assert.Equal(t, []string{"intent-1"}, lc.cancelled)
	_, active := store.ActiveIntent(ledger.PlacementDailyCoins)
	assert.False(t, active, "a cancelled attempt must not stay trackable")
}

func TestFlow_CancelFailureIsIgnored(t *testing.T) {
	lc := &fakeLedger{cancelErr: &ledger.APIError{Sentinel: ledger.ErrUnavailable, Operation: "cancel_intent"}}
	provider := &fakeProvider{err: &adprovider.ShowError{Sentinel: adprovider.ErrNotCompleted}}
	store := intentstore.New(time.Minute)
	flow := newFlow(lc, provider, store)

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)
	assert.Equal(t, rewarded.OutcomeNotCompleted, out.Kind)
}

func TestFlow_ProviderErrorLeavesIntentAlive(t *testing.T) {
	lc := &fakeLedger{}
	provider := &fakeProvider{err: &adprovider.ShowError{Sentinel: adprovider.ErrProviderFailure, BlockID: "block-daily"}}
	store := intentstore.New(time.Minute)
	flow := newFlow(lc, provider, store)

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)

	assert.Equal(t, rewarded.OutcomeProviderError, out.Kind)
	assert.True(t, out.Retriable)
	assert.Empty(t, lc.cancelled, "SDK faults must not cancel: the webhook may still grant")

	got, ok := store.ActiveIntent(ledger.PlacementDailyCoins)
	require.True(t, ok, "intent stays tracked for the reconciler")
	assert.Equal(t, "intent-1", got.IntentID)
}

func TestFlow_CompleteRejectedCarriesCode(t *testing.T) {
	lc := &fakeLedger{
		completeFn: func(id string) (ledger.IntentStatus, error) {
			return ledger.IntentStatus{
				IntentID:    id,
				Placement:   ledger.PlacementHint,
				Status:      ledger.StatusRejected,
				FailureCode: ledger.FailureHintBalanceNotZero,
			}, nil
		},
	}
	flow := newFlow(lc, &fakeProvider{}, intentstore.New(time.Minute))

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementHint})
	require.NoError(t, err)
	assert.Equal(t, rewarded.OutcomeRejected, out.Kind)
	assert.Equal(t, ledger.FailureHintBalanceNotZero, out.FailureCode)
}

func TestFlow_PollAbsorbsTransientErrors(t *testing.T) {
	var calls int
	var mu sync.Mutex
	lc := &fakeLedger{
		completeFn: func(id string) (ledger.IntentStatus, error) {
			return ledger.IntentStatus{}, &ledger.APIError{Sentinel: ledger.ErrUnavailable, Operation: "client_complete"}
		},
		statusFn: func(id string) (ledger.IntentStatus, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n < 3 {
				return ledger.IntentStatus{}, &ledger.APIError{Sentinel: ledger.ErrUnavailable, Operation: "intent_status"}
			}
			return ledger.IntentStatus{IntentID: id, Placement: ledger.PlacementDailyCoins, Status: ledger.StatusGranted}, nil
		},
	}
	flow := newFlow(lc, &fakeProvider{}, intentstore.New(time.Minute))

	out, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
	require.NoError(t, err)
	assert.Equal(t, rewarded.OutcomeGranted, out.Kind)
}

func TestFlow_SessionExpiryEscapes(t *testing.T) {
	t.Run("on create", func(t *testing.T) {
		lc := &fakeLedger{
			createFn: func(ledger.CreateRequest) (ledger.Intent, error) {
				return ledger.Intent{}, &ledger.APIError{Sentinel: ledger.ErrSessionExpired, Operation: "create_intent"}
			},
		}
		flow := newFlow(lc, &fakeProvider{}, intentstore.New(time.Minute))
		_, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
		assert.ErrorIs(t, err, ledger.ErrSessionExpired)
	})

	t.Run("during poll", func(t *testing.T) {
		lc := &fakeLedger{
			completeFn: func(string) (ledger.IntentStatus, error) {
				return ledger.IntentStatus{}, errors.New("transient")
			},
			statusFn: func(string) (ledger.IntentStatus, error) {
				return ledger.IntentStatus{}, &ledger.APIError{Sentinel: ledger.ErrSessionExpired, Operation: "intent_status"}
			},
		}
		flow := newFlow(lc, &fakeProvider{}, intentstore.New(time.Minute))
		_, err := flow.Run(context.Background(), rewarded.Request{Placement: ledger.PlacementDailyCoins})
		assert.ErrorIs(t, err, ledger.ErrSessionExpired)
	})
}

func TestFlow_ResumeContinuesPolling(t *testing.T) {
	lc := &fakeLedger{
		statusFn: func(id string) (ledger.IntentStatus, error) {
			return ledger.IntentStatus{IntentID: id, Placement: ledger.PlacementRevive, Status: ledger.StatusGranted}, nil
		},
	}
	store := intentstore.New(time.Minute)
	flow := newFlow(lc, &fakeProvider{}, store)

	out, err := flow.Resume(context.Background(), ledger.PlacementRevive, "intent-7")
	require.NoError(t, err)
	assert.Equal(t, rewarded.OutcomeGranted, out.Kind)
	assert.Equal(t, "intent-7", out.IntentID)

	res, ok := store.LastResolved(ledger.PlacementRevive)
	require.True(t, ok)
	assert.Equal(t, "intent-7", res.Status.IntentID)
}
