package intentstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
)

func intent(id string, placement ledger.Placement) ledger.Intent {
	return ledger.Intent{IntentID: id, Placement: placement, Status: ledger.StatusPending}
}

func TestStore_AtMostOneActivePerPlacement(t *testing.T) {
	s := intentstore.New(time.Minute)

	// Arbitrary interleaving of upserts, clears and resolutions must never
	// leave two entries for one placement.
	s.UpsertActiveIntent(intent("a1", ledger.PlacementDailyCoins))
	s.UpsertActiveIntent(intent("a2", ledger.PlacementDailyCoins))
	s.UpsertActiveIntent(intent("b1", ledger.PlacementHint))
	s.ClearActiveIntent(ledger.PlacementHint, "stale-id")
	s.UpsertActiveIntent(intent("b2", ledger.PlacementHint))
	s.MarkResolved(ledger.IntentStatus{IntentID: "a2", Placement: ledger.PlacementDailyCoins, Status: ledger.StatusGranted})
	s.UpsertActiveIntent(intent("a3", ledger.PlacementDailyCoins))

	seen := map[ledger.Placement]int{}
	for _, in := range s.ActiveIntents() {
		seen[in.Placement]++
	}
	for placement, n := range seen {
		assert.Equal(t, 1, n, "placement %s has %d active entries", placement, n)
	}

	got, ok := s.ActiveIntent(ledger.PlacementDailyCoins)
	require.True(t, ok)
	assert.Equal(t, "a3", got.IntentID)
}

func TestStore_UpsertSupersedes(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("old", ledger.PlacementRevive))
	s.UpsertActiveIntent(intent("new", ledger.PlacementRevive))

	got, ok := s.ActiveIntent(ledger.PlacementRevive)
	require.True(t, ok)
	assert.Equal(t, "new", got.IntentID)
}

func TestStore_ClearGuardsAgainstStaleCaller(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("current", ledger.PlacementHint))

	// A stale caller naming the superseded intent must not clear the entry.
	s.ClearActiveIntent(ledger.PlacementHint, "superseded")
	_, ok := s.ActiveIntent(ledger.PlacementHint)
	assert.True(t, ok)

	// Matching ID clears.
	s.ClearActiveIntent(ledger.PlacementHint, "current")
	_, ok = s.ActiveIntent(ledger.PlacementHint)
	assert.False(t, ok)

	// Empty ID clears unconditionally.
	s.UpsertActiveIntent(intent("again", ledger.PlacementHint))
	s.ClearActiveIntent(ledger.PlacementHint, "")
	_, ok = s.ActiveIntent(ledger.PlacementHint)
	assert.False(t, ok)
}

func TestStore_MarkResolvedIdempotent(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("i1", ledger.PlacementDailyCoins))

	st := ledger.IntentStatus{
		IntentID:  "i1",
		Placement: ledger.PlacementDailyCoins,
		Status:    ledger.StatusGranted,
	}

	assert.True(t, s.MarkResolved(st), "first terminal observation applies")
	assert.False(t, s.MarkResolved(st), "second observation is a no-op")

	_, active := s.ActiveIntent(ledger.PlacementDailyCoins)
	assert.False(t, active)

	res, ok := s.LastResolved(ledger.PlacementDailyCoins)
	require.True(t, ok)
	assert.Equal(t, "i1", res.Status.IntentID)
	assert.Equal(t, ledger.StatusGranted, res.Status.Status)
	assert.False(t, res.ResolvedAt.IsZero())
}

func TestStore_MarkResolvedRequiresMatchingIntent(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("fresh", ledger.PlacementHint))

	applied := s.MarkResolved(ledger.IntentStatus{
		IntentID:  "old",
		Placement: ledger.PlacementHint,
		Status:    ledger.StatusExpired,
	})
	assert.False(t, applied, "a superseded intent's resolution must not clear the fresh one")

	got, ok := s.ActiveIntent(ledger.PlacementHint)
	require.True(t, ok)
	assert.Equal(t, "fresh", got.IntentID)
}

func TestStore_MarkResolvedRejectsPending(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("i1", ledger.PlacementHint))

	applied := s.MarkResolved(ledger.IntentStatus{
		IntentID:  "i1",
		Placement: ledger.PlacementHint,
		Status:    ledger.StatusPending,
	})
	assert.False(t, applied)
	_, ok := s.ActiveIntent(ledger.PlacementHint)
	assert.True(t, ok)
}

func TestStore_SetActiveIntentsReplaces(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("local", ledger.PlacementDailyCoins))
	s.UpsertActiveIntent(intent("gone", ledger.PlacementHint))

	s.SetActiveIntents([]ledger.Intent{intent("server", ledger.PlacementDailyCoins)})

	got, ok := s.ActiveIntent(ledger.PlacementDailyCoins)
	require.True(t, ok)
	assert.Equal(t, "server", got.IntentID)

	_, ok = s.ActiveIntent(ledger.PlacementHint)
	assert.False(t, ok, "entries absent from the snapshot are dropped")
}

func TestStore_ToastQueue(t *testing.T) {
	s := intentstore.New(time.Minute)

	t1 := s.EnqueueToast("Coins added!", intentstore.ToneSuccess)
	t2 := s.EnqueueToast("Something failed", intentstore.ToneError)
	require.NotEqual(t, t1.ID, t2.ID)

	toasts := s.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "Coins added!", toasts[0].Message)
	assert.Equal(t, intentstore.ToneError, toasts[1].Tone)

	s.DismissToast(t1.ID)
	toasts = s.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, t2.ID, toasts[0].ID)

	// Unknown IDs are a no-op.
	s.DismissToast("nope")
	assert.Len(t, s.Toasts(), 1)
}

func TestStore_ToastSelfExpires(t *testing.T) {
	s := intentstore.New(20 * time.Millisecond)
	s.EnqueueToast("ephemeral", intentstore.ToneInfo)

	require.Eventually(t, func() bool {
		return len(s.Toasts()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStore_Reset(t *testing.T) {
	s := intentstore.New(time.Minute)
	s.UpsertActiveIntent(intent("i1", ledger.PlacementDailyCoins))
	s.MarkResolved(ledger.IntentStatus{IntentID: "i1", Placement: ledger.PlacementDailyCoins, Status: ledger.StatusGranted})
	s.EnqueueToast("bye", intentstore.ToneInfo)

	s.Reset()

	assert.Empty(t, s.ActiveIntents())
	assert.Empty(t, s.Toasts())
	_, ok := s.LastResolved(ledger.PlacementDailyCoins)
	assert.False(t, ok)
}
