// Package intentstore holds the client's view of reward-intent state: at
// most one active intent per placement, the most recent resolution per
// placement, and the toast queue. It is a pure state container with no I/O;
// all truth ultimately comes from the ledger.
package intentstore

import (
	"sync"
	"time"

	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	"github.com/arrowpuzzle/rewardflow/internal/metrics"
)

// Resolution records a terminal status the moment it was first observed.
type Resolution struct {
	Status     ledger.IntentStatus
	ResolvedAt time.Time
}

// Store is the process-wide intent cache. Constructed at session start and
// Reset at logout; passed by reference, never ambient.
type Store struct {
	mu           sync.Mutex
	active       map[ledger.Placement]ledger.Intent
	lastResolved map[ledger.Placement]Resolution
	toasts       []Toast
	toastTTL     time.Duration
	now          func() time.Time
}

// New creates an empty store. toastTTL bounds how long an undismissed toast
// stays visible.
func New(toastTTL time.Duration) *Store {
	if toastTTL <= 0 {
		toastTTL = 5 * time.Second
	}
	return &Store{
		active:       make(map[ledger.Placement]ledger.Intent),
		lastResolved: make(map[ledger.Placement]Resolution),
		toastTTL:     toastTTL,
		now:          time.Now,
	}
}

// SetActiveIntents replaces the entire active map from an authoritative
// server snapshot.
func (s *Store) SetActiveIntents(list []ledger.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[ledger.Placement]ledger.Intent, len(list))
	for _, in := range list {
		s.active[in.Placement] = in
	}
	metrics.ActiveIntents.Set(float64(len(s.active)))
}

// UpsertActiveIntent inserts or overwrites the entry for the intent's
// placement unconditionally. A new attempt always supersedes whatever the
// client previously remembered there; the server's create-time uniqueness
// check is the actual duplicate-prevention mechanism.
func (s *Store) UpsertActiveIntent(in ledger.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[in.Placement] = in
	metrics.ActiveIntents.Set(float64(len(s.active)))
}

// ClearActiveIntent removes the entry for placement. With a non-empty
// intentID the entry is only removed on a match, guarding against a stale
// caller clearing an intent that has since been superseded.
func (s *Store) ClearActiveIntent(placement ledger.Placement, intentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.active[placement]
	if !ok {
		return
	}
	if intentID != "" && cur.IntentID != intentID {
		return
	}
	delete(s.active, placement)
	metrics.ActiveIntents.Set(float64(len(s.active)))
}

// MarkResolved applies a terminal status: if the active entry for the
// status's placement matches its intent ID, the entry is removed and the
// status recorded in the last-resolved slot. This is the single choke point
// through which a terminal status becomes visible, so each terminal
// observation is applied at most once. Returns whether it was applied.
func (s *Store) MarkResolved(st ledger.IntentStatus) bool {
	if !st.Status.Terminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.active[st.Placement]
	if !ok || cur.IntentID != st.IntentID {
		return false
	}
	delete(s.active, st.Placement)
	s.lastResolved[st.Placement] = Resolution{Status: st, ResolvedAt: s.now()}
	metrics.ActiveIntents.Set(float64(len(s.active)))
	return true
}

// ActiveIntent returns the tracked intent for placement, if any.
func (s *Store) ActiveIntent(placement ledger.Placement) (ledger.Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.active[placement]
	return in, ok
}

// ActiveIntents returns a snapshot of every tracked intent.
func (s *Store) ActiveIntents() []ledger.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Intent, 0, len(s.active))
	for _, in := range s.active {
		out = append(out, in)
	}
	return out
}

// LastResolved returns the most recent resolution for placement, if any.
// The slot holds exactly one resolution and is overwritten by the next.
func (s *Store) LastResolved(placement ledger.Placement) (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.lastResolved[placement]
	return r, ok
}

// Reset drops all state. Called at logout/session expiry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[ledger.Placement]ledger.Intent)
	s.lastResolved = make(map[ledger.Placement]Resolution)
	s.toasts = nil
	metrics.ActiveIntents.Set(0)
}
