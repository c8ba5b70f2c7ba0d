package intentstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/arrowpuzzle/rewardflow/internal/metrics"
)

// Tone classifies a toast for rendering.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	ToneError   Tone = "error"
)

// Toast is an ephemeral user notification. It self-expires after the store's
// TTL, independent of network state.
type Toast struct {
	ID      string    `json:"id"`
	Tone    Tone      `json:"tone"`
	Message string    `json:"message"`
	Created time.Time `json:"created"`
}

// EnqueueToast appends a toast and arms its expiry timer.
func (s *Store) EnqueueToast(message string, tone Tone) Toast {
	t := Toast{
		ID:      uuid.NewString(),
		Tone:    tone,
		Message: message,
		Created: s.now(),
	}
	s.mu.Lock()
	s.toasts = append(s.toasts, t)
	s.mu.Unlock()
	metrics.ToastTotal.WithLabelValues(string(tone)).Inc()

	time.AfterFunc(s.toastTTL, func() {
		s.DismissToast(t.ID)
	})
	return t
}

// DismissToast removes a toast by ID. Dismissing an unknown or already
// expired toast is a no-op.
func (s *Store) DismissToast(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.toasts {
		if t.ID == id {
			s.toasts = append(s.toasts[:i], s.toasts[i+1:]...)
			return
		}
	}
}

// Toasts returns the currently visible toasts in enqueue order.
func (s *Store) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, len(s.toasts))
	copy(out, s.toasts)
	return out
}
