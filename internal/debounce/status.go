package debounce

import (
	"sync"

	"example.com/healthrelay/internal/domain"
)

// StatusTracker tracks per-user provider status across poll cycles.
//
// A user is either idle or logged out. Entering logged-out emits exactly one
// notification; repeated auth failures on the same day are silent. The state
// resets on the next successful fetch or on the next calendar day.
type StatusTracker struct {
	mu          sync.Mutex
	lastSuccess map[string]domain.Day
	lastFailure map[string]domain.Day
}

// NewStatusTracker constructs an empty StatusTracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		lastSuccess: make(map[string]domain.Day),
		lastFailure: make(map[string]domain.Day),
	}
}

// SuccessDue reports whether the user still needs a successful poll today.
func (t *StatusTracker) SuccessDue(userID string, today domain.Day) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastSuccess[userID]
	return !ok || last.Before(today)
}

// MarkSuccess records a successful poll and returns the user to idle.
func (t *StatusTracker) MarkSuccess(userID string, today domain.Day) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastSuccess[userID] = today
	delete(t.lastFailure, userID)
}

// MarkAuthFailure records an auth failure. It returns true exactly once per
// user per calendar day: the transition into the logged-out state.
func (t *StatusTracker) MarkAuthFailure(userID string, today domain.Day) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastFailure[userID]
	if ok && !last.Before(today) {
		return false
	}
	t.lastFailure[userID] = today
	return true
}
