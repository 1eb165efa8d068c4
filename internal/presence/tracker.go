// Package presence tracks the typing and online signal of the one counterpart
// the user is currently looking at.
package presence

import (
	"sync"

	"matchchat/internal/logging"
	"matchchat/internal/types"
)

// Resolver maps an individual channel to its non-self participant.
type Resolver interface {
	Counterpart(channelID int64) (int64, bool)
}

// Tracker holds the latest presence poll for a single target user.
// Nothing is persisted; Reset returns it to idle.
type Tracker struct {
	mu       sync.RWMutex
	channel  int64
	target   int64
	tracking bool
	current  types.Presence
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{current: types.IdlePresence(0)}
}

// Track points the tracker at channelID's counterpart. It reports false, and
// leaves the tracker idle, for group, assistant, and unknown channels.
func (t *Tracker) Track(r Resolver, channelID int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.channel, t.target, t.tracking = 0, 0, false
	t.current = types.IdlePresence(0)

	if channelID == types.AssistantChannelID {
		return 0, false
	}
	userID, ok := r.Counterpart(channelID)
	if !ok {
		return 0, false
	}
	t.channel, t.target, t.tracking = channelID, userID, true
	t.current = types.IdlePresence(userID)
	logging.PresenceDebug("tracking user %d for channel %d", userID, channelID)
	return userID, true
}

// Apply stores a poll result. Results for anyone but the current target are dropped.
func (t *Tracker) Apply(p types.Presence) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking || p.UserID != t.target {
		return false
	}
	t.current = p
	return true
}

// Reset clears the target and returns presence to {typing:false, offline}.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.channel, t.target, t.tracking = 0, 0, false
	t.current = types.IdlePresence(0)
	t.mu.Unlock()
}

// Target returns the tracked user and channel.
func (t *Tracker) Target() (userID, channelID int64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.target, t.channel, t.tracking
}

// Current returns the latest presence for the tracked user.
func (t *Tracker) Current() types.Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}
