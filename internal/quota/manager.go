// Package quota enforces per-user request rates on the HTTP surface.
package quota

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimitExceeded is returned when a user sends requests faster than
	// the configured rate.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrAnonymous is returned for requests without a user.
	ErrAnonymous = errors.New("user id is required")
)

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Manager hands out one token bucket per user, created on first use.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewManager returns a manager allowing rps requests per second per user
// with a burst of two seconds' worth. rps <= 0 disables limiting.
func NewManager(rps int) *Manager {
	m := &Manager{
		limiters: make(map[string]*userLimiter),
		now:      time.Now,
	}
	if rps > 0 {
		m.limit = rate.Limit(rps)
		m.burst = rps * 2
	}
	return m
}

// Allow consumes one request from userID's bucket.
func (m *Manager) Allow(userID string) error {
	if userID == "" {
		return ErrAnonymous
	}
	if m.burst == 0 {
		return nil
	}
	if !m.limiter(userID).Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

func (m *Manager) limiter(userID string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	ul, ok := m.limiters[userID]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(m.limit, m.burst)}
		m.limiters[userID] = ul
	}
	ul.lastSeen = m.now()
	return ul.lim
}

// Prune forgets users idle for longer than idle and returns how many were
// dropped. A dropped user starts with a full bucket next time.
func (m *Manager) Prune(idle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-idle)
	n := 0
	for id, ul := range m.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(m.limiters, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked users.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.limiters)
}
