// Package ratelimit enforces per-user, per-operation-family sliding-window
// limits on the metered operations.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martin/jobpilot/internal/types"
)

// Family names one group of metered operations sharing a window.
type Family string

const (
	FamilyExtract  Family = "extract"
	FamilyScan     Family = "scan"
	FamilyKit      Family = "kit"
	FamilyOutreach Family = "outreach"
	FamilySprint   Family = "sprint"
)

// Limit is one family's window configuration.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits is the per-family configuration used when none is supplied.
// Every metered call is also an LLM call, so the ceilings are low.
var DefaultLimits = map[Family]Limit{
	FamilyExtract:  {Max: 10, Window: time.Minute},
	FamilyScan:     {Max: 10, Window: time.Minute},
	FamilyKit:      {Max: 10, Window: time.Minute},
	FamilyOutreach: {Max: 6, Window: time.Minute},
	FamilySprint:   {Max: 2, Window: time.Minute},
}

// Limiter admits or rejects one operation for a user. A rejection is a
// RateLimitError carrying the retry-after duration.
type Limiter interface {
	Allow(ctx context.Context, userID uuid.UUID, family Family) error
}

// cleanupInterval is how often fully expired (user, family) windows are
// evicted.
const cleanupInterval = 5 * time.Minute

// MemoryLimiter is an in-process sliding-window limiter. Timestamps per
// (user, family) key are pruned on each call; counting is exact within one
// process. A background loop evicts keys whose window has fully expired so
// the map does not grow with the user population.
type MemoryLimiter struct {
	mu      sync.Mutex
	limits  map[Family]Limit
	entries map[string][]time.Time
	now     func() time.Time
	stop    chan struct{}
}

// NewMemoryLimiter builds an in-memory limiter and starts its eviction
// loop. A nil limits map selects DefaultLimits.
func NewMemoryLimiter(limits map[Family]Limit) *MemoryLimiter {
	if limits == nil {
		limits = DefaultLimits
	}
	l := &MemoryLimiter{
		limits:  limits,
		entries: make(map[string][]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop ends the eviction loop.
func (l *MemoryLimiter) Stop() {
	close(l.stop)
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

// prune drops keys whose newest timestamp is older than the largest
// configured window. Live windows are never touched.
func (l *MemoryLimiter) prune() {
	var maxWindow time.Duration
	for _, limit := range l.limits {
		if limit.Window > maxWindow {
			maxWindow = limit.Window
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxWindow)
	for key, window := range l.entries {
		if len(window) == 0 || !window[len(window)-1].After(cutoff) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID uuid.UUID, family Family) error {
	limit, ok := l.limits[family]
	if !ok || limit.Max <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID.String() + ":" + string(family)
	now := l.now()
	cutoff := now.Add(-limit.Window)

	window := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			window = append(window, ts)
		}
	}

	if len(window) >= limit.Max {
		l.entries[key] = window
		oldest := window[0]
		return &types.RateLimitError{
			Family:     string(family),
			RetryAfter: oldest.Sub(cutoff),
		}
	}

	l.entries[key] = append(window, now)
	return nil
}
