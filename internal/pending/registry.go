// ABOUTME: In-memory registry of pending job submissions awaiting webhook callbacks
// ABOUTME: Maps request IDs to agent names with an optional TTL sweep for abandoned entries

package pending

import (
	"log/slog"
	"sync"
	"time"
)

// sweepInterval is how often the background sweeper scans for expired
// entries when a TTL is configured.
const sweepInterval = time.Minute

// entry records which agent a request was submitted under and when.
type entry struct {
	agentName string
	createdAt time.Time
}

// Registry tracks requests that have been submitted upstream and are
// waiting for a terminal webhook callback. All methods are safe for
// concurrent use.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// NewRegistry creates a Registry. A positive ttl starts a background
// sweeper that drops entries whose terminal callback never arrived;
// ttl of zero means entries live until explicitly cleared.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		ttl:     ttl,
		done:    make(chan struct{}),
		logger:  logger.With("component", "pending"),
	}

	if ttl > 0 {
		go r.sweep()
	}

	return r
}

// Register records that requestID was submitted under agentName.
// Request IDs are freshly minted per submission and never reused.
func (r *Registry) Register(requestID, agentName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[requestID] = entry{agentName: agentName, createdAt: time.Now()}
}

// Resolve returns the agent name associated with requestID. Absence is
// a valid outcome, not an error; callers apply their own fallback.
func (r *Registry) Resolve(requestID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[requestID]
	return e.agentName, ok
}

// Clear removes the entry for requestID. Clearing an absent key is a
// no-op.
func (r *Registry) Clear(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, requestID)
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Close stops the background sweeper, if any. Safe to call multiple
// times.
func (r *Registry) Close() {
	r.once.Do(func() {
		close(r.done)
	})
}

// sweep periodically drops entries older than the configured TTL.
func (r *Registry) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.expire(time.Now())
		}
	}
}

// expire removes entries created before now minus the TTL.
func (r *Registry) expire(now time.Time) {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		if e.createdAt.Before(cutoff) {
			delete(r.entries, id)
			r.logger.Warn("expired pending request with no terminal callback",
				"request_id", id,
				"agent", e.agentName,
				"age", now.Sub(e.createdAt),
			)
		}
	}
}
