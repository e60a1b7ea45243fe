package eligibility

import (
	"sort"
	"sync"
	"time"
)

const defaultBlockTTL = 30 * time.Minute

// ProviderStatus is a point-in-time view of one provider's breaker state.
type ProviderStatus struct {
	Provider            string    `json:"provider"`
	Available           bool      `json:"available"`
	ForcedDown          bool      `json:"forced_down"`
	BlockedUntil        time.Time `json:"blocked_until,omitempty"`
	BlockedReason       string    `json:"blocked_reason,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
}

type providerHealth struct {
	forcedDown          bool
	blockedUntil        time.Time
	blockedReason       string
	consecutiveFailures int
	lastFailure         time.Time
	lastSuccess         time.Time
}

// HealthTracker holds process-wide breaker state for the credit providers.
// It is shared by every orchestrator call; a race between two turns can at
// worst cost one extra provider call.
type HealthTracker struct {
	mu       sync.RWMutex
	state    map[string]*providerHealth
	blockTTL time.Duration
	now      func() time.Time
}

// HealthOption customizes a HealthTracker.
type HealthOption func(*HealthTracker)

// WithBlockTTL sets how long a blocked provider is skipped before being retried.
func WithBlockTTL(ttl time.Duration) HealthOption {
	return func(h *HealthTracker) {
		if ttl > 0 {
			h.blockTTL = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) HealthOption {
	return func(h *HealthTracker) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHealthTracker(opts ...HealthOption) *HealthTracker {
	h := &HealthTracker{
		state:    make(map[string]*providerHealth),
		blockTTL: defaultBlockTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HealthTracker) entry(provider string) *providerHealth {
	ph, ok := h.state[provider]
	if !ok {
		ph = &providerHealth{}
		h.state[provider] = ph
	}
	return ph
}

// Available reports whether the provider may be queried. The second return
// value is the reason it is skipped ("forced_down" or "blocked").
func (h *HealthTracker) Available(provider string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ph, ok := h.state[provider]
	if !ok {
		return true, ""
	}
	if ph.forcedDown {
		return false, "forced_down"
	}
	if !ph.blockedUntil.IsZero() && h.now().Before(ph.blockedUntil) {
		return false, "blocked"
	}
	return true, ""
}

// MarkBlocked skips the provider until the block TTL elapses.
func (h *HealthTracker) MarkBlocked(provider, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.entry(provider)
	ph.blockedUntil = h.now().Add(h.blockTTL)
	ph.blockedReason = reason
}

// RecordFailure counts a failed call and blocks the provider when the
// category indicates it is refusing us.
func (h *HealthTracker) RecordFailure(provider string, category Category) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.entry(provider)
	ph.consecutiveFailures++
	ph.lastFailure = h.now()
	if category.Blocking() {
		ph.blockedUntil = ph.lastFailure.Add(h.blockTTL)
		ph.blockedReason = string(category)
	}
}

// RecordSuccess resets failure counters and lifts any block.
func (h *HealthTracker) RecordSuccess(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.entry(provider)
	ph.consecutiveFailures = 0
	ph.lastSuccess = h.now()
	ph.blockedUntil = time.Time{}
	ph.blockedReason = ""
}

// ForceDown administratively disables (or re-enables) a provider.
func (h *HealthTracker) ForceDown(provider string, down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entry(provider).forcedDown = down
}

// Unblock clears a block without touching the forced-down flag.
func (h *HealthTracker) Unblock(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.entry(provider)
	ph.blockedUntil = time.Time{}
	ph.blockedReason = ""
}

// Snapshot returns the state of every provider seen so far, sorted by name.
func (h *HealthTracker) Snapshot() []ProviderStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()
	out := make([]ProviderStatus, 0, len(h.state))
	for name, ph := range h.state {
		blocked := !ph.blockedUntil.IsZero() && now.Before(ph.blockedUntil)
		status := ProviderStatus{
			Provider:            name,
			Available:           !ph.forcedDown && !blocked,
			ForcedDown:          ph.forcedDown,
			ConsecutiveFailures: ph.consecutiveFailures,
			LastFailure:         ph.lastFailure,
			LastSuccess:         ph.lastSuccess,
		}
		if blocked {
			status.BlockedUntil = ph.blockedUntil
			status.BlockedReason = ph.blockedReason
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
