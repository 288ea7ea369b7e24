// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package provider

import (
	"sync"
	"time"

	"github.com/inkwell-dev/inkwell/pkg/health"
)

// HealthMetrics is an alias for health.Metrics, preserved for callers in
// this package and its consumers.
type HealthMetrics = health.Metrics

// DefaultHealthCooldown is the duration after which an unhealthy provider
// becomes eligible for retry.
const DefaultHealthCooldown = 30 * time.Second

// DefaultFailureThreshold is how many consecutive failures it takes to
// mark a provider unhealthy.
const DefaultFailureThreshold = 3

// HealthTracker provides simple health state tracking for providers.
// A provider stays healthy until RecordFailure has been called threshold
// times in a row. After that the provider is marked unhealthy for a
// cooldown period, then becomes available again to allow recovery.
type HealthTracker struct {
	mu          sync.RWMutex
	healthy     bool
	consecutive int64
	threshold   int64
	failedAt    time.Time
	cooldown    time.Duration
	failures    int64
	nowFunc     func() time.Time // for testing
}

// NewHealthTracker creates a HealthTracker that starts healthy.
// Non-positive threshold or cooldown values fall back to the defaults.
func NewHealthTracker(threshold int, cooldown time.Duration) *HealthTracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultHealthCooldown
	}
	return &HealthTracker{
		healthy:   true,
		threshold: int64(threshold),
		cooldown:  cooldown,
		nowFunc:   time.Now,
	}
}

// isHealthyLocked reports whether the provider is healthy or the cooldown
// has elapsed. The caller MUST hold at least h.mu.RLock.
func (h *HealthTracker) isHealthyLocked() bool {
	if h.healthy {
		return true
	}
	// Allow retry after cooldown expires.
	return h.nowFunc().Sub(h.failedAt) >= h.cooldown
}

// IsHealthy returns true if the provider is healthy or the cooldown has elapsed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

// RecordSuccess marks the provider as healthy and resets the consecutive
// failure counter.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.healthy = true
	h.consecutive = 0
	h.mu.Unlock()
}

// RecordFailure increments the failure counters and marks the provider
// unhealthy once the consecutive count reaches the threshold.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.consecutive++
	h.failures++
	h.failedAt = h.nowFunc()
	if h.consecutive >= h.threshold {
		h.healthy = false
	}
	h.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// HealthMetrics returns a point-in-time snapshot of the tracker's health
// state. The returned struct is safe to serialize and does not hold any
// references to internal tracker state.
func (h *HealthTracker) HealthMetrics() HealthMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HealthMetrics{
		FailureCount:        h.failures,
		ConsecutiveFailures: h.consecutive,
	}

	if h.failures > 0 {
		t := h.failedAt
		m.LastFailureAt = &t
	}

	m.Available = h.isHealthyLocked()
	if !m.Available {
		cooldownEnd := h.failedAt.Add(h.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}

// HealthMetricsPtr is a convenience wrapper around HealthMetrics that
// returns a pointer, avoiding an intermediate variable at call sites.
func (h *HealthTracker) HealthMetricsPtr() *HealthMetrics {
	hm := h.HealthMetrics()
	return &hm
}
