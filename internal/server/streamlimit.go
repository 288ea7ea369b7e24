// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package server

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	inkerr "github.com/inkwell-dev/inkwell/pkg/errors"
)

// StreamLimitConfig bounds chat traffic per client key.
type StreamLimitConfig struct {
	Enabled bool

	// RequestsPerMinute refills the per-key token bucket. Default 60.
	RequestsPerMinute int
	// Burst caps the bucket. Default 10.
	Burst int
	// MaxConcurrentStreams caps open chat streams per key. Default 4.
	MaxConcurrentStreams int
	// MaxKeys caps tracked keys before oldest-first eviction. Default 10000.
	MaxKeys int
}

// Validate rejects negative values. Zeroes select defaults.
func (c StreamLimitConfig) Validate() error {
	if c.RequestsPerMinute < 0 {
		return inkerr.New(inkerr.CodeServerConfigInvalid, "stream limit requests_per_minute must not be negative")
	}
	if c.Burst < 0 {
		return inkerr.New(inkerr.CodeServerConfigInvalid, "stream limit burst must not be negative")
	}
	if c.MaxConcurrentStreams < 0 {
		return inkerr.New(inkerr.CodeServerConfigInvalid, "stream limit max_concurrent_streams must not be negative")
	}
	if c.MaxKeys < 0 {
		return inkerr.New(inkerr.CodeServerConfigInvalid, "stream limit max_keys must not be negative")
	}
	return nil
}

func (c StreamLimitConfig) withDefaults() StreamLimitConfig {
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 60
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = 4
	}
	if c.MaxKeys == 0 {
		c.MaxKeys = 10000
	}
	return c
}

// streamVisitor tracks one client key's bucket and open streams.
type streamVisitor struct {
	tokens     float64
	lastRefill time.Time
	lastSeen   time.Time
	active     int
}

// streamLimiter is a per-key token bucket plus a concurrent-stream cap.
// A nil limiter allows everything, which is how disabled config behaves.
type streamLimiter struct {
	cfg StreamLimitConfig

	mu       sync.Mutex
	visitors map[string]*streamVisitor
}

// newStreamLimiter returns nil when limiting is disabled. The cleanup
// goroutine runs until done closes.
func newStreamLimiter(cfg StreamLimitConfig, done <-chan struct{}) *streamLimiter {
	if !cfg.Enabled {
		return nil
	}
	l := &streamLimiter{
		cfg:      cfg.withDefaults(),
		visitors: make(map[string]*streamVisitor),
	}
	go l.cleanupLoop(done)
	return l
}

// allowRequest spends one token from the key's bucket.
func (l *streamLimiter) allowRequest(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v := l.visitor(key, now)

	rate := float64(l.cfg.RequestsPerMinute) / 60.0
	v.tokens += now.Sub(v.lastRefill).Seconds() * rate
	if v.tokens > float64(l.cfg.Burst) {
		v.tokens = float64(l.cfg.Burst)
	}
	v.lastRefill = now
	v.lastSeen = now

	if v.tokens < 1 {
		slog.Debug("chat request rate limited", "key", hashKey(key))
		return false
	}
	v.tokens--
	return true
}

// acquireStream claims a concurrent-stream slot for the key. Callers
// that got a slot must releaseStream when the stream ends.
func (l *streamLimiter) acquireStream(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v := l.visitor(key, now)
	if v.active >= l.cfg.MaxConcurrentStreams {
		slog.Debug("concurrent stream limit reached", "key", hashKey(key), "active", v.active)
		return false
	}
	v.active++
	v.lastSeen = now
	return true
}

// releaseStream returns a slot claimed by acquireStream.
func (l *streamLimiter) releaseStream(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok || v.active == 0 {
		slog.Error("stream slot released without matching acquire", "key", hashKey(key))
		return
	}
	v.active--
	v.lastSeen = time.Now()
}

// visitor returns the key's entry, creating a full-bucket one on first
// sight. Callers hold l.mu.
func (l *streamLimiter) visitor(key string, now time.Time) *streamVisitor {
	v, ok := l.visitors[key]
	if !ok {
		v = &streamVisitor{
			tokens:     float64(l.cfg.Burst),
			lastRefill: now,
			lastSeen:   now,
		}
		l.visitors[key] = v
	}
	return v
}

func (l *streamLimiter) cleanupLoop(done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup drops stale entries and, when the table still exceeds
// MaxKeys, evicts the oldest idle keys. Entries with open streams are
// never evicted; their slot accounting must survive.
func (l *streamLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	const staleThreshold = 10 * time.Minute

	type entry struct {
		key      string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(l.visitors))
	for key, v := range l.visitors {
		if v.active == 0 && now.Sub(v.lastSeen) > staleThreshold {
			delete(l.visitors, key)
			continue
		}
		entries = append(entries, entry{key: key, lastSeen: v.lastSeen})
	}

	if len(entries) <= l.cfg.MaxKeys {
		return
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return a.lastSeen.Compare(b.lastSeen)
	})
	for _, e := range entries[:len(entries)-l.cfg.MaxKeys] {
		if v := l.visitors[e.key]; v != nil && v.active == 0 {
			delete(l.visitors, e.key)
		}
	}
}

// limiterKey identifies the client for limiting. RealIP middleware has
// already resolved proxy headers into RemoteAddr.
func limiterKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// hashKey shortens a limiter key for logs without exposing the address.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
