// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg StreamLimitConfig) *streamLimiter {
	t.Helper()
	cfg.Enabled = true
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	l := newStreamLimiter(cfg, done)
	require.NotNil(t, l)
	return l
}

func TestStreamLimiterDisabledAllowsEverything(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	l := newStreamLimiter(StreamLimitConfig{}, done)
	require.Nil(t, l)

	// Nil receiver is the disabled path.
	assert.True(t, l.allowRequest("ip:10.0.0.1"))
	assert.True(t, l.acquireStream("ip:10.0.0.1"))
	l.releaseStream("ip:10.0.0.1")
}

func TestStreamLimiterSpendsBurst(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{RequestsPerMinute: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, l.allowRequest("ip:10.0.0.1"), "request %d should pass", i)
	}
	assert.False(t, l.allowRequest("ip:10.0.0.1"))
}

func TestStreamLimiterRefillsOverTime(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{RequestsPerMinute: 60, Burst: 1})

	require.True(t, l.allowRequest("ip:10.0.0.1"))
	require.False(t, l.allowRequest("ip:10.0.0.1"))

	// 60 rpm is one token per second; rewind the refill clock instead
	// of sleeping.
	l.mu.Lock()
	l.visitors["ip:10.0.0.1"].lastRefill = time.Now().Add(-2 * time.Second)
	l.mu.Unlock()

	assert.True(t, l.allowRequest("ip:10.0.0.1"))
}

func TestStreamLimiterKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{RequestsPerMinute: 1, Burst: 1})

	require.True(t, l.allowRequest("ip:10.0.0.1"))
	require.False(t, l.allowRequest("ip:10.0.0.1"))
	assert.True(t, l.allowRequest("ip:10.0.0.2"))
}

func TestStreamLimiterConcurrentStreamCap(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{MaxConcurrentStreams: 2})

	require.True(t, l.acquireStream("ip:10.0.0.1"))
	require.True(t, l.acquireStream("ip:10.0.0.1"))
	assert.False(t, l.acquireStream("ip:10.0.0.1"))

	l.releaseStream("ip:10.0.0.1")
	assert.True(t, l.acquireStream("ip:10.0.0.1"))
}

func TestStreamLimiterReleaseWithoutAcquire(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{})

	// Must not panic or underflow.
	l.releaseStream("ip:10.0.0.1")
	require.True(t, l.acquireStream("ip:10.0.0.1"))
	l.releaseStream("ip:10.0.0.1")
	l.releaseStream("ip:10.0.0.1")
	assert.True(t, l.acquireStream("ip:10.0.0.1"))
}

func TestStreamLimiterCleanupDropsStaleIdleKeys(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{})

	require.True(t, l.allowRequest("ip:stale"))
	require.True(t, l.allowRequest("ip:fresh"))
	require.True(t, l.acquireStream("ip:held"))

	l.mu.Lock()
	old := time.Now().Add(-time.Hour)
	l.visitors["ip:stale"].lastSeen = old
	l.visitors["ip:held"].lastSeen = old
	l.mu.Unlock()

	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "ip:stale")
	assert.Contains(t, l.visitors, "ip:fresh")
	// Open streams pin their entry regardless of age.
	assert.Contains(t, l.visitors, "ip:held")
}

func TestStreamLimiterCleanupEvictsOldestBeyondMaxKeys(t *testing.T) {
	l := newTestLimiter(t, StreamLimitConfig{MaxKeys: 2})

	now := time.Now()
	l.mu.Lock()
	l.visitors["ip:oldest"] = &streamVisitor{lastSeen: now.Add(-3 * time.Minute), lastRefill: now}
	l.visitors["ip:mid"] = &streamVisitor{lastSeen: now.Add(-2 * time.Minute), lastRefill: now}
	l.visitors["ip:newest"] = &streamVisitor{lastSeen: now, lastRefill: now}
	l.mu.Unlock()

	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "ip:oldest")
	assert.Contains(t, l.visitors, "ip:mid")
	assert.Contains(t, l.visitors, "ip:newest")
}

func TestStreamLimitConfigValidate(t *testing.T) {
	assert.NoError(t, StreamLimitConfig{}.Validate())
	assert.NoError(t, StreamLimitConfig{RequestsPerMinute: 30, Burst: 5, MaxConcurrentStreams: 2, MaxKeys: 100}.Validate())

	assert.Error(t, StreamLimitConfig{RequestsPerMinute: -1}.Validate())
	assert.Error(t, StreamLimitConfig{Burst: -1}.Validate())
	assert.Error(t, StreamLimitConfig{MaxConcurrentStreams: -1}.Validate())
	assert.Error(t, StreamLimitConfig{MaxKeys: -1}.Validate())
}

func TestLimiterKeyStripsPort(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/sessions/s1/messages", nil)
	r.RemoteAddr = "203.0.113.9:54321"
	assert.Equal(t, "ip:203.0.113.9", limiterKey(r))

	r.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "ip:203.0.113.9", limiterKey(r))
}
