package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := NewRateLimiter(60, 2, time.Hour)
	now := time.Now()

	assert.True(t, rl.allowAt("a", now))
	assert.True(t, rl.allowAt("a", now))
	assert.False(t, rl.allowAt("a", now))

	// other clients have their own bucket
	assert.True(t, rl.allowAt("b", now))

	// one token per second refills
	assert.True(t, rl.allowAt("a", now.Add(1100*time.Millisecond)))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1, time.Minute)
	now := time.Now()

	rl.allowAt("old", now.Add(-2*time.Minute))
	rl.allowAt("fresh", now)
	assert.Equal(t, 2, rl.Len())

	assert.Equal(t, 1, rl.Cleanup(now))
	assert.Equal(t, 1, rl.Len())
}
