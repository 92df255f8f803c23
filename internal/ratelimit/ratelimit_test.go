package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_WithinBurst(t *testing.T) {
	krl := New(1, 3)

	assert.True(t, krl.Allow("10.0.0.1"))
	assert.True(t, krl.Allow("10.0.0.1"))
	assert.True(t, krl.Allow("10.0.0.1"))
	assert.False(t, krl.Allow("10.0.0.1"))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	krl := New(1, 1)

	assert.True(t, krl.Allow("10.0.0.1"))
	assert.False(t, krl.Allow("10.0.0.1"))

	// A different client still has its full burst.
	assert.True(t, krl.Allow("10.0.0.2"))
}

func TestAllow_ReusesLimiterPerKey(t *testing.T) {
	krl := New(100, 5)

	for range 5 {
		assert.True(t, krl.Allow("shared"))
	}
	assert.False(t, krl.Allow("shared"))
	assert.Len(t, krl.limiters, 1)
}
