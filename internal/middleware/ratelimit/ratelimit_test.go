package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowExhaustsBucket(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 3})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("caller"), "request %d should pass", i+1)
	}
	assert.False(t, rl.allow("caller"))
}

func TestAllowKeysAreIndependent(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 1})
	defer rl.Stop()

	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))
}
