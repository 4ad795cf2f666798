package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketBurstThenDeny(t *testing.T) {
	b := NewTokenBucket(60, 2)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "burst spent, next call must be denied")
}

func TestTokenBucketRefills(t *testing.T) {
	// 600/min refills a token every 100ms
	b := NewTokenBucket(600, 1)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	assert.True(t, b.WaitForToken(time.Second))
}

func TestTokenBucketDisabled(t *testing.T) {
	b := NewTokenBucket(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, b.Allow())
	}
	assert.True(t, b.WaitForToken(0))
}

func TestTokenBucketNil(t *testing.T) {
	var b *TokenBucket
	assert.True(t, b.Allow())
	assert.True(t, b.WaitForToken(0))
}

func TestTokenBucketWaitTimeout(t *testing.T) {
	b := NewTokenBucket(1, 1) // one token a minute
	assert.True(t, b.Allow())

	start := time.Now()
	assert.False(t, b.WaitForToken(50*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
}
