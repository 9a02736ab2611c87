package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenRefill(t *testing.T) {
	now := time.Unix(1000, 0)
	tb := NewTokenBucket(2, 2)
	tb.now = func() time.Time { return now }
	tb.lastRefill = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucketUnlimited(t *testing.T) {
	tb := NewTokenBucket(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, tb.Allow())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(0.01, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManagerUnknownGroupAndNil(t *testing.T) {
	m := NewManager(Limits{VotesPerSec: 5, TradesPerSec: 2, ReadsPerSec: 10})
	assert.NoError(t, m.Wait(context.Background(), Group("other")))
	assert.NoError(t, m.Wait(context.Background(), GroupReads))

	var nilManager *Manager
	assert.NoError(t, nilManager.Wait(context.Background(), GroupVotes))
}
