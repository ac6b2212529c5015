package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstThenEmpty(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)

	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())
	assert.Equal(t, 0, rl.Available())
}

func TestWaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}

func TestRefill(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)
	require.True(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, rl.Wait(ctx))
}
