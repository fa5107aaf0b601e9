package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	l := New(Config{})
	assert.Equal(t, DefaultConfig.BurstSize, l.Burst())
}

func TestAcquire_BurstIsImmediate(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, BurstSize: 5})

	waited, err := l.Acquire(context.Background(), 5)
	require.NoError(t, err)
	assert.Less(t, waited, 50*time.Millisecond)
}

func TestAcquire_BlocksWhenDrained(t *testing.T) {
	l := New(Config{RequestsPerSecond: 50, BurstSize: 2})

	_, err := l.Acquire(context.Background(), 2)
	require.NoError(t, err)

	// Bucket is empty; one more token takes ~20ms at 50/s.
	waited, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, waited, 10*time.Millisecond)
}

func TestAcquire_AdmissionBound(t *testing.T) {
	// Over any window the limiter admits at most rate*W + burst tokens.
	l := New(Config{RequestsPerSecond: 100, BurstSize: 10})

	start := time.Now()
	admitted := 0
	for time.Since(start) < 200*time.Millisecond {
		if l.Allow() {
			admitted++
		} else {
			time.Sleep(time.Millisecond)
		}
	}

	elapsed := time.Since(start).Seconds()
	bound := int(100*elapsed) + 10
	assert.LessOrEqual(t, admitted, bound)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.1, BurstSize: 1})

	_, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, 1)
	assert.Error(t, err)
}

func TestRecordRateLimitError_DelaysNextAcquire(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1000, BurstSize: 100})

	l.RecordRateLimitError(1)
	assert.False(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(ctx, 1)
	assert.Error(t, err, "acquire should still be waiting out the backoff")
}

func TestAllow(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, BurstSize: 1})

	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "bucket drained")
}
