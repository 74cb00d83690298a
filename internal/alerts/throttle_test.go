package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottlerBurst(t *testing.T) {
	th := NewThrottler(60, 3)

	allowed := 0
	for i := 0; i < 10; i++ {
		if th.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestThrottlerRetryAfter(t *testing.T) {
	th := NewThrottler(60, 1)
	assert.True(t, th.Allow())
	assert.False(t, th.Allow())

	retry := th.GetRetryAfter()
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, time.Second+100*time.Millisecond)
}

func TestThrottlerReset(t *testing.T) {
	th := NewThrottler(1, 1)
	assert.True(t, th.Allow())
	assert.False(t, th.Allow())

	th.Reset()
	assert.True(t, th.Allow())
}

func TestThrottlerDefaults(t *testing.T) {
	th := NewThrottler(0, 0)
	for i := 0; i < 30; i++ {
		assert.True(t, th.Allow(), "allowance %d within default bucket", i)
	}
}
