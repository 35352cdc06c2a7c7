package socks5

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuit_RecordFailure_SmoothsHealthAndRetiresAfterTwoDegraded(t *testing.T) {
	c := newCircuit()
	now := time.Now()

	c.recordFailure(now)
	assert.InDelta(t, 0.8, c.Health, 1e-9)
	assert.Equal(t, CircuitDegraded, c.State)

	c.recordFailure(now)
	assert.Equal(t, CircuitRetired, c.State)
}

func TestCircuit_RecordFailure_FloorsAtMinHealth(t *testing.T) {
	c := newCircuit()
	now := time.Now()
	for i := 0; i < 20; i++ {
		c.recordFailure(now)
	}
	assert.GreaterOrEqual(t, c.Health, minHealth)
	assert.InDelta(t, minHealth, c.Health, 1e-9)
}

func TestCircuit_RecordSuccess_ResetsHealth(t *testing.T) {
	c := newCircuit()
	now := time.Now()
	c.recordFailure(now)
	c.recordSuccess(now)
	assert.Equal(t, 1.0, c.Health)
	assert.Equal(t, 0, c.FailureCount)
	assert.Equal(t, CircuitActive, c.State)
}

func TestCircuit_Expired(t *testing.T) {
	c := newCircuit()
	c.CreatedAt = time.Now().Add(-2 * time.Hour)
	assert.True(t, c.expired(time.Now(), time.Hour))
	assert.False(t, c.expired(time.Now(), 3*time.Hour))
}
