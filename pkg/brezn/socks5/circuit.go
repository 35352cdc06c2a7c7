package socks5

import (
	"time"

	"github.com/google/uuid"
)

// CircuitState is the circuit lifecycle per §4.3:
// Fresh → Active → Degraded → Retired.
type CircuitState string

const (
	CircuitFresh    CircuitState = "fresh"
	CircuitActive   CircuitState = "active"
	CircuitDegraded CircuitState = "degraded"
	CircuitRetired  CircuitState = "retired"
)

const (
	degradedHealthThreshold = 0.5
	minHealth               = 0.1
	failureSmoothing        = 0.8
)

// Circuit is a logical tunnel through the SOCKS5 proxy.
type Circuit struct {
	ID                    string
	CreatedAt             time.Time
	LastUsed              time.Time
	Health                float64
	FailureCount          int
	State                 CircuitState
	consecutiveDegraded   int
}

// FailureRecord is one entry in the supervisor's bounded failure ring.
type FailureRecord struct {
	Timestamp time.Time
	Error     string
	CircuitID string
}

func newCircuit() *Circuit {
	now := time.Now()
	return &Circuit{
		ID:        uuid.NewString(),
		CreatedAt: now,
		LastUsed:  now,
		Health:    1.0,
		State:     CircuitFresh,
	}
}

// recordSuccess resets health to 1.0 and transitions Fresh/Degraded to Active.
func (c *Circuit) recordSuccess(now time.Time) {
	c.Health = 1.0
	c.FailureCount = 0
	c.consecutiveDegraded = 0
	c.LastUsed = now
	if c.State != CircuitRetired {
		c.State = CircuitActive
	}
}

// recordFailure applies exponential smoothing toward minHealth and
// advances the Degraded→Retired counter (§4.3 health probing).
func (c *Circuit) recordFailure(now time.Time) {
	c.Health *= failureSmoothing
	if c.Health < minHealth {
		c.Health = minHealth
	}
	c.FailureCount++
	c.LastUsed = now

	if c.Health < degradedHealthThreshold || c.FailureCount > 0 {
		c.consecutiveDegraded++
		c.State = CircuitDegraded
	}
	if c.consecutiveDegraded >= 2 {
		c.State = CircuitRetired
	}
}

// expired reports whether the circuit has exceeded its configured TTL.
func (c *Circuit) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.CreatedAt) > ttl
}
