package acquire

import (
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/zzy990/daily-stock-analysis/internal/market"
)

// CircuitState is the tri-state of one provider's breaker.
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

// BreakerConfig holds the per-provider thresholds. Cooldown grows
// exponentially on repeated re-opens, capped at MaxCooldown.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	MaxCooldown      time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.MaxCooldown < c.Cooldown {
		c.MaxCooldown = 10 * c.Cooldown
	}
	return c
}

// ProviderCircuit is a point-in-time view of one provider's breaker state,
// exposed through the status API.
type ProviderCircuit struct {
	Provider            string       `json:"provider"`
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Reopens             int          `json:"reopens"`
	OpenedAt            time.Time    `json:"opened_at,omitempty"`
	RetryAt             time.Time    `json:"retry_at,omitempty"`
}

type circuit struct {
	state    CircuitState
	failures int
	reopens  int
	openedAt time.Time
	cooldown time.Duration
	// trial guards the single HalfOpen probe
	trial bool
}

// Breaker is the explicit per-provider circuit store. All providers share
// one Breaker instance; state transitions are serialized by the mutex so two
// workers can never both trip the same transition. Providers never write
// their own state.
type Breaker struct {
	cfg   BreakerConfig
	curve *backoff.Backoff

	mu       sync.Mutex
	circuits map[string]*circuit

	now func() time.Time
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg: cfg,
		curve: &backoff.Backoff{
			Min:    cfg.Cooldown,
			Max:    cfg.MaxCooldown,
			Factor: 2,
		},
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

// Allow reports whether the provider may be called now. In the Open state it
// flips to HalfOpen once the cooldown has elapsed and admits exactly one
// trial; further callers are refused until that trial's result is recorded.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(provider)
	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(c.openedAt) < c.cooldown {
			return false
		}
		c.state = StateHalfOpen
		c.trial = true
		return true
	case StateHalfOpen:
		if c.trial {
			return false
		}
		c.trial = true
		return true
	}
	return false
}

// Record feeds one call outcome back into the breaker. A RateLimited error
// opens the circuit immediately regardless of the failure counter.
func (b *Breaker) Record(provider string, success bool, kind market.ErrorKind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(provider)
	if success {
		c.state = StateClosed
		c.failures = 0
		c.reopens = 0
		c.trial = false
		return
	}

	c.trial = false
	c.failures++
	switch {
	case c.state == StateHalfOpen:
		b.open(c)
	case kind == market.ErrRateLimited:
		b.open(c)
	case c.failures >= b.cfg.FailureThreshold:
		b.open(c)
	}
}

func (b *Breaker) open(c *circuit) {
	c.state = StateOpen
	c.openedAt = b.now()
	c.cooldown = b.curve.ForAttempt(float64(c.reopens))
	c.reopens++
	c.failures = 0
}

// Snapshot returns the current state of every provider the breaker has seen.
func (b *Breaker) Snapshot() []ProviderCircuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ProviderCircuit, 0, len(b.circuits))
	for name, c := range b.circuits {
		pc := ProviderCircuit{
			Provider:            name,
			State:               c.state,
			ConsecutiveFailures: c.failures,
			Reopens:             c.reopens,
		}
		if c.state != StateClosed {
			pc.OpenedAt = c.openedAt
			pc.RetryAt = c.openedAt.Add(c.cooldown)
		}
		out = append(out, pc)
	}
	return out
}

// Reset is the manual override: it closes the provider's circuit and clears
// its history.
func (b *Breaker) Reset(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.circuits, provider)
}

func (b *Breaker) circuit(provider string) *circuit {
	c, ok := b.circuits[provider]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[provider] = c
	}
	return c
}
