package resilience

import (
	"log/slog"
	"math"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy bounds how often a retryable failure is attempted again.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// wait returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) wait(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

func (p RetryPolicy) withDefaults(def RetryPolicy) RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// BreakerPolicy configures one circuit breaker per operation name.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

func (p BreakerPolicy) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

func (p BreakerPolicy) withDefaults(def BreakerPolicy) BreakerPolicy {
	if p.MinRequests == 0 {
		p.MinRequests = def.MinRequests
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = def.FailureRatio
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = def.OpenTimeout
	}
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return p
}

type Config struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
	// Operations replaces Retry for the named operations.
	Operations map[string]RetryPolicy

	Logger *slog.Logger
}

// EnrichmentRetry allows a single quick retry: every attempt may hold the
// worker for the whole enrichment timeout.
var EnrichmentRetry = RetryPolicy{
	MaxAttempts:    2,
	InitialBackoff: time.Second,
	MaxBackoff:     time.Second,
	Multiplier:     1,
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      5,
			FailureRatio:     0.6,
			OpenTimeout:      60 * time.Second,
			HalfOpenMaxCalls: 1,
		},
		Operations: map[string]RetryPolicy{
			"analyzer.analyze": EnrichmentRetry,
			"ollama.generate":  EnrichmentRetry,
		},
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c
	out.Retry = c.Retry.withDefaults(def.Retry)
	out.Breaker = c.Breaker.withDefaults(def.Breaker)

	out.Operations = make(map[string]RetryPolicy, len(c.Operations))
	for op, policy := range c.Operations {
		out.Operations[op] = policy.withDefaults(out.Retry)
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

func (c Config) retryFor(operation string) RetryPolicy {
	if policy, ok := c.Operations[operation]; ok {
		return policy
	}
	return c.Retry
}
