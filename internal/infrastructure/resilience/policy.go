package resilience

import "time"

// Config tunes retries and circuit breaking for one outbound collaborator.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits the remote index and metadata lookups: three quick
// attempts, then the breaker opens once half of at least ten calls fail.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

type number interface {
	~int | ~uint32 | ~int64 | ~float64
}

func orDefault[T number](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// normalize replaces unset or nonsensical values with defaults. BreakerEnabled
// is taken as given.
func (c Config) normalize() Config {
	def := DefaultConfig()
	out := Config{
		RetryMaxAttempts:        orDefault(c.RetryMaxAttempts, def.RetryMaxAttempts),
		RetryInitialBackoff:     orDefault(c.RetryInitialBackoff, def.RetryInitialBackoff),
		RetryMaxBackoff:         orDefault(c.RetryMaxBackoff, def.RetryMaxBackoff),
		RetryMultiplier:         c.RetryMultiplier,
		BreakerEnabled:          c.BreakerEnabled,
		BreakerMinRequests:      orDefault(c.BreakerMinRequests, def.BreakerMinRequests),
		BreakerFailureRatio:     orDefault(c.BreakerFailureRatio, def.BreakerFailureRatio),
		BreakerOpenTimeout:      orDefault(c.BreakerOpenTimeout, def.BreakerOpenTimeout),
		BreakerHalfOpenMaxCalls: orDefault(c.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls),
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	return out
}

// SingleAttempt keeps the breaker but disables retries, for callers that
// schedule their own retries.
func (c Config) SingleAttempt() Config {
	out := c
	out.RetryMaxAttempts = 1
	return out
}
