package wspipe

import "golang.org/x/time/rate"

// RateLimitConfig bounds how many inbound frames a single client may send
// per second, using a token-bucket limiter. Generalized from a
// single-command binary protocol's per-command limiter to gate every
// inbound frame of the textual protocol, since a connection can now carry
// many frame types.
type RateLimitConfig struct {
	// MessagesPerSecond is the sustained rate of inbound frames allowed.
	MessagesPerSecond rate.Limit
	// Burst is the token bucket's capacity.
	Burst int
	// Enabled turns rate limiting on or off.
	Enabled bool
}

// DefaultRateLimitConfig allows 100 frames/second per client with a burst
// of 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit disables rate limiting entirely.
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{Enabled: false}
}

func (cfg *RateLimitConfig) newLimiter() *rate.Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return rate.NewLimiter(cfg.MessagesPerSecond, cfg.Burst)
}
