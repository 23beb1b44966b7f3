// Package ws is a thin, stable constructor surface over wspipe, the same
// shape the library's own HTTP-composition example uses: a couple of type
// aliases plus a handful of convenience constructors, so callers who only
// need to stand up a server don't have to reach past it into the root
// package's richer Config/Server API.
package ws

import (
	"net/http"

	"github.com/luciancaetano/wspipe"
)

type RateLimitConfig = wspipe.RateLimitConfig
type CheckOriginFn = func(r *http.Request) bool
type Config = wspipe.Config

// New creates a new Server ready to Start or to have its UpgradeHandler
// embedded into an existing HTTP mux.
//
// Example:
//
//	server := ws.New(ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//	server.RegisterRoute("/hello", func(ctx wspipe.Context, next wspipe.Next) (any, error) {
//	    return "hi", nil
//	})
//	server.Start(ctx)
func New(cfg Config) *wspipe.Server {
	return wspipe.New(cfg)
}

// NewConfig builds a Config from the options most callers tune first.
func NewConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn) Config {
	return wspipe.Config{
		Addr:        addr,
		RateLimit:   rateLimitConfig,
		CheckOrigin: checkOrigin,
	}
}

// AllOrigins allows every origin. Development only — configure a real
// CheckOriginFn in production.
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool { return true }
}

// DefaultRateLimitConfig allows 100 frames/second per client, burst 200.
func DefaultRateLimitConfig() *RateLimitConfig {
	return wspipe.DefaultRateLimitConfig()
}

// NoRateLimit disables rate limiting entirely.
func NoRateLimit() *RateLimitConfig {
	return wspipe.NoRateLimit()
}
