// Package ratelimit provides a keyed token-bucket limiter: one bucket per
// key, created lazily, each allowing Burst events per Window. It backs the
// per-force tree-broadcast throttle in internal/subscription.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes a single bucket: at most Burst events per Window.
type Config struct {
	Burst  int
	Window time.Duration
}

// DefaultConfig matches spec §4.4's tree-broadcast recommendation: one
// broadcast per force every 250ms.
func DefaultConfig() Config {
	return Config{Burst: 1, Window: 250 * time.Millisecond}
}

// Limiter wraps a single golang.org/x/time/rate bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a bucket that admits cfg.Burst events per cfg.Window.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	interval := cfg.Window / time.Duration(cfg.Burst)
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), cfg.Burst)}
}

// Allow reports whether an event may proceed now, consuming a token if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Registry lazily creates one Limiter per key, sharing a single Config.
// Concurrent callers racing to create the same key's Limiter are safe;
// only one wins and the rest reuse it.
type Registry struct {
	cfg      Config
	limiters sync.Map // key -> *Limiter
}

// NewRegistry builds a Registry whose limiters all share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// For returns the Limiter for key, creating it on first use.
func (r *Registry) For(key string) *Limiter {
	if v, ok := r.limiters.Load(key); ok {
		return v.(*Limiter)
	}
	limiter := New(r.cfg)
	actual, _ := r.limiters.LoadOrStore(key, limiter)
	return actual.(*Limiter)
}
