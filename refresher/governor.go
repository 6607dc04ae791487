package refresher

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ProviderLimiter bounds refresh calls per provider. Allow must decide
// immediately; a connection that misses a permit simply stays idle until
// the next poll tick.
type ProviderLimiter interface {
	Allow(ctx context.Context, providerKey string) (bool, error)
}

// Governor bounds in-flight refreshes on two independent dimensions: a
// global concurrency ceiling and a per-provider rate. Acquire never blocks.
type Governor struct {
	global   *semaphore.Weighted
	provider ProviderLimiter
}

// NewGovernor creates a governor with the given global ceiling. provider
// may be nil when no per-provider limit applies.
func NewGovernor(globalInflight int64, provider ProviderLimiter) *Governor {
	if globalInflight < 1 {
		globalInflight = 1
	}
	return &Governor{
		global:   semaphore.NewWeighted(globalInflight),
		provider: provider,
	}
}

// Acquire attempts to take one permit for the provider. On success the
// returned release func must be called exactly once when the refresh call
// returns, success or failure.
func (g *Governor) Acquire(ctx context.Context, providerKey string) (release func(), ok bool, err error) {
	if !g.global.TryAcquire(1) {
		return nil, false, nil
	}
	if g.provider != nil {
		allowed, err := g.provider.Allow(ctx, providerKey)
		if err != nil || !allowed {
			g.global.Release(1)
			return nil, false, err
		}
	}
	return func() { g.global.Release(1) }, true, nil
}

// BucketLimiter is an in-process ProviderLimiter backed by token buckets,
// one per provider. Providers without an explicit config share a default.
type BucketLimiter struct {
	limiters map[string]*rate.Limiter
	fallback *rate.Limiter
}

// BucketConfig holds per-provider token bucket settings.
type BucketConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// NewBucketLimiter builds a limiter from per-provider configs plus a
// default for everyone else.
func NewBucketLimiter(configs map[string]BucketConfig, fallback BucketConfig) *BucketLimiter {
	l := &BucketLimiter{
		limiters: make(map[string]*rate.Limiter, len(configs)),
		fallback: newBucket(fallback),
	}
	for key, cfg := range configs {
		l.limiters[key] = newBucket(cfg)
	}
	return l
}

func newBucket(cfg BucketConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// Allow consumes one token for the provider without blocking.
func (l *BucketLimiter) Allow(ctx context.Context, providerKey string) (bool, error) {
	if lim, ok := l.limiters[providerKey]; ok {
		return lim.Allow(), nil
	}
	return l.fallback.Allow(), nil
}
