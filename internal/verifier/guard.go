package verifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tphakala/spamguard-go/internal/classifier"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
	"github.com/tphakala/spamguard-go/internal/observability/metrics"
)

// GuardOptions bounds the load placed on a provider.
type GuardOptions struct {
	// Timeout caps a single verification, 0 leaves the caller's deadline.
	Timeout time.Duration
	// RateLimit is requests per second, 0 disables limiting.
	RateLimit float64
	Burst     int
	// MaxConcurrent caps in-flight requests, 0 disables the cap.
	MaxConcurrent int64
	// CacheTTL keeps successful verdicts, 0 disables caching.
	CacheTTL time.Duration
	Metrics  *metrics.VerifierMetrics
}

// Guard wraps a Verifier with rate limiting, a concurrency cap, a
// per-call timeout and a verdict cache. Failed calls are never cached.
type Guard struct {
	next    Verifier
	opts    GuardOptions
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	cache   *cache.Cache
}

// NewGuard wraps next.
func NewGuard(next Verifier, opts GuardOptions) *Guard {
	g := &Guard{next: next, opts: opts}
	if opts.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, opts.Burst))
	}
	if opts.MaxConcurrent > 0 {
		g.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	if opts.CacheTTL > 0 {
		g.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return g
}

// Name implements Verifier.
func (g *Guard) Name() string { return g.next.Name() }

// Verify implements Verifier.
func (g *Guard) Verify(ctx context.Context, t classifier.ContentType, text string) (Verdict, error) {
	key := cacheKey(t, text)
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			g.opts.Metrics.RecordCacheHit()
			return v.(Verdict), nil
		}
	}

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Verdict{}, g.limitError("rate_limit", err)
		}
	}
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return Verdict{}, g.limitError("concurrency", err)
		}
		defer g.sem.Release(1)
	}

	done := g.opts.Metrics.TrackInFlight()
	start := time.Now()
	v, err := g.next.Verify(ctx, t, text)
	done()
	g.opts.Metrics.RecordRequest(g.next.Name(), time.Since(start).Seconds(), err)

	if err != nil {
		GetLogger().Warn("verification failed",
			logger.String("provider", g.next.Name()),
			logger.String("type", string(t)),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return Verdict{}, err
	}

	if g.cache != nil {
		g.cache.SetDefault(key, v)
	}
	return v, nil
}

func (g *Guard) limitError(stage string, err error) error {
	return errors.New(err).
		Component("verifier").
		Category(errors.CategoryLimit).
		Context("provider", g.next.Name()).
		Context("stage", stage).
		Build()
}

func cacheKey(t classifier.ContentType, text string) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + text))
	return hex.EncodeToString(sum[:])
}
