package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitMessage is returned with 429 responses.
const RateLimitMessage = "Too many requests. Please try again later."

// limiterIdleTTL drops the limiter of a client that has been quiet this long.
const limiterIdleTTL = 10 * time.Minute

// ClientRateLimiter holds one token bucket per client IP.
type ClientRateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters *cache.Cache
}

// NewClientRateLimiter allows rps requests per second per client with the given burst.
// A burst below 1 is raised to the rounded-up rate.
func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	if burst < 1 {
		burst = max(1, int(rps+0.999))
	}
	return &ClientRateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: cache.New(limiterIdleTTL, 2*limiterIdleTTL),
	}
}

// Allow reports whether client may make a request now.
func (l *ClientRateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := l.limiters.Get(client); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(l.rps, l.burst)
	}
	// refresh the idle expiry on every request
	l.limiters.SetDefault(client, lim)
	return lim.Allow()
}

// Middleware rejects requests over the client's limit with 429.
func (l *ClientRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"success": false,
					"error":   RateLimitMessage,
				})
			}
			return next(c)
		}
	}
}
