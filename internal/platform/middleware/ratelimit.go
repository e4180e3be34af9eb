package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ecodoppler/tsa/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

const (
	sweepInterval = time.Minute
	idleTimeout   = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one limiter per caller key.
type visitors struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	byKey     map[string]*visitor
	lastSweep time.Time
}

func newVisitors(cfg RateLimitConfig) *visitors {
	return &visitors{cfg: cfg, byKey: make(map[string]*visitor)}
}

// reserve takes one token for key at now. It returns zero when the request
// may proceed, otherwise how long the caller should wait.
func (v *visitors) reserve(key string, now time.Time) time.Duration {
	v.mu.Lock()
	if now.Sub(v.lastSweep) > sweepInterval {
		v.lastSweep = now
		v.evictLocked(now, idleTimeout)
	}
	vis, ok := v.byKey[key]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.BurstSize)}
		v.byKey[key] = vis
	}
	vis.lastSeen = now
	v.mu.Unlock()

	r := vis.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
	}
	return delay
}

// evictLocked drops visitors idle for longer than idle. Their limiters would
// have refilled to burst anyway.
func (v *visitors) evictLocked(now time.Time, idle time.Duration) int {
	n := 0
	for key, vis := range v.byKey {
		if now.Sub(vis.lastSeen) > idle {
			delete(v.byKey, key)
			n++
		}
	}
	return n
}

// rateLimitKey identifies the caller: the authenticated user when known,
// otherwise the client IP.
func rateLimitKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

// RateLimit limits each caller to cfg.RequestsPerSecond with bursts of
// cfg.BurstSize and answers 429 with Retry-After beyond that.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	v := newVisitors(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if wait := v.reserve(rateLimitKey(c), time.Now()); wait > 0 {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
