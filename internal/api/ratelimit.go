package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/felixgeelhaar/tradeflow/internal/errors"
)

const defaultClientIdle = 30 * time.Minute

// clientLimiter keeps one token bucket per client address. Buckets idle for
// longer than idle are swept on access.
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	idle    time.Duration
	message string
	now     func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiter allows requests per window for each client, all of which
// may be spent at once.
func newClientLimiter(requests int, window, idle time.Duration, message string) *clientLimiter {
	if idle <= 0 {
		idle = defaultClientIdle
	}
	return &clientLimiter{
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   requests,
		idle:    idle,
		message: message,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

// allow spends one token for key. When the bucket is empty it returns the
// wait until the next token.
func (l *clientLimiter) allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)
	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *clientLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for key, b := range l.clients {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (a *API) rateLimit(l *clientLimiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(clientKey(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			a.writeError(w, r, errors.New(errors.ErrCodeRateLimited, l.message).
				WithSuggestion("Retry after the number of seconds in the Retry-After header"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
