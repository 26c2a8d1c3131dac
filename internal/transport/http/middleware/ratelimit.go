package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"hrflow/internal/transport/http/api"
)

// pruneEvery is how many hits a limiter takes between sweeps of idle buckets.
const pruneEvery = 1024

type keyFunc func(r *http.Request) string

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter keeps a token bucket per key. A bucket holds limit tokens and
// refills over period.
type limiter struct {
	name   string
	limit  int
	period time.Duration
	every  rate.Limit
	key    keyFunc

	mu      sync.Mutex
	hits    int
	buckets map[string]*bucket
}

func newLimiter(name string, limit int, period time.Duration, key keyFunc) *limiter {
	l := &limiter{name: name, limit: limit, period: period, key: key, buckets: map[string]*bucket{}}
	if limit > 0 && period > 0 {
		l.every = rate.Every(period / time.Duration(limit))
	}
	return l
}

// bucketFor returns the key's bucket, dropping buckets idle long enough to
// have refilled.
func (l *limiter) bucketFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits++
	if l.hits%pruneEvery == 0 {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.period {
				delete(l.buckets, k)
			}
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.limit)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// RateLimit applies one budget per authenticated user, or per client IP
// before authentication.
func RateLimit(limit int, period time.Duration) func(http.Handler) http.Handler {
	l := newLimiter("general", limit, period, actorOrIPKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.allow(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit adds tighter budgets for logins and approval
// decisions on top of RateLimit. Logins are limited per IP and per email,
// decisions per actor.
func SensitiveMutationRateLimit(baseLimit int, period time.Duration) func(http.Handler) http.Handler {
	loginByIP := newLimiter("login_ip", max(baseLimit/4, 1), period, clientIPKey)
	loginByEmail := newLimiter("login_email", max(baseLimit/4, 1), period, loginEmailKey)
	decisions := newLimiter("decision", max(baseLimit/2, 1), period, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sensitiveRateScope(r) {
			case sensitiveScopeAuth:
				if !loginByIP.allow(w, r) || !loginByEmail.allow(w, r) {
					return
				}
			case sensitiveScopeActor:
				if !decisions.allow(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *limiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.key(r)
	if key == "" {
		key = clientIPKey(r)
	}
	now := time.Now()
	lim := l.bucketFor(key, now)

	res := lim.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	tokens := lim.TokensAt(now)

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(int(tokens), 0)))
	h.Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(l.refill(tokens))))
	if delay <= 0 {
		return true
	}

	retry := max(ceilSeconds(delay), 1)
	h.Set("Retry-After", strconv.Itoa(retry))
	zap.L().Warn("rate limit exceeded",
		zap.String("limiter", l.name),
		zap.String("key", key),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	api.FailWithDetails(w, http.StatusTooManyRequests, "rate_limited", "too many requests",
		map[string]any{"limiter": l.name, "retryAfterSeconds": retry}, GetRequestID(r.Context()))
	return false
}

// refill is how long a bucket holding tokens takes to fill up again.
func (l *limiter) refill(tokens float64) time.Duration {
	missing := float64(l.limit) - tokens
	if missing <= 0 || l.every <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.every) * float64(time.Second))
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return "ip:" + ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return "ip:" + strings.TrimSpace(r.RemoteAddr)
	}
	return "ip:" + host
}

// loginEmailKey peeks at the login body and restores it for the handler.
func loginEmailKey(r *http.Request) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return clientIPKey(r)
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return clientIPKey(r)
	}
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &payload) != nil || strings.TrimSpace(payload.Email) == "" {
		return clientIPKey(r)
	}
	return "email:" + strings.ToLower(strings.TrimSpace(payload.Email))
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeAuth  sensitiveScope = "auth"
	sensitiveScopeActor sensitiveScope = "actor"
)

// decisionSuffixes are the per-request approval actions under /leave/{id}.
var decisionSuffixes = []string{"/supervisor", "/hr", "/admin", "/emergency-override", "/escalate", "/direct-approval"}

func sensitiveRateScope(r *http.Request) sensitiveScope {
	if !mutating(r.Method) {
		return sensitiveScopeNone
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case path == "/auth/login":
		return sensitiveScopeAuth
	case strings.HasPrefix(path, "/leave/bulk/"):
		return sensitiveScopeActor
	case strings.HasPrefix(path, "/kpis/") && strings.HasSuffix(path, "/approve"):
		return sensitiveScopeActor
	case strings.HasPrefix(path, "/leave/"):
		for _, suffix := range decisionSuffixes {
			if strings.HasSuffix(path, suffix) {
				return sensitiveScopeActor
			}
		}
	}
	return sensitiveScopeNone
}
