package gateway

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP, one token bucket per
// address, with a periodic sweep to stop the map growing unbounded under a
// long-lived process.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing rps requests per second per
// client IP, with burst headroom.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request from clientIP may proceed.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[clientIP] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// StartCleanup periodically drops the whole limiter map once it grows past
// a threshold, trading a burst of fresh buckets for boundedness rather than
// tracking last-seen time per entry.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			rl.mu.Lock()
			if len(rl.limiters) > 10000 {
				rl.limiters = make(map[string]*rate.Limiter)
			}
			rl.mu.Unlock()
		}
	}()
}

// Middleware returns net/http middleware enforcing Allow per client IP,
// responding 429 when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AccessControl enforces an allow/deny CIDR list, deny taking precedence
// over allow, no allow entries meaning "allow everything not denied".
type AccessControl struct {
	AllowedCIDRs []string
	DeniedCIDRs  []string
}

// Middleware returns net/http middleware enforcing the configured CIDR
// lists.
func (ac AccessControl) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := net.ParseIP(clientIP(r))
		if ip == nil {
			http.Error(w, "could not determine client ip", http.StatusForbidden)
			return
		}
		for _, cidr := range ac.DeniedCIDRs {
			if matchCIDR(ip, cidr) {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}
		}
		if len(ac.AllowedCIDRs) > 0 {
			allowed := false
			for _, cidr := range ac.AllowedCIDRs {
				if matchCIDR(ip, cidr) {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func matchCIDR(ip net.IP, cidr string) bool {
	if !strings.Contains(cidr, "/") {
		return ip.Equal(net.ParseIP(cidr))
	}
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return ipNet.Contains(ip)
}
