package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter tracks a per-IP token bucket.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits page requests per client IP with a token
// bucket. Stale IP entries are dropped by a cleanup goroutine whose
// lifetime follows ctx; the returned channel closes when it exits.
//
// Websocket traffic is not limited here: a session holds one long-lived
// connection and the engine throttles its own recomputation.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int) (func(http.Handler) http.Handler, <-chan struct{}) {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*ipLimiter)
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				now := time.Now()
				for ip, lim := range limiters {
					if now.Sub(lim.lastSeen) > 10*time.Minute {
						delete(limiters, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			mu.Lock()
			lim, ok := limiters[ip]
			if !ok {
				lim = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				limiters[ip] = lim
			}
			lim.lastSeen = time.Now()
			allowed := lim.limiter.Allow()
			mu.Unlock()

			if !allowed {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	return middleware, done
}

// clientIP extracts the client IP. X-Forwarded-For is only trusted when
// the immediate peer is a loopback or private address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peerIP := net.ParseIP(host)
	if peerIP != nil && (peerIP.IsLoopback() || peerIP.IsPrivate()) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if parts := strings.SplitN(xff, ",", 2); len(parts) > 0 {
				return strings.TrimSpace(parts[0])
			}
		}
	}
	if peerIP != nil {
		return peerIP.String()
	}
	return host
}
