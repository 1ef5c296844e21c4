// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// RateLimitConfig configures per-IP rate limiting of /api routes.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps the number of tracked IPs. Zero means 10000.
	MaxVisitors int
	// IdleTimeout drops limiters for IPs not seen for this long. Zero means 10m.
	IdleTimeout time.Duration
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got %d)", c.Burst)
	}
	if c.MaxVisitors < 0 {
		return sigilerr.Errorf(sigilerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitors struct {
	mu  sync.Mutex
	cfg RateLimitConfig
	m   map[string]*visitor
}

func (v *visitors) get(ip string, now time.Time) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.m[ip]
	if !ok {
		if len(v.m) >= v.cfg.MaxVisitors {
			v.evictOldest()
		}
		e = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.m[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (v *visitors) evictOldest() {
	var oldest string
	var at time.Time
	for ip, e := range v.m {
		if oldest == "" || e.lastSeen.Before(at) {
			oldest, at = ip, e.lastSeen
		}
	}
	delete(v.m, oldest)
}

func (v *visitors) sweep(now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ip, e := range v.m {
		if now.Sub(e.lastSeen) > v.cfg.IdleTimeout {
			delete(v.m, ip)
		}
	}
	return len(v.m)
}

// rateLimitMiddleware limits requests under /api/ per client IP. The
// sweeper goroutine exits when done is closed.
func (s *Server) rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	vs := &visitors{cfg: cfg, m: make(map[string]*visitor)}
	go func() {
		ticker := time.NewTicker(cfg.IdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				vs.sweep(now)
			case <-done:
				return
			}
		}
	}()

	retryAfter := strconv.Itoa(max(1, int(1/cfg.RequestsPerSecond)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !vs.get(ip, time.Now()).Allow() {
				limited := sigilerr.New(sigilerr.CodeServerRateLimited, "rate limit exceeded", sigilerr.Field("ip", ip))
				s.log.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "code", sigilerr.CodeOf(limited))
				writeLimited(w, limited, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimited(w http.ResponseWriter, err error, retryAfter string) {
	status := sigilerr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", retryAfter)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"title":  http.StatusText(status),
		"detail": "rate limit exceeded",
		"code":   string(sigilerr.CodeOf(err)),
	})
}
