package shield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/fidelity/kit"
)

// ErrRateLimited matches every *LimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError is returned by a limited endpoint over its quota.
type LimitError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s, retry in %ds", e.Endpoint, ErrRateLimited, e.RetrySeconds())
}

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// RetrySeconds is RetryAfter rounded up, at least 1.
func (e *LimitError) RetrySeconds() int {
	return max(1, int(math.Ceil(e.RetryAfter.Seconds())))
}

// RateLimitConfig is the limit for one endpoint ("fidelity_compare").
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter is a fixed-window, per-client, per-endpoint limiter applied
// at the endpoint level, so HTTP and MCP calls share one quota. Endpoints
// without a rule are not limited.
type RateLimiter struct {
	rules map[string]RateLimitConfig
	mu    sync.Mutex
	now   func() time.Time
	// buckets is keyed by client IP + " " + endpoint.
	buckets map[string]*bucket
}

// NewRateLimiter creates a limiter for the given endpoint rules.
func NewRateLimiter(rules map[string]RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		rules:   rules,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// StartGC drops expired buckets every interval until done is closed.
func (rl *RateLimiter) StartGC(interval time.Duration, done <-chan struct{}) {
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for k, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, k)
		}
	}
}

// allow counts one call and, when over the limit, returns how long until
// the window resets.
func (rl *RateLimiter) allow(client, endpoint string) (time.Duration, bool) {
	cfg, ok := rl.rules[endpoint]
	if !ok || cfg.MaxRequests <= 0 {
		return 0, true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := client + " " + endpoint
	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(cfg.Window)}
		return 0, true
	}
	b.count++
	if b.count <= cfg.MaxRequests {
		return 0, true
	}
	return b.resetAt.Sub(now), false
}

// Endpoint limits calls of the named endpoint per client IP, read from
// the context (see ClientIP). Calls without an IP, such as MCP over stdio,
// share the "local" quota.
func (rl *RateLimiter) Endpoint(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			client := kit.GetClientIP(ctx)
			if client == "" {
				client = "local"
			}
			if retry, ok := rl.allow(client, name); !ok {
				slog.Warn("ratelimit: call blocked", "ip", client, "endpoint", name, "transport", kit.GetTransport(ctx))
				return nil, &LimitError{Endpoint: name, RetryAfter: retry}
			}
			return next(ctx, req)
		}
	}
}

// ParseTrustedProxies parses CIDRs or bare IPs of reverse proxies whose
// X-Forwarded-For header may be believed.
func ParseTrustedProxies(list []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, s := range list {
		if !strings.Contains(s, "/") {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("shield: invalid trusted proxy %q", s)
			}
			bits := 8 * len(ip.To16())
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("shield: invalid trusted proxy %q: %w", s, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// ExtractIP returns the client IP. X-Forwarded-For is only read when the
// direct peer is a trusted proxy; the client is then the rightmost hop
// that is not itself a trusted proxy.
func ExtractIP(r *http.Request, trusted []*net.IPNet) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !inNets(peer, trusted) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !inNets(hop, trusted) {
			return hop
		}
	}
	return peer
}

func inNets(addr string, nets []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client IP once per request and stores it in the
// context. It also overwrites kit.ClientIPHeader, which is how the MCP
// transport, seeing only headers, learns it.
func ClientIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ExtractIP(r, trusted)
			r.Header.Set(kit.ClientIPHeader, ip)
			next.ServeHTTP(w, r.WithContext(kit.WithClientIP(r.Context(), ip)))
		})
	}
}
