package shield

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/fidelity/kit"
)

func TestTraceID(t *testing.T) {
	var gotTrace string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("no logger in context")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if len(gotTrace) != 16 {
		t.Fatalf("trace id = %q, want 16 hex chars", gotTrace)
	}
	if rec.Header().Get("X-Trace-ID") != gotTrace {
		t.Errorf("header = %q, context = %q", rec.Header().Get("X-Trace-ID"), gotTrace)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Trace-ID", "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotTrace != "upstream-1" {
		t.Errorf("incoming trace id not reused: %q", gotTrace)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(APIHeaders())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		for readErr == nil {
			_, readErr = r.Body.Read(buf)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32))))
	if readErr == nil || readErr.Error() == "EOF" {
		t.Fatalf("read error = %v, want limit error", readErr)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimitConfig{
		"fidelity_compare": {MaxRequests: 2, Window: time.Minute},
	})
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	ok := func(context.Context, any) (any, error) { return "ok", nil }
	compare := rl.Endpoint("fidelity_compare")(ok)
	diff := rl.Endpoint("fidelity_diff_text")(ok)

	alice := kit.WithClientIP(context.Background(), "203.0.113.7")
	bob := kit.WithClientIP(context.Background(), "203.0.113.8")

	for i := 0; i < 2; i++ {
		if _, err := compare(alice, nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	now = now.Add(20 * time.Second)
	_, err := compare(alice, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third call: err = %v, want ErrRateLimited", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.RetrySeconds() != 40 {
		t.Fatalf("retry = %+v, want 40s left in the window", le)
	}
	if _, err := compare(bob, nil); err != nil {
		t.Fatalf("other client: %v", err)
	}
	if _, err := diff(alice, nil); err != nil {
		t.Fatalf("unlimited endpoint: %v", err)
	}

	now = now.Add(2 * time.Minute)
	rl.gc()
	if len(rl.buckets) != 0 {
		t.Errorf("gc left %d buckets", len(rl.buckets))
	}
	if _, err := compare(alice, nil); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRateLimiter_NoClientIPSharesLocalQuota(t *testing.T) {
	rl := NewRateLimiter(map[string]RateLimitConfig{"fidelity_compare": {MaxRequests: 1, Window: time.Minute}})
	ep := rl.Endpoint("fidelity_compare")(func(context.Context, any) (any, error) { return nil, nil })
	ctx := kit.WithTransport(context.Background(), "mcp")
	if _, err := ep(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ep(ctx, nil); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestExtractIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		remote  string
		xff     string
		trusted []*net.IPNet
		want    string
	}{
		{"direct", "198.51.100.1:1234", "", nil, "198.51.100.1"},
		{"spoofed header ignored", "198.51.100.1:1234", "203.0.113.9", nil, "198.51.100.1"},
		{"untrusted peer", "198.51.100.1:1234", "203.0.113.9", proxies, "198.51.100.1"},
		{"trusted proxy", "10.1.2.3:80", "203.0.113.9", proxies, "203.0.113.9"},
		{"client-prepended hop skipped", "10.1.2.3:80", "1.2.3.4, 203.0.113.9, 192.0.2.1", proxies, "203.0.113.9"},
		{"only proxies", "10.1.2.3:80", "10.0.0.9", proxies, "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ExtractIP(req, tt.trusted); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClientIP(t *testing.T) {
	var ctxIP, headerIP string
	h := ClientIP(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxIP = kit.GetClientIP(r.Context())
		headerIP = r.Header.Get(kit.ClientIPHeader)
	}))
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	req.Header.Set(kit.ClientIPHeader, "127.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if ctxIP != "198.51.100.1" || headerIP != "198.51.100.1" {
		t.Fatalf("context %q, header %q, want the TCP peer in both", ctxIP, headerIP)
	}
}
