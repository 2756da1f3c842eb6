// Package server exposes comparisons over HTTP (chi) and MCP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/fidelity/audit"
	"github.com/hazyhaar/fidelity/compare"
	"github.com/hazyhaar/fidelity/design"
	"github.com/hazyhaar/fidelity/horosafe"
	"github.com/hazyhaar/fidelity/kit"
	"github.com/hazyhaar/fidelity/shield"
	"github.com/hazyhaar/fidelity/store"
)

var (
	errNoStore = errors.New("server: report storage is not configured")
	errNoAudit = errors.New("server: audit log is not configured")
)

// Comparer runs comparisons. *compare.Comparator implements it.
type Comparer interface {
	Compare(ctx context.Context, req compare.Request) (*compare.Report, error)
}

// Reports reads stored reports. *store.Store implements it.
type Reports interface {
	GetReport(ctx context.Context, id string) (*store.Report, error)
	ListReports(ctx context.Context, f store.ListFilter) ([]*store.Report, error)
	DeleteReport(ctx context.Context, id string) error
	GetSnapshot(ctx context.Context, reportID string) (*store.Snapshot, error)
}

// Server serves the fidelity API.
type Server struct {
	cmp     Comparer
	reports Reports
	logger  *slog.Logger
	limiter *shield.RateLimiter
	proxies []*net.IPNet
	audit   *audit.Logger
	maxBody int64
	version string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimiter limits endpoints by name, over HTTP and MCP alike.
func WithRateLimiter(rl *shield.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For is
// used to identify clients. Default: none, the TCP peer is the client.
func WithTrustedProxies(nets []*net.IPNet) Option {
	return func(s *Server) { s.proxies = nets }
}

// WithAudit records every endpoint call, HTTP and MCP alike.
func WithAudit(a *audit.Logger) Option {
	return func(s *Server) { s.audit = a }
}

// WithMaxBody caps request bodies. Default: 1MB.
func WithMaxBody(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithVersion sets the version reported by /health and MCP.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a Server. reports may be nil, in which case the report
// routes answer 503.
func New(cmp Comparer, reports Reports, opts ...Option) *Server {
	s := &Server{
		cmp:     cmp,
		reports: reports,
		logger:  slog.Default(),
		maxBody: 1 << 20,
		version: "dev",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MCPServer returns a new MCP server with all fidelity tools registered.
func (s *Server) MCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "fidelity", Version: s.version}, nil)
	s.RegisterMCP(srv)
	return srv
}

// Handler returns the HTTP handler: the JSON API under /api and the
// streamable MCP endpoint at /mcp.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultAPIStack(s.maxBody, s.proxies) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/compare", s.handle("fidelity_compare", s.compareEndpoint, decodeBody[compare.Request]))

		r.Get("/reports", s.handle("fidelity_list_reports", s.listReportsEndpoint, func(r *http.Request) (any, error) {
			return &listRequest{
				FileKey: r.URL.Query().Get("fileKey"),
				Limit:   queryInt(r, "limit", 50),
			}, nil
		}))
		r.Get("/reports/{id}", s.handle("fidelity_get_report", s.getReportEndpoint, pathID))
		r.Delete("/reports/{id}", s.handleDelete)
		r.Get("/reports/{id}/snapshot", s.handleSnapshot)

		r.Post("/diff", s.handle("fidelity_diff_text", s.diffEndpoint, decodeBody[diffRequest]))
		r.Post("/fonts", s.handle("fidelity_reconcile_fonts", s.fontsEndpoint, decodeBody[fontsRequest]))
		r.Get("/audit", s.handleAudit)
	})

	mcpSrv := s.MCPServer()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

	return r
}

// wrap applies logging, then audit and rate limiting when configured.
// Rejected calls are still audited.
func (s *Server) wrap(name string, ep kit.Endpoint) kit.Endpoint {
	mws := []kit.Middleware{kit.Logging(s.logger, name)}
	if s.audit != nil {
		mws = append(mws, s.audit.Middleware(name))
	}
	if s.limiter != nil {
		mws = append(mws, s.limiter.Endpoint(name))
	}
	return kit.Chain(mws...)(ep)
}

// handle adapts an endpoint to HTTP: decode, call, encode, map errors.
func (s *Server) handle(name string, ep kit.Endpoint, decode func(*http.Request) (any, error)) http.HandlerFunc {
	ep = s.wrap(name, ep)
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := ep(kit.WithTransport(r.Context(), "http"), req)
		if err != nil {
			code := statusFor(err)
			var limited *shield.LimitError
			if errors.As(err, &limited) {
				w.Header().Set("Retry-After", strconv.Itoa(limited.RetrySeconds()))
			}
			if code >= 500 {
				shield.GetLogger(r.Context()).Error("server: request failed", "error", err, "elapsed", time.Since(start))
			}
			writeError(w, code, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, errNoStore)
		return
	}
	if err := s.reports.DeleteReport(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, errNoStore)
		return
	}
	snap, err := s.reports.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, errNoAudit)
		return
	}
	q := r.URL.Query()
	entries, err := s.audit.Query(r.Context(), audit.Filter{
		Endpoint: q.Get("endpoint"),
		Status:   q.Get("status"),
		Limit:    queryInt(r, "limit", 100),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// statusFor maps sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, design.ErrFrameNotFound):
		return http.StatusNotFound
	case errors.Is(err, compare.ErrInvalidRequest),
		errors.Is(err, horosafe.ErrSSRF),
		errors.Is(err, horosafe.ErrUnsafeScheme):
		return http.StatusBadRequest
	case errors.Is(err, shield.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errNoStore), errors.Is(err, errNoAudit):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, compare.ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeBody[T any](r *http.Request) (any, error) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	return &v, nil
}

func pathID(r *http.Request) (any, error) {
	return &reportRequest{ID: chi.URLParam(r, "id")}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
