// Command fidelity compares design frames with the pages that implement
// them.
//
// Usage:
//
//	fidelity -config fidelity.yaml                            # HTTP API + /mcp
//	fidelity -file KEY -frame Landing -url https://acme.example # one comparison, JSON on stdout
//	fidelity -mcp-stdio                                        # MCP over stdin/stdout
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/fidelity/audit"
	"github.com/hazyhaar/fidelity/compare"
	"github.com/hazyhaar/fidelity/config"
	"github.com/hazyhaar/fidelity/design"
	"github.com/hazyhaar/fidelity/horosafe"
	"github.com/hazyhaar/fidelity/internal/browser"
	"github.com/hazyhaar/fidelity/server"
	"github.com/hazyhaar/fidelity/shield"
	"github.com/hazyhaar/fidelity/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to fidelity.yaml")
	addr := flag.String("addr", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	fileKey := flag.String("file", "", "one-shot: design file key")
	frame := flag.String("frame", "", "one-shot: frame name")
	pageURL := flag.String("url", "", "one-shot: page URL")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP over stdin/stdout")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("fidelity: config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Listen = *addr
	}

	switch {
	case *fileKey != "" || *frame != "" || *pageURL != "":
		err = runOnce(ctx, logger, cfg, compare.Request{FileKey: *fileKey, FrameName: *frame, URL: *pageURL})
	case *mcpStdio:
		err = runMCPStdio(ctx, logger, cfg)
	default:
		err = runServe(ctx, logger, cfg)
	}
	if err != nil {
		logger.Error("fidelity: fatal", "error", err)
		os.Exit(1)
	}
}

// deps holds the long-lived collaborators shared by every mode.
type deps struct {
	browser *browser.Manager
	store   *store.Store
	audit   *audit.Logger
	cmp     *compare.Comparator
}

func (d *deps) close() {
	d.browser.Close()
	if d.audit != nil {
		d.audit.Close()
	}
	if d.store != nil {
		d.store.Close()
	}
}

func build(logger *slog.Logger, cfg *config.Config, persist bool) (*deps, error) {
	if cfg.Design.Token == "" {
		return nil, fmt.Errorf("design token missing: set design.token or FIGMA_TOKEN")
	}

	designs := design.NewClient(cfg.Design.Token,
		design.WithBaseURL(cfg.Design.BaseURL),
		design.WithMaxBytes(cfg.Design.MaxBytes),
		design.WithHTTPClient(&http.Client{Timeout: cfg.Design.Timeout}),
		design.WithLogger(logger))

	policy := horosafe.URLPolicy{AllowPrivate: cfg.AllowPrivateURLs}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Stealth:          cfg.Browser.StealthEnabled(),
		RecycleInterval:  cfg.Browser.RecycleInterval,
		MaxCaptures:      cfg.Browser.MaxCaptures,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		CheckURL:         policy.Validate,
		NavTimeout:       cfg.Browser.NavTimeout,
		Settle:           cfg.Browser.Settle,
		ViewportWidth:    cfg.Browser.ViewportWidth,
		ViewportHeight:   cfg.Browser.ViewportHeight,
		Logger:           logger,
	})

	d := &deps{browser: mgr}
	opts := []compare.Option{
		compare.WithLogger(logger),
		compare.WithURLPolicy(policy),
	}
	if persist {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			mgr.Close()
			return nil, err
		}
		al, err := audit.New(st.DB, 1000)
		if err != nil {
			st.Close()
			mgr.Close()
			return nil, err
		}
		d.store = st
		d.audit = al
		opts = append(opts, compare.WithStore(st))
	}
	d.cmp = compare.New(designs, mgr, opts...)
	return d, nil
}

func runOnce(ctx context.Context, logger *slog.Logger, cfg *config.Config, req compare.Request) error {
	d, err := build(logger, cfg, false)
	if err != nil {
		return err
	}
	defer d.close()

	report, err := d.cmp.Compare(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runMCPStdio(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	d, err := build(logger, cfg, true)
	if err != nil {
		return err
	}
	defer d.close()

	srv := server.New(d.cmp, d.store,
		server.WithLogger(logger),
		server.WithAudit(d.audit),
		server.WithRateLimiter(compareLimiter(cfg)),
		server.WithVersion(version))
	logger.Info("fidelity: MCP on stdio", "db", cfg.DBPath)
	return srv.MCPServer().Run(ctx, &mcp.StdioTransport{})
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	d, err := build(logger, cfg, true)
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.browser.Start(ctx); err != nil {
		return err
	}

	proxies, err := shield.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	limiter := compareLimiter(cfg)
	limiter.StartGC(5*time.Minute, ctx.Done())
	go pruneAudit(ctx, logger, d.audit, cfg.AuditRetention)

	api := server.New(d.cmp, d.store,
		server.WithLogger(logger),
		server.WithRateLimiter(limiter),
		server.WithTrustedProxies(proxies),
		server.WithAudit(d.audit),
		server.WithMaxBody(cfg.MaxBody),
		server.WithVersion(version))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("fidelity: listening", "addr", cfg.Listen, "db", cfg.DBPath, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("fidelity: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("fidelity: shutdown", "error", err)
	}
	return nil
}

// compareLimiter bounds comparisons per client; each one opens a tab.
func compareLimiter(cfg *config.Config) *shield.RateLimiter {
	return shield.NewRateLimiter(map[string]shield.RateLimitConfig{
		"fidelity_compare": {MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window},
	})
}

// pruneAudit drops audit entries older than retention, once at startup and
// then daily.
func pruneAudit(ctx context.Context, logger *slog.Logger, al *audit.Logger, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := al.Cleanup(ctx, retention)
		if err != nil {
			logger.Warn("fidelity: audit cleanup", "error", err)
		} else if n > 0 {
			logger.Info("fidelity: audit cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
