// Package browser owns the headless Chrome used to render target pages:
// launch or connect, open tabs, capture computed typography, and recycle
// the process before it grows stale.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/fidelity/pagestyle"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// Stealth applies go-rod/stealth evasions to every tab. Default: true
	// via New; some sites serve different markup to automation.
	Stealth bool

	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration

	// MaxCaptures recycles Chrome after this many captures. Default: 500.
	MaxCaptures int

	// ResourceBlocking lists resource types to drop (images, media, ...).
	// Fonts and stylesheets must load for computed styles to be right.
	ResourceBlocking []string

	// CheckURL vets every URL the tab requests, including redirect
	// targets and subresources. A refused document request fails the
	// capture with CheckURL's error. Nil allows everything.
	CheckURL func(rawURL string) error

	// NavTimeout bounds navigation plus load. Default: 30s.
	NavTimeout time.Duration

	// Settle is how long to wait for the page to go idle after load.
	// Default: 2s.
	Settle time.Duration

	// Viewport width and height in CSS pixels. Default: 1440x900.
	ViewportWidth  int
	ViewportHeight int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MaxCaptures <= 0 {
		c.MaxCaptures = 500
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Settle <= 0 {
		c.Settle = 2 * time.Second
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1440
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 900
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome lifecycle. Captures hold a read lock, so a
// recycle waits for in-flight captures to finish.
type Manager struct {
	cfg      Config
	ctx      context.Context // owns the Chrome process; request contexts only bound tabs
	cancel   context.CancelFunc
	mu       sync.RWMutex
	browser  *rod.Browser
	lnch     *launcher.Launcher
	startAt  time.Time
	captures int
	closed   bool
}

// NewManager creates a Manager. Chrome is started lazily by the first
// Capture, or eagerly by Start.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Start launches Chrome (or connects to the remote instance). ctx only
// bounds the launch itself.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}
	return m.startLocked(ctx)
}

// Close shuts Chrome down. The manager cannot be restarted.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	m.cancel()
	return nil
}

// Capture renders pageURL in a fresh tab and returns its markup and
// styled element tree.
func (m *Manager) Capture(ctx context.Context, pageURL string) (*pagestyle.Page, error) {
	if err := m.maybeRecycle(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	tab, err := openTab(ctx, m.browser, m.cfg, pageURL)
	if err != nil {
		return nil, err
	}
	defer tab.close()

	start := time.Now()
	page, err := tab.capture(ctx)
	if err != nil {
		return nil, err
	}
	m.cfg.Logger.Info("browser: captured page",
		"url", pageURL, "title", page.Title, "html_bytes", len(page.HTML), "elapsed", time.Since(start))
	return page, nil
}

// maybeRecycle starts Chrome when needed and restarts it once it has
// outlived RecycleInterval or served MaxCaptures captures.
func (m *Manager) maybeRecycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser == nil {
		return m.startLocked(ctx)
	}

	m.captures++
	if time.Since(m.startAt) < m.cfg.RecycleInterval && m.captures <= m.cfg.MaxCaptures {
		return nil
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt), "captures", m.captures-1)
	m.cleanup()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	log := m.cfg.Logger

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		l := launcher.New().Context(m.ctx).Headless(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("font-render-hinting", "none")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.browser = b
	m.startAt = time.Now()
	m.captures = 1
	return nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
