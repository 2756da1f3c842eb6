package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/fidelity/pagestyle"
)

// fontsReady resolves once web fonts have loaded, so computed families
// and boxes reflect the final layout.
const fontsReady = `() => document.fonts ? document.fonts.ready.then(() => true) : true`

type tab struct {
	page *rod.Page
	url  string
	cfg  Config

	mu      sync.Mutex
	refused error // first document request refused by cfg.CheckURL
}

// openTab creates a tab, applies stealth and resource blocking, sizes the
// viewport, then navigates and waits for load.
func openTab(ctx context.Context, b *rod.Browser, cfg Config, pageURL string) (*tab, error) {
	var page *rod.Page
	var err error
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &tab{page: page, url: pageURL, cfg: cfg}

	if len(cfg.ResourceBlocking) > 0 || cfg.CheckURL != nil {
		t.route(cfg.ResourceBlocking)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.ViewportWidth,
		Height:            cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		t.close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.close()
		if refused := t.refusedErr(); refused != nil {
			return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, refused)
		}
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// capture waits for the page to settle, then runs the capture script.
func (t *tab) capture(ctx context.Context) (*pagestyle.Page, error) {
	if err := t.page.Context(ctx).WaitIdle(t.cfg.Settle); err != nil {
		t.cfg.Logger.Debug("browser: wait idle", "url", t.url, "error", err)
	}
	if _, err := t.page.Context(ctx).Eval(fontsReady); err != nil {
		t.cfg.Logger.Debug("browser: fonts ready", "url", t.url, "error", err)
	}

	res, err := t.page.Context(ctx).Eval(pagestyle.CaptureScript)
	if err != nil {
		return nil, fmt.Errorf("browser: capture %s: %w", t.url, err)
	}
	page, err := pagestyle.ParsePage([]byte(res.Value.Str()))
	if err != nil {
		return nil, fmt.Errorf("browser: capture %s: %w", t.url, err)
	}
	return page, nil
}

func (t *tab) close() {
	if t.page == nil {
		return
	}
	if err := t.page.Close(); err != nil {
		t.cfg.Logger.Debug("browser: close tab", "url", t.url, "error", err)
	}
}

func (t *tab) refusedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refused
}

// route intercepts every request of the tab. Requests whose URL fails
// cfg.CheckURL are failed, which covers redirects and subresources, not
// only the first URL. Resource types listed in blocking are dropped.
// Accepted names: images, fonts, media, stylesheets, or any raw CDP type.
func (t *tab) route(blocking []string) {
	blockSet := make(map[string]bool, len(blocking))
	for _, b := range blocking {
		blockSet[strings.ToLower(b)] = true
	}

	router := t.page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		resType := string(h.Request.Type())
		rawURL := h.Request.URL().String()
		if err := checkRequest(t.cfg.CheckURL, rawURL); err != nil {
			t.cfg.Logger.Warn("browser: request refused", "url", rawURL, "type", resType, "error", err)
			if h.Request.Type() == proto.NetworkResourceTypeDocument {
				t.mu.Lock()
				if t.refused == nil {
					t.refused = err
				}
				t.mu.Unlock()
			}
			h.Response.Fail(proto.NetworkErrorReasonAccessDenied)
			return
		}
		if shouldBlock(blockSet, resType) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

// checkRequest applies check to network URLs. data: and blob: URLs never
// leave the browser and always pass.
func checkRequest(check func(string) error, rawURL string) error {
	if check == nil {
		return nil
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch u.Scheme {
		case "data", "blob":
			return nil
		}
	}
	return check(rawURL)
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[lower]
}
