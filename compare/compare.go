// Package compare runs a full design-vs-page comparison: it fetches the
// design document and renders the page concurrently, extracts both sides,
// and builds and optionally persists a Report.
package compare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/fidelity/design"
	"github.com/hazyhaar/fidelity/horosafe"
	"github.com/hazyhaar/fidelity/idgen"
	"github.com/hazyhaar/fidelity/pagestyle"
	"github.com/hazyhaar/fidelity/pagetext"
	"github.com/hazyhaar/fidelity/store"
)

// ErrInvalidRequest is returned for incomplete requests and rejected URLs.
var ErrInvalidRequest = errors.New("compare: invalid request")

// ErrUpstream wraps failures of the design API or the page render.
var ErrUpstream = errors.New("compare: upstream failure")

// Request identifies the two sides of a comparison.
type Request struct {
	FileKey   string `json:"fileKey"`
	FrameName string `json:"frameName"`
	URL       string `json:"url"`
}

// DesignSource fetches design documents. *design.Client implements it.
type DesignSource interface {
	File(ctx context.Context, key string) (*design.File, error)
}

// PageSource renders pages. *browser.Manager implements it.
type PageSource interface {
	Capture(ctx context.Context, url string) (*pagestyle.Page, error)
}

// ReportStore persists reports. *store.Store implements it.
type ReportStore interface {
	SaveReport(ctx context.Context, r *store.Report) error
	SaveSnapshot(ctx context.Context, s *store.Snapshot) error
}

// Comparator runs comparisons. It is safe for concurrent use.
type Comparator struct {
	designs DesignSource
	pages   PageSource
	store   ReportStore
	policy  horosafe.URLPolicy
	newID   idgen.Generator
	logger  *slog.Logger
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithStore persists every report and its page snapshot.
func WithStore(s ReportStore) Option {
	return func(c *Comparator) { c.store = s }
}

// WithURLPolicy replaces the default strict SSRF policy.
func WithURLPolicy(p horosafe.URLPolicy) Option {
	return func(c *Comparator) { c.policy = p }
}

// WithIDGenerator sets the report ID generator. Default: "rpt_" + UUIDv7.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Comparator) { c.newID = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Comparator) { c.logger = l }
}

// New creates a Comparator.
func New(designs DesignSource, pages PageSource, opts ...Option) *Comparator {
	c := &Comparator{
		designs: designs,
		pages:   pages,
		newID:   idgen.Prefixed("rpt_", idgen.UUIDv7()),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compare validates req, fetches the design file and captures the page
// concurrently, then builds the report. A missing frame returns an error
// wrapping design.ErrFrameNotFound.
func (c *Comparator) Compare(ctx context.Context, req Request) (*Report, error) {
	if req.FileKey == "" || req.FrameName == "" || req.URL == "" {
		return nil, fmt.Errorf("%w: fileKey, frameName and url are required", ErrInvalidRequest)
	}
	if err := c.policy.Validate(req.URL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		file    *design.File
		page    *pagestyle.Page
		fileErr error
		pageErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		file, fileErr = c.designs.File(ctx, req.FileKey)
		if fileErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		page, pageErr = c.pages.Capture(ctx, req.URL)
		if pageErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if fileErr != nil {
		return nil, fmt.Errorf("%w: design: %w", ErrUpstream, fileErr)
	}
	if pageErr != nil {
		return nil, fmt.Errorf("%w: page: %w", ErrUpstream, pageErr)
	}

	frame, err := design.FindFrameByName(file.Document, req.FrameName)
	if err != nil {
		return nil, fmt.Errorf("compare: %q in %s: %w", req.FrameName, req.FileKey, err)
	}

	r := Build(frame, page)
	r.ID = c.newID()
	r.FileKey = req.FileKey
	r.FrameName = req.FrameName
	r.PageURL = req.URL
	r.CreatedAt = time.Now().UTC()

	c.logger.Info("compare: done",
		"report_id", r.ID, "file_key", r.FileKey, "frame", r.FrameName, "url", r.PageURL,
		"design_elements", len(r.DesignElements), "web_elements", len(r.WebElements),
		"mismatches", len(r.Mismatches), "elapsed", time.Since(start))

	if c.store != nil {
		if err := c.persist(ctx, r, page); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (c *Comparator) persist(ctx context.Context, r *Report, page *pagestyle.Page) error {
	rec, err := Record(r)
	if err != nil {
		return err
	}
	if err := c.store.SaveReport(ctx, rec); err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	snap := &store.Snapshot{
		ReportID:   r.ID,
		PageURL:    r.PageURL,
		Title:      page.Title,
		HTML:       pagetext.Sanitize(page.HTML),
		Markdown:   pagetext.Markdown(page.HTML, r.PageURL),
		CapturedAt: r.CreatedAt,
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	return nil
}

// Record converts a report into its stored form.
func Record(r *Report) (*store.Report, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("compare: marshal report: %w", err)
	}
	return &store.Report{
		ID:                r.ID,
		FileKey:           r.FileKey,
		FrameName:         r.FrameName,
		PageURL:           r.PageURL,
		Similarity:        r.TextDiff.Similarity,
		ContentSimilarity: r.ContentDiff.Similarity,
		MismatchCount:     len(r.Mismatches),
		Body:              body,
		CreatedAt:         r.CreatedAt,
	}, nil
}
