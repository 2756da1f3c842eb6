package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/fidelity/compare"
	"github.com/hazyhaar/fidelity/fonts"
	"github.com/hazyhaar/fidelity/store"
	"github.com/hazyhaar/fidelity/textdiff"
)

// Diff modes.
const (
	ModeStyled  = "styled"  // lowercase only
	ModeContent = "content" // lowercase + whitespace collapse
)

type diffRequest struct {
	A    string `json:"a"`
	B    string `json:"b"`
	Mode string `json:"mode,omitempty"`
}

type fontsRequest struct {
	ImageFonts []string `json:"imageFonts"`
	WebFonts   []string `json:"webFonts"`
}

type reportRequest struct {
	ID string `json:"id"`
}

type listRequest struct {
	FileKey string `json:"fileKey,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type listResponse struct {
	Reports []*store.Report `json:"reports"`
}

// Each endpoint is served over HTTP and as an MCP tool.

func (s *Server) compareEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*compare.Request)
	return s.cmp.Compare(ctx, *r)
}

func (s *Server) getReportEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*reportRequest)
	if s.reports == nil {
		return nil, errNoStore
	}
	rec, err := s.reports.GetReport(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	var rep compare.Report
	if err := json.Unmarshal(rec.Body, &rep); err != nil {
		return nil, fmt.Errorf("server: decode report %s: %w", r.ID, err)
	}
	return &rep, nil
}

func (s *Server) listReportsEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*listRequest)
	if s.reports == nil {
		return nil, errNoStore
	}
	list, err := s.reports.ListReports(ctx, store.ListFilter{FileKey: r.FileKey, Limit: r.Limit})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*store.Report{}
	}
	return &listResponse{Reports: list}, nil
}

func (s *Server) diffEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*diffRequest)
	switch r.Mode {
	case "", ModeStyled:
		res := textdiff.DiffAndScore(r.A, r.B)
		return &res, nil
	case ModeContent:
		res := textdiff.DiffContent(r.A, r.B)
		return &res, nil
	}
	return nil, fmt.Errorf("%w: unknown diff mode %q", compare.ErrInvalidRequest, r.Mode)
}

func (s *Server) fontsEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*fontsRequest)
	res := fonts.Reconcile(r.ImageFonts, r.WebFonts)
	return &res, nil
}
