package compare

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/fidelity/design"
	"github.com/hazyhaar/fidelity/horosafe"
	"github.com/hazyhaar/fidelity/pagestyle"
	"github.com/hazyhaar/fidelity/store"
)

const designFile = `{
  "name": "Marketing",
  "document": {
    "id": "0:0", "name": "Document", "type": "DOCUMENT",
    "children": [{
      "id": "0:1", "name": "Page 1", "type": "CANVAS",
      "children": [{
        "id": "1:1", "name": "Landing", "type": "FRAME",
        "children": [
          {
            "id": "1:2", "name": "Title", "type": "TEXT", "characters": "Welcome to our site",
            "style": {"fontFamily": "Inter", "fontSize": 48, "fontWeight": 700, "lineHeightPx": 56},
            "fills": [{"type": "SOLID", "color": {"r": 1, "g": 0, "b": 0, "a": 1}}]
          },
          {
            "id": "1:3", "name": "Nav", "type": "TEXT", "characters": "Pricing",
            "style": {"fontFamily": "Roboto", "fontSize": 14, "fontWeight": 400, "lineHeightPercentFontSize": 150}
          },
          {
            "id": "1:4", "name": "Footer", "type": "TEXT", "characters": "Contact us",
            "style": {"fontFamily": "Inter", "fontSize": 12, "fontWeight": 400},
            "fills": [{"type": "SOLID", "color": {"r": 0, "g": 0, "b": 0, "a": 0.5}}]
          },
          {
            "id": "1:5", "name": "Promo", "type": "TEXT", "characters": "Limited offer",
            "style": {"fontFamily": "Inter", "fontSize": 12, "fontWeight": 400}
          }
        ]
      }]
    }]
  }
}`

const renderedPage = `{
  "url": "https://acme.example/",
  "title": "Acme",
  "html": "<html><body><h1>Welcome to our Site</h1><p>Contact us</p><a href=\"/pricing\">Pricing</a></body></html>",
  "root": {
    "tag": "body", "text": "Welcome to our SiteContact usPricing", "own": "",
    "style": {"fontFamily": "Arial", "fontSize": "16px", "fontWeight": "400", "color": "rgb(0, 0, 0)",
              "lineHeight": "normal", "letterSpacing": "normal", "display": "block", "visibility": "visible", "opacity": "1"},
    "rect": {"width": 1440, "height": 900},
    "children": [
      {
        "tag": "h1", "text": "Welcome to our Site", "own": "Welcome to our Site",
        "style": {"fontFamily": "Inter, sans-serif", "fontSize": "40px", "fontWeight": "700", "color": "rgb(255, 0, 0)",
                  "lineHeight": "56px", "letterSpacing": "normal", "display": "block", "visibility": "visible", "opacity": "1"},
        "rect": {"width": 1440, "height": 56}
      },
      {
        "tag": "p", "text": "Contact us", "own": "Contact us",
        "style": {"fontFamily": "'Helvetica'", "fontSize": "12px", "fontWeight": "400", "color": "rgba(0, 0, 0, 0.5)",
                  "lineHeight": "normal", "letterSpacing": "normal", "display": "block", "visibility": "visible", "opacity": "1"},
        "rect": {"width": 1440, "height": 18}
      },
      {
        "tag": "a", "text": "Pricing", "own": "Pricing",
        "style": {"fontFamily": "Roboto", "fontSize": "14px", "fontWeight": "400", "color": "rgb(0, 0, 238)",
                  "lineHeight": "20px", "letterSpacing": "normal", "display": "inline", "visibility": "visible", "opacity": "1"},
        "rect": {"width": 60, "height": 20}
      }
    ]
  }
}`

type fakeDesigns struct {
	file *design.File
	err  error
}

func (f *fakeDesigns) File(ctx context.Context, key string) (*design.File, error) {
	return f.file, f.err
}

type fakePages struct {
	page  *pagestyle.Page
	err   error
	calls atomic.Int32
}

func (f *fakePages) Capture(ctx context.Context, url string) (*pagestyle.Page, error) {
	f.calls.Add(1)
	return f.page, f.err
}

func loadFixtures(t *testing.T) (*design.File, *pagestyle.Page) {
	t.Helper()
	var f design.File
	if err := json.Unmarshal([]byte(designFile), &f); err != nil {
		t.Fatalf("design fixture: %v", err)
	}
	p, err := pagestyle.ParsePage([]byte(renderedPage))
	if err != nil {
		t.Fatalf("page fixture: %v", err)
	}
	return &f, p
}

// publicDNS resolves every host to a public address so tests never hit
// the network.
var publicDNS = horosafe.URLPolicy{
	Resolve: func(string) ([]string, error) { return []string{"93.184.216.34"}, nil },
}

func TestBuild(t *testing.T) {
	f, p := loadFixtures(t)
	frame, err := design.FindFrameByName(f.Document, "Landing")
	if err != nil {
		t.Fatal(err)
	}

	r := Build(frame, p)

	if len(r.DesignElements) != 4 {
		t.Fatalf("design elements = %d, want 4", len(r.DesignElements))
	}
	if len(r.WebElements) != 3 {
		t.Fatalf("web elements = %d, want 3: %+v", len(r.WebElements), r.WebElements)
	}
	if r.PageTitle != "Acme" {
		t.Errorf("PageTitle = %q", r.PageTitle)
	}

	want := []Mismatch{
		{Text: "Welcome to our site", Property: PropFontSize, Design: "48px", Web: "40px", WebTag: "h1"},
		{Text: "Contact us", Property: PropFontFamily, Design: "Inter", Web: "Helvetica", WebTag: "p"},
	}
	if len(r.Mismatches) != len(want) {
		t.Fatalf("mismatches = %+v, want %+v", r.Mismatches, want)
	}
	for i := range want {
		if r.Mismatches[i] != want[i] {
			t.Errorf("mismatch[%d] = %+v, want %+v", i, r.Mismatches[i], want[i])
		}
	}

	if len(r.Unpaired) != 1 || r.Unpaired[0] != "Limited offer" {
		t.Errorf("Unpaired = %v", r.Unpaired)
	}

	if strings.Join(r.Fonts.Matching, ",") != "Inter,Roboto" {
		t.Errorf("Fonts.Matching = %v", r.Fonts.Matching)
	}
	if strings.Join(r.Fonts.OnlyInWeb, ",") != "Helvetica" {
		t.Errorf("Fonts.OnlyInWeb = %v", r.Fonts.OnlyInWeb)
	}
	if len(r.Fonts.OnlyInImage) != 0 {
		t.Errorf("Fonts.OnlyInImage = %v", r.Fonts.OnlyInImage)
	}

	if r.TextDiff.Similarity == nil || r.ContentDiff.Similarity == nil {
		t.Fatal("similarities should be defined")
	}
	if r.TextDiff.Removed == 0 {
		t.Error("TextDiff should report the unpaired design text as removed")
	}
}

func TestBuild_NilPage(t *testing.T) {
	f, _ := loadFixtures(t)
	r := Build(f.Document, nil)
	if len(r.WebElements) != 0 {
		t.Errorf("web elements = %d", len(r.WebElements))
	}
	if len(r.Unpaired) != 4 {
		t.Errorf("Unpaired = %v", r.Unpaired)
	}
	if r.ContentDiff.Added != 0 {
		t.Errorf("ContentDiff.Added = %d", r.ContentDiff.Added)
	}
}

func TestMismatches_LineHeightOnlyInPx(t *testing.T) {
	_, p := loadFixtures(t)
	web := pagestyle.Resolve(p.Root)

	var f design.File
	json.Unmarshal([]byte(designFile), &f)
	frame, _ := design.FindFrameByName(f.Document, "Landing")
	els := design.ExtractElements(frame)

	// Nav: design 150% vs page 20px must not be compared.
	for _, m := range diffProps(els[1], web[2]) {
		if m.Property == PropLineHeight {
			t.Fatalf("compared percent line height: %+v", m)
		}
	}

	lh := 50.0
	els[0].LineHeight = &lh
	got := diffProps(els[0], web[0])
	found := false
	for _, m := range got {
		if m.Property == PropLineHeight && m.Design == "50px" && m.Web == "56px" {
			found = true
		}
	}
	if !found {
		t.Fatalf("px line height not compared: %+v", got)
	}
}

func TestComparator_Compare(t *testing.T) {
	f, p := loadFixtures(t)
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	c := New(&fakeDesigns{file: f}, &fakePages{page: p},
		WithStore(st),
		WithURLPolicy(publicDNS),
		WithIDGenerator(func() string { return "rpt_test" }))

	r, err := c.Compare(context.Background(), Request{FileKey: "abc", FrameName: "Landing", URL: "https://acme.example/"})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if r.ID != "rpt_test" || r.FileKey != "abc" || r.FrameName != "Landing" || r.CreatedAt.IsZero() {
		t.Errorf("identity fields = %+v", r)
	}

	ctx := context.Background()
	rec, err := st.GetReport(ctx, "rpt_test")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if rec.MismatchCount != 2 {
		t.Errorf("MismatchCount = %d, want 2", rec.MismatchCount)
	}
	var decoded Report
	if err := json.Unmarshal(rec.Body, &decoded); err != nil {
		t.Fatalf("stored body: %v", err)
	}
	if len(decoded.Mismatches) != 2 {
		t.Errorf("stored mismatches = %d", len(decoded.Mismatches))
	}

	snap, err := st.GetSnapshot(ctx, "rpt_test")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap.Title != "Acme" || !strings.Contains(snap.Markdown, "Welcome to our Site") {
		t.Errorf("snapshot = %+v", snap)
	}
	if !strings.Contains(snap.Markdown, "https://acme.example/pricing") {
		t.Errorf("markdown links not resolved: %q", snap.Markdown)
	}
}

func TestComparator_FrameNotFound(t *testing.T) {
	f, p := loadFixtures(t)
	c := New(&fakeDesigns{file: f}, &fakePages{page: p}, WithURLPolicy(publicDNS))

	_, err := c.Compare(context.Background(), Request{FileKey: "abc", FrameName: "Nope", URL: "https://acme.example/"})
	if !errors.Is(err, design.ErrFrameNotFound) {
		t.Fatalf("err = %v, want ErrFrameNotFound", err)
	}
}

func TestComparator_RejectsPrivateURL(t *testing.T) {
	pages := &fakePages{}
	c := New(&fakeDesigns{}, pages)

	_, err := c.Compare(context.Background(), Request{FileKey: "abc", FrameName: "Landing", URL: "http://127.0.0.1:8080/"})
	if !errors.Is(err, horosafe.ErrSSRF) || !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrSSRF and ErrInvalidRequest", err)
	}
	if pages.calls.Load() != 0 {
		t.Error("page captured despite rejected URL")
	}
}

func TestComparator_MissingFields(t *testing.T) {
	c := New(&fakeDesigns{}, &fakePages{})
	if _, err := c.Compare(context.Background(), Request{FileKey: "abc"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestComparator_SourceErrors(t *testing.T) {
	f, p := loadFixtures(t)
	boom := errors.New("boom")

	c := New(&fakeDesigns{err: boom}, &fakePages{page: p}, WithURLPolicy(publicDNS))
	if _, err := c.Compare(context.Background(), Request{FileKey: "k", FrameName: "Landing", URL: "https://acme.example/"}); !errors.Is(err, boom) || !errors.Is(err, ErrUpstream) {
		t.Errorf("design error: got %v", err)
	}

	c = New(&fakeDesigns{file: f}, &fakePages{err: boom}, WithURLPolicy(publicDNS))
	if _, err := c.Compare(context.Background(), Request{FileKey: "k", FrameName: "Landing", URL: "https://acme.example/"}); !errors.Is(err, boom) || !errors.Is(err, ErrUpstream) {
		t.Errorf("page error: got %v", err)
	}
}
