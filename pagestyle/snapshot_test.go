package pagestyle

import "testing"

const capturedPage = `{
  "url": "https://example.com/",
  "title": "Example",
  "html": "<html><body><h1><em>Hi there</em></h1></body></html>",
  "root": {
    "tag": "body", "text": "Hi there", "own": "",
    "style": {"fontFamily": "Arial", "fontSize": "16px", "fontWeight": "400", "color": "rgb(0, 0, 0)",
              "lineHeight": "normal", "letterSpacing": "normal", "display": "block", "visibility": "visible", "opacity": "1"},
    "rect": {"width": 800, "height": 600},
    "children": [{
      "tag": "h1", "text": "Hi there", "own": "",
      "style": {"fontFamily": "Arial", "fontSize": "32px", "fontWeight": "700", "color": "rgb(0, 0, 0)",
                "lineHeight": "40px", "letterSpacing": "normal", "display": "block", "visibility": "visible", "opacity": "1"},
      "rect": {"width": 800, "height": 40},
      "children": [{
        "tag": "em", "text": "Hi there", "own": "Hi there",
        "style": {"fontFamily": "\"Georgia\", serif", "fontSize": "32px", "fontWeight": "700", "color": "rgb(51, 51, 51)",
                  "lineHeight": "40px", "letterSpacing": "normal", "display": "inline", "visibility": "visible", "opacity": "1"},
        "rect": {"width": 120, "height": 40}
      }]
    }]
  }
}`

func TestParsePage(t *testing.T) {
	p, err := ParsePage([]byte(capturedPage))
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Example" || p.URL != "https://example.com/" {
		t.Errorf("got %q %q", p.Title, p.URL)
	}

	h1 := p.Root.Kids[0]
	if h1.Parent() == nil || h1.Parent().Tag() != "body" {
		t.Fatalf("parent not linked")
	}
	if p.Root.Parent() != nil {
		t.Fatalf("root parent must be nil")
	}

	got := Resolve(p.Root)
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got[0].FontFamily != "Georgia" || got[0].FontColor != "#333333" || got[0].SourceTag != "h1" {
		t.Errorf("got %+v", got[0])
	}
}

func TestParsePage_Errors(t *testing.T) {
	if _, err := ParsePage([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
	if _, err := ParsePage([]byte(`{"url":"x"}`)); err == nil {
		t.Error("expected missing root error")
	}
}
