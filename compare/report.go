package compare

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/fidelity/design"
	"github.com/hazyhaar/fidelity/fonts"
	"github.com/hazyhaar/fidelity/pagestyle"
	"github.com/hazyhaar/fidelity/pagetext"
	"github.com/hazyhaar/fidelity/style"
	"github.com/hazyhaar/fidelity/textdiff"
)

// Compared properties.
const (
	PropFontFamily = "fontFamily"
	PropFontSize   = "fontSize"
	PropFontWeight = "fontWeight"
	PropFontColor  = "fontColor"
	PropLineHeight = "lineHeight"
)

// Tolerance is the largest pixel difference in size or line height still
// reported as equal. Rendering rounds fractional design values.
const Tolerance = 0.5

// Report is the outcome of one design-vs-page comparison.
type Report struct {
	ID        string    `json:"id"`
	FileKey   string    `json:"fileKey"`
	FrameName string    `json:"frameName"`
	PageURL   string    `json:"pageUrl"`
	PageTitle string    `json:"pageTitle,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	DesignElements []style.Element `json:"designElements"`
	WebElements    []style.Element `json:"webElements"`

	Fonts fonts.Result `json:"fonts"`
	// TextDiff compares design text with the text of resolved page
	// elements. ContentDiff compares it with the page's full plain text,
	// whitespace-collapsed.
	TextDiff    textdiff.Result `json:"textDiff"`
	ContentDiff textdiff.Result `json:"contentDiff"`

	Mismatches []Mismatch `json:"mismatches"`
	// Unpaired lists design texts with no page element of equal text.
	Unpaired []string `json:"unpaired"`
}

// Mismatch is one property that differs between a design text element
// and the page element carrying the same text.
type Mismatch struct {
	Text     string `json:"text"`
	Property string `json:"property"`
	Design   string `json:"design"`
	Web      string `json:"web"`
	// WebTag is the markup tag the page value was read from.
	WebTag string `json:"webTag,omitempty"`
}

// Build runs both extractors on already-fetched inputs and assembles a
// report. It does no I/O; the caller fills in identity fields.
func Build(frame *design.Node, page *pagestyle.Page) *Report {
	designEls := design.ExtractElements(frame)

	var webEls []style.Element
	var markup string
	if page != nil {
		if page.Root != nil {
			webEls = pagestyle.Resolve(page.Root)
		}
		markup = page.HTML
	}

	designText := design.Text(designEls)
	r := &Report{
		DesignElements: nonNil(designEls),
		WebElements:    nonNil(webEls),
		Fonts:          fonts.Reconcile(design.Families(designEls), design.Families(webEls)),
		TextDiff:       textdiff.DiffAndScore(designText, design.Text(webEls)),
		ContentDiff:    textdiff.DiffContent(designText, pagetext.PlainText(markup)),
	}
	if page != nil {
		r.PageTitle = page.Title
	}
	r.Mismatches, r.Unpaired = mismatches(designEls, webEls)
	return r
}

// mismatches pairs design and page text elements by normalized text, one
// to one in document order, and lists the differing properties of each
// pair. Line height is compared only when the design side is in px.
func mismatches(designEls, webEls []style.Element) ([]Mismatch, []string) {
	byText := make(map[string][]int)
	for i, el := range webEls {
		if el.Kind != style.KindText {
			continue
		}
		k := pairKey(el.Text)
		byText[k] = append(byText[k], i)
	}

	out := []Mismatch{}
	unpaired := []string{}
	for _, d := range designEls {
		if d.Kind != style.KindText || strings.TrimSpace(d.Text) == "" {
			continue
		}
		k := pairKey(d.Text)
		queue := byText[k]
		if len(queue) == 0 {
			unpaired = append(unpaired, d.Text)
			continue
		}
		w := webEls[queue[0]]
		byText[k] = queue[1:]
		out = append(out, diffProps(d, w)...)
	}
	return out, unpaired
}

func diffProps(d, w style.Element) []Mismatch {
	var out []Mismatch
	add := func(prop, dv, wv string) {
		out = append(out, Mismatch{Text: d.Text, Property: prop, Design: dv, Web: wv, WebTag: w.SourceTag})
	}

	if d.FontFamily != "" && w.FontFamily != "" && !fonts.Match(d.FontFamily, w.FontFamily) {
		add(PropFontFamily, d.FontFamily, w.FontFamily)
	}
	if d.FontSize > 0 && w.FontSize > 0 && math.Abs(d.FontSize-w.FontSize) > Tolerance {
		add(PropFontSize, px(d.FontSize), px(w.FontSize))
	}
	if d.FontWeight != 0 && w.FontWeight != 0 && d.FontWeight != w.FontWeight {
		add(PropFontWeight, strconv.Itoa(d.FontWeight), strconv.Itoa(w.FontWeight))
	}
	if d.FontColor != "" && w.FontColor != "" && !strings.EqualFold(d.FontColor, w.FontColor) {
		add(PropFontColor, d.FontColor, w.FontColor)
	}
	if d.LineHeightUnit == style.UnitPx && d.LineHeight != nil && w.LineHeight != nil &&
		math.Abs(*d.LineHeight-*w.LineHeight) > Tolerance {
		add(PropLineHeight, px(*d.LineHeight), px(*w.LineHeight))
	}
	return out
}

// pairKey lowercases and collapses whitespace.
func pairKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

func nonNil(els []style.Element) []style.Element {
	if els == nil {
		return []style.Element{}
	}
	return els
}
