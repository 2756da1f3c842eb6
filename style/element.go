// Package style defines the flat, style-annotated element shared by the
// design-side and page-side extractors, and the value normalizers both of
// them use (colors, font weights, pixel values, font stacks).
package style

// Kind discriminates text elements from box elements.
type Kind string

const (
	KindText Kind = "text"
	KindBox  Kind = "box"
)

// Line-height units. Design documents may express line height in absolute
// pixels or as a percentage of the font size; rendered pages always use px.
// Values with different units are not comparable.
const (
	UnitPx      = "px"
	UnitPercent = "%"
)

// Element is one style-annotated text or box extracted from either source.
// Elements are values: extractors return them by value and never mutate
// them afterwards.
type Element struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text,omitempty"` // Kind == KindText only

	FontFamily string  `json:"fontFamily,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontWeight int     `json:"fontWeight,omitempty"` // 400 normal, 700 bold, 0 unknown
	FontColor  string  `json:"fontColor,omitempty"`  // "#rrggbb" or "rgba(r, g, b, a)"

	LineHeight     *float64 `json:"lineHeight,omitempty"`
	LineHeightUnit string   `json:"lineHeightUnit,omitempty"`
	LetterSpacing  *float64 `json:"letterSpacing,omitempty"` // page side only

	// Kind == KindBox only.
	Width        float64 `json:"width,omitempty"`
	Height       float64 `json:"height,omitempty"`
	BorderRadius float64 `json:"borderRadius,omitempty"`

	// Provenance, page side only.
	SourceTag       string `json:"sourceTag,omitempty"`
	ParentTag       string `json:"parentTag,omitempty"`
	IsStyleOverride bool   `json:"isStyleOverride,omitempty"`
}

// Float returns a pointer to v. Used to fill optional numeric fields.
func Float(v float64) *float64 { return &v }
