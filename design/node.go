// Package design reads design-document node trees (as served by the design
// tool's REST API) and flattens them into style.Element sequences.
package design

// Node types the extractor and frame traversals act on. Any other type is
// walked through (or ignored) but never produces an element.
const (
	TypeDocument  = "DOCUMENT"
	TypeCanvas    = "CANVAS"
	TypeFrame     = "FRAME"
	TypeText      = "TEXT"
	TypeRectangle = "RECTANGLE"
)

// Node is one node of a design document. Type discriminates which of the
// optional fields are meaningful.
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Children []*Node `json:"children,omitempty"`

	// TEXT
	Characters string     `json:"characters,omitempty"`
	Style      *TypeStyle `json:"style,omitempty"`

	Fills               []Paint `json:"fills,omitempty"`
	AbsoluteBoundingBox *Rect   `json:"absoluteBoundingBox,omitempty"`
	CornerRadius        float64 `json:"cornerRadius,omitempty"`
}

// TypeStyle is the typography block of a TEXT node.
type TypeStyle struct {
	FontFamily                string   `json:"fontFamily"`
	FontSize                  float64  `json:"fontSize"`
	FontWeight                float64  `json:"fontWeight"`
	LineHeightPx              *float64 `json:"lineHeightPx,omitempty"`
	LineHeightPercentFontSize *float64 `json:"lineHeightPercentFontSize,omitempty"`
	LetterSpacing             float64  `json:"letterSpacing,omitempty"`
}

// Paint is a fill entry. Only SOLID paints carry a color.
type Paint struct {
	Type    string   `json:"type"`
	Color   *Color   `json:"color,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Visible *bool    `json:"visible,omitempty"`
}

// Color channels are in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Rect is an absolute bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// File is the body of GET /v1/files/{key}.
type File struct {
	Name         string `json:"name"`
	LastModified string `json:"lastModified,omitempty"`
	Version      string `json:"version,omitempty"`
	Document     *Node  `json:"document"`
}
