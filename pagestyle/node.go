// Package pagestyle resolves the effective typography of a rendered page.
//
// The resolver never talks to a browser. It walks a Node tree that answers
// for computed style and rendered geometry; Snapshot is the implementation
// produced by running CaptureScript inside a live page, and tests build
// the same tree from JSON fixtures.
package pagestyle

// Node is the view of one rendered element the resolver needs.
// Implementations must be comparable (pointer types): the resolver keys
// its bookkeeping on Node values.
type Node interface {
	// Tag is the lowercase tag name.
	Tag() string
	// Parent returns nil for the root.
	Parent() Node
	// Children returns element children in document order.
	Children() []Node
	// Text is the full descendant text content.
	Text() string
	// OwnText is the concatenation of direct child text nodes only.
	OwnText() string
	Computed() Computed
	Box() Box
}

// Computed holds the post-cascade style values, serialised as the browser
// reports them ("16px", "700", "rgb(0, 0, 0)").
type Computed struct {
	FontFamily    string `json:"fontFamily"`
	FontSize      string `json:"fontSize"`
	FontWeight    string `json:"fontWeight"`
	Color         string `json:"color"`
	LineHeight    string `json:"lineHeight"`
	LetterSpacing string `json:"letterSpacing"`
	Display       string `json:"display"`
	Visibility    string `json:"visibility"`
	Opacity       string `json:"opacity"`
}

// Box is the rendered bounding rectangle size in CSS pixels.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Zero reports whether nothing was rendered.
func (b Box) Zero() bool { return b.Width == 0 && b.Height == 0 }

// blockTags are containers whose text is emitted as one element.
var blockTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "button": true, "label": true,
	"td": true, "th": true, "caption": true,
	"blockquote": true, "cite": true, "dt": true, "dd": true,
}

// inlineTags may carry the visible styling of a block's text.
var inlineTags = map[string]bool{
	"strong": true, "em": true, "i": true, "b": true, "span": true,
	"a": true, "mark": true, "small": true, "sub": true, "sup": true,
	"u": true, "s": true, "code": true,
}

// IsBlock reports whether tag is one of the container roles.
func IsBlock(tag string) bool { return blockTags[tag] }

// IsInline reports whether tag is one of the inline roles.
func IsInline(tag string) bool { return inlineTags[tag] }
