package pagestyle

import (
	"encoding/json"
	"fmt"
)

// Page is what CaptureScript returns for one rendered page.
type Page struct {
	URL   string   `json:"url"`
	Title string   `json:"title"`
	HTML  string   `json:"html"`
	Root  *Element `json:"root"`
}

// Element is a captured element. It implements Node.
type Element struct {
	TagName string     `json:"tag"`
	Content string     `json:"text"`
	Own     string     `json:"own"`
	Style   Computed   `json:"style"`
	Rect    Box        `json:"rect"`
	Kids    []*Element `json:"children,omitempty"`

	parent *Element
}

func (e *Element) Tag() string        { return e.TagName }
func (e *Element) Text() string       { return e.Content }
func (e *Element) OwnText() string    { return e.Own }
func (e *Element) Computed() Computed { return e.Style }
func (e *Element) Box() Box           { return e.Rect }

func (e *Element) Parent() Node {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

func (e *Element) Children() []Node {
	out := make([]Node, len(e.Kids))
	for i, k := range e.Kids {
		out[i] = k
	}
	return out
}

// ParsePage decodes the JSON produced by CaptureScript and links parents.
func ParsePage(data []byte) (*Page, error) {
	var p Page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("pagestyle: decode page: %w", err)
	}
	if p.Root == nil {
		return nil, fmt.Errorf("pagestyle: page %q has no root element", p.URL)
	}
	Link(p.Root)
	return &p, nil
}

// Link sets parent pointers below root. Trees built by hand (tests,
// fixtures) must be linked before they are resolved.
func Link(root *Element) {
	stack := []*Element{root}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, k := range e.Kids {
			if k == nil {
				continue
			}
			k.parent = e
			stack = append(stack, k)
		}
	}
}
