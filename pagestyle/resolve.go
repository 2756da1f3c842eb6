package pagestyle

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/fidelity/style"
)

// Thresholds of the dominant-child heuristic, in percent of the
// container's full text length.
const (
	// OwnTextPercent: at or above this, the container styles its own text.
	OwnTextPercent = 50
	// DominantPercent: an inline descendant covering at least this much of
	// the text lends its style to the container.
	DominantPercent = 80
)

// Resolve returns one text element per visible block container, using
// the style of its dominant inline child when that child carries most of
// the text, followed by any inline descendants that restyle part of it.
// Inline elements outside every processed container are emitted last.
// Output follows document order within each pass.
func Resolve(root Node) []style.Element {
	if root == nil {
		return nil
	}
	r := &resolver{processed: make(map[Node]bool)}
	all := append([]Node{root}, descendants(root)...)

	for _, n := range all {
		if IsBlock(n.Tag()) {
			r.container(n)
		}
	}
	for _, n := range all {
		if IsInline(n.Tag()) {
			r.standalone(n)
		}
	}
	return r.out
}

type resolver struct {
	processed map[Node]bool
	out       []style.Element
}

func (r *resolver) container(n Node) {
	if r.processed[n] || n.Box().Zero() || hidden(n.Computed()) {
		return
	}
	full := strings.TrimSpace(n.Text())
	if full == "" {
		return
	}
	fullLen := utf8.RuneCountInString(full)

	effective := resolveStyle(n.Computed())
	inlines := inlineDescendants(n)

	own := utf8.RuneCountInString(strings.TrimSpace(n.OwnText()))
	if own*100 < OwnTextPercent*fullLen {
		if dom, domLen := dominant(inlines); dom != nil && domLen*100 >= DominantPercent*fullLen {
			effective = resolveStyle(dom.Computed())
		}
	}

	r.out = append(r.out, effective.element(full, n.Tag(), "", false))
	r.processed[n] = true

	for _, c := range inlines {
		if r.processed[c] || c.Box().Zero() {
			continue
		}
		text := strings.TrimSpace(c.Text())
		if text == "" {
			continue
		}
		s := resolveStyle(c.Computed())
		if s.sameTypography(effective) {
			continue
		}
		r.out = append(r.out, s.element(text, c.Tag(), n.Tag(), true))
		r.processed[c] = true
	}
}

func (r *resolver) standalone(n Node) {
	if r.processed[n] {
		return
	}
	if b := nearestBlock(n); b != nil && r.processed[b] {
		return
	}
	if n.Box().Zero() {
		return
	}
	text := strings.TrimSpace(n.Text())
	if text == "" {
		return
	}
	r.out = append(r.out, resolveStyle(n.Computed()).element(text, n.Tag(), "", false))
	r.processed[n] = true
}

// dominant returns the inline node with the longest trimmed text. Ties go
// to the first in document order.
func dominant(inlines []Node) (Node, int) {
	var best Node
	bestLen := 0
	for _, c := range inlines {
		l := utf8.RuneCountInString(strings.TrimSpace(c.Text()))
		if best == nil || l > bestLen {
			best, bestLen = c, l
		}
	}
	return best, bestLen
}

func nearestBlock(n Node) Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if IsBlock(p.Tag()) {
			return p
		}
	}
	return nil
}

func inlineDescendants(n Node) []Node {
	var out []Node
	for _, d := range descendants(n) {
		if IsInline(d.Tag()) {
			out = append(out, d)
		}
	}
	return out
}

// descendants lists the element descendants of n in pre-order.
func descendants(n Node) []Node {
	var out []Node
	stack := reversed(n.Children())
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, c)
		stack = append(stack, reversed(c.Children())...)
	}
	return out
}

func reversed(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

func hidden(c Computed) bool {
	if c.Display == "none" || c.Visibility == "hidden" {
		return true
	}
	if c.Opacity == "" {
		return false
	}
	op, err := strconv.ParseFloat(strings.TrimSpace(c.Opacity), 64)
	return err == nil && op == 0
}

// resolved is a computed style converted to comparable values.
type resolved struct {
	family        string
	size          float64
	weight        int
	color         string
	lineHeight    *float64
	letterSpacing *float64
}

func resolveStyle(c Computed) resolved {
	s := resolved{
		family:        style.FirstFamily(c.FontFamily),
		color:         style.ParseColorString(c.Color),
		lineHeight:    style.ParsePx(c.LineHeight),
		letterSpacing: style.ParsePx(c.LetterSpacing),
	}
	if px := style.ParsePx(c.FontSize); px != nil {
		s.size = *px
	}
	if w, ok := style.WeightFromKeyword(c.FontWeight); ok {
		s.weight = w
	}
	return s
}

// sameTypography compares the properties that make an inline element a
// style override. Line height and letter spacing are not part of it.
func (s resolved) sameTypography(o resolved) bool {
	return s.family == o.family && s.size == o.size && s.weight == o.weight && s.color == o.color
}

func (s resolved) element(text, sourceTag, parentTag string, override bool) style.Element {
	el := style.Element{
		Kind:            style.KindText,
		Text:            text,
		FontFamily:      s.family,
		FontSize:        s.size,
		FontWeight:      s.weight,
		FontColor:       s.color,
		LineHeight:      s.lineHeight,
		LetterSpacing:   s.letterSpacing,
		SourceTag:       sourceTag,
		ParentTag:       parentTag,
		IsStyleOverride: override,
	}
	if el.LineHeight != nil {
		el.LineHeightUnit = style.UnitPx
	}
	return el
}
