package design

import (
	"strings"

	"github.com/hazyhaar/fidelity/style"
)

// ExtractElements flattens the subtree below root into text and box
// elements in document order. root itself is not emitted, only its
// descendants. TEXT and RECTANGLE nodes that have children contribute
// their own element followed by their descendants'.
//
// The walk uses an explicit stack, so input depth does not grow the call
// stack.
func ExtractElements(root *Node) []style.Element {
	if root == nil {
		return nil
	}
	var out []style.Element
	stack := reverse(root.Children)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		switch n.Type {
		case TypeText:
			out = append(out, textElement(n))
		case TypeRectangle:
			out = append(out, boxElement(n))
		}
		stack = append(stack, reverse(n.Children)...)
	}
	return out
}

func textElement(n *Node) style.Element {
	el := style.Element{
		Kind:      style.KindText,
		Text:      n.Characters,
		FontColor: firstSolidFill(n.Fills),
	}
	if s := n.Style; s != nil {
		el.FontFamily = s.FontFamily
		el.FontSize = s.FontSize
		el.FontWeight = int(s.FontWeight)
		switch {
		case s.LineHeightPx != nil:
			el.LineHeight = style.Float(*s.LineHeightPx)
			el.LineHeightUnit = style.UnitPx
		case s.LineHeightPercentFontSize != nil:
			el.LineHeight = style.Float(*s.LineHeightPercentFontSize)
			el.LineHeightUnit = style.UnitPercent
		}
	}
	return el
}

func boxElement(n *Node) style.Element {
	el := style.Element{Kind: style.KindBox, BorderRadius: n.CornerRadius}
	if bb := n.AbsoluteBoundingBox; bb != nil {
		el.Width = bb.Width
		el.Height = bb.Height
	}
	return el
}

// firstSolidFill returns the color of the first visible fill when it is
// SOLID. Hidden fills are skipped; later visible fills are ignored.
func firstSolidFill(fills []Paint) string {
	i := 0
	for i < len(fills) && fills[i].Visible != nil && !*fills[i].Visible {
		i++
	}
	if i == len(fills) {
		return ""
	}
	f := fills[i]
	if f.Type != "SOLID" || f.Color == nil {
		return ""
	}
	a := f.Color.A
	if f.Opacity != nil {
		a *= *f.Opacity
	}
	return style.UnitColorToString(f.Color.R, f.Color.G, f.Color.B, a)
}

// Families returns the distinct font families of text elements in
// first-seen order.
func Families(elements []style.Element) []string {
	seen := make(map[string]bool)
	var out []string
	for _, el := range elements {
		if el.Kind != style.KindText || el.FontFamily == "" || seen[el.FontFamily] {
			continue
		}
		seen[el.FontFamily] = true
		out = append(out, el.FontFamily)
	}
	return out
}

// Text joins the text of all text elements with single spaces.
func Text(elements []style.Element) string {
	var parts []string
	for _, el := range elements {
		if el.Kind == style.KindText && el.Text != "" {
			parts = append(parts, el.Text)
		}
	}
	return strings.Join(parts, " ")
}

// reverse returns a reversed copy so that popping from the end of a stack
// visits children in their original order.
func reverse(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}
