// Package pagetext turns captured page markup into the forms the rest of
// fidelity consumes: visible plain text for content diffing, markdown for
// stored snapshots, and sanitised markup safe to persist and re-serve.
package pagetext

import (
	"regexp"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true, atom.Aside: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Td: true, atom.Th: true, atom.Caption: true,
	atom.Blockquote: true, atom.Figure: true, atom.Figcaption: true, atom.Form: true,
	atom.Button: true, atom.Label: true, atom.Br: true, atom.Hr: true, atom.Pre: true,
}

var (
	anySpace = regexp.MustCompile(`\s+`)
	spaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)
	lineRun  = regexp.MustCompile(`\n\s*\n+`)
)

// PlainText extracts the visible text of an HTML document. Block-level
// elements end a line; script, style and inline-hidden subtrees are
// dropped. Parse failures yield an empty string.
func PlainText(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	stack := []*html.Node{doc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			// Marker pushed after a block's children.
			sb.WriteByte('\n')
			continue
		}

		switch n.Type {
		case html.TextNode:
			sb.WriteString(anySpace.ReplaceAllString(n.Data, " "))
			continue
		case html.ElementNode:
			if skipElement(n) {
				continue
			}
			if blockAtoms[n.DataAtom] {
				sb.WriteByte('\n')
				stack = append(stack, nil)
			}
		}

		var kids []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			kids = append(kids, c)
		}
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return tidy(sb.String())
}

func skipElement(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg:
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if a.Val == "true" {
				return true
			}
		case "style":
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

// tidy collapses horizontal whitespace, trims every line and removes blank
// lines.
func tidy(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = lineRun.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

var (
	mdOnce sync.Once
	mdConv *converter.Converter
)

func markdownConverter() *converter.Converter {
	mdOnce.Do(func() {
		mdConv = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
	})
	return mdConv
}

// Markdown converts markup to markdown, resolving relative links against
// baseURL. On failure it falls back to PlainText.
func Markdown(markup, baseURL string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	md, err := markdownConverter().ConvertString(markup, converter.WithDomain(baseURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return PlainText(markup)
	}
	return strings.TrimSpace(md)
}

var ugc = bluemonday.UGCPolicy()

// Sanitize strips scripts, event handlers and other active content so
// captured markup can be stored and served back to a browser.
func Sanitize(markup string) string {
	return ugc.Sanitize(markup)
}
