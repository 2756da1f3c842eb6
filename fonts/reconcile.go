// Package fonts reconciles the font families named by a design with those
// a rendered page actually uses.
package fonts

import (
	"strings"
	"unicode"
)

// Result partitions the two inputs. Every image font lands in exactly one
// of Pairs/OnlyInImage and every web font in exactly one of
// Pairs/OnlyInWeb.
type Result struct {
	// Matching lists the web-side spelling of each matched font.
	Matching    []string `json:"matching"`
	OnlyInImage []string `json:"onlyInImage"`
	OnlyInWeb   []string `json:"onlyInWeb"`
	Pairs       []Pair   `json:"pairs"`
}

// Pair links one image font to the web font it matched.
type Pair struct {
	Image string `json:"image"`
	Web   string `json:"web"`
}

// Normalize lowercases name and strips everything but letters and digits:
// "Open Sans" and "open-sans" both become "opensans".
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match reports whether two font names are considered the same family:
// equal after normalization, or one contained in the other.
func Match(a, b string) bool {
	return matchNormalized(Normalize(a), Normalize(b), true)
}

func matchNormalized(a, b string, fuzzy bool) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return fuzzy && (strings.Contains(a, b) || strings.Contains(b, a))
}

// Reconcile matches image fonts against web fonts one-to-one.
//
// Exact matches (after normalization) are paired first, so "Arial" pairs
// with "Arial" even when "Arial Black" precedes it. Remaining fonts are
// then paired by substring containment. Both passes scan image fonts and
// web fonts in input order and take the first unconsumed candidate.
// Names that normalize to nothing never match.
func Reconcile(imageFonts, webFonts []string) Result {
	imgNorm := normalizeAll(imageFonts)
	webNorm := normalizeAll(webFonts)
	imgWeb := make([]int, len(imageFonts))
	for i := range imgWeb {
		imgWeb[i] = -1
	}
	webUsed := make([]bool, len(webFonts))

	for _, fuzzy := range []bool{false, true} {
		for i := range imageFonts {
			if imgWeb[i] >= 0 {
				continue
			}
			for j := range webFonts {
				if webUsed[j] || !matchNormalized(imgNorm[i], webNorm[j], fuzzy) {
					continue
				}
				imgWeb[i] = j
				webUsed[j] = true
				break
			}
		}
	}

	res := Result{
		Matching:    []string{},
		OnlyInImage: []string{},
		OnlyInWeb:   []string{},
		Pairs:       []Pair{},
	}
	for i, j := range imgWeb {
		if j < 0 {
			res.OnlyInImage = append(res.OnlyInImage, imageFonts[i])
			continue
		}
		res.Matching = append(res.Matching, webFonts[j])
		res.Pairs = append(res.Pairs, Pair{Image: imageFonts[i], Web: webFonts[j]})
	}
	for j, used := range webUsed {
		if !used {
			res.OnlyInWeb = append(res.OnlyInWeb, webFonts[j])
		}
	}
	return res
}

func normalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Normalize(n)
	}
	return out
}
