// Package textdiff compares two blobs of text word by word and scores how
// much of it they share. Comparison is case-insensitive: casing is a
// styling concern, never a content mismatch.
package textdiff

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Part is one run of the diff. Unflagged parts are common to both inputs.
type Part struct {
	Value   string `json:"value"`
	Added   bool   `json:"added,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// Result holds the diff and its character counts.
type Result struct {
	Parts     []Part `json:"parts"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	// Similarity is unchanged/(added+removed+unchanged)*100, nil when
	// both inputs are empty.
	Similarity *float64 `json:"similarity"`
}

// DiffAndScore diffs the lowercased inputs. Removed parts exist only in a
// (the design side), added parts only in b (the page side).
func DiffAndScore(a, b string) Result {
	return diff(strings.ToLower(a), strings.ToLower(b))
}

var spaceRun = regexp.MustCompile(`\s+`)

// DiffContent is DiffAndScore after collapsing whitespace runs to single
// spaces and trimming, for content-only comparison where layout-induced
// line breaks must not count.
func DiffContent(a, b string) Result {
	return DiffAndScore(collapse(a), collapse(b))
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func diff(a, b string) Result {
	res := Result{Parts: []Part{}}
	for _, r := range align(tokenize(a), tokenize(b)) {
		res.add(Part{Value: strings.Join(r.tokens, ""), Added: r.op == diffmatchpatch.DiffInsert, Removed: r.op == diffmatchpatch.DiffDelete})
	}

	if total := res.Added + res.Removed + res.Unchanged; total > 0 {
		s := float64(res.Unchanged) / float64(total) * 100
		res.Similarity = &s
	}
	return res
}

type run struct {
	op     diffmatchpatch.Operation
	tokens []string
}

// align computes a minimal edit script between two token sequences, so the
// common runs form a longest common subsequence. Each distinct token is
// mapped to one rune and the rune strings are diffed with Myers' algorithm.
func align(ta, tb []string) []run {
	ids := make(map[string]rune)
	var vocab []string
	encode := func(tokens []string) []rune {
		out := make([]rune, len(tokens))
		for i, t := range tokens {
			r, ok := ids[t]
			if !ok {
				r = tokenRune(len(vocab))
				ids[t] = r
				vocab = append(vocab, t)
			}
			out[i] = r
		}
		return out
	}
	ra, rb := encode(ta), encode(tb)

	dmp := diffmatchpatch.New()
	// No deadline: a timed-out bisect or a half-match split may return a
	// non-minimal script.
	dmp.DiffTimeout = 0

	var runs []run
	for _, d := range dmp.DiffMainRunes(ra, rb, false) {
		r := run{op: d.Type}
		for _, c := range d.Text {
			r.tokens = append(r.tokens, vocab[runeToken(c)])
		}
		if len(r.tokens) > 0 {
			runs = append(runs, r)
		}
	}
	return runs
}

// tokenRune maps a vocabulary index to a valid rune, skipping the
// surrogate block so the rune survives string conversion.
func tokenRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

func runeToken(r rune) int {
	if r >= 0xE000 {
		r -= 0x800
	}
	return int(r - 1)
}

// add appends p, merging it into the previous part when both have the
// same kind, and updates the counters.
func (r *Result) add(p Part) {
	if p.Value == "" {
		return
	}
	n := utf8.RuneCountInString(p.Value)
	switch {
	case p.Added:
		r.Added += n
	case p.Removed:
		r.Removed += n
	default:
		r.Unchanged += n
	}
	if last := len(r.Parts) - 1; last >= 0 && r.Parts[last].Added == p.Added && r.Parts[last].Removed == p.Removed {
		r.Parts[last].Value += p.Value
		return
	}
	r.Parts = append(r.Parts, p)
}

// tokenize splits s into word runs, whitespace runs and single punctuation
// characters. Concatenating the tokens gives s back.
func tokenize(s string) []string {
	var tokens []string
	start := 0
	prev := -1
	for i, r := range s {
		c := class(r)
		if i > start && (c != prev || c == classOther) {
			tokens = append(tokens, s[start:i])
			start = i
		}
		prev = c
	}
	if start < len(s) {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

const (
	classWord = iota
	classSpace
	classOther
)

func class(r rune) int {
	switch {
	case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'':
		return classWord
	case unicode.IsSpace(r):
		return classSpace
	}
	return classOther
}
