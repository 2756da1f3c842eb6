package style

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitsPattern = regexp.MustCompile(`\d+`)
	numberPattern = regexp.MustCompile(`^-?(?:\d+\.?\d*|\.\d+)`)
)

// WeightFromKeyword maps a computed font-weight to the numeric scale.
// "bold" is 700, "normal" is 400, otherwise the first run of digits is used.
// ok is false when nothing numeric can be recovered.
func WeightFromKeyword(s string) (weight int, ok bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "bold":
		return 700, true
	case "normal":
		return 400, true
	}
	d := digitsPattern.FindString(s)
	if d == "" {
		return 0, false
	}
	n, err := strconv.Atoi(d)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParsePx parses the leading number of a CSS length such as "16px" or
// "1.5". Keywords ("normal") and empty strings yield nil.
func ParsePx(s string) *float64 {
	m := numberPattern.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

// FirstFamily returns the first family of a CSS font-family stack with
// quotes removed: `"Inter", Arial, sans-serif` → `Inter`.
func FirstFamily(stack string) string {
	first, _, _ := strings.Cut(stack, ",")
	return strings.TrimSpace(strings.NewReplacer(`"`, "", `'`, "").Replace(first))
}
