package style

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ColorToString formats integer channels (0-255) and an alpha in [0,1].
// An opaque color yields "#rrggbb"; anything else yields
// "rgba(r, g, b, a)" with alpha rounded to two decimals. An alpha that
// rounds to 1 is opaque.
// Out-of-range or NaN inputs are clamped, never rejected.
func ColorToString(r, g, b int, a float64) string {
	r, g, b = clampChannel(r), clampChannel(g), clampChannel(b)
	if math.IsNaN(a) {
		a = 1
	}
	a = math.Round(math.Max(a, 0)*100) / 100
	if a >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	alpha := strconv.FormatFloat(a, 'f', -1, 64)
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, alpha)
}

// UnitColorToString formats channels expressed in [0,1], as the design
// tool's API returns them.
func UnitColorToString(r, g, b, a float64) string {
	return ColorToString(unitToByte(r), unitToByte(g), unitToByte(b), a)
}

// rgbPattern matches rgb()/rgba() in both the legacy comma syntax and the
// space-separated "rgb(r g b / a)" form newer engines serialise.
var rgbPattern = regexp.MustCompile(
	`^rgba?\(\s*(\d+(?:\.\d+)?)[\s,]+(\d+(?:\.\d+)?)[\s,]+(\d+(?:\.\d+)?)\s*(?:[,/]\s*(\d*\.?\d+)(%?)\s*)?\)$`)

// ParseColorString normalizes a computed-style color. Strings that are not
// rgb()/rgba() (named colors, color(), hsl()) are returned unchanged.
func ParseColorString(s string) string {
	m := rgbPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	a := 1.0
	if m[4] != "" {
		a, _ = strconv.ParseFloat(m[4], 64)
		if m[5] == "%" {
			a /= 100
		}
	}
	return ColorToString(parseChannel(m[1]), parseChannel(m[2]), parseChannel(m[3]), a)
}

func parseChannel(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}

func unitToByte(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v * 255))
}

func clampChannel(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return v
}
