package validate

import (
	"math"
	"strconv"
	"strings"
)

// toFloat accepts a JSON number or a numeric string. Anything else is 0.
func toFloat(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// toInt rounds to the nearest integer. Values outside the int32 range are
// treated as garbage and become 0.
func toInt(v any) int {
	f := math.Round(toFloat(v))
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// toCount is toInt for minutes and servings, where a negative is as
// meaningless as a non-number.
func toCount(v any) int {
	return max(toInt(v), 0)
}

func optFloat(v any) *float64 {
	if v == nil {
		return nil
	}
	f := toFloat(v)
	return &f
}

func optCount(v any) *int {
	if v == nil {
		return nil
	}
	i := toCount(v)
	return &i
}

// toText renders a quantity that may arrive as "2 cups", 2 or null.
func toText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
