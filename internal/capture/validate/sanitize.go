package validate

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```[A-Za-z0-9_-]*")

// Sanitize strips markdown code fences and any prose around the outermost
// JSON object. When no braces are found the trimmed input is returned as is
// and will fail to parse.
func Sanitize(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}
