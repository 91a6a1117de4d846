package router

import (
	"regexp"
	"strings"
)

// urlPattern matches absolute http(s) URLs embedded in chat text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"'）】」》]+`)

// trailingPunct is sentence punctuation that chat clients glue onto URLs.
const trailingPunct = ".,;:!?)]}>。，！？：；、"

// ExtractURLs returns the absolute URLs embedded in text, in first-seen
// order, deduplicated and capped at max. Trailing sentence punctuation is
// stripped from each match.
func ExtractURLs(text string, max int) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		u := strings.TrimRight(m, trailingPunct)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
