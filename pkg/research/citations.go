package research

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// InsertCitationMarkers replaces every [i] marker in text with a markdown
// link to the i-th source. Markers that point past the end of the source
// list are left untouched.
func InsertCitationMarkers(text string, sources []SearchResult) string {
	if len(sources) == 0 {
		return text
	}

	return citationMarkerRe.ReplaceAllStringFunc(text, func(marker string) string {
		n, err := strconv.Atoi(marker[1 : len(marker)-1])
		if err != nil || n < 1 || n > len(sources) {
			return marker
		}
		src := sources[n-1]
		return fmt.Sprintf("[%s](%s)", src.Title, src.URL)
	})
}

// FormatSources renders sources as a numbered markdown citation list.
func FormatSources(sources []SearchResult) string {
	if len(sources) == 0 {
		return ""
	}

	citations := make([]string, 0, len(sources))
	for i, src := range sources {
		citations = append(citations, fmt.Sprintf("[%d] [%s](%s)", i+1, src.Title, src.URL))
	}
	return strings.Join(citations, "\n")
}

// DedupeSources keeps the first occurrence of each URL, preserving order.
func DedupeSources(sources []SearchResult) []SearchResult {
	seen := make(map[string]bool, len(sources))
	unique := make([]SearchResult, 0, len(sources))
	for _, s := range sources {
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		unique = append(unique, s)
	}
	return unique
}
