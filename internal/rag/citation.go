package rag

import (
	"html"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	anchoredMarker = regexp.MustCompile(`(?i)<a\s[^>]*>\s*\[(\d+)\]\s*</a>`)
	doubleLinked   = regexp.MustCompile(`\[\[(\d+)\]\]\([^)\s]*\)`)
	markdownLinked = regexp.MustCompile(`\[(\d+)\]\([^)\s]*\)`)
	citationMarker = regexp.MustCompile(`\[(\d+)\]`)
	strippedMarker = regexp.MustCompile(`[ \t]*\[\d+\]`)
)

// ResolveCitations rewrites [n] markers in answer into links to manifest[n-1].
//
// Links the model already wrapped around markers are reduced to bare [n] first. When
// the highest marker exceeds the number of distinct markers, the numbering skipped
// positions and every marker is removed instead. Otherwise markers within the manifest
// become <a href="URL">[n]</a> and the rest stay as literal text.
func ResolveCitations(answer string, manifest []string) string {
	answer = unwrapMarkers(answer)

	numbers := markerNumbers(answer)
	if len(numbers) == 0 {
		return answer
	}
	if numbers[len(numbers)-1] > len(numbers) {
		return strippedMarker.ReplaceAllString(answer, "")
	}

	return citationMarker.ReplaceAllStringFunc(answer, func(m string) string {
		n := parseMarker(m)
		if n < 1 || n > len(manifest) {
			return m
		}
		return `<a href="` + html.EscapeString(manifest[n-1]) + `">[` + strconv.Itoa(n) + `]</a>`
	})
}

// InvalidCitations returns the distinct marker numbers in answer that have no manifest
// entry, in ascending order.
func InvalidCitations(answer string, manifest []string) []int {
	var invalid []int
	for _, n := range markerNumbers(unwrapMarkers(answer)) {
		if n < 1 || n > len(manifest) {
			invalid = append(invalid, n)
		}
	}
	return invalid
}

// HasCitation reports whether text contains at least one [n] marker.
func HasCitation(text string) bool {
	return citationMarker.MatchString(text)
}

func unwrapMarkers(answer string) string {
	answer = anchoredMarker.ReplaceAllString(answer, "[$1]")
	answer = doubleLinked.ReplaceAllString(answer, "[$1]")
	return markdownLinked.ReplaceAllString(answer, "[$1]")
}

// markerNumbers returns the distinct marker numbers, sorted. A number too large to parse
// counts as math.MaxInt, which always fails the contiguity check.
func markerNumbers(answer string) []int {
	seen := make(map[int]struct{})
	for _, m := range citationMarker.FindAllString(answer, -1) {
		seen[parseMarker(m)] = struct{}{}
	}
	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func parseMarker(m string) int {
	n, err := strconv.Atoi(strings.Trim(m, "[]"))
	if err != nil {
		return math.MaxInt
	}
	return n
}
