package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are skipped when sampling context tokens. Only words that can reach the
// minimum token length matter, so short function words are not listed.
var stopwords = map[string]struct{}{
	"across": {}, "against": {}, "always": {}, "another": {}, "around": {},
	"because": {}, "before": {}, "between": {}, "during": {}, "either": {}, "really": {}, "should": {},
	"something": {}, "through": {}, "whether": {}, "within": {}, "without": {},
	"которые": {}, "который": {}, "которая": {}, "которое": {}, "которых": {}, "потому": {},
	"поэтому": {}, "только": {}, "именно": {}, "сейчас": {}, "теперь": {}, "всегда": {}, "например": {},
	"однако": {}, "является": {}, "являются": {}, "несколько": {}, "другие": {}, "других": {},
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// sampleTokens returns up to limit distinct tokens of at least minRunes runes, in
// first-seen order, with stopwords removed.
func sampleTokens(text string, minRunes, limit int) []string {
	seen := make(map[string]struct{})
	var sample []string
	for _, token := range tokenize(text) {
		if len(sample) >= limit {
			break
		}
		if utf8.RuneCountInString(token) < minRunes {
			continue
		}
		if _, isStop := stopwords[token]; isStop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		sample = append(sample, token)
	}
	return sample
}
