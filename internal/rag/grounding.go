package rag

import (
	"strings"
)

// GroundingChecker decides whether an answer looks unsupported by the context it was
// generated from. Its verdict is advisory.
type GroundingChecker interface {
	Ungrounded(answer, context string) bool
}

// uncertaintyPhrases are admissions that the model could not answer. Apostrophes are
// normalised to ASCII before matching.
var uncertaintyPhrases = []string{
	"i don't know",
	"i do not know",
	"not sure",
	"no information",
	"cannot answer",
	"can't answer",
	"не знаю",
	"не уверен",
	"нет информации",
	"не могу ответить",
	"затрудняюсь",
}

// HeuristicChecker applies fixed rules in order; the first that matches decides:
// an uncertainty phrase means ungrounded; a citation marker means grounded; an answer
// shorter than MinWords words is grounded; otherwise the answer is grounded only if it
// contains one of the first SampleSize distinct context tokens of at least MinTokenRunes runes.
type HeuristicChecker struct {
	MinWords      int
	SampleSize    int
	MinTokenRunes int
	Phrases       []string
}

// NewHeuristicChecker returns a checker with the default thresholds.
func NewHeuristicChecker() *HeuristicChecker {
	return &HeuristicChecker{
		MinWords:      8,
		SampleSize:    30,
		MinTokenRunes: 6,
		Phrases:       uncertaintyPhrases,
	}
}

// Ungrounded implements GroundingChecker.
func (c *HeuristicChecker) Ungrounded(answer, context string) bool {
	normalized := strings.ToLower(strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(answer))

	for _, phrase := range c.Phrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}

	if HasCitation(answer) {
		return false
	}

	if len(strings.Fields(answer)) < c.MinWords {
		return false
	}

	for _, token := range sampleTokens(context, c.MinTokenRunes, c.SampleSize) {
		if strings.Contains(normalized, token) {
			return false
		}
	}
	return true
}
