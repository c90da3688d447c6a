package verify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/factprobe/internal/llm"
)

// Vocabulary positions of the "True" and "False" tokens in the scored
// answer's first-token distribution
const (
	trueIndex  = 5852
	falseIndex = 7700
)

// ErrUnexpectedVocabulary is returned when a score vector does not match the
// 32000-entry vocabulary the token indices assume
var ErrUnexpectedVocabulary = errors.New("unexpected score vocabulary size")

var refusalKeywords = []string{"not", "cannot", "unknown", "information"}

// Resolve turns a model answer into a support decision
func Resolve(answer llm.Answer) (bool, error) {
	switch a := answer.(type) {
	case llm.ScoredAnswer:
		return ResolveScored(a.Scores)
	case llm.TextAnswer:
		return ResolveText(a.Text), nil
	default:
		return false, fmt.Errorf("unsupported answer type %T", answer)
	}
}

// ResolveScored compares the scores of the True and False tokens
func ResolveScored(scores []float32) (bool, error) {
	if n := len(scores); n != 32000 && n != 32001 {
		return false, fmt.Errorf("%w: %d", ErrUnexpectedVocabulary, n)
	}
	return scores[trueIndex] > scores[falseIndex], nil
}

// ResolveText reads a free-text answer. A lone "true" or "false" decides;
// when both appear the earlier one wins. With neither, the answer counts as
// supported unless it contains a refusal keyword.
func ResolveText(text string) bool {
	lower := strings.ToLower(text)
	ti := strings.Index(lower, "true")
	fi := strings.Index(lower, "false")

	switch {
	case ti >= 0 && fi < 0:
		return true
	case fi >= 0 && ti < 0:
		return false
	case ti >= 0 && fi >= 0:
		return ti < fi
	}

	for _, word := range strings.Fields(stripPunctuation(lower)) {
		for _, kw := range refusalKeywords {
			if word == kw {
				return false
			}
		}
	}
	return true
}
