// Package abstain classifies generations that decline to answer, so they can
// skip decomposition and verification.
package abstain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ppiankov/factprobe/internal/llm"
)

// Mode selects the abstain heuristic
type Mode string

const (
	ModeNone         Mode = "none"
	ModeGeneric      Mode = "generic"
	ModePerplexityAI Mode = "perplexity_ai"
	ModeModel        Mode = "model"
)

// ErrUnknownMode is returned for an unrecognised detection mode
var ErrUnknownMode = errors.New("unknown abstain detection mode")

// Phrases a search-backed assistant uses when it has nothing to say
var noInformationPhrases = []string{
	"I could not find any information",
	"The search results do not provide",
	"There is no information",
	"There are no search results",
	"there are no provided search results",
	"not provided in the search results",
	"is not mentioned in the provided search results",
	"There seems to be a mistake in the question",
	"Not sources found",
	"No sources found",
	"Try a more general question",
}

var citationPattern = regexp.MustCompile(`\s*\[\d+\]\s*`)

// ParseMode converts a configuration string to a Mode. Empty means none.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeNone:
		return ModeNone, nil
	case ModeGeneric, ModePerplexityAI, ModeModel:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %s (supported: none, generic, perplexity_ai, model)", ErrUnknownMode, s)
	}
}

// IsAbstained applies a pattern-based heuristic. It never abstains for
// ModeNone, and ModeModel needs a Detector.
func IsAbstained(generation string, mode Mode) bool {
	switch mode {
	case ModeGeneric:
		return isGenericAbstain(generation)
	case ModePerplexityAI:
		return isPerplexityAbstain(generation)
	default:
		return false
	}
}

func isGenericAbstain(generation string) bool {
	return strings.HasPrefix(generation, "I'm sorry") || strings.Contains(generation, "provide more")
}

func isPerplexityAbstain(generation string) bool {
	text := removeCitations(generation)

	lower := strings.ToLower(text)
	for _, phrase := range noInformationPhrases {
		if strings.HasPrefix(lower, strings.ToLower(phrase)) {
			return true
		}
	}

	// Only the leading run of usable paragraphs counts
	valid := 0
	for _, para := range strings.Split(text, "\n\n") {
		if isInvalidParagraph(para) {
			break
		}
		valid++
	}
	return valid == 0
}

func isInvalidParagraph(para string) bool {
	if strings.TrimSpace(para) == "" {
		return true
	}
	lower := strings.ToLower(para)
	for _, phrase := range noInformationPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func removeCitations(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	if strings.HasPrefix(text, "According to , ") {
		text = strings.Replace(text, "According to , ", "According to the search results, ", 1)
	}
	return text
}

const modelPromptTemplate = "Does the following response decline to answer, or say it has no information about the subject? " +
	"Answer Yes or No.\n\nResponse: %s\nAnswer:"

// Detector applies the configured mode, calling a model for ModeModel
type Detector struct {
	mode   Mode
	model  llm.LanguageModel
	logger *slog.Logger
}

// NewDetector creates a detector. m is required for ModeModel and should be
// cache-backed.
func NewDetector(mode Mode, m llm.LanguageModel, logger *slog.Logger) (*Detector, error) {
	if mode == ModeModel && m == nil {
		return nil, errors.New("abstain detection mode 'model' requires a generator model")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{mode: mode, model: m, logger: logger}, nil
}

// Detect reports whether generation abstains
func (d *Detector) Detect(ctx context.Context, generation string) (bool, error) {
	if d.mode != ModeModel {
		return IsAbstained(generation, d.mode), nil
	}

	answer, err := d.model.Generate(ctx, fmt.Sprintf(modelPromptTemplate, strings.TrimSpace(generation)))
	if err != nil {
		return false, fmt.Errorf("abstain detection: %w", err)
	}

	reply := strings.ToLower(strings.TrimSpace(answer.Generated()))
	abstained := strings.HasPrefix(reply, "yes")
	d.logger.Debug("abstain check", "reply", reply, "abstained", abstained)
	return abstained, nil
}
