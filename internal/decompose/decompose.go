// Package decompose turns a generation into atomic factual claims with one
// cached model call.
package decompose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/factprobe/internal/cost"
	"github.com/ppiankov/factprobe/internal/llm"
	"github.com/ppiankov/factprobe/internal/model"
)

const (
	instruction = "Please breakdown the following text into independent facts. " +
		"Each fact is a short statement that contains one piece of information from the text. " +
		"Facts must not overlap, must not add information that is not in the text, " +
		"and each fact goes on its own line starting with \"- \"."

	requestPrefix = "Please breakdown the following text into independent facts: "
)

// Options tune a Decomposer
type Options struct {
	// NumDemos caps how many demonstrations go into the prompt
	NumDemos int

	// DedupeThreshold is the similarity ratio at or above which a claim is
	// dropped as a near-duplicate of an earlier one. 0 keeps every parsed
	// item, exact repeats included.
	DedupeThreshold float64
}

// Decomposer splits generations into claims
type Decomposer struct {
	model  llm.LanguageModel
	demos  []Demo
	opts   Options
	logger *slog.Logger
}

// New creates a Decomposer. m should be cache-backed; when m is nil the
// generation is split into sentences instead.
func New(m llm.LanguageModel, demos []Demo, opts Options, logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NumDemos > 0 && len(demos) > opts.NumDemos {
		demos = demos[:opts.NumDemos]
	}
	return &Decomposer{
		model:  m,
		demos:  demos,
		opts:   opts,
		logger: logger,
	}
}

// Prompt builds the exact prompt sent for generation
func (d *Decomposer) Prompt(generation string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")

	for _, demo := range d.demos {
		b.WriteString(requestPrefix)
		b.WriteString(demo.Sentence)
		b.WriteString("\n")
		for _, fact := range demo.Facts {
			b.WriteString("- ")
			b.WriteString(fact)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(requestPrefix)
	b.WriteString(strings.TrimSpace(generation))
	b.WriteString("\n")
	return b.String()
}

// Decompose returns the claims in generation. An empty result is not an
// error; callers map it to the absent state.
func (d *Decomposer) Decompose(ctx context.Context, generation string) ([]model.Claim, error) {
	var claims []model.Claim

	if d.model == nil {
		claims = model.ClaimsFromTexts(splitSentences(generation))
	} else {
		answer, err := d.model.Generate(ctx, d.Prompt(generation))
		if err != nil {
			return nil, fmt.Errorf("decompose: %w", err)
		}
		claims = ParseClaims(answer.Generated())
	}

	if d.opts.DedupeThreshold > 0 {
		before := len(claims)
		claims = DedupeSimilar(dedupeExact(claims), d.opts.DedupeThreshold)
		if dropped := before - len(claims); dropped > 0 {
			d.logger.Debug("dropped near-duplicate claims", "count", dropped)
		}
	}

	return claims, nil
}

// EstimateWords returns the prompt words generation would cost under mode,
// without calling the model
func (d *Decomposer) EstimateWords(generation, mode string) int {
	if d.model == nil {
		return 0
	}
	checker, _ := d.model.(cost.CacheChecker)
	return cost.CountWords(d.Prompt(generation), mode, checker)
}
