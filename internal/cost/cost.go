// Package cost estimates the API spend of a run from the prompts it would
// send, without calling any model.
package cost

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/factprobe/internal/model"
)

// Estimate modes
const (
	ModeConsiderCache = model.CostEstimateConsiderCache
	ModeIgnoreCache   = model.CostEstimateIgnoreCache
	ModeDisabled      = model.CostEstimateDisabled
)

// Sub-task names reported in estimates
const (
	TaskGeneration   = "atomic fact generation"
	TaskVerification = "factscore evaluation"
)

// Reference models whose published rates are used by default
const (
	ModelDavinci = "davinci-003"
	ModelTurbo   = "gpt-3.5-turbo"
)

// Dollars per 1000 tokens
var rates = map[string]float64{
	ModelDavinci: 0.02,
	ModelTurbo:   0.0015,
}

// ErrUnknownMode is returned for an unrecognised estimate mode
var ErrUnknownMode = errors.New("unknown cost estimate mode")

// CacheChecker reports whether a prompt is already cached
type CacheChecker interface {
	IsCached(prompt string, sample int) bool
}

// ParseMode validates a configured mode
func ParseMode(s string) (string, error) {
	switch s {
	case ModeConsiderCache, ModeIgnoreCache, ModeDisabled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %s (supported: consider_cache, ignore_cache, or empty)", ErrUnknownMode, s)
	}
}

// CountWords returns the word count prompt contributes under mode. Prompts
// already in checker are free under consider_cache; a nil checker counts
// everything.
func CountWords(prompt, mode string, checker CacheChecker) int {
	switch mode {
	case ModeConsiderCache:
		if checker != nil && checker.IsCached(prompt, 0) {
			return 0
		}
	case ModeIgnoreCache:
	default:
		return 0
	}
	return len(strings.Fields(prompt))
}

// Rate returns the per-1k-token rate for a reference model, or override when
// it is positive
func Rate(refModel string, override float64) float64 {
	if override > 0 {
		return override
	}
	return rates[refModel]
}

// Compute turns a word count into a token and dollar estimate. Tokens are
// taken as 4/3 of words.
func Compute(task, refModel string, words int, override float64) model.CostEstimate {
	tokens := float64(words) * 4.0 / 3.0
	rate := Rate(refModel, override)
	return model.CostEstimate{
		Task:   task,
		Model:  refModel,
		Words:  words,
		Tokens: tokens,
		Rate:   rate,
		Cost:   tokens * rate / 1000,
	}
}

// Log reports an estimate
func Log(logger *slog.Logger, est model.CostEstimate) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(fmt.Sprintf("Estimated OpenAI API cost for %s ($%.4f per 1000 tokens): $%.2f for %d words and %d tokens",
		est.Task, est.Rate, est.Cost, est.Words, int(est.Tokens)),
		"task", est.Task, "model", est.Model, "cost_usd", est.Cost)
}
