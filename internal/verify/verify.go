// Package verify decides whether each atomic claim is supported by passages
// retrieved from a knowledge source.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/factprobe/internal/cost"
	"github.com/ppiankov/factprobe/internal/crosscheck"
	"github.com/ppiankov/factprobe/internal/llm"
	"github.com/ppiankov/factprobe/internal/model"
	"github.com/ppiankov/factprobe/internal/retrieval"
)

// Options configures a Verifier
type Options struct {
	TopK      int     // Passages per claim
	Threshold float64 // Cross-check veto threshold
}

// Verifier judges claims for one knowledge source
type Verifier struct {
	model     llm.LanguageModel
	retriever retrieval.Retriever
	checker   crosscheck.Checker
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a Verifier. A nil model marks every claim supported; a nil
// retriever sends no context; a nil checker disables the veto.
func New(m llm.LanguageModel, r retrieval.Retriever, checker crosscheck.Checker, opts Options, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Threshold <= 0 {
		opts.Threshold = crosscheck.DefaultThreshold
	}
	return &Verifier{
		model:     m,
		retriever: r,
		checker:   checker,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/ppiankov/factprobe/internal/verify"),
	}
}

// Verify retrieves evidence for claim and returns its decision
func (v *Verifier) Verify(ctx context.Context, topic, claim string) (model.Decision, error) {
	claim = strings.TrimSpace(claim)

	supported := true
	if v.model != nil {
		passages, err := v.passages(ctx, topic, claim)
		if err != nil {
			return model.Decision{}, err
		}
		supported, err = v.Judge(ctx, topic, claim, passages)
		if err != nil {
			return model.Decision{}, err
		}
	}

	if supported && v.checker != nil {
		p, err := v.checker.SupportProbability(ctx, topic, claim)
		if err != nil {
			return model.Decision{}, fmt.Errorf("cross-check %q: %w", claim, err)
		}
		if crosscheck.Vetoes(p, v.opts.Threshold) {
			v.logger.Debug("cross-check veto", "claim", claim, "probability", p)
			supported = false
		}
	}

	return model.Decision{Claim: claim, IsSupported: supported}, nil
}

// VerifyAll verifies claims in order
func (v *Verifier) VerifyAll(ctx context.Context, topic string, claims []model.Claim) ([]model.Decision, error) {
	decisions := make([]model.Decision, 0, len(claims))
	for _, c := range claims {
		d, err := v.Verify(ctx, topic, c.Text)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// Judge asks the model whether passages support claim
func (v *Verifier) Judge(ctx context.Context, topic, claim string, passages []model.Passage) (bool, error) {
	ctx, span := v.tracer.Start(ctx, "verify.Judge", trace.WithAttributes(
		attribute.String("verify.topic", topic),
		attribute.Int("verify.passages", len(passages)),
	))
	defer span.End()

	prompt := BuildPrompt(topic, claim, passages)

	answer, err := v.model.Generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return false, fmt.Errorf("verify %q: %w", claim, err)
	}

	supported, err := Resolve(answer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		return false, err
	}

	if scored, ok := answer.(llm.ScoredAnswer); ok {
		v.logger.Debug("scored verification",
			"claim", claim,
			"true_score", scored.Scores[trueIndex],
			"false_score", scored.Scores[falseIndex],
			"is_supported", supported,
			"output", scored.Text)
	} else {
		v.logger.Debug("text verification", "claim", claim, "output", answer.Generated(), "is_supported", supported)
	}

	span.SetAttributes(attribute.Bool("verify.supported", supported))
	return supported, nil
}

// EstimateWords returns the word count of the prompt that verifying claim
// would send, under the given cost mode. It retrieves passages but never
// calls the model or writes a cache.
func (v *Verifier) EstimateWords(ctx context.Context, topic, claim, mode string) (int, error) {
	if v.model == nil || mode == cost.ModeDisabled {
		return 0, nil
	}
	claim = strings.TrimSpace(claim)

	passages, err := v.previewPassages(ctx, topic, claim)
	if err != nil {
		return 0, err
	}

	checker, _ := v.model.(cost.CacheChecker)
	return cost.CountWords(BuildPrompt(topic, claim, passages), mode, checker), nil
}

func (v *Verifier) passages(ctx context.Context, topic, claim string) ([]model.Passage, error) {
	if v.retriever == nil {
		return nil, nil
	}
	passages, err := v.retriever.Passages(ctx, topic, claim, v.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages for %q: %w", topic, err)
	}
	return passages, nil
}

func (v *Verifier) previewPassages(ctx context.Context, topic, claim string) ([]model.Passage, error) {
	p, ok := v.retriever.(retrieval.Previewer)
	if !ok {
		return v.passages(ctx, topic, claim)
	}
	passages, err := p.Preview(ctx, topic, claim, v.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages for %q: %w", topic, err)
	}
	return passages, nil
}
