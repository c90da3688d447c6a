package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ppiankov/factprobe/internal/abstain"
	"github.com/ppiankov/factprobe/internal/cache"
	"github.com/ppiankov/factprobe/internal/cost"
	"github.com/ppiankov/factprobe/internal/crosscheck"
	"github.com/ppiankov/factprobe/internal/decompose"
	"github.com/ppiankov/factprobe/internal/llm"
	"github.com/ppiankov/factprobe/internal/model"
	"github.com/ppiankov/factprobe/internal/retrieval"
	"github.com/ppiankov/factprobe/internal/score"
	"github.com/ppiankov/factprobe/internal/verify"
	"github.com/ppiankov/factprobe/internal/worker"
)

// ErrLengthMismatch is returned when topics, generations and claims differ in length
var ErrLengthMismatch = errors.New("inputs have different lengths")

// Source is everything needed to verify against one knowledge source
type Source struct {
	Retriever retrieval.Retriever // nil sends no passages
	Checker   crosscheck.Checker  // nil disables the veto
}

// SourceFactory opens a knowledge source by name
type SourceFactory func(name string) (Source, error)

// Pipeline orchestrates the complete scoring process
type Pipeline struct {
	config     *model.Config
	generator  llm.LanguageModel // nil splits sentences instead
	verifier   llm.LanguageModel // nil marks every claim supported
	decomposer *decompose.Decomposer
	detector   *abstain.Detector
	registry   *retrieval.Registry
	checkers   map[string]crosscheck.Checker
	openSource SourceFactory
	caches     *cache.Group
	logger     *slog.Logger
}

// NewPipeline creates a pipeline from configuration, opening every model
// cache under cfg.CacheDir
func NewPipeline(cfg *model.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abstainMode, err := abstain.ParseMode(cfg.AbstainDetection)
	if err != nil {
		return nil, err
	}
	if _, err := cost.ParseMode(cfg.CostEstimate); err != nil {
		return nil, err
	}

	caches := cache.NewGroup(logger)
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)

	verifier, err := openModel(cfg, cfg.Verifier, llm.VerifierSystemPrompt, "afv", caches, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("verifier model: %w", err)
	}
	generator, err := openModel(cfg, cfg.Generator, llm.DecomposerSystemPrompt, "afg", caches, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("generator model: %w", err)
	}

	demosPath := cfg.Decompose.DemosFile
	if demosPath == "" {
		demosPath = filepath.Join(cfg.DataDir, "demos", "demons.json")
	}
	demos, err := decompose.LoadDemos(demosPath)
	if err != nil {
		return nil, err
	}

	detector, err := abstain.NewDetector(abstainMode, generator, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:    cfg,
		generator: generator,
		verifier:  verifier,
		decomposer: decompose.New(generator, demos, decompose.Options{
			NumDemos:        cfg.Decompose.NumDemos,
			DedupeThreshold: cfg.Decompose.DedupeThreshold,
		}, logger),
		detector: detector,
		registry: retrieval.NewRegistry(),
		checkers: make(map[string]crosscheck.Checker),
		caches:   caches,
		logger:   logger,
	}
	p.openSource = func(name string) (Source, error) {
		return openSource(cfg, name, caches, limiter, logger)
	}

	if generator == nil {
		logger.Warn("no generator model configured, claims are split by sentence")
	}
	if verifier == nil {
		logger.Warn("no verifier model configured, every claim counts as supported")
	}

	return p, nil
}

// openModel builds a cache-backed model or returns nil when no provider is
// configured
func openModel(cfg *model.Config, mc model.LLMConfig, system, prefix string, caches *cache.Group, limiter *worker.Limiter, logger *slog.Logger) (llm.LanguageModel, error) {
	m, err := llm.NewModel(llm.ConfigFromModel(mc, cfg.HTTP, system))
	if err != nil || m == nil {
		return nil, err
	}

	c, err := cache.Open(cfg.CacheDir, cacheName(prefix, m.Name()), cfg.Cache.Backend, cfg.Cache.SyncWrites, logger)
	if err != nil {
		return nil, err
	}
	caches.Add(c)

	return llm.NewCached(m, c, limiter, logger), nil
}

func openSource(cfg *model.Config, name string, caches *cache.Group, limiter *worker.Limiter, logger *slog.Logger) (Source, error) {
	var src Source

	if cfg.Retrieval.Enabled {
		r, err := retrieval.New(cfg, name, limiter, logger)
		if err != nil {
			return Source{}, err
		}
		c, err := cache.Open(cfg.CacheDir, cacheName("retrieval", name), cfg.Cache.Backend, cfg.Cache.SyncWrites, logger)
		if err != nil {
			return Source{}, err
		}
		caches.Add(c)
		src.Retriever = retrieval.NewCached(r, c, logger)
	}

	if cfg.CrossCheck.Enabled {
		h, err := crosscheck.NewHTTPChecker(cfg.CrossCheck.BaseURL, name, cfg.HTTP.Timeout,
			cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
		if err != nil {
			return Source{}, err
		}
		c, err := cache.Open(cfg.CacheDir, cacheName("npm", name), cfg.Cache.Backend, cfg.Cache.SyncWrites, logger)
		if err != nil {
			return Source{}, err
		}
		caches.Add(c)
		src.Checker = crosscheck.NewCached(h, c, logger)
	}

	return src, nil
}

// cacheName builds a file-safe cache namespace such as afv-gpt-4o-mini
func cacheName(prefix, name string) string {
	return prefix + "-" + strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(name)
}

// RegisterSource registers a knowledge source under name. Registering the
// same name twice fails.
func (p *Pipeline) RegisterSource(name string, src Source) error {
	if src.Retriever == nil {
		// The registry only holds real retrievers
		src.Retriever = noPassages{}
	}
	if err := p.registry.Register(name, src.Retriever); err != nil {
		return err
	}
	if src.Checker != nil {
		p.checkers[name] = src.Checker
	}
	return nil
}

type noPassages struct{}

func (noPassages) Passages(context.Context, string, string, int) ([]model.Passage, error) {
	return nil, nil
}

func (p *Pipeline) source(name string) (*verify.Verifier, error) {
	if !p.registry.Has(name) {
		src, err := p.openSource(name)
		if err != nil {
			return nil, fmt.Errorf("open knowledge source %s: %w", name, err)
		}
		if err := p.RegisterSource(name, src); err != nil {
			return nil, err
		}
		p.logger.Info("knowledge source registered", "name", name)
	}

	r, err := p.registry.Get(name)
	if err != nil {
		return nil, err
	}

	var checker crosscheck.Checker
	if c, ok := p.checkers[name]; ok {
		checker = c
	}

	return verify.New(p.verifier, r, checker, verify.Options{
		TopK:      p.config.Retrieval.TopK,
		Threshold: p.config.CrossCheck.Threshold,
	}, p.logger), nil
}

// GetScore scores generations against knowledge source (the configured
// default when empty). claims, when non-nil, replaces decomposition and
// abstain detection.
func (p *Pipeline) GetScore(ctx context.Context, topics, generations []string, claims [][]model.Claim, knowledgeSource string) (*model.RunSummary, error) {
	if len(topics) != len(generations) {
		return nil, fmt.Errorf("%w: %d topics, %d generations", ErrLengthMismatch, len(topics), len(generations))
	}
	if claims != nil && len(claims) != len(topics) {
		return nil, fmt.Errorf("%w: %d topics, %d claim lists", ErrLengthMismatch, len(topics), len(claims))
	}
	if knowledgeSource == "" {
		knowledgeSource = p.config.KnowledgeSource
	}

	v, err := p.source(knowledgeSource)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{Responses: len(topics)}

	var facts [][]model.Claim
	if claims != nil {
		facts = make([][]model.Claim, len(claims))
		for i, c := range claims {
			if len(c) > 0 {
				facts[i] = c
			}
		}
	} else {
		if est, ok := p.estimateGeneration(generations); ok {
			summary.Estimates = append(summary.Estimates, est)
		}
		facts, err = p.decomposeAll(ctx, generations)
		if err != nil {
			p.caches.FlushAll()
			return nil, err
		}
	}

	est, ok, err := p.estimateVerification(ctx, v, topics, facts)
	if err != nil {
		p.caches.FlushAll()
		return nil, err
	}
	if ok {
		summary.Estimates = append(summary.Estimates, est)
	}

	agg := score.NewAggregator(p.config.Gamma, score.Checkpoint{
		Every: p.config.CheckpointEvery,
		Fn:    p.caches.FlushAll,
	})
	for i, topic := range topics {
		rec := model.ResponseRecord{Topic: topic, Generation: generations[i], Claims: facts[i]}
		if rec.Claims != nil {
			rec.Decisions, err = v.VerifyAll(ctx, topic, rec.Claims)
			if err != nil {
				p.caches.FlushAll()
				return nil, fmt.Errorf("response %d (%s): %w", i, topic, err)
			}
			p.logger.Debug("response scored", "index", i, "topic", topic, "claims", len(rec.Decisions))
		}
		agg.Add(rec)
	}
	p.caches.FlushAll()

	summary.Report = agg.Report()
	summary.CacheHits, summary.CacheMisses = p.caches.Stats()
	p.logger.Info("scoring complete",
		"responses", len(topics),
		"generator_calls", modelCalls(p.generator),
		"verifier_calls", modelCalls(p.verifier))
	return summary, nil
}

// modelCalls returns how many requests actually reached a backend
func modelCalls(m llm.LanguageModel) int64 {
	if c, ok := m.(*llm.Cached); ok {
		return c.Calls()
	}
	return 0
}

// decomposeAll runs abstain detection and decomposition for every
// generation. Abstained and empty responses come back nil.
func (p *Pipeline) decomposeAll(ctx context.Context, generations []string) ([][]model.Claim, error) {
	facts := make([][]model.Claim, 0, len(generations))
	every := p.config.CheckpointEvery

	for i, gen := range generations {
		abstained, err := p.detector.Detect(ctx, gen)
		if err != nil {
			return nil, fmt.Errorf("response %d: %w", i, err)
		}

		var claims []model.Claim
		if !abstained {
			claims, err = p.decomposer.Decompose(ctx, gen)
			if err != nil {
				return nil, fmt.Errorf("response %d: %w", i, err)
			}
		}
		if len(claims) == 0 {
			claims = nil
		}
		facts = append(facts, claims)

		if every > 0 && len(facts)%every == 0 {
			p.caches.FlushAll()
		}
	}

	p.caches.FlushAll()
	return facts, nil
}

func (p *Pipeline) estimateGeneration(generations []string) (model.CostEstimate, bool) {
	mode := p.config.CostEstimate
	if mode == cost.ModeDisabled || p.generator == nil {
		return model.CostEstimate{}, false
	}

	words := 0
	for _, gen := range generations {
		words += p.decomposer.EstimateWords(gen, mode)
	}

	est := cost.Compute(cost.TaskGeneration, cost.ModelDavinci, words, p.config.Cost.GenerationRate)
	cost.Log(p.logger, est)
	return est, true
}

func (p *Pipeline) estimateVerification(ctx context.Context, v *verify.Verifier, topics []string, facts [][]model.Claim) (model.CostEstimate, bool, error) {
	mode := p.config.CostEstimate
	if mode == cost.ModeDisabled || p.verifier == nil {
		return model.CostEstimate{}, false, nil
	}

	words := 0
	for i, claims := range facts {
		for _, c := range claims {
			n, err := v.EstimateWords(ctx, topics[i], c.Text, mode)
			if err != nil {
				return model.CostEstimate{}, false, err
			}
			words += n
		}
	}

	est := cost.Compute(cost.TaskVerification, cost.ModelTurbo, words, p.config.Cost.VerificationRate)
	cost.Log(p.logger, est)
	return est, true, nil
}

// Sources returns the registered knowledge source names
func (p *Pipeline) Sources() []string {
	return p.registry.Names()
}

// Close flushes and closes every cache
func (p *Pipeline) Close() error {
	return p.caches.CloseAll()
}
