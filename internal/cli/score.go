package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factprobe/internal/dataset"
	"github.com/ppiankov/factprobe/internal/model"
	"github.com/ppiankov/factprobe/internal/pipeline"
)

var (
	outPath      string
	scoreTimeout time.Duration
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score <input.jsonl>",
	Short: "Score the factual precision of a batch of generations",
	Long: `Score reads one JSON object per line with "topic" and "output" fields and:
- Skips responses that decline to answer (optional abstain detection)
- Breaks every response into atomic facts
- Checks each fact against passages retrieved for the topic
- Reports the supported fraction, penalised for very short responses

With --use-atomic-facts, facts are read from each record's "annotations"
instead of being generated.

Example:
  factprobe score bios.jsonl
  factprobe score bios.jsonl --verifier-provider openai --verifier-model gpt-4o-mini
  factprobe score bios.jsonl --use-atomic-facts --gamma 0 --output report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	f := scoreCmd.Flags()

	// Output flags
	f.StringVarP(&outPath, "output", "o", "", "output JSON path (default: <input>_factscore_output.json)")
	f.DurationVar(&scoreTimeout, "timeout", 0, "overall run timeout (0 for none)")

	// Scoring flags
	f.Int("gamma", 10, "length penalty hyperparameter (0 disables)")
	f.String("knowledge-source", "enwiki-20230401", "knowledge source name")
	f.String("cost-estimate", "consider_cache", "cost estimate mode (consider_cache, ignore_cache, or empty)")
	f.String("abstain-detection", "none", "abstain detection (none, generic, perplexity_ai, model)")
	f.Bool("use-atomic-facts", false, "read atomic facts from input annotations")
	f.Int("n-samples", 0, "limit the number of input lines read (0 for all)")
	f.String("data-dir", ".cache/factscore", "directory with knowledge sources and demos")
	f.String("cache-dir", ".cache/factscore", "directory for response caches")
	f.String("cache-backend", "json", "cache backend (json, badger)")

	// Model flags
	f.String("verifier-provider", "", "fact verification provider (openai, anthropic, ollama, hf)")
	f.String("verifier-model", "", "fact verification model name")
	f.String("generator-provider", "", "fact generation provider (openai, anthropic, ollama, hf)")
	f.String("generator-model", "", "fact generation model name")

	// Retrieval flags
	f.String("retrieval-backend", "local", "passage retriever (local, wikipedia, http)")
	f.String("retrieval-url", "", "base URL of the http retrieval service")
	f.Int("top-k", 5, "passages per fact")
	f.Bool("cross-check", false, "veto weakly supported facts with the cross-check service")
	f.String("cross-check-url", "", "base URL of the cross-check service")

	// HTTP flags
	f.String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	f.String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	for key, flag := range map[string]string{
		"gamma":                "gamma",
		"knowledge_source":     "knowledge-source",
		"cost_estimate":        "cost-estimate",
		"abstain_detection":    "abstain-detection",
		"use_atomic_facts":     "use-atomic-facts",
		"n_samples":            "n-samples",
		"data_dir":             "data-dir",
		"cache_dir":            "cache-dir",
		"cache.backend":        "cache-backend",
		"verifier.provider":    "verifier-provider",
		"verifier.model":       "verifier-model",
		"generator.provider":   "generator-provider",
		"generator.model":      "generator-model",
		"retrieval.backend":    "retrieval-backend",
		"retrieval.base_url":   "retrieval-url",
		"retrieval.top_k":      "top-k",
		"cross_check.enabled":  "cross-check",
		"cross_check.base_url": "cross-check-url",
		"http.http_proxy":      "http-proxy",
		"http.https_proxy":     "https-proxy",
	} {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
}

func runScore(cmd *cobra.Command, args []string) error {
	input := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := newLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	ctx := context.Background()
	if scoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scoreTimeout)
		defer cancel()
	}

	batch, err := dataset.Read(input, dataset.Options{
		UseAtomicFacts: cfg.UseAtomicFacts,
		NSamples:       cfg.NSamples,
	})
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Input:            %s (%d responses)\n", input, batch.Len())
		fmt.Fprintf(os.Stderr, "Knowledge source: %s\n", cfg.KnowledgeSource)
		fmt.Fprintf(os.Stderr, "Verifier:         %s\n", describeModel(cfg.Verifier))
		fmt.Fprintf(os.Stderr, "Generator:        %s\n", describeModel(cfg.Generator))
		fmt.Fprintln(os.Stderr)
	}
	logger.Info("initialized scorer", "input", input, "responses", batch.Len(), "knowledge_source", cfg.KnowledgeSource)

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warn("closing caches", "error", err)
		}
	}()

	summary, err := p.GetScore(ctx, batch.Topics, batch.Generations, batch.Claims, cfg.KnowledgeSource)
	if err != nil {
		return fmt.Errorf("score failed: %w", err)
	}

	path := dataset.OutputPath(input, outPath)
	if err := dataset.WriteReport(path, summary.Report); err != nil {
		return err
	}

	printSummary(os.Stderr, summary, path)
	logger.Info("results saved", "path", path, "score", summary.Report.Score)
	return nil
}

func describeModel(mc model.LLMConfig) string {
	if mc.Provider == "" {
		return "none"
	}
	if mc.Model == "" {
		return mc.Provider + " (default model)"
	}
	return mc.Provider + "/" + mc.Model
}

// printSummary prints the run results banner
func printSummary(w io.Writer, s *model.RunSummary, path string) {
	r := s.Report

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  FactScore Results\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  FactScore:                          %.1f%%\n", 100*r.Score)
	if r.InitScore != nil {
		fmt.Fprintf(w, "  FactScore w/o length penalty:       %.1f%%\n", 100*(*r.InitScore))
	}
	fmt.Fprintf(w, "  Respond ratio:                      %.1f%%\n", 100*r.RespondRatio)
	fmt.Fprintf(w, "  # Atomic facts per valid response:  %.1f\n", r.NumFactsPerResponse)
	fmt.Fprintf(w, "  Responses:                          %d\n", s.Responses)
	fmt.Fprintf(w, "  Cache hits / misses:                %d / %d\n", s.CacheHits, s.CacheMisses)

	if len(s.Estimates) > 0 {
		fmt.Fprintf(w, "\n")
		for _, est := range s.Estimates {
			fmt.Fprintf(w, "  Estimated cost (%s): $%.2f for %d words\n", est.Task, est.Cost, est.Words)
		}
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "✓ Results saved to %s\n", path)
	fmt.Fprintf(w, "\n")
}
