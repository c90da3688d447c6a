package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ppiankov/factprobe/internal/abstain"
	"github.com/ppiankov/factprobe/internal/cache"
	"github.com/ppiankov/factprobe/internal/cost"
	"github.com/ppiankov/factprobe/internal/crosscheck"
	"github.com/ppiankov/factprobe/internal/dataset"
	"github.com/ppiankov/factprobe/internal/decompose"
	"github.com/ppiankov/factprobe/internal/llm"
	"github.com/ppiankov/factprobe/internal/model"
	"github.com/ppiankov/factprobe/internal/retrieval"
)

// MockModel answers every prompt with reply(prompt)
type MockModel struct {
	name  string
	reply func(prompt string) string
	calls int
}

func (m *MockModel) Name() string { return m.name }

func (m *MockModel) Generate(ctx context.Context, prompt string) (llm.Answer, error) {
	m.calls++
	return llm.TextAnswer{Text: m.reply(prompt)}, nil
}

func replyWith(name, text string) *MockModel {
	return &MockModel{name: name, reply: func(string) string { return text }}
}

type stubRetriever struct {
	calls int
}

func (s *stubRetriever) Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	s.calls++
	return []model.Passage{{Title: topic, Text: "Some evidence about " + topic + "."}}, nil
}

type stubChecker struct {
	p float64
}

func (s stubChecker) SupportProbability(ctx context.Context, topic, claim string) (float64, error) {
	return s.p, nil
}

// countingBackend is an in-memory cache backend that counts saves
type countingBackend struct {
	mu    sync.Mutex
	saves int
	data  map[string]cache.Entry
}

func (b *countingBackend) Load() (map[string]cache.Entry, error) {
	return map[string]cache.Entry{}, nil
}

func (b *countingBackend) Save(all map[string]cache.Entry, _ map[string]cache.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	b.data = all
	return nil
}

func (b *countingBackend) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testPipeline struct {
	*Pipeline
	opens int
}

func newTestPipeline(t *testing.T, cfg *model.Config, gen, ver llm.LanguageModel, src Source) *testPipeline {
	t.Helper()
	logger := discardLogger()

	mode, err := abstain.ParseMode(cfg.AbstainDetection)
	if err != nil {
		t.Fatal(err)
	}
	detector, err := abstain.NewDetector(mode, gen, logger)
	if err != nil {
		t.Fatal(err)
	}

	tp := &testPipeline{}
	tp.Pipeline = &Pipeline{
		config:     cfg,
		generator:  gen,
		verifier:   ver,
		decomposer: decompose.New(gen, nil, decompose.Options{}, logger),
		detector:   detector,
		registry:   retrieval.NewRegistry(),
		checkers:   make(map[string]crosscheck.Checker),
		caches:     cache.NewGroup(logger),
		logger:     logger,
	}
	tp.openSource = func(name string) (Source, error) {
		tp.opens++
		return src, nil
	}
	return tp
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.CostEstimate = cost.ModeDisabled
	return cfg
}

func TestGetScore_SingleShortResponse(t *testing.T) {
	p := newTestPipeline(t, testConfig(), replyWith("gen", "- The sky is blue."), replyWith("ver", "True"), Source{Retriever: &stubRetriever{}})

	summary, err := p.GetScore(context.Background(), []string{"Sky"}, []string{"The sky is blue."}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	r := summary.Report
	if math.Abs(r.Score-math.Exp(-9)) > 1e-12 {
		t.Errorf("score = %v, want exp(-9)", r.Score)
	}
	if r.InitScore == nil || *r.InitScore != 1.0 {
		t.Errorf("init score = %v, want 1.0", r.InitScore)
	}
	if r.RespondRatio != 1 || r.NumFactsPerResponse != 1 {
		t.Errorf("unexpected report %+v", r)
	}
	if len(r.Decisions[0]) != 1 || r.Decisions[0][0].Claim != "The sky is blue." {
		t.Errorf("unexpected decisions %+v", r.Decisions)
	}
}

func TestGetScore_AbstainedResponse(t *testing.T) {
	cfg := testConfig()
	cfg.AbstainDetection = "generic"
	gen := replyWith("gen", "- fact one\n- fact two")
	ver := &MockModel{name: "ver", reply: func(prompt string) string {
		if strings.Contains(prompt, "Input: fact two") {
			return "False"
		}
		return "True"
	}}
	p := newTestPipeline(t, cfg, gen, ver, Source{Retriever: &stubRetriever{}})

	summary, err := p.GetScore(context.Background(),
		[]string{"A", "B", "C"},
		[]string{"A did things.", "I'm sorry, I cannot help with that.", "C did things."},
		nil, "")
	if err != nil {
		t.Fatal(err)
	}

	r := summary.Report
	if math.Abs(r.RespondRatio-2.0/3.0) > 1e-12 {
		t.Errorf("respond ratio = %v, want 2/3", r.RespondRatio)
	}
	if r.Decisions[1] != nil {
		t.Errorf("abstained response must have nil decisions, got %+v", r.Decisions[1])
	}
	if r.NumFactsPerResponse != 2 {
		t.Errorf("facts per response = %v, want 2", r.NumFactsPerResponse)
	}
	if *r.InitScore != 0.5 {
		t.Errorf("init score = %v, want 0.5", *r.InitScore)
	}
	if gen.calls != 2 {
		t.Errorf("abstained response must not be decomposed, got %d generator calls", gen.calls)
	}
}

func TestGetScore_EmptyDecompositionIsAbsent(t *testing.T) {
	gen := &MockModel{name: "gen", reply: func(prompt string) string {
		if strings.Contains(prompt, "nothing to see") {
			return ""
		}
		return "- one fact"
	}}
	p := newTestPipeline(t, testConfig(), gen, replyWith("ver", "True"), Source{Retriever: &stubRetriever{}})

	summary, err := p.GetScore(context.Background(), []string{"A", "B"}, []string{"nothing to see", "something"}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Report.RespondRatio != 0.5 || summary.Report.Decisions[0] != nil {
		t.Errorf("expected empty decomposition to be absent, got %+v", summary.Report)
	}
}

func TestGetScore_ProvidedClaims(t *testing.T) {
	gen := replyWith("gen", "- unused")
	p := newTestPipeline(t, testConfig(), gen, replyWith("ver", "True"), Source{Retriever: &stubRetriever{}})

	claims := [][]model.Claim{
		model.ClaimsFromTexts([]string{"a", "b"}),
		{},
	}
	summary, err := p.GetScore(context.Background(), []string{"A", "B"}, []string{"x", "y"}, claims, "")
	if err != nil {
		t.Fatal(err)
	}
	if gen.calls != 0 {
		t.Errorf("provided claims must bypass decomposition, got %d calls", gen.calls)
	}
	if summary.Report.RespondRatio != 0.5 || len(summary.Report.Decisions[0]) != 2 {
		t.Errorf("unexpected report %+v", summary.Report)
	}
}

func TestGetScore_NullAnnotationsCountAsAbstained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.jsonl")
	lines := strings.Join([]string{
		`{"topic": "A", "output": "a", "annotations": [{"model-atomic-facts": [{"text": "A is real."}]}]}`,
		`{"topic": "B", "output": "b", "annotations": null}`,
		`{"topic": "C", "output": "c", "annotations": [{"model-atomic-facts": [{"text": "C is real."}]}]}`,
	}, "\n")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	batch, err := dataset.Read(path, dataset.Options{UseAtomicFacts: true})
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Gamma = 0
	p := newTestPipeline(t, cfg, nil, replyWith("ver", "True"), Source{Retriever: &stubRetriever{}})
	summary, err := p.GetScore(context.Background(), batch.Topics, batch.Generations, batch.Claims, "")
	if err != nil {
		t.Fatal(err)
	}

	r := summary.Report
	if math.Abs(r.RespondRatio-2.0/3.0) > 1e-9 {
		t.Errorf("respond ratio = %v, want 2/3", r.RespondRatio)
	}
	if r.Score != 1.0 || r.NumFactsPerResponse != 1 {
		t.Errorf("unexpected report %+v", r)
	}
	if len(r.Decisions) != 3 || r.Decisions[1] != nil {
		t.Errorf("expected B absent in the decision list, got %+v", r.Decisions)
	}
}

func TestGetScore_LengthMismatch(t *testing.T) {
	p := newTestPipeline(t, testConfig(), nil, nil, Source{})

	if _, err := p.GetScore(context.Background(), []string{"A"}, nil, nil, ""); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	claims := [][]model.Claim{{{Text: "a"}}}
	if _, err := p.GetScore(context.Background(), []string{"A", "B"}, []string{"a", "b"}, claims, ""); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch for claims, got %v", err)
	}
}

func TestGetScore_SourceRegisteredOnce(t *testing.T) {
	r := &stubRetriever{}
	p := newTestPipeline(t, testConfig(), nil, replyWith("ver", "True"), Source{Retriever: r})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := p.GetScore(ctx, []string{"A"}, []string{"A is a thing."}, nil, "medlineplus"); err != nil {
			t.Fatal(err)
		}
	}
	if p.opens != 1 {
		t.Errorf("expected source opened once, got %d", p.opens)
	}
	if got := p.Sources(); len(got) != 1 || got[0] != "medlineplus" {
		t.Errorf("unexpected sources %v", got)
	}
	if err := p.RegisterSource("medlineplus", Source{Retriever: r}); !errors.Is(err, retrieval.ErrSourceRegistered) {
		t.Errorf("expected ErrSourceRegistered, got %v", err)
	}
	if r.calls != 2 {
		t.Errorf("expected one retrieval per claim, got %d", r.calls)
	}
}

func TestGetScore_NoVerifierSupportsEverything(t *testing.T) {
	r := &stubRetriever{}
	p := newTestPipeline(t, testConfig(), nil, nil, Source{Retriever: r})

	summary, err := p.GetScore(context.Background(), []string{"A"},
		[]string{"First sentence here. Second sentence here."}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	ds := summary.Report.Decisions[0]
	if len(ds) != 2 || !ds[0].IsSupported || !ds[1].IsSupported {
		t.Errorf("expected two supported sentence claims, got %+v", ds)
	}
	if r.calls != 0 {
		t.Error("retrieval is not needed without a verifier")
	}
}

func TestGetScore_CrossCheckNeverRaisesScore(t *testing.T) {
	claims := [][]model.Claim{model.ClaimsFromTexts([]string{"a", "b", "c"})}
	ver := &MockModel{name: "ver", reply: func(prompt string) string {
		if strings.Contains(prompt, "Input: b ") {
			return "False"
		}
		return "True"
	}}

	base := newTestPipeline(t, testConfig(), nil, ver, Source{Retriever: &stubRetriever{}})
	plain, err := base.GetScore(context.Background(), []string{"T"}, []string{"g"}, claims, "")
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range []float64{0.1, 0.3, 0.9} {
		vetoed := newTestPipeline(t, testConfig(), nil, ver, Source{Retriever: &stubRetriever{}, Checker: stubChecker{p: p}})
		got, err := vetoed.GetScore(context.Background(), []string{"T"}, []string{"g"}, claims, "")
		if err != nil {
			t.Fatal(err)
		}
		if got.Report.Score > plain.Report.Score {
			t.Errorf("p=%v: veto raised score from %v to %v", p, plain.Report.Score, got.Report.Score)
		}
	}
}

func TestGetScore_CostEstimates(t *testing.T) {
	cfg := testConfig()
	cfg.CostEstimate = cost.ModeIgnoreCache
	gen := replyWith("gen", "- fact")
	ver := replyWith("ver", "True")
	p := newTestPipeline(t, cfg, gen, ver, Source{Retriever: &stubRetriever{}})

	summary, err := p.GetScore(context.Background(), []string{"A"}, []string{"A is a thing."}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Estimates) != 2 {
		t.Fatalf("expected two estimates, got %+v", summary.Estimates)
	}
	if summary.Estimates[0].Task != cost.TaskGeneration || summary.Estimates[1].Task != cost.TaskVerification {
		t.Errorf("unexpected tasks %+v", summary.Estimates)
	}
	for _, est := range summary.Estimates {
		if est.Words == 0 || est.Cost <= 0 {
			t.Errorf("expected non-zero estimate, got %+v", est)
		}
	}
	// Estimation itself does not call the models
	if gen.calls != 1 || ver.calls != 1 {
		t.Errorf("unexpected model calls: gen=%d ver=%d", gen.calls, ver.calls)
	}
}

func TestGetScore_PeriodicFlush(t *testing.T) {
	backend := &countingBackend{}
	c := cache.NewLayeredCache("afv-test", backend, discardLogger())
	ver := llm.NewCached(replyWith("ver", "True"), c, nil, discardLogger())

	p := newTestPipeline(t, testConfig(), nil, ver, Source{Retriever: &stubRetriever{}})
	p.caches.Add(c)

	n := 25
	topics := make([]string, n)
	claims := make([][]model.Claim, n)
	for i := range topics {
		topics[i] = "T"
		claims[i] = []model.Claim{{Text: strings.Repeat("x", i+1)}}
	}

	if _, err := p.GetScore(context.Background(), topics, make([]string, n), claims, ""); err != nil {
		t.Fatal(err)
	}

	// Two checkpoints plus the final flush
	if backend.saves != 3 {
		t.Errorf("expected 3 saves, got %d", backend.saves)
	}
	if len(backend.data) != n {
		t.Errorf("expected %d persisted answers, got %d", n, len(backend.data))
	}
}

func TestNewPipeline_DefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")

	p, err := NewPipeline(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	summary, err := p.GetScore(context.Background(), []string{"A"}, []string{"A is one. A is two."}, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Report.Score != 1.0*math.Exp(1-10.0/2) {
		t.Errorf("unexpected score %v", summary.Report.Score)
	}
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.AbstainDetection = "psychic"
	if _, err := NewPipeline(cfg, discardLogger()); !errors.Is(err, abstain.ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}

	cfg = model.DefaultConfig()
	cfg.CostEstimate = "always"
	if _, err := NewPipeline(cfg, discardLogger()); !errors.Is(err, cost.ErrUnknownMode) {
		t.Errorf("expected cost ErrUnknownMode, got %v", err)
	}

	cfg = model.DefaultConfig()
	cfg.AbstainDetection = "model"
	if _, err := NewPipeline(cfg, discardLogger()); err == nil {
		t.Error("expected model abstain detection to require a generator")
	}
}

func TestCacheName(t *testing.T) {
	if got := cacheName("afv", "meta-llama/Llama-3.1-8B-Instruct"); got != "afv-meta-llama_Llama-3.1-8B-Instruct" {
		t.Errorf("unexpected name %s", got)
	}
}
