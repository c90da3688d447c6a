package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/factprobe/internal/model"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	def := model.DefaultConfig()
	if cfg.Gamma != def.Gamma || cfg.KnowledgeSource != def.KnowledgeSource || cfg.HTTP.Timeout != def.HTTP.Timeout {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetEnvPrefix("FACTPROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	t.Setenv("FACTPROBE_GAMMA", "0")
	t.Setenv("FACTPROBE_VERIFIER_PROVIDER", "openai")
	t.Setenv("FACTPROBE_RETRIEVAL_TOP_K", "3")
	t.Setenv("FACTPROBE_HTTP_TIMEOUT", "5s")
	t.Setenv("FACTPROBE_CROSS_CHECK_BASE_URL", "http://npm.internal")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gamma != 0 || cfg.Retrieval.TopK != 3 || cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("env overrides not applied: gamma=%d top_k=%d timeout=%v", cfg.Gamma, cfg.Retrieval.TopK, cfg.HTTP.Timeout)
	}
	if cfg.Verifier.Provider != "openai" || cfg.Verifier.APIKey != "sk-test" {
		t.Errorf("unexpected verifier config %+v", cfg.Verifier)
	}
	if cfg.CrossCheck.BaseURL != "http://npm.internal" {
		t.Errorf("omitted key not bound to env: %q", cfg.CrossCheck.BaseURL)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".factprobe", "config.yaml")

	if err := writeDefaultConfig(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.KnowledgeSource != "enwiki-20230401" || cfg.CheckpointEvery != 10 {
		t.Errorf("unexpected round-tripped config %+v", cfg)
	}
	if strings.Contains(string(data), "api_key") {
		t.Error("API keys must not be written to the config file")
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected refusal to overwrite existing config")
	}
}

func TestPrintSummary(t *testing.T) {
	init := 0.8
	summary := &model.RunSummary{
		Report: &model.ScoreReport{
			Score:               0.5,
			InitScore:           &init,
			RespondRatio:        2.0 / 3.0,
			NumFactsPerResponse: 12,
		},
		Estimates: []model.CostEstimate{{Task: "factscore evaluation", Words: 300, Cost: 0.0006}},
		Responses: 3,
	}

	var buf bytes.Buffer
	printSummary(&buf, summary, "bios_factscore_output.json")
	out := buf.String()

	for _, want := range []string{
		"FactScore:                          50.0%",
		"FactScore w/o length penalty:       80.0%",
		"Respond ratio:                      66.7%",
		"# Atomic facts per valid response:  12.0",
		"factscore evaluation",
		"Results saved to bios_factscore_output.json",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	summary.Report.InitScore = nil
	buf.Reset()
	printSummary(&buf, summary, "x.json")
	if strings.Contains(buf.String(), "length penalty") {
		t.Error("init score line must be omitted without a length penalty")
	}
}

func TestDescribeModel(t *testing.T) {
	if got := describeModel(model.LLMConfig{}); got != "none" {
		t.Errorf("got %q", got)
	}
	if got := describeModel(model.LLMConfig{Provider: "ollama", Model: "llama3.1"}); got != "ollama/llama3.1" {
		t.Errorf("got %q", got)
	}
}
