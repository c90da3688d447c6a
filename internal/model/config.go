package model

import "time"

// Cost estimate modes
const (
	CostEstimateConsiderCache = "consider_cache"
	CostEstimateIgnoreCache   = "ignore_cache"
	CostEstimateDisabled      = ""
)

// Config holds the complete run configuration
type Config struct {
	DataDir          string `yaml:"data_dir" mapstructure:"data_dir"`
	CacheDir         string `yaml:"cache_dir" mapstructure:"cache_dir"`
	KnowledgeSource  string `yaml:"knowledge_source" mapstructure:"knowledge_source"`
	Gamma            int    `yaml:"gamma" mapstructure:"gamma"`                         // Length penalty; 0 disables
	CostEstimate     string `yaml:"cost_estimate" mapstructure:"cost_estimate"`         // consider_cache, ignore_cache, or empty
	AbstainDetection string `yaml:"abstain_detection" mapstructure:"abstain_detection"` // none, generic, perplexity_ai, model
	NSamples         int    `yaml:"n_samples" mapstructure:"n_samples"`                 // 0 reads every line
	UseAtomicFacts   bool   `yaml:"use_atomic_facts" mapstructure:"use_atomic_facts"`
	CheckpointEvery  int    `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`

	Verifier   LLMConfig        `yaml:"verifier" mapstructure:"verifier"`   // Atomic fact verification model
	Generator  LLMConfig        `yaml:"generator" mapstructure:"generator"` // Atomic fact generation model
	Decompose  DecomposeConfig  `yaml:"decompose" mapstructure:"decompose"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	CrossCheck CrossCheckConfig `yaml:"cross_check" mapstructure:"cross_check"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`

	RateLimiting RateLimitConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cost         CostConfig      `yaml:"cost" mapstructure:"cost"`
	Logging      LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// LLMConfig selects and configures one language model backend
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, hf, or empty
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"-" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
}

// DecomposeConfig configures atomic fact generation
type DecomposeConfig struct {
	DemosFile       string  `yaml:"demos_file,omitempty" mapstructure:"demos_file"`
	NumDemos        int     `yaml:"num_demos" mapstructure:"num_demos"`
	DedupeThreshold float64 `yaml:"dedupe_threshold" mapstructure:"dedupe_threshold"` // 0 disables near-duplicate removal
}

// RetrievalConfig configures the passage retriever
type RetrievalConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend       string `yaml:"backend" mapstructure:"backend"` // local, wikipedia, http
	TopK          int    `yaml:"top_k" mapstructure:"top_k"`
	BaseURL       string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	WikipediaURL  string `yaml:"wikipedia_url" mapstructure:"wikipedia_url"`
	PassageWords  int    `yaml:"passage_words" mapstructure:"passage_words"`
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CrossCheckConfig configures the probabilistic cross-checker
type CrossCheckConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL   string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
}

// CacheConfig selects the durable cache backend
type CacheConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // json or badger
	SyncWrites bool   `yaml:"sync_writes" mapstructure:"sync_writes"`
}

// HTTPConfig holds settings shared by HTTP-based collaborators
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RateLimitConfig throttles uncached model calls per backend
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CostConfig overrides the per-1k-token rates used by the cost estimator
type CostConfig struct {
	GenerationRate   float64 `yaml:"generation_rate" mapstructure:"generation_rate"`
	VerificationRate float64 `yaml:"verification_rate" mapstructure:"verification_rate"`
}

// LoggingConfig configures the log sinks
type LoggingConfig struct {
	File  string `yaml:"file" mapstructure:"file"`
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the defaults used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		DataDir:          ".cache/factscore",
		CacheDir:         ".cache/factscore",
		KnowledgeSource:  "enwiki-20230401",
		Gamma:            10,
		CostEstimate:     CostEstimateConsiderCache,
		AbstainDetection: "none",
		CheckpointEvery:  10,
		Verifier: LLMConfig{
			Provider:  "", // No-verification mode until a provider is chosen
			Timeout:   60,
			MaxTokens: 128,
		},
		Generator: LLMConfig{
			Provider:  "",
			Timeout:   60,
			MaxTokens: 512,
		},
		Decompose: DecomposeConfig{
			NumDemos: 8,
		},
		Retrieval: RetrievalConfig{
			Enabled:       true,
			Backend:       "local",
			TopK:          5,
			WikipediaURL:  "https://en.wikipedia.org/wiki/",
			PassageWords:  256,
			RespectRobots: true,
		},
		CrossCheck: CrossCheckConfig{
			Enabled:   false,
			Threshold: 0.3,
		},
		Cache: CacheConfig{
			Backend:    "json",
			SyncWrites: true,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "factprobe/0.1 (+https://github.com/ppiankov/factprobe)",
			MaxBodyBytes: 5_000_000,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Logging: LoggingConfig{
			File:  "factprobe.log",
			Level: "info",
		},
	}
}
