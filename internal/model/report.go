package model

// ResponseRecord tracks one (topic, generation) pair through the pipeline.
// Nil Claims/Decisions mean the response abstained or decomposed into nothing;
// both collapse into the same terminal state.
type ResponseRecord struct {
	Topic      string     `json:"topic"`
	Generation string     `json:"output"`
	Claims     []Claim    `json:"claims,omitempty"`
	Decisions  []Decision `json:"decisions,omitempty"`
}

// Responded reports whether the record reached verification
func (r ResponseRecord) Responded() bool {
	return r.Decisions != nil
}

// ScoreReport is the corpus-level result written once per run
type ScoreReport struct {
	Score               float64      `json:"score"`
	InitScore           *float64     `json:"init_score,omitempty"` // Only when a length penalty is configured
	RespondRatio        float64      `json:"respond_ratio"`
	Decisions           [][]Decision `json:"decisions"` // nil entry per abstained response
	NumFactsPerResponse float64      `json:"num_facts_per_response"`
}

// CostEstimate summarizes a dry-run cost estimate for one sub-task
type CostEstimate struct {
	Task   string  `json:"task"`
	Model  string  `json:"model"`
	Words  int     `json:"words"`
	Tokens float64 `json:"tokens"`
	Rate   float64 `json:"rate_per_1k"`
	Cost   float64 `json:"cost_usd"`
}

// RunSummary is what the CLI prints after a run
type RunSummary struct {
	Report      *ScoreReport   `json:"report"`
	Estimates   []CostEstimate `json:"estimates,omitempty"`
	Responses   int            `json:"responses"`
	CacheHits   int64          `json:"cache_hits"`
	CacheMisses int64          `json:"cache_misses"`
}
