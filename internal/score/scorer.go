// Package score turns per-claim decisions into response and corpus scores.
package score

import (
	"math"

	"github.com/ppiankov/factprobe/internal/model"
)

// Penalty is the length penalty for a response with n claims: 1.0 when
// n > gamma, exp(1 - gamma/n) otherwise. gamma <= 0 disables it.
func Penalty(n, gamma int) float64 {
	if gamma <= 0 || n > gamma {
		return 1.0
	}
	if n <= 0 {
		return 0
	}
	return math.Exp(1 - float64(gamma)/float64(n))
}

// Supported returns the fraction of supported decisions
func Supported(decisions []model.Decision) float64 {
	if len(decisions) == 0 {
		return 0
	}
	n := 0
	for _, d := range decisions {
		if d.IsSupported {
			n++
		}
	}
	return float64(n) / float64(len(decisions))
}

// ResponseScore returns the penalized and unpenalized score of one response
func ResponseScore(decisions []model.Decision, gamma int) (final, init float64) {
	init = Supported(decisions)
	return Penalty(len(decisions), gamma) * init, init
}

// Checkpoint runs Fn after every Every scored responses. A zero value never
// fires.
type Checkpoint struct {
	Every int
	Fn    func()
}

// Aggregator accumulates response decisions into a ScoreReport
type Aggregator struct {
	gamma      int
	checkpoint Checkpoint

	decisions  [][]model.Decision
	scores     []float64
	initScores []float64
	facts      []int
	scored     int
}

// NewAggregator creates an aggregator with length penalty gamma
func NewAggregator(gamma int, checkpoint Checkpoint) *Aggregator {
	return &Aggregator{gamma: gamma, checkpoint: checkpoint}
}

// Add records one response. A record that never reached verification is
// absent: it stays in the decision list but is excluded from every mean.
func (a *Aggregator) Add(rec model.ResponseRecord) {
	a.decisions = append(a.decisions, rec.Decisions)
	if !rec.Responded() {
		return
	}

	final, init := ResponseScore(rec.Decisions, a.gamma)
	a.scores = append(a.scores, final)
	a.initScores = append(a.initScores, init)
	a.facts = append(a.facts, len(rec.Decisions))

	a.scored++
	if a.checkpoint.Every > 0 && a.checkpoint.Fn != nil && a.scored%a.checkpoint.Every == 0 {
		a.checkpoint.Fn()
	}
}

// Len returns the number of responses added
func (a *Aggregator) Len() int {
	return len(a.decisions)
}

// Report builds the corpus report. Means over no responded record are 0.
func (a *Aggregator) Report() *model.ScoreReport {
	report := &model.ScoreReport{
		Score:               mean(a.scores),
		Decisions:           a.decisions,
		NumFactsPerResponse: meanInt(a.facts),
	}
	if report.Decisions == nil {
		report.Decisions = [][]model.Decision{}
	}
	if len(a.decisions) > 0 {
		report.RespondRatio = float64(len(a.scores)) / float64(len(a.decisions))
	}
	if a.gamma > 0 {
		init := mean(a.initScores)
		report.InitScore = &init
	}
	return report
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanInt(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
