package llm

import "github.com/ppiankov/factprobe/internal/cache"

// Answer is the result of a single generation. It is either a TextAnswer or
// a ScoredAnswer; callers switch on the concrete type.
type Answer interface {
	// Generated returns the generated text
	Generated() string
	toEntry() cache.Entry
}

// TextAnswer is generated text with no per-token scores
type TextAnswer struct {
	Text string
}

// ScoredAnswer carries the scores over the output vocabulary for the first
// generated token alongside the text
type ScoredAnswer struct {
	Text   string
	Scores []float32
}

// Generated returns the generated text
func (a TextAnswer) Generated() string { return a.Text }

// Generated returns the generated text
func (a ScoredAnswer) Generated() string { return a.Text }

func (a TextAnswer) toEntry() cache.Entry {
	return cache.Entry{Text: a.Text}
}

func (a ScoredAnswer) toEntry() cache.Entry {
	return cache.Entry{Text: a.Text, Scores: a.Scores}
}

// answerFromEntry restores the answer variant stored in a cache entry
func answerFromEntry(e cache.Entry) Answer {
	if len(e.Scores) > 0 {
		return ScoredAnswer{Text: e.Text, Scores: e.Scores}
	}
	return TextAnswer{Text: e.Text}
}
