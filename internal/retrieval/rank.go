package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/factprobe/internal/model"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "he", "she", "his", "her", "they", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Rank orders passages by TF-IDF cosine similarity to query and returns the
// top k. IDF is computed over the candidate passages. Ties keep input order.
// k <= 0 returns every passage.
func Rank(query string, passages []model.Passage, k int) []model.Passage {
	if len(passages) == 0 {
		return nil
	}

	docs := make([][]string, len(passages))
	df := make(map[string]int)
	for i, p := range passages {
		docs[i] = tokenize(p.Title + " " + p.Text)
		seen := make(map[string]struct{})
		for _, tok := range docs[i] {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	n := float64(len(passages))
	idf := func(term string) float64 {
		// Smoothed IDF
		return math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	queryVec := weigh(tokenize(query), idf)

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(passages))
	for i, doc := range docs {
		ranked[i] = scored{idx: i, score: cosine(queryVec, weigh(doc, idf))}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	out := make([]model.Passage, k)
	for i := 0; i < k; i++ {
		out[i] = passages[ranked[i].idx]
	}
	return out
}

// weigh builds an L2-normalised TF-IDF vector
func weigh(tokens []string, idf func(string) float64) map[string]float64 {
	vec := make(map[string]float64)
	if len(tokens) == 0 {
		return vec
	}
	for _, tok := range tokens {
		vec[tok]++
	}

	norm := 0.0
	total := float64(len(tokens))
	for term, count := range vec {
		v := (count / total) * idf(term)
		vec[term] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for term := range vec {
			vec[term] /= norm
		}
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	dot := 0.0
	for term, v := range a {
		dot += v * b[term]
	}
	return dot
}

// Chunk splits text into passages of at most words words
func Chunk(text string, words int) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	if words <= 0 || len(fields) <= words {
		return []string{strings.Join(fields, " ")}
	}

	var chunks []string
	for start := 0; start < len(fields); start += words {
		end := start + words
		if end > len(fields) {
			end = len(fields)
		}
		chunks = append(chunks, strings.Join(fields[start:end], " "))
	}
	return chunks
}
