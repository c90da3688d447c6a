package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/ppiankov/factprobe/internal/model"
)

// WikipediaRetriever fetches the topic's live article and ranks its
// paragraphs against the claim
type WikipediaRetriever struct {
	baseURL      string
	passageWords int
	fetcher      *Fetcher
	logger       *slog.Logger

	mu       sync.Mutex
	articles map[string][]model.Passage
}

// NewWikipediaRetriever creates a retriever for articles under baseURL,
// e.g. https://en.wikipedia.org/wiki/
func NewWikipediaRetriever(baseURL string, passageWords int, fetcher *Fetcher, logger *slog.Logger) *WikipediaRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &WikipediaRetriever{
		baseURL:      baseURL,
		passageWords: passageWords,
		fetcher:      fetcher,
		logger:       logger,
		articles:     make(map[string][]model.Passage),
	}
}

// ArticleURL returns the article URL for topic
func (w *WikipediaRetriever) ArticleURL(topic string) string {
	return w.baseURL + url.PathEscape(strings.ReplaceAll(strings.TrimSpace(topic), " ", "_"))
}

// Passages returns the k article passages most similar to the claim. Each
// article is fetched once per process.
func (w *WikipediaRetriever) Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	passages, err := w.article(ctx, topic)
	if err != nil {
		return nil, err
	}
	return Rank(Query(topic, claim), passages, k), nil
}

func (w *WikipediaRetriever) article(ctx context.Context, topic string) ([]model.Passage, error) {
	w.mu.Lock()
	passages, ok := w.articles[topic]
	w.mu.Unlock()
	if ok {
		return passages, nil
	}

	pageURL := w.ArticleURL(topic)
	body, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
		}
		return nil, fmt.Errorf("fetch article %s: %w", pageURL, err)
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse article %s: %w", pageURL, err)
	}

	for _, para := range articleParagraphs(doc) {
		for _, chunk := range Chunk(para, w.passageWords) {
			passages = append(passages, model.Passage{Title: topic, Text: chunk})
		}
	}
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: %s (article has no prose)", ErrTopicNotFound, topic)
	}

	w.logger.Debug("article fetched", "topic", topic, "passages", len(passages))

	w.mu.Lock()
	w.articles[topic] = passages
	w.mu.Unlock()

	return passages, nil
}
