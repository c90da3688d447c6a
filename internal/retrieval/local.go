package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ppiankov/factprobe/internal/model"
)

// LocalRetriever serves passages from a JSONL knowledge source with one
// {"title", "text"} object per line. Candidates are restricted to the
// passages whose title matches the topic.
type LocalRetriever struct {
	path         string
	passageWords int
	logger       *slog.Logger

	once    sync.Once
	loadErr error
	byTitle map[string][]model.Passage
}

// NewLocalRetriever creates a retriever over the file at path. The file is
// read on first use.
func NewLocalRetriever(path string, passageWords int, logger *slog.Logger) *LocalRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRetriever{
		path:         path,
		passageWords: passageWords,
		logger:       logger,
	}
}

type sourceRecord struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (r *LocalRetriever) load() {
	f, err := os.Open(r.path)
	if err != nil {
		r.loadErr = fmt.Errorf("open knowledge source: %w", err)
		return
	}
	defer func() { _ = f.Close() }()

	byTitle := make(map[string][]model.Passage)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec sourceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			r.loadErr = fmt.Errorf("parse %s line %d: %w", r.path, line, err)
			return
		}

		for _, chunk := range Chunk(rec.Text, r.passageWords) {
			byTitle[rec.Title] = append(byTitle[rec.Title], model.Passage{Title: rec.Title, Text: chunk})
		}
	}
	if err := scanner.Err(); err != nil {
		r.loadErr = fmt.Errorf("read knowledge source: %w", err)
		return
	}

	r.byTitle = byTitle
	r.logger.Info("knowledge source loaded", "path", r.path, "titles", len(byTitle))
}

// Passages returns the k passages of topic's article most similar to the claim
func (r *LocalRetriever) Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	r.once.Do(r.load)
	if r.loadErr != nil {
		return nil, r.loadErr
	}

	candidates, ok := r.byTitle[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}

	return Rank(Query(topic, claim), candidates, k), nil
}
