package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ppiankov/factprobe/internal/cache"
	"github.com/ppiankov/factprobe/internal/model"
)

type countingRetriever struct {
	passages []model.Passage
	err      error
	calls    int
}

func (c *countingRetriever) Passages(ctx context.Context, topic, claim string, k int) ([]model.Passage, error) {
	c.calls++
	return c.passages, c.err
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	r := &countingRetriever{}

	if err := reg.Register("enwiki-20230401", r); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("enwiki-20230401", r); !errors.Is(err, ErrSourceRegistered) {
		t.Fatalf("expected ErrSourceRegistered, got %v", err)
	}
	if err := reg.Register("medlineplus", r); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Get("enwiki-20230401")
	if err != nil || got != r {
		t.Errorf("Get returned %v, %v", got, err)
	}
	if _, err := reg.Get("missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
	if !reflect.DeepEqual(reg.Names(), []string{"enwiki-20230401", "medlineplus"}) {
		t.Errorf("unexpected names %v", reg.Names())
	}
}

func TestRank(t *testing.T) {
	passages := []model.Passage{
		{Title: "Marie Curie", Text: "She married Pierre Curie in 1895."},
		{Title: "Marie Curie", Text: "Curie was born in Warsaw, in what was then Congress Poland."},
		{Title: "Marie Curie", Text: "She won the Nobel Prize in Physics in 1903 and Chemistry in 1911."},
	}

	got := Rank(Query("Marie Curie", "Marie Curie was born in Warsaw."), passages, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(got))
	}
	if !strings.Contains(got[0].Text, "Warsaw") {
		t.Errorf("expected Warsaw passage first, got %q", got[0].Text)
	}

	if all := Rank("anything", passages, 0); len(all) != 3 {
		t.Errorf("expected k=0 to return everything, got %d", len(all))
	}
	if Rank("q", nil, 5) != nil {
		t.Error("expected nil for no candidates")
	}
}

func TestChunk(t *testing.T) {
	text := "one two three four five six seven"

	if got := Chunk(text, 3); !reflect.DeepEqual(got, []string{"one two three", "four five six", "seven"}) {
		t.Errorf("unexpected chunks %q", got)
	}
	if got := Chunk("  a   b ", 0); !reflect.DeepEqual(got, []string{"a b"}) {
		t.Errorf("unexpected unbounded chunk %q", got)
	}
	if Chunk("   ", 10) != nil {
		t.Error("expected nil for blank text")
	}
}

func writeSource(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enwiki-20230401.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocalRetriever(t *testing.T) {
	path := writeSource(t,
		`{"title": "Marie Curie", "text": "Marie Curie was a Polish and naturalised-French physicist and chemist."}`,
		`{"title": "Marie Curie", "text": "She was born in Warsaw."}`,
		``,
		`{"title": "Pierre Curie", "text": "Pierre Curie was born in Paris."}`,
	)
	r := NewLocalRetriever(path, 256, nil)

	passages, err := r.Passages(context.Background(), "Marie Curie", "She was born in Warsaw.", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected only Marie Curie passages, got %d", len(passages))
	}
	for _, p := range passages {
		if p.Title != "Marie Curie" {
			t.Errorf("passage from wrong title: %+v", p)
		}
	}
	if passages[0].Text != "She was born in Warsaw." {
		t.Errorf("expected best match first, got %q", passages[0].Text)
	}

	if _, err := r.Passages(context.Background(), "Nobody", "claim", 5); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
}

func TestLocalRetriever_Errors(t *testing.T) {
	missing := NewLocalRetriever(filepath.Join(t.TempDir(), "nope.jsonl"), 256, nil)
	if _, err := missing.Passages(context.Background(), "t", "c", 5); err == nil {
		t.Error("expected error for missing source file")
	}

	corrupt := NewLocalRetriever(writeSource(t, `{"title": "x"`), 256, nil)
	if _, err := corrupt.Passages(context.Background(), "x", "c", 5); err == nil {
		t.Error("expected error for corrupt source file")
	}
}

func TestCached(t *testing.T) {
	inner := &countingRetriever{passages: []model.Passage{{Title: "T", Text: "text"}}}
	c := cache.NewLayeredCache("retrieval-test", cache.NewDiskCache(filepath.Join(t.TempDir(), "r.json")), nil)
	r := NewCached(inner, c, nil)

	for i := 0; i < 2; i++ {
		got, err := r.Passages(context.Background(), "T", "claim", 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].Text != "text" {
			t.Errorf("unexpected passages %+v", got)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected one underlying call, got %d", inner.calls)
	}

	// A different k is a different request
	if _, err := r.Passages(context.Background(), "T", "claim", 3); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("expected k to be part of the key, got %d calls", inner.calls)
	}
}

func TestCached_ErrorNotStored(t *testing.T) {
	inner := &countingRetriever{err: errors.New("boom")}
	c := cache.NewLayeredCache("retrieval-test", cache.NewDiskCache(filepath.Join(t.TempDir(), "r.json")), nil)

	if _, err := NewCached(inner, c, nil).Passages(context.Background(), "T", "c", 5); err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Error("failed retrieval must not be cached")
	}
}

func TestCached_PreviewLeavesCacheUntouched(t *testing.T) {
	inner := &countingRetriever{passages: []model.Passage{{Title: "T", Text: "text"}}}
	c := cache.NewLayeredCache("retrieval-test", cache.NewDiskCache(filepath.Join(t.TempDir(), "r.json")), nil)
	r := NewCached(inner, c, nil)
	ctx := context.Background()

	got, err := r.Preview(ctx, "T", "claim", 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected preview %+v, %v", got, err)
	}
	if c.Len() != 0 {
		t.Error("preview must not store passages")
	}

	if _, err := r.Passages(ctx, "T", "claim", 5); err != nil {
		t.Fatal(err)
	}
	hits, misses := c.Stats()
	calls := inner.calls

	if _, err := r.Preview(ctx, "T", "claim", 5); err != nil {
		t.Fatal(err)
	}
	if inner.calls != calls {
		t.Error("preview should answer from the cache when the entry exists")
	}
	if h, m := c.Stats(); h != hits || m != misses {
		t.Errorf("preview must not count lookups, got %d/%d want %d/%d", h, m, hits, misses)
	}
}

func TestNew_Backends(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.DataDir = t.TempDir()

	for _, backend := range []string{"local", "wikipedia"} {
		cfg.Retrieval.Backend = backend
		if _, err := New(cfg, "enwiki", nil, nil); err != nil {
			t.Errorf("backend %s: %v", backend, err)
		}
	}

	cfg.Retrieval.Backend = "http"
	if _, err := New(cfg, "enwiki", nil, nil); err == nil {
		t.Error("expected http backend to require base_url")
	}
	cfg.Retrieval.BaseURL = "http://retrieval.internal"
	if _, err := New(cfg, "enwiki", nil, nil); err != nil {
		t.Errorf("http backend: %v", err)
	}

	cfg.Retrieval.Backend = "bm25"
	if _, err := New(cfg, "enwiki", nil, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
