package dataset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/factprobe/internal/model"
)

func writeBatch(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bios.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRead(t *testing.T) {
	path := writeBatch(t,
		`{"topic": "Marie Curie", "output": "She was a physicist."}`,
		``,
		`{"topic": "Alan Turing", "output": "He was a mathematician."}`,
	)

	batch, err := Read(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Len() != 2 || batch.Topics[1] != "Alan Turing" || batch.Generations[0] != "She was a physicist." {
		t.Errorf("unexpected batch %+v", batch)
	}
	if batch.Claims != nil {
		t.Error("claims must be unset without annotations")
	}
}

func TestRead_Annotations(t *testing.T) {
	path := writeBatch(t,
		`{"topic": "A", "output": "a", "annotations": [{"model-atomic-facts": [{"text": "a1"}, {"text": "a2"}]}, {"model-atomic-facts": [{"text": "a3"}]}]}`,
		`{"topic": "B", "output": "b", "annotations": null}`,
		`{"topic": "C", "output": "c", "annotations": []}`,
	)

	batch, err := Read(path, Options{UseAtomicFacts: true})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Len() != 3 || len(batch.Claims) != 3 {
		t.Fatalf("expected every record kept, got %d topics and %d claim lists", batch.Len(), len(batch.Claims))
	}
	if got := model.ClaimTexts(batch.Claims[0]); strings.Join(got, ",") != "a1,a2,a3" {
		t.Errorf("unexpected claims %v", got)
	}
	if batch.Topics[1] != "B" || batch.Generations[1] != "b" || batch.Claims[1] != nil {
		t.Errorf("expected B kept with nil claims, got %+v", batch.Claims[1])
	}
	if batch.Topics[2] != "C" || batch.Claims[2] == nil || len(batch.Claims[2]) != 0 {
		t.Errorf("expected empty claim list for C, got %+v", batch.Claims[2])
	}
}

func TestRead_MissingAnnotations(t *testing.T) {
	path := writeBatch(t, `{"topic": "A", "output": "a"}`)

	if _, err := Read(path, Options{UseAtomicFacts: true}); !errors.Is(err, ErrMissingAnnotations) {
		t.Errorf("expected ErrMissingAnnotations, got %v", err)
	}
	if _, err := Read(path, Options{}); err != nil {
		t.Errorf("annotations are optional otherwise: %v", err)
	}
}

func TestRead_NSamples(t *testing.T) {
	path := writeBatch(t,
		`{"topic": "A", "output": "a", "annotations": null}`,
		`{"topic": "B", "output": "b", "annotations": []}`,
		`{"topic": "C", "output": "c", "annotations": []}`,
	)

	batch, err := Read(path, Options{UseAtomicFacts: true, NSamples: 2})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Len() != 2 || batch.Topics[0] != "A" || batch.Topics[1] != "B" {
		t.Errorf("unexpected batch %+v", batch.Topics)
	}
}

func TestRead_Errors(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.jsonl"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Read(writeBatch(t, `{"topic": `), Options{}); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, override, want string
	}{
		{"data/bios.jsonl", "", "data/bios_factscore_output.json"},
		{"bios.txt", "", "bios.txt_factscore_output.json"},
		{"bios.jsonl", "out/report.json", "out/report.json"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.input, tt.override); got != tt.want {
			t.Errorf("OutputPath(%q, %q) = %q, want %q", tt.input, tt.override, got, tt.want)
		}
	}
}

func TestWriteReport(t *testing.T) {
	init := 0.5
	report := &model.ScoreReport{
		Score:        0.25,
		InitScore:    &init,
		RespondRatio: 0.5,
		Decisions: [][]model.Decision{
			{{Claim: "a", IsSupported: true}},
			nil,
		},
		NumFactsPerResponse: 1,
	}

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	if err := WriteReport(path, report); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["init_score"] != 0.5 {
		t.Errorf("unexpected init_score %v", decoded["init_score"])
	}
	decisions := decoded["decisions"].([]any)
	if decisions[1] != nil {
		t.Errorf("abstained response must be null, got %v", decisions[1])
	}
	first := decisions[0].([]any)[0].(map[string]any)
	if first["atom"] != "a" || first["is_supported"] != true {
		t.Errorf("unexpected decision encoding %v", first)
	}
}
