// Package dataset reads scoring batches from JSONL and writes score reports.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/factprobe/internal/model"
)

// ErrMissingAnnotations is returned when pre-computed claims are requested
// but a record has no annotations key
var ErrMissingAnnotations = errors.New("use_atomic_facts requires annotations in the input data")

// Batch holds the parallel inputs of one scoring run
type Batch struct {
	Topics      []string
	Generations []string
	Claims      [][]model.Claim // Only set when annotations are used
}

// Len returns the number of responses
func (b *Batch) Len() int {
	return len(b.Topics)
}

// Options controls how a batch file is read
type Options struct {
	UseAtomicFacts bool // Take claims from annotations instead of decomposing
	NSamples       int  // Stop after this many lines; 0 reads all
}

type record struct {
	Topic       string          `json:"topic"`
	Output      string          `json:"output"`
	Annotations json.RawMessage `json:"annotations"`
}

type annotation struct {
	ModelAtomicFacts []struct {
		Text string `json:"text"`
	} `json:"model-atomic-facts"`
}

// Read loads a JSONL batch. With UseAtomicFacts, records whose annotations
// are null keep a nil claim list and are scored as abstained.
func Read(path string, opts Options) (*Batch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	batch := &Batch{}
	if opts.UseAtomicFacts {
		batch.Claims = [][]model.Claim{}
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo, read := 0, 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		read++

		if opts.UseAtomicFacts {
			claims, err := annotationClaims(rec.Annotations)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			batch.Claims = append(batch.Claims, claims)
		}
		batch.Topics = append(batch.Topics, rec.Topic)
		batch.Generations = append(batch.Generations, rec.Output)

		if opts.NSamples > 0 && read == opts.NSamples {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return batch, nil
}

// annotationClaims returns nil for null annotations
func annotationClaims(raw json.RawMessage) ([]model.Claim, error) {
	if len(raw) == 0 {
		return nil, ErrMissingAnnotations
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var sentences []annotation
	if err := json.Unmarshal(raw, &sentences); err != nil {
		return nil, fmt.Errorf("parse annotations: %w", err)
	}

	claims := []model.Claim{}
	for _, s := range sentences {
		for _, fact := range s.ModelAtomicFacts {
			claims = append(claims, model.Claim{Text: fact.Text})
		}
	}
	return claims, nil
}

// OutputPath returns override when set, otherwise the input path with its
// .jsonl suffix replaced by _factscore_output.json
func OutputPath(input, override string) string {
	if override != "" {
		return override
	}
	return strings.TrimSuffix(input, ".jsonl") + "_factscore_output.json"
}

// WriteReport writes report as indented JSON, creating parent directories
func WriteReport(path string, report *model.ScoreReport) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
