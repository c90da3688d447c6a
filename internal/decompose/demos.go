package decompose

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Demo is one worked decomposition example shown to the model
type Demo struct {
	Sentence string
	Facts    []string
}

// LoadDemos reads demonstrations from a JSON object mapping each sentence to
// its facts. Demos are sorted by sentence so the prompt, and therefore its
// cache key, is stable across runs. A missing file yields no demos.
func LoadDemos(path string) ([]Demo, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read demos: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse demos %s: %w", path, err)
	}

	demos := make([]Demo, 0, len(raw))
	for sentence, facts := range raw {
		demos = append(demos, Demo{Sentence: sentence, Facts: facts})
	}
	sort.Slice(demos, func(i, j int) bool {
		return demos[i].Sentence < demos[j].Sentence
	})

	return demos, nil
}
