package verify

import (
	"fmt"
	"strings"

	"github.com/ppiankov/factprobe/internal/model"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var sentinelReplacer = strings.NewReplacer("<s>", "", "</s>", "")

// BuildPrompt renders the True/False question for claim. Passages arrive in
// descending relevance and are written least relevant first, so the best
// passage sits closest to the question.
func BuildPrompt(topic, claim string, passages []model.Passage) string {
	var ctxBuf strings.Builder
	for i := len(passages) - 1; i >= 0; i-- {
		p := passages[i]
		fmt.Fprintf(&ctxBuf, "Title: %s\nText: %s\n\n", p.Title, sentinelReplacer.Replace(p.Text))
	}

	definition := fmt.Sprintf("Answer the question about %s based on the given context.\n\n", topic)
	definition += strings.TrimSpace(ctxBuf.String())
	if !endsWithPunctuation(definition) {
		definition += "."
	}

	return fmt.Sprintf("%s\n\nInput: %s True or False?\nAnswer:", strings.TrimSpace(definition), strings.TrimSpace(claim))
}

func endsWithPunctuation(s string) bool {
	return s != "" && strings.IndexByte(asciiPunctuation, s[len(s)-1]) >= 0
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 128 && strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, s)
}
