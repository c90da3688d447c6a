package decompose

import (
	"regexp"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/ppiankov/factprobe/internal/model"
)

var (
	bulletPrefix   = regexp.MustCompile(`^(?:[-*•‣◦]+\s*|\d+[.)]\s+)`)
	requestEcho    = regexp.MustCompile(`(?i)^please breakdown the following`)
	trailingPrompt = regexp.MustCompile(`(?i)^(?:here are|the independent facts|facts:)`)
)

// ParseClaims reads one claim per list item in a model reply
func ParseClaims(output string) []model.Claim {
	var claims []model.Claim

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Chatty models echo the request or announce the list
		if requestEcho.MatchString(line) || trailingPrompt.MatchString(line) {
			continue
		}

		text := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if text == "" {
			continue
		}
		claims = append(claims, model.Claim{Text: text})
	}

	return claims
}

// dedupeExact removes repeated claims, ignoring case and surrounding space
func dedupeExact(claims []model.Claim) []model.Claim {
	seen := make(map[string]bool)
	var unique []model.Claim

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}

// DedupeSimilar drops claims whose Levenshtein similarity ratio to an earlier
// kept claim is at least threshold
func DedupeSimilar(claims []model.Claim, threshold float64) []model.Claim {
	var kept []model.Claim
	var keptRunes [][]rune

	for _, claim := range claims {
		r := []rune(strings.ToLower(claim.Text))
		duplicate := false
		for _, other := range keptRunes {
			if levenshtein.RatioForStrings(r, other, levenshtein.DefaultOptions) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, claim)
			keptRunes = append(keptRunes, r)
		}
	}

	return kept
}

// splitSentences splits text into sentences (simple heuristic)
func splitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Only split when followed by whitespace, to keep "3.5" and "U.S" intact
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				if sentence := strings.TrimSpace(current.String()); sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}
