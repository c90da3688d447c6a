package model

// Claim is a single atomic factual statement extracted from a generation
type Claim struct {
	Text string `json:"text"`
}

// Decision records whether one claim was supported by the knowledge source
type Decision struct {
	Claim       string `json:"atom"`         // The claim text, trimmed
	IsSupported bool   `json:"is_supported"` // Verification outcome after any veto
}

// ClaimTexts returns the text of each claim in order
func ClaimTexts(claims []Claim) []string {
	texts := make([]string, len(claims))
	for i, c := range claims {
		texts[i] = c.Text
	}
	return texts
}

// ClaimsFromTexts wraps raw strings as claims, preserving order
func ClaimsFromTexts(texts []string) []Claim {
	claims := make([]Claim, len(texts))
	for i, t := range texts {
		claims[i] = Claim{Text: t}
	}
	return claims
}
