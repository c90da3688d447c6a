package model

// Passage is one retrieved unit of grounding text
type Passage struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}
