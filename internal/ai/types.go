package ai

// Verdict is the JSON object the model is asked to return.
type Verdict struct {
	HighImpact []int  `json:"high_impact"` // indices into the numbered headline list
	Reasoning  string `json:"reasoning"`
}
