package model

import "time"

// Attempt records one engine attempted for an extraction request.
type Attempt struct {
	Engine       Engine        `json:"engine"`
	Model        string        `json:"model,omitempty"`
	Succeeded    bool          `json:"succeeded"`
	Error        string        `json:"error,omitempty"`
	InputTokens  int64         `json:"input_tokens,omitempty"`
	OutputTokens int64         `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// Extraction is the orchestrator's answer: the candidate plus metadata
// about how it was produced.
type Extraction struct {
	Candidate     *StructuredCandidate `json:"candidate"`
	RequestedTier Tier                 `json:"requested_tier"`
	Engine        Engine               `json:"engine"`
	Degraded      bool                 `json:"degraded"`
	LikelyScanned bool                 `json:"likely_scanned"`
	Format        Format               `json:"format"`
	Metadata      map[string]string    `json:"metadata,omitempty"`
	Attempts      []Attempt            `json:"attempts"`
}
