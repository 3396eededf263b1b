package model

import "time"

// AnalysisVersion is the current analysis schema version. Cached analyses
// written with an older version are re-analyzed.
const AnalysisVersion = 2

// MessageAnalysis is the stored LLM enrichment of one message. AnalyzedAt
// is nil when no attempt has ever succeeded; LastError is set when the
// latest attempt failed.
type MessageAnalysis struct {
	MessageID        int64      `json:"message_id"`
	BodyHash         string     `json:"body_hash"`
	Version          int        `json:"version"`
	Lang             string     `json:"lang"`
	Bullets          []string   `json:"bullets"`
	KeyActions       []string   `json:"key_actions"`
	Urgency          int        `json:"urgency"`
	Importance       int        `json:"importance"`
	Priority         int        `json:"priority"`
	Confidence       float64    `json:"confidence"`
	Truncated        bool       `json:"truncated"`
	Model            string     `json:"model"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	Notes            string     `json:"notes"`
	LastError        string     `json:"last_error,omitempty"`
	AnalyzedAt       *time.Time `json:"analyzed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasResult reports whether a successful analysis payload is present.
func (a MessageAnalysis) HasResult() bool {
	return a.AnalyzedAt != nil
}

// ValidFor reports whether the stored payload can be reused for a body
// with the given content hash.
func (a MessageAnalysis) ValidFor(bodyHash string) bool {
	return a.HasResult() && a.Version == AnalysisVersion && a.BodyHash == bodyHash
}
