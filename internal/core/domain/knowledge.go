package domain

import "time"

// KnowledgeEntry maps a failure signature to a proven remediation.
// Confidence is updated after every remediation attempt; auto-apply
// flips at hysteresis thresholds rather than a single cutoff.
type KnowledgeEntry struct {
	Signature    string    `json:"signature"`
	PlaybookName string    `json:"playbook_name"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Confidence   float64   `json:"confidence"` // in [0,1]
	AutoApply    bool      `json:"auto_apply"`
	LastUsed     time.Time `json:"last_used"`
}

// NewKnowledgeEntry creates the entry for a first-seen signature.
func NewKnowledgeEntry(signature string) *KnowledgeEntry {
	return &KnowledgeEntry{
		Signature:  signature,
		Confidence: 0,
		AutoApply:  false,
	}
}
