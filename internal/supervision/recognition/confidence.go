package recognition

import (
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

// ConfidencePolicy governs how remediation outcomes move knowledge-base
// confidence and when auto-apply flips. The up/down thresholds form a
// hysteresis band so confidence hovering near a single cutoff cannot
// flap the flag.
type ConfidencePolicy struct {
	Rate          float64 // exponential update rate in (0,1]
	UpThreshold   float64 // auto-apply turns on at or above
	DownThreshold float64 // auto-apply turns off at or below
}

// DefaultConfidencePolicy returns the stock 0.2 rate with a 0.6/0.4 band.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{Rate: 0.2, UpThreshold: 0.6, DownThreshold: 0.4}
}

// Update folds one remediation outcome into the entry:
// c' = c + rate*(outcome - c) with outcome 1 on success, 0 on failure.
func (p ConfidencePolicy) Update(e *domain.KnowledgeEntry, success bool) {
	outcome := 0.0
	if success {
		outcome = 1.0
		e.SuccessCount++
	} else {
		e.FailureCount++
	}
	e.Confidence += p.Rate * (outcome - e.Confidence)
	e.LastUsed = time.Now()

	if !e.AutoApply && e.Confidence >= p.UpThreshold {
		e.AutoApply = true
	} else if e.AutoApply && e.Confidence <= p.DownThreshold {
		e.AutoApply = false
	}
}
