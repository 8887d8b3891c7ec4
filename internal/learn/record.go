// internal/learn/record.go
package learn

import (
	"time"
)

// PerformanceRecord aggregates outcomes for one (domain, subject) pair,
// where subject is a template name or a pattern ID. Records only grow;
// pruning old ones is the persistence layer's retention policy.
type PerformanceRecord struct {
	Domain        string        `json:"domain"`
	Subject       string        `json:"subject"`
	Successes     int           `json:"successes"`
	Failures      int           `json:"failures"`
	AvgConfidence float64       `json:"avg_confidence"`
	AvgLatency    time.Duration `json:"avg_latency"`
	LastUsed      time.Time     `json:"last_used"`

	// Recent keeps the rolling outcome window used for boost and penalty
	// decisions, newest last.
	Recent []bool `json:"recent,omitempty"`
}

// Attempts is the total number of recorded outcomes.
func (r *PerformanceRecord) Attempts() int {
	return r.Successes + r.Failures
}

// SuccessRate is the lifetime success proportion, 0 with no evidence.
func (r *PerformanceRecord) SuccessRate() float64 {
	total := r.Attempts()
	if total == 0 {
		return 0
	}
	return float64(r.Successes) / float64(total)
}

// RecentRate is the success proportion over the rolling window.
func (r *PerformanceRecord) RecentRate() float64 {
	if len(r.Recent) == 0 {
		return 0
	}
	ok := 0
	for _, s := range r.Recent {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(r.Recent))
}

// observe folds one outcome into the aggregates.
func (r *PerformanceRecord) observe(success bool, confidence float64, latency time.Duration, window int) {
	n := float64(r.Attempts())
	r.AvgConfidence = (r.AvgConfidence*n + confidence) / (n + 1)
	r.AvgLatency = time.Duration((float64(r.AvgLatency)*n + float64(latency)) / (n + 1))
	if success {
		r.Successes++
	} else {
		r.Failures++
	}
	r.LastUsed = time.Now().UTC()

	r.Recent = append(r.Recent, success)
	if window > 0 && len(r.Recent) > window {
		r.Recent = r.Recent[len(r.Recent)-window:]
	}
}

// recordKey builds the storage key for a (domain, subject) pair.
func recordKey(domain, subject string) string {
	return domain + "|" + subject
}
