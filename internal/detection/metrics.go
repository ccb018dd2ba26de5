package detection

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Metrics counts what the pipeline has seen. All counters only grow.
type Metrics struct {
	received   atomic.Uint64
	filtered   atomic.Uint64
	passed     atomic.Uint64
	detected   atomic.Uint64
	failures   atomic.Uint64
	duplicates atomic.Uint64
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	Received   uint64 `json:"received"`
	Filtered   uint64 `json:"filtered"`
	Passed     uint64 `json:"passed"`
	Detected   uint64 `json:"detected"`
	Failures   uint64 `json:"failures"`
	Duplicates uint64 `json:"duplicates"`
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Received:   m.received.Load(),
		Filtered:   m.filtered.Load(),
		Passed:     m.passed.Load(),
		Detected:   m.detected.Load(),
		Failures:   m.failures.Load(),
		Duplicates: m.duplicates.Load(),
	}
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// FilterEffectiveness is the share of received notifications rejected early.
func (s Snapshot) FilterEffectiveness() float64 { return percent(s.Filtered, s.Received) }

// SuccessRate is the share of dispatched mints that became candidates.
func (s Snapshot) SuccessRate() float64 { return percent(s.Detected, s.Passed) }

// DuplicateRate is the share of received notifications dropped as duplicates.
func (s Snapshot) DuplicateRate() float64 { return percent(s.Duplicates, s.Received) }

// Fields renders the snapshot for structured logging.
func (s Snapshot) Fields() logrus.Fields {
	return logrus.Fields{
		"received":           s.Received,
		"filtered":           s.Filtered,
		"passed":             s.Passed,
		"detected":           s.Detected,
		"failures":           s.Failures,
		"duplicates":         s.Duplicates,
		"filter_pct":         s.FilterEffectiveness(),
		"success_pct":        s.SuccessRate(),
		"duplicate_rate_pct": s.DuplicateRate(),
	}
}
