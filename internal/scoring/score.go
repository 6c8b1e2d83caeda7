// Package scoring computes ticket priority from risk signals.
package scoring

import "github.com/example/cleancity/backend/internal/models"

// RainCriticalThreshold is the rain probability (percent) above which a
// blocked drain escalates from HIGH to CRITICAL.
const RainCriticalThreshold = 60

// Priority applies the risk decision table. Rules are evaluated top-down and
// the first match wins, so the table stays total and deterministic:
//
//	drain blocked, rain > 60  -> CRITICAL
//	drain blocked             -> HIGH
//	otherwise                 -> NORMAL
//
// Severity is accepted for forward extension; the base rules do not use it.
func Priority(drainBlocked bool, rainProbability float64, severity string) models.Priority {
	switch {
	case drainBlocked && rainProbability > RainCriticalThreshold:
		return models.PriorityCritical
	case drainBlocked:
		return models.PriorityHigh
	default:
		return models.PriorityNormal
	}
}

// priorityOrder ranks priorities for derived top-priority annotations.
var priorityOrder = []models.Priority{
	models.PriorityCritical,
	models.PriorityHigh,
	models.PriorityMedium,
	models.PriorityLow,
	models.PriorityNormal,
}

// TopPriority returns the highest priority present among tickets, or NORMAL
// for an empty batch.
func TopPriority(tickets []models.Ticket) models.Priority {
	for _, p := range priorityOrder {
		for _, t := range tickets {
			if t.Priority == p {
				return p
			}
		}
	}
	return models.PriorityNormal
}

// NormalizeConfidence converts a confidence value to the canonical 0-1 scale.
// Upstream services disagree on scale: some return fractions, others return
// percentages. Anything above 1 is treated as a percentage.
func NormalizeConfidence(v float64) float64 {
	if v > 1 {
		v = v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
