// Package metrics exposes pipeline counters on the default Prometheus
// registry; the HTTP server serves them at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GateOutcomes counts vision gate results by outcome
	// (passed, rejected, unavailable).
	GateOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_gate_outcomes_total",
		Help: "Vision gate outcomes by result.",
	}, []string{"outcome"})

	// DegradedEnrichments counts non-fatal enrichment failures by stage
	// (value, speech, nlp, weather, storage).
	DegradedEnrichments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_degraded_enrichments_total",
		Help: "Enrichment stages that failed and fell back to defaults.",
	}, []string{"stage"})

	// MergedReports counts submissions folded into an existing ticket.
	MergedReports = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_merged_total",
		Help: "Submissions deduplicated into an existing open ticket.",
	})

	// AcceptConflicts counts job accepts that lost the exclusivity race.
	AcceptConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "job_accept_conflicts_total",
		Help: "Job accept attempts rejected because the job was not open.",
	})

	// VerificationVerdicts counts auditor outcomes by verdict.
	VerificationVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_verdicts_total",
		Help: "Cleanup verification verdicts.",
	}, []string{"verdict"})
)

func init() {
	prometheus.MustRegister(GateOutcomes, DegradedEnrichments, MergedReports, AcceptConflicts, VerificationVerdicts)
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
