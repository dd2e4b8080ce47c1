package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FieldValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_field_validations_total",
			Help: "Total number of field validations by outcome",
		},
		[]string{"field", "outcome"},
	)

	ParsedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_parsed_fields_total",
			Help: "Total number of field candidates extracted from user input",
		},
		[]string{"tier", "outcome"},
	)

	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_sessions_created_total",
			Help: "Total number of sessions created",
		},
		[]string{"reason"},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grant_sessions_swept_total",
			Help: "Total number of expired sessions removed from storage",
		},
	)

	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"backend", "op", "status"},
	)

	TemplateSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_template_selections_total",
			Help: "Total number of template selections by outcome",
		},
		[]string{"outcome"},
	)

	SubsectionCompleteness = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grant_subsection_completeness",
			Help:    "Completeness score of populated template subsections",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"template"},
	)

	DraftsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_drafts_saved_total",
			Help: "Total number of draft saves",
		},
		[]string{"trigger", "status"},
	)
)

// StorageStatus maps an operation error onto the status label.
func StorageStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
