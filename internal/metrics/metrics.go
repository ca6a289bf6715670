// Package metrics defines the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_chat_requests_total",
			Help: "Total number of chat requests processed",
		},
		[]string{"status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragline_pipeline_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	RetrievedDocs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragline_retrieved_docs",
			Help:    "Number of documents retrieved per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	TokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_llm_tokens_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragline_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	FeedbackRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragline_feedback_rating",
			Help:    "User feedback ratings",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	IngestedDocuments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragline_ingested_documents_total",
			Help: "Total documents loaded into the vector store",
		},
		[]string{"collection", "status"},
	)
)

// Register installs all collectors on the given registerer. Call once at
// startup with prometheus.DefaultRegisterer.
func Register(r prometheus.Registerer) {
	r.MustRegister(
		RequestTotal,
		PipelineDuration,
		RetrievedDocs,
		TokensUsed,
		ConfidenceScore,
		FeedbackRating,
		IngestedDocuments,
	)
}
