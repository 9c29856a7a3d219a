// Package metrics exposes Prometheus instruments for the pipeline, the LLM
// client and retrieval. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "compliance"

type Metrics struct {
	llmAttempts      *prometheus.CounterVec
	rateLimitRetries prometheus.Counter
	chunksCompleted  prometheus.Counter
	documents        *prometheus.CounterVec
	pipelineSeconds  prometheus.Histogram
	queries          prometheus.Counter
	placeholderSlots prometheus.Counter
}

// New creates the instruments and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		llmAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "LLM call attempts by API and outcome.",
		}, []string{"api", "outcome"}),
		rateLimitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "rate_limit_retries_total",
			Help:      "Retries scheduled after a rate-limit response.",
		}),
		chunksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chunks_completed_total",
			Help:      "Chunks that produced a completion.",
		}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents by final processing status.",
		}, []string{"status"}),
		pipelineSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Wall time of one chunk pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Retrieval queries executed.",
		}),
		placeholderSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "placeholder_slots_total",
			Help:      "Result slots below the relevance threshold.",
		}),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.llmAttempts, m.rateLimitRetries, m.chunksCompleted, m.documents,
		m.pipelineSeconds, m.queries, m.placeholderSlots,
	}
}

func (m *Metrics) LLMAttempt(api, outcome string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(api, outcome).Inc()
}

func (m *Metrics) RateLimitRetry() {
	if m == nil {
		return
	}
	m.rateLimitRetries.Inc()
}

func (m *Metrics) ChunkCompleted() {
	if m == nil {
		return
	}
	m.chunksCompleted.Inc()
}

func (m *Metrics) DocumentFinished(status string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
}

func (m *Metrics) PipelineDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineSeconds.Observe(d.Seconds())
}

func (m *Metrics) Query(placeholders int) {
	if m == nil {
		return
	}
	m.queries.Inc()
	m.placeholderSlots.Add(float64(placeholders))
}
