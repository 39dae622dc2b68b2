package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type pipeline struct {
	service string

	searchTotal        *prometheus.CounterVec
	searchDuration     *prometheus.HistogramVec
	searchHits         *prometheus.HistogramVec
	hybridFailOpen     *prometheus.CounterVec
	enrichmentFailures *prometheus.CounterVec
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	answerTotal        *prometheus.CounterVec
	answerEvidence     *prometheus.HistogramVec
	answerDuration     *prometheus.HistogramVec
	ingestTotal        *prometheus.CounterVec
	ingestChunks       prometheus.Counter
	ingestDuration     *prometheus.HistogramVec
}

func newPipeline(service string, registry *prometheus.Registry) pipeline {
	p := pipeline{
		service: service,
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "requests_total",
			Help: "Search requests by retrieval mode and status.",
		}, []string{"service", "mode", "status"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "duration_seconds",
			Help: "Search duration in seconds by retrieval mode.", Buckets: prometheus.DefBuckets,
		}, []string{"service", "mode"}),
		searchHits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "search", Name: "hits",
			Help: "Distribution of hits returned per successful search.", Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		}, []string{"service", "mode"}),
		hybridFailOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "search", Name: "hybrid_fail_open_total",
			Help: "Hybrid searches that ran without a lexical restriction.",
		}, []string{"service", "reason"}),
		enrichmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "graph", Name: "enrichment_failures_total",
			Help: "Hits whose hierarchy trail could not be resolved.",
		}, []string{"service", "kind"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "generations_total",
			Help: "Generation attempts by provider, strategy and status.",
		}, []string{"service", "provider", "strategy", "status"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "generation_duration_seconds",
			Help: "Generation duration in seconds.", Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"service", "provider"}),
		answerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "answer", Name: "total",
			Help: "Answers by provider and winning strategy.",
		}, []string{"service", "provider", "strategy"}),
		answerEvidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "answer", Name: "evidence",
			Help: "Evidence passages per answer.", Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}, []string{"service"}),
		answerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "answer", Name: "duration_seconds",
			Help: "End-to-end answer duration in seconds.", Buckets: prometheus.DefBuckets,
		}, []string{"service", "strategy"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "laws_total",
			Help: "Ingested laws by status.",
		}, []string{"service", "status"}),
		ingestChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "chunks_total",
			Help: "Chunks written during ingestion.", ConstLabels: prometheus.Labels{"service": service},
		}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "duration_seconds",
			Help: "Per-law ingestion duration in seconds by status.", Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"service", "status"}),
	}
	registry.MustRegister(
		p.searchTotal, p.searchDuration, p.searchHits, p.hybridFailOpen, p.enrichmentFailures,
		p.generationTotal, p.generationDuration, p.answerTotal, p.answerEvidence, p.answerDuration,
		p.ingestTotal, p.ingestChunks, p.ingestDuration,
	)
	return p
}

func (p *pipeline) ObserveSearch(mode string, hits int, duration time.Duration, err error) {
	mode = orUnknown(mode)
	p.searchTotal.WithLabelValues(p.service, mode, status(err)).Inc()
	p.searchDuration.WithLabelValues(p.service, mode).Observe(duration.Seconds())
	if err == nil {
		p.searchHits.WithLabelValues(p.service, mode).Observe(float64(hits))
	}
}

func (p *pipeline) ObserveHybridFailOpen(reason string) {
	p.hybridFailOpen.WithLabelValues(p.service, orUnknown(reason)).Inc()
}

func (p *pipeline) ObserveEnrichmentFailure(kind string) {
	p.enrichmentFailures.WithLabelValues(p.service, orUnknown(kind)).Inc()
}

func (p *pipeline) ObserveGeneration(provider, strategy string, duration time.Duration, err error) {
	provider = orUnknown(provider)
	p.generationTotal.WithLabelValues(p.service, provider, orUnknown(strategy), status(err)).Inc()
	p.generationDuration.WithLabelValues(p.service, provider).Observe(duration.Seconds())
}

func (p *pipeline) ObserveAnswer(provider, strategy string, evidence int, duration time.Duration) {
	strategy = orUnknown(strategy)
	p.answerTotal.WithLabelValues(p.service, orUnknown(provider), strategy).Inc()
	p.answerEvidence.WithLabelValues(p.service).Observe(float64(evidence))
	p.answerDuration.WithLabelValues(p.service, strategy).Observe(duration.Seconds())
}

func (p *pipeline) ObserveIngest(chunks int, duration time.Duration, skipped bool, err error) {
	st := status(err)
	if err == nil && skipped {
		st = "skipped"
	}
	p.ingestTotal.WithLabelValues(p.service, st).Inc()
	p.ingestDuration.WithLabelValues(p.service, st).Observe(duration.Seconds())
	if err == nil && !skipped && chunks > 0 {
		p.ingestChunks.Add(float64(chunks))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
