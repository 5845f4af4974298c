package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pressroom_chain_duration_seconds",
			Help:    "Chain invocation duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"chain"},
	)

	ChainTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_chain_invocations_total",
			Help: "Total chain invocations",
		},
		[]string{"chain", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_llm_tokens_estimated_total",
			Help: "Estimated LLM tokens recorded in the usage ledger",
		},
		[]string{"model", "type"},
	)

	RetrievalStageResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_retrieval_stage_results_total",
			Help: "Retrieval stage outcomes",
		},
		[]string{"stage", "outcome"},
	)

	RetrievalAllStagesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "retrieval_all_stages_failed_total",
			Help: "Retrieval requests where every stage returned an error",
		},
	)

	RetrievalFragments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pressroom_retrieval_fragments_count",
			Help:    "Number of fragments returned per retrieval",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	QuotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_quota_decisions_total",
			Help: "Quota check outcomes",
		},
		[]string{"outcome"},
	)

	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_ratelimit_decisions_total",
			Help: "Rate limiter outcomes",
		},
		[]string{"outcome"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pressroom_documents_ingested_total",
			Help: "Total document chunks ingested",
		},
	)

	TracesExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressroom_traces_exported_total",
			Help: "Chain trace records drained to the sink",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(ChainDuration)
	prometheus.MustRegister(ChainTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(RetrievalStageResults)
	prometheus.MustRegister(RetrievalAllStagesFailed)
	prometheus.MustRegister(RetrievalFragments)
	prometheus.MustRegister(QuotaDecisions)
	prometheus.MustRegister(RateLimitDecisions)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(TracesExported)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
