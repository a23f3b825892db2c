package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InvoicesIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_ingested_total",
		Help: "Total number of invoices ingested",
	})

	InvoicesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "invoices_failed_total",
		Help: "Total number of invoices that failed ingestion",
	}, []string{"reason"})

	LineItemsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "line_items_ingested_total",
		Help: "Total number of invoice line items ingested",
	})

	LineItemsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "line_items_rejected_total",
		Help: "Total number of line items rejected by validation",
	}, []string{"reason"})

	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of catalog products created from first observations",
	})

	PriceAlertsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_alerts_emitted_total",
		Help: "Total number of price alerts emitted",
	}, []string{"type"})

	ContractIntegrityWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contract_integrity_warnings_total",
		Help: "Total number of overlapping active contract conditions detected",
	})

	IngestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_retries_total",
		Help: "Total number of ingestion retries after transient conflicts",
	})

	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_ingest_latency_seconds",
		Help:    "Latency of invoice ingestion transactions",
		Buckets: prometheus.DefBuckets,
	})

	RecommendationsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recommendations_created_total",
		Help: "Total number of recommendations created",
	}, []string{"type"})

	RecommendationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recommendation_runs_total",
		Help: "Total number of recommendation engine runs",
	}, []string{"result"})

	RecommendationRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recommendation_run_duration_seconds",
		Help:    "Duration of recommendation engine runs",
		Buckets: prometheus.DefBuckets,
	})

	CompetitorPricesScrapedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "competitor_prices_scraped_total",
		Help: "Total number of competitor prices recorded",
	}, []string{"store"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
