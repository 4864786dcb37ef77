package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config carries the constant labels stamped on every metric.
type Config struct {
	ServiceName string
	Environment string
}

const (
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)

const (
	ItemOutcomeFetched  = "fetched"
	ItemOutcomeCreated  = "created"
	ItemOutcomeUpdated  = "updated"
	ItemOutcomeFailed   = "failed"
	ItemOutcomeSkipped  = "skipped"
	ItemOutcomeRawSaved = "raw_saved"
)

const (
	StageFetchPage   = "fetch_page"
	StageFetchDetail = "fetch_detail"
	StageSanitize    = "sanitize"
	StageNormalize   = "normalize"
	StageUpsert      = "upsert"
)

const (
	RunErrorReasonDeadlineExceeded = "deadline_exceeded"
	RunErrorReasonRateLimited      = "rate_limited"
	RunErrorReasonUpstream         = "upstream"
	RunErrorReasonDB               = "db"
	RunErrorReasonUnknown          = "unknown"
)

// IngestMetrics captures catalog ingestion health signals.
type IngestMetrics struct {
	runs          *prometheus.CounterVec
	runErrors     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	pages         *prometheus.CounterVec
	items         *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	httpRetries   *prometheus.CounterVec
}

var (
	ingestMetricsOnce sync.Once
	ingestMetrics     *IngestMetrics
)

// Ingest returns the singleton ingest metrics registry.
func Ingest() *IngestMetrics {
	return IngestWithConfig(Config{})
}

// IngestWithConfig returns the singleton ingest metrics registry using config labels.
func IngestWithConfig(cfg Config) *IngestMetrics {
	ingestMetricsOnce.Do(func() {
		ingestMetrics = newIngestMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ingestMetrics
}

// ResetIngestMetricsForTest resets the ingest metrics singleton for tests.
func ResetIngestMetricsForTest() {
	ingestMetricsOnce = sync.Once{}
	ingestMetrics = nil
}

func newIngestMetrics(registerer prometheus.Registerer, cfg Config) *IngestMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "shelfscout"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfscout_ingest_runs_total",
		Help:        "Ingestion runs by source and terminal status.",
		ConstLabels: constLabels,
	}, []string{"source", "status"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfscout_ingest_run_errors_total",
		Help:        "Ingestion run errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"source", "reason"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "shelfscout_ingest_run_duration_seconds",
		Help:        "End-to-end ingestion run latency per source.",
		Buckets:     []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		ConstLabels: constLabels,
	}, []string{"source"})
	pages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfscout_ingest_pages_total",
		Help:        "Search pages fetched per source.",
		ConstLabels: constLabels,
	}, []string{"source"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfscout_ingest_items_total",
		Help:        "Catalog items processed per source by outcome.",
		ConstLabels: constLabels,
	}, []string{"source", "outcome"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "shelfscout_ingest_stage_duration_seconds",
		Help:        "Per-item pipeline stage latency.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"stage"})
	httpRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfscout_ingest_http_retries_total",
		Help:        "Upstream request retries per source by reason.",
		ConstLabels: constLabels,
	}, []string{"source", "reason"})

	registerer.MustRegister(
		runs,
		runErrors,
		runDuration,
		pages,
		items,
		stageDuration,
		httpRetries,
	)

	return &IngestMetrics{
		runs:          runs,
		runErrors:     runErrors,
		runDuration:   runDuration,
		pages:         pages,
		items:         items,
		stageDuration: stageDuration,
		httpRetries:   httpRetries,
	}
}

// IncRun increments the run counter for a source with its terminal status.
func (m *IngestMetrics) IncRun(source, status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(source, status).Inc()
}

// IncRunError increments the run error counter with classification.
func (m *IngestMetrics) IncRunError(source string, err error) {
	if m == nil || m.runErrors == nil || err == nil {
		return
	}
	m.runErrors.WithLabelValues(source, ClassifyRunErrorReason(err)).Inc()
}

// ObserveRunDuration records end-to-end run latency in seconds.
func (m *IngestMetrics) ObserveRunDuration(source string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// IncPage increments the fetched page counter for a source.
func (m *IngestMetrics) IncPage(source string) {
	if m == nil || m.pages == nil {
		return
	}
	m.pages.WithLabelValues(source).Inc()
}

// AddItems increments the item counter for a source and outcome by count.
func (m *IngestMetrics) AddItems(source, outcome string, count int) {
	if m == nil || m.items == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(source, outcome).Add(float64(count))
}

// IncItem increments the item counter for a source and outcome.
func (m *IngestMetrics) IncItem(source, outcome string) {
	m.AddItems(source, outcome, 1)
}

// IncHTTPRetry increments the retry counter for a source and reason.
func (m *IngestMetrics) IncHTTPRetry(source, reason string) {
	if m == nil || m.httpRetries == nil {
		return
	}
	m.httpRetries.WithLabelValues(source, reason).Inc()
}

// ObserveStage records stage latency in seconds.
func (m *IngestMetrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// Timed runs fn and records its latency under the given stage.
func (m *IngestMetrics) Timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.ObserveStage(stage, time.Since(start))
	return err
}

// ClassifyRunErrorReason maps run errors to low-cardinality reasons.
func ClassifyRunErrorReason(err error) string {
	if err == nil {
		return RunErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RunErrorReasonDeadlineExceeded
	}
	if isRateLimited(err) {
		return RunErrorReasonRateLimited
	}
	if isUpstreamError(err) {
		return RunErrorReasonUpstream
	}
	if isDBError(err) {
		return RunErrorReasonDB
	}
	return RunErrorReasonUnknown
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

func isRateLimited(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() == 429
	}
	return false
}

func isUpstreamError(err error) bool {
	var sc StatusCoder
	return errors.As(err, &sc)
}
