package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobOutcomeCompleted = "completed"
	JobOutcomeRetried   = "retried"
	JobOutcomeDead      = "dead"

	PayoutOutcomePaid    = "paid"
	PayoutOutcomeFailed  = "failed"
	PayoutOutcomeSkipped = "skipped"
)

// Config carries the constant labels stamped onto every series.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes the worker and settlement instruments.
type Metrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	staleRecovered prometheus.Counter
	ledgerEntries  *prometheus.CounterVec
	payoutResults  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the singleton metrics registry using config labels.
func WithConfig(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = New(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

// New builds a metrics set registered against the given registerer.
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "backoffice"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "backoffice_job_runs_total",
		Help:        "Job executions by type and outcome.",
		ConstLabels: constLabels,
	}, []string{"type", "outcome"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "backoffice_job_duration_seconds",
		Help:        "Job handler latency by type.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"type"})
	staleRecovered := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "backoffice_jobs_stale_recovered_total",
		Help:        "Running jobs returned to pending by the stale sweep.",
		ConstLabels: constLabels,
	})
	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "backoffice_ledger_entries_total",
		Help:        "Ledger entries written by entry type.",
		ConstLabels: constLabels,
	}, []string{"entry_type"})
	payoutResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "backoffice_payout_results_total",
		Help:        "Payout batch results by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	registerer.MustRegister(jobRuns, jobDuration, staleRecovered, ledgerEntries, payoutResults)

	return &Metrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		staleRecovered: staleRecovered,
		ledgerEntries:  ledgerEntries,
		payoutResults:  payoutResults,
	}
}

// IncJobRun increments the job run counter for a type and outcome.
func (m *Metrics) IncJobRun(jobType, outcome string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(jobType, outcome).Inc()
}

// ObserveJobDuration records handler latency in seconds.
func (m *Metrics) ObserveJobDuration(jobType string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// AddStaleRecovered counts jobs returned to pending by the sweep.
func (m *Metrics) AddStaleRecovered(count int64) {
	if m == nil || m.staleRecovered == nil || count <= 0 {
		return
	}
	m.staleRecovered.Add(float64(count))
}

// IncLedgerEntry increments the ledger entry counter for an entry type.
func (m *Metrics) IncLedgerEntry(entryType string) {
	if m == nil || m.ledgerEntries == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(entryType).Inc()
}

// AddPayoutResult counts payout outcomes from a batch.
func (m *Metrics) AddPayoutResult(outcome string, count int) {
	if m == nil || m.payoutResults == nil || count <= 0 {
		return
	}
	m.payoutResults.WithLabelValues(outcome).Add(float64(count))
}
