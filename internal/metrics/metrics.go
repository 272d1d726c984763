// Package metrics counts pipeline outcomes and exports them as a node_exporter textfile
package metrics

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Enrichment results
const (
	EnrichCacheHit = "cache_hit"
	EnrichMatched  = "matched"
	EnrichNone     = "none"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	hostsAnalysed  *prometheus.CounterVec
	enrichments    *prometheus.CounterVec
	actions        *prometheus.CounterVec
	actionFailures *prometheus.CounterVec
	lastRun        *prometheus.GaugeVec
}

// New registers every collector on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		hostsAnalysed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskflow_hosts_analysed_total",
			Help: "Hosts scored by the analysis pipeline, by final risk level.",
		}, []string{"level"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskflow_enrichments_total",
			Help: "Threat intel enrichment outcomes.",
		}, []string{"result"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskflow_response_actions_total",
			Help: "Response actions recorded, by action label.",
		}, []string{"action"}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskflow_action_failures_total",
			Help: "Failed block or notify executions.",
		}, []string{"kind"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riskflow_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run of a stage.",
		}, []string{"stage"}),
	}

	m.registry.MustRegister(m.hostsAnalysed, m.enrichments, m.actions, m.actionFailures, m.lastRun)
	return m
}

// HostAnalysed counts one scored host
func (m *Metrics) HostAnalysed(level models.RiskLevel) {
	if m == nil {
		return
	}
	m.hostsAnalysed.WithLabelValues(string(level)).Inc()
}

// Enrichment counts one enrichment outcome
func (m *Metrics) Enrichment(result string) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(result).Inc()
}

// ResponseAction counts one recorded response action
func (m *Metrics) ResponseAction(action models.ActionLabel) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(string(action)).Inc()
}

// ActionFailure counts one failed side effect, kind is "block" or "notify"
func (m *Metrics) ActionFailure(kind string) {
	if m == nil {
		return
	}
	m.actionFailures.WithLabelValues(kind).Inc()
}

// MarkRun records the completion time of a stage
func (m *Metrics) MarkRun(stage string, at time.Time) {
	if m == nil {
		return
	}
	m.lastRun.WithLabelValues(stage).Set(float64(at.Unix()))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
