package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.HostAnalysed(models.RiskCritical)
	m.HostAnalysed(models.RiskCritical)
	m.HostAnalysed(models.RiskLow)
	m.Enrichment(EnrichCacheHit)
	m.ResponseAction(models.ActionBlock)
	m.ActionFailure("notify")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.hostsAnalysed.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hostsAnalysed.WithLabelValues("low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichments.WithLabelValues(EnrichCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("block")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionFailures.WithLabelValues("notify")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.HostAnalysed(models.RiskHigh)
	m.Enrichment(EnrichNone)
	m.ResponseAction(models.ActionLog)
	m.ActionFailure("block")
	m.MarkRun("analyse", time.Now())
	assert.NoError(t, m.WriteTextfile("/nonexistent/riskflow.prom"))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ResponseAction(models.ActionNotify)
	m.MarkRun("respond", time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "riskflow.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `riskflow_response_actions_total{action="notify"} 1`))
	assert.True(t, strings.Contains(text, `riskflow_last_run_timestamp_seconds{stage="respond"}`))
}
