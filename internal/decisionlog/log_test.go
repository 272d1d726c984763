package decisionlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakePublisher struct {
	events []models.DecisionEvent
	err    error
	closed bool
}

func (f *fakePublisher) Publish(e models.DecisionEvent) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) Close() { f.closed = true }

func event(host string, score int) models.DecisionEvent {
	return models.DecisionEvent{
		EventID:     "id-" + host,
		Timestamp:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		ScanID:      "nightly",
		Host:        host,
		RiskScore:   score,
		RiskLevel:   models.LevelForScore(score),
		TopFindings: []string{"1 open ports"},
		CVEs:        []string{},
	}
}

func TestAppendWritesPrimaryAndMirror(t *testing.T) {
	dir := t.TempDir()
	pub := &fakePublisher{}
	l := New(Options{
		Path:       filepath.Join(dir, "logs", "decisions.log"),
		MirrorPath: filepath.Join(dir, "wazuh", "riskflow.log"),
		Publisher:  pub,
	})

	require.NoError(t, l.Append(event("10.0.0.1", 90)))
	require.NoError(t, l.Append(event("10.0.0.2", 10)))
	l.Close()

	res, err := Tail(l.Path(), 0)
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, event("10.0.0.1", 90), res.Events[0])

	primary, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	mirror, err := os.ReadFile(filepath.Join(dir, "wazuh", "riskflow.log"))
	require.NoError(t, err)
	assert.Equal(t, primary, mirror)

	assert.Len(t, pub.events, 2)
	assert.True(t, pub.closed)
}

func TestMirrorAndPublishFailuresAreWarnings(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	core, logs := observer.New(zapcore.WarnLevel)
	l := New(Options{
		Path:       filepath.Join(dir, "decisions.log"),
		MirrorPath: filepath.Join(blocker, "mirror.log"),
		Publisher:  &fakePublisher{err: errors.New("bus down")},
		Logger:     zap.New(core),
	})

	require.NoError(t, l.Append(event("10.0.0.3", 50)))
	assert.Equal(t, 1, logs.FilterMessage("Cannot write mirrored decision log").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to publish decision event").Len())
}

func TestPrimaryFailureIsReturned(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	l := New(Options{Path: filepath.Join(blocker, "decisions.log")})
	assert.Error(t, l.Append(event("10.0.0.4", 50)))
}

func TestAuditAndHistory(t *testing.T) {
	dir := t.TempDir()
	l := New(Options{
		Path:        filepath.Join(dir, "decisions.log"),
		AuditPath:   filepath.Join(dir, "audit", "decisions.json"),
		HistoryPath: filepath.Join(dir, "audit", "scan_history.json"),
	})

	first := []models.DecisionEvent{event("a", 90), event("b", 20)}
	require.NoError(t, l.WriteAudit(first))
	require.NoError(t, l.WriteAudit([]models.DecisionEvent{event("c", 70)}))
	require.NoError(t, l.WriteAudit(nil))

	audit := jsonfile.LoadArray[models.DecisionEvent](filepath.Join(dir, "audit", "decisions.json"))
	require.Len(t, audit, 3)
	assert.Equal(t, "c", audit[2].Host)

	require.NoError(t, l.RecordScan(Snapshot("nightly", "2025-06-01T12:00:00Z", first, time.Now())))
	history := jsonfile.LoadArray[models.ScanSnapshot](filepath.Join(dir, "audit", "scan_history.json"))
	require.Len(t, history, 1)
	assert.Equal(t, models.ScanSnapshot{
		ScanID:       "nightly",
		Timestamp:    "2025-06-01T12:00:00Z",
		HostCount:    2,
		AverageScore: 55,
		Low:          1,
		Critical:     1,
	}, history[0])
}

func TestSnapshotDefaults(t *testing.T) {
	now := time.Date(2025, 7, 4, 8, 30, 0, 0, time.UTC)
	s := Snapshot("empty", "", nil, now)
	assert.Equal(t, "2025-07-04T08:30:00Z", s.Timestamp)
	assert.Zero(t, s.HostCount)
	assert.Zero(t, s.AverageScore)
}

func TestOptionalOutputsDisabled(t *testing.T) {
	l := New(Options{Path: filepath.Join(t.TempDir(), "decisions.log")})
	assert.NoError(t, l.WriteAudit([]models.DecisionEvent{event("a", 1)}))
	assert.NoError(t, l.RecordScan(models.ScanSnapshot{}))
}
