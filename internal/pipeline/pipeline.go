// Package pipeline runs one scan through extraction, scoring, enrichment and the decision log
package pipeline

import (
	"context"
	"time"

	"github.com/ethanolivertroy/riskflow/internal/decisionlog"
	"github.com/ethanolivertroy/riskflow/internal/explain"
	"github.com/ethanolivertroy/riskflow/internal/features"
	"github.com/ethanolivertroy/riskflow/internal/intel"
	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
	"github.com/ethanolivertroy/riskflow/internal/metrics"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/ethanolivertroy/riskflow/internal/parsers"
	"github.com/ethanolivertroy/riskflow/internal/scoring"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures an Analyser
type Options struct {
	ModelPath       string
	LastFeatures    string
	MetricsTextfile string
	DisableExplain  bool

	Log      *decisionlog.Log
	Enricher *intel.Enricher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// Result is the outcome of one analysis run
type Result struct {
	ScanID   string
	Strategy string
	Events   []models.DecisionEvent
}

// Analyser turns scan documents into decision events
type Analyser struct {
	opts   Options
	logger *zap.Logger
}

// New creates an analyser
func New(opts Options) *Analyser {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyser{opts: opts, logger: opts.Logger}
}

// Run analyses the scan document at path. Only an unreadable scan or a failed
// primary log write is returned as an error.
func (a *Analyser) Run(ctx context.Context, path string) (*Result, error) {
	// Step 1: parse and validate the scan
	doc, err := parsers.ParseScanFile(path)
	if err != nil {
		return nil, err
	}
	scanID := parsers.ScanID(path)

	// Step 2: extract features
	hosts := features.Extract(doc)
	a.logger.Debug("Extracted host features", zap.String("scan_id", scanID), zap.Int("hosts", len(hosts)))
	if a.opts.LastFeatures != "" {
		if err := jsonfile.Write(a.opts.LastFeatures, hosts); err != nil {
			a.logger.Warn("Cannot write feature dump", zap.String("path", a.opts.LastFeatures), zap.Error(err))
		}
	}

	// Step 3: choose the strategy once for the whole run
	strategy := scoring.Select(a.opts.ModelPath, a.logger)
	explainer := explain.For(strategy, a.opts.DisableExplain)

	// Step 4: score, enrich and log each host
	res := &Result{ScanID: scanID, Strategy: strategy.Name()}
	for _, h := range hosts {
		event := a.decide(ctx, scanID, h, strategy, explainer)
		if a.opts.Log != nil {
			if err := a.opts.Log.Append(event); err != nil {
				return res, err
			}
		}
		a.opts.Metrics.HostAnalysed(event.RiskLevel)
		res.Events = append(res.Events, event)
	}

	// Step 5: run-level outputs are best effort
	if a.opts.Log != nil {
		if err := a.opts.Log.WriteAudit(res.Events); err != nil {
			a.logger.Warn("Cannot update decision audit", zap.Error(err))
		}
		snapshot := decisionlog.Snapshot(scanID, doc.Metadata.Start, res.Events, a.opts.Now())
		if err := a.opts.Log.RecordScan(snapshot); err != nil {
			a.logger.Warn("Cannot update scan history", zap.Error(err))
		}
	}
	a.opts.Metrics.MarkRun("analyse", a.opts.Now())
	if err := a.opts.Metrics.WriteTextfile(a.opts.MetricsTextfile); err != nil {
		a.logger.Warn("Cannot write metrics textfile", zap.String("path", a.opts.MetricsTextfile), zap.Error(err))
	}

	return res, nil
}

func (a *Analyser) decide(ctx context.Context, scanID string, h models.HostFeatures, strategy scoring.Strategy, explainer explain.Explainer) models.DecisionEvent {
	score, reasons := strategy.Score(h)
	if len(reasons) > models.MaxReasons {
		reasons = reasons[:models.MaxReasons]
	}

	event := models.DecisionEvent{
		EventID:     uuid.NewString(),
		Timestamp:   a.opts.Now().UTC(),
		ScanID:      scanID,
		Host:        h.Identity(),
		Hostname:    h.Hostname,
		OS:          h.OS,
		RiskScore:   models.ClampScore(score),
		RiskLevel:   models.LevelForScore(models.ClampScore(score)),
		TopFindings: reasons,
		CVEs:        h.CVEs,
		CVSS:        models.CVSSSummary{Max: h.MaxCVSS, Avg: h.AvgCVSS},
		Strategy:    strategy.Name(),
	}
	if event.TopFindings == nil {
		event.TopFindings = []string{}
	}
	if attrs, ok := explainer.Explain(h.Vector()); ok {
		event.Attributions = attrs
	}

	if a.opts.Enricher != nil && (event.Host != "" || len(h.CVEs) > 0) {
		if ti := a.opts.Enricher.Enrich(ctx, event.Host, h.CVEs); ti != nil {
			event.ThreatIntel = ti
			event.ApplyAdjustment(ti.ScoreAdjustment)
			a.logger.Debug("Applied threat intel",
				zap.String("host", event.Host),
				zap.Int("adjustment", ti.ScoreAdjustment),
				zap.Int("score", event.RiskScore))
		}
	}
	return event
}
