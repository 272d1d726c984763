// Package responder turns new decision events into response actions.
//
// Each run reads what was appended to the decision log since the stored offset,
// commits the new offset, then acts on every event in log order. Committing before
// acting means a crash mid-batch loses that batch's actions but never repeats them.
package responder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/actions"
	"github.com/ethanolivertroy/riskflow/internal/decisionlog"
	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
	"github.com/ethanolivertroy/riskflow/internal/metrics"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"go.uber.org/zap"
)

// Options configures an Orchestrator
type Options struct {
	DecisionLog string
	ActionsLog  string
	AuditPath   string
	StatePath   string

	MailTo        string
	DisableBlock  bool
	DisableNotify bool
	DryRun        bool

	Blocker  actions.Blocker
	Notifier actions.Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Summary reports what one run did
type Summary struct {
	Recorded  int
	NoNew     bool
	Skipped   int
	Malformed int
	Failures  int
}

// Orchestrator is the response engine
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, logger: opts.Logger}
}

// plan is the response chosen for one event
type plan struct {
	label  models.ActionLabel
	block  bool
	notify bool
}

func (o *Orchestrator) planFor(level models.RiskLevel) plan {
	switch level {
	case models.RiskCritical:
		return plan{label: models.ActionBlock, block: !o.opts.DisableBlock, notify: !o.opts.DisableNotify}
	case models.RiskHigh:
		return plan{label: models.ActionNotify, notify: !o.opts.DisableNotify}
	default:
		return plan{label: models.ActionLog}
	}
}

// Run processes every decision appended since the last run
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	// Step 1: read from the committed offset
	state := LoadState(o.opts.StatePath)
	res, err := decisionlog.Tail(o.opts.DecisionLog, state.Offset)
	if err != nil {
		return sum, err
	}
	sum.Malformed = res.Malformed
	if res.Reset {
		o.logger.Warn("Decision log is shorter than the stored offset, restarting from the beginning",
			zap.String("path", o.opts.DecisionLog),
			zap.Int64("offset", state.Offset))
	}
	if res.Malformed > 0 {
		o.logger.Warn("Skipped malformed decision log lines", zap.Int("count", res.Malformed))
	}

	if len(res.Events) == 0 {
		sum.NoNew = true
		if res.NextOffset != state.Offset {
			if err := SaveState(o.opts.StatePath, models.ResponderState{Offset: res.NextOffset}); err != nil {
				return sum, errors.Wrap(err, "save responder state")
			}
		}
		return sum, nil
	}

	actionsLog, err := openActionsLog(o.opts.ActionsLog)
	if err != nil {
		return sum, err
	}
	defer actionsLog.Close()

	// Step 2: commit before acting
	if err := SaveState(o.opts.StatePath, models.ResponderState{Offset: res.NextOffset}); err != nil {
		return sum, errors.WithHint(
			errors.Wrap(err, "save responder state"),
			"no event was processed; fix the state path and run again",
		)
	}

	// Step 3: act on each event in log order
	var recorded []models.ResponseAction
	for _, event := range res.Events {
		action, ok := o.process(ctx, event, actionsLog, &sum)
		if !ok {
			sum.Skipped++
			continue
		}
		recorded = append(recorded, action)
		o.opts.Metrics.ResponseAction(action.Action)
	}

	// Step 4: one audit write per batch
	if len(recorded) > 0 && o.opts.AuditPath != "" {
		if err := jsonfile.Append(o.opts.AuditPath, recorded...); err != nil {
			o.logger.Warn("Cannot append response audit",
				zap.String("path", o.opts.AuditPath),
				zap.Int("actions", len(recorded)),
				zap.Error(err))
		}
	}

	sum.Recorded = len(recorded)
	o.opts.Metrics.MarkRun("respond", o.opts.Now())
	return sum, nil
}

func (o *Orchestrator) process(ctx context.Context, event models.DecisionEvent, log *actionsLog, sum *Summary) (models.ResponseAction, bool) {
	host := event.Target()
	level := models.RiskLevel(strings.ToLower(strings.TrimSpace(string(event.RiskLevel))))
	if host == "" || level == "" {
		o.logger.Debug("Skipping decision without host or level", zap.String("event_id", event.EventID))
		return models.ResponseAction{}, false
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = o.opts.Now().UTC()
	}
	stamp := ts.Format(time.RFC3339)

	log.Printf("[%s] host=%s level=%s score=%d findings=[%s]",
		stamp, host, level, event.RiskScore, strings.Join(event.TopFindings, "; "))

	p := o.planFor(level)

	if p.block {
		if o.opts.DryRun {
			log.Printf("[DRY-RUN] BLOCK %s", host)
		} else if err := o.block(ctx, host); err != nil {
			sum.Failures++
			o.opts.Metrics.ActionFailure("block")
			log.Printf("[ERROR] block %s: %v", host, err)
			o.logger.Warn("Block action failed", zap.String("host", host), zap.Error(err))
		}
	}

	if p.notify {
		o.notify(ctx, host, level, event, stamp, log, sum)
	}

	return models.ResponseAction{
		Host:      host,
		RiskLevel: level,
		RiskScore: event.RiskScore,
		Action:    p.label,
		Timestamp: ts,
	}, true
}

func (o *Orchestrator) block(ctx context.Context, host string) error {
	if o.opts.Blocker == nil {
		return errors.New("no firewall helper configured")
	}
	return o.opts.Blocker.Block(ctx, host)
}

func (o *Orchestrator) notify(ctx context.Context, host string, level models.RiskLevel, event models.DecisionEvent, stamp string, log *actionsLog, sum *Summary) {
	if o.opts.MailTo == "" {
		o.logger.Debug("No alert recipient configured, skipping notification", zap.String("host", host))
		return
	}

	msg := actions.AlertFor(host, level, event.RiskScore, event.TopFindings, stamp)
	if o.opts.DryRun {
		log.Printf("[DRY-RUN] Email -> %s: %s", o.opts.MailTo, msg.Subject)
		return
	}

	var err error
	if o.opts.Notifier == nil {
		err = errors.New("no notifier configured")
	} else {
		err = o.opts.Notifier.Notify(ctx, o.opts.MailTo, msg)
	}
	if err != nil {
		sum.Failures++
		o.opts.Metrics.ActionFailure("notify")
		log.Printf("[ERROR] notify %s: %v", host, err)
		o.logger.Warn("Notify action failed", zap.String("host", host), zap.Error(err))
	}
}

// actionsLog is the plaintext trail of everything the responder did
type actionsLog struct {
	f *os.File
}

func openActionsLog(path string) (*actionsLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open actions log %s", path)
	}
	return &actionsLog{f: f}, nil
}

func (a *actionsLog) Printf(format string, args ...any) {
	fmt.Fprintf(a.f, format+"\n", args...)
}

func (a *actionsLog) Close() error {
	return a.f.Close()
}
