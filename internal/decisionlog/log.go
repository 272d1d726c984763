// Package decisionlog persists decision events.
//
// The primary store is a JSON-lines file that the responder tails. Each event is also
// mirrored to a log watched by a shipping agent, to an optional NATS subject and,
// once per run, to a JSON array audit file. A per-scan snapshot row feeds the
// rolling scan history.
package decisionlog

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/jsonfile"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"go.uber.org/zap"
)

// Publisher mirrors decision events to a message bus
type Publisher interface {
	Publish(event models.DecisionEvent) error
	Close()
}

// Options configures a Log. Empty optional paths disable that output.
type Options struct {
	Path        string // required
	MirrorPath  string
	AuditPath   string
	HistoryPath string
	Publisher   Publisher
	Logger      *zap.Logger
}

// Log writes decision events and their derived artifacts
type Log struct {
	opts   Options
	logger *zap.Logger
}

// New creates a decision log writer
func New(opts Options) *Log {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{opts: opts, logger: logger}
}

// Path returns the primary log path
func (l *Log) Path() string {
	return l.opts.Path
}

// Append writes one event to the primary log, then to the mirrors.
// Only a primary write failure is returned.
func (l *Log) Append(event models.DecisionEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode decision event")
	}
	line = append(line, '\n')

	if err := appendLine(l.opts.Path, line); err != nil {
		return errors.Wrapf(err, "append to decision log %s", l.opts.Path)
	}

	if l.opts.MirrorPath != "" {
		if err := appendLine(l.opts.MirrorPath, line); err != nil {
			l.logger.Warn("Cannot write mirrored decision log",
				zap.String("path", l.opts.MirrorPath),
				zap.Bool("permission", errors.Is(err, os.ErrPermission)),
				zap.Error(err))
		}
	}

	if l.opts.Publisher != nil {
		if err := l.opts.Publisher.Publish(event); err != nil {
			l.logger.Warn("Failed to publish decision event",
				zap.String("host", event.Host),
				zap.Error(err))
		}
	}

	return nil
}

// WriteAudit appends a run's events to the audit array
func (l *Log) WriteAudit(events []models.DecisionEvent) error {
	if l.opts.AuditPath == "" || len(events) == 0 {
		return nil
	}
	return jsonfile.Append(l.opts.AuditPath, events...)
}

// RecordScan appends a snapshot row to the scan history
func (l *Log) RecordScan(snapshot models.ScanSnapshot) error {
	if l.opts.HistoryPath == "" {
		return nil
	}
	return jsonfile.Append(l.opts.HistoryPath, snapshot)
}

// Close releases the publisher
func (l *Log) Close() {
	if l.opts.Publisher != nil {
		l.opts.Publisher.Close()
	}
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
