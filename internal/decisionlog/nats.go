package decisionlog

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject carries decision events on the bus
const DefaultSubject = "riskflow.decisions"

// NATSPublisher mirrors decision events to a NATS subject
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher connects to url. The connection is not retried: a missing bus
// must not hold up a batch run.
func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("riskflow"),
		nats.Timeout(3*time.Second),
		nats.MaxReconnects(2),
		nats.ReconnectWait(500*time.Millisecond),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to NATS at %s", url)
	}

	logger.Debug("Connected to NATS", zap.String("url", url), zap.String("subject", subject))

	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// Publish sends one event as JSON
func (p *NATSPublisher) Publish(event models.DecisionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode decision event")
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.Wrapf(err, "publish to %s", p.subject)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		p.logger.Warn("Failed to flush NATS connection", zap.Error(err))
	}
	p.conn.Close()
}
