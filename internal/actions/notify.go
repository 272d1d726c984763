package actions

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one alert email
type Message struct {
	Subject string
	Body    string
}

// Notifier sends an alert to a recipient
type Notifier interface {
	Notify(ctx context.Context, to string, msg Message) error
}

// SMTPNotifier delivers alerts through an SMTP relay
type SMTPNotifier struct {
	cfg    models.SMTPConfig
	logger *zap.Logger
}

// NewSMTPNotifier creates a notifier for the relay in cfg
func NewSMTPNotifier(cfg models.SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPNotifier{cfg: cfg, logger: logger}
}

// Notify implements Notifier
func (n *SMTPNotifier) Notify(ctx context.Context, to string, msg Message) error {
	if to == "" {
		return errors.New("recipient is required to send an alert email")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.cfg.Addr())
	if err != nil {
		return errors.Wrapf(err, "connect to SMTP relay %s", n.cfg.Addr())
	}
	// Bounds the greeting; command deadlines take over afterwards
	conn.SetDeadline(time.Now().Add(n.cfg.Timeout))
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c := smtp.NewClient(conn)
	defer c.Close()
	c.CommandTimeout = n.cfg.Timeout
	c.SubmissionTimeout = n.cfg.Timeout

	if n.cfg.StartTLS {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return errors.Wrap(err, "STARTTLS")
		}
	}

	if n.cfg.User != "" && n.cfg.Password != "" {
		if err := c.Auth(sasl.NewPlainClient("", n.cfg.User, n.cfg.Password)); err != nil {
			return errors.Wrap(err, "SMTP authentication")
		}
	}

	body := ComposeMessage(n.cfg.Sender, to, msg, time.Now())
	if err := c.SendMail(n.cfg.Sender, []string{to}, bytes.NewReader(body)); err != nil {
		return errors.Wrapf(err, "send alert to %s", to)
	}

	n.logger.Debug("Alert email sent", zap.String("to", to), zap.String("subject", msg.Subject))

	if err := c.Quit(); err != nil {
		n.logger.Debug("SMTP QUIT failed", zap.Error(err))
	}
	return nil
}

// ComposeMessage renders msg as a plain-text RFC 5322 message
func ComposeMessage(from, to string, msg Message, now time.Time) []byte {
	domain := "riskflow.local"
	if i := strings.LastIndexByte(from, '@'); i >= 0 {
		domain = from[i+1:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

// AlertFor builds the alert for a decision event
func AlertFor(host string, level models.RiskLevel, score int, findings []string, timestamp string) Message {
	return Message{
		Subject: fmt.Sprintf("SOC Alert: %s risk on %s", strings.ToUpper(string(level)), host),
		Body: fmt.Sprintf("Host: %s\nRisk level: %s\nRisk score: %d\nTop findings: %s\nTimestamp: %s\n",
			host, level, score, strings.Join(findings, ", "), timestamp),
	}
}
