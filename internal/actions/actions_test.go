package actions

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) (script, record string) {
	t.Helper()
	dir := t.TempDir()
	record = filepath.Join(dir, "calls.txt")
	script = filepath.Join(dir, "ufw_actions.sh")
	content := "#!/bin/sh\n" + strings.ReplaceAll(body, "$RECORD", record) + "\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0755))
	return script, record
}

func TestScriptBlockerInvokesHelper(t *testing.T) {
	script, record := writeScript(t, `echo "$1 $2" >> $RECORD`)
	b := NewScriptBlocker(script, 5*time.Second, nil)

	require.NoError(t, b.Block(context.Background(), "10.0.0.9"))

	data, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Equal(t, "block 10.0.0.9\n", string(data))
}

func TestScriptBlockerFailure(t *testing.T) {
	script, _ := writeScript(t, `echo "ufw: permission denied" >&2; exit 3`)
	err := NewScriptBlocker(script, 5*time.Second, nil).Block(context.Background(), "10.0.0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ufw: permission denied")
}

func TestScriptBlockerMissingScript(t *testing.T) {
	err := NewScriptBlocker(filepath.Join(t.TempDir(), "absent.sh"), time.Second, nil).
		Block(context.Background(), "10.0.0.9")
	assert.Error(t, err)
}

func TestScriptBlockerTimeout(t *testing.T) {
	script, _ := writeScript(t, `exec sleep 5`)
	err := NewScriptBlocker(script, 100*time.Millisecond, nil).Block(context.Background(), "10.0.0.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestScriptBlockerRejectsFlagLikeHost(t *testing.T) {
	script, record := writeScript(t, `echo "$1 $2" >> $RECORD`)
	assert.Error(t, NewScriptBlocker(script, time.Second, nil).Block(context.Background(), "--reset"))
	_, err := os.Stat(record)
	assert.True(t, os.IsNotExist(err))
}

func TestAlertFor(t *testing.T) {
	msg := AlertFor("10.0.0.1", models.RiskCritical, 92, []string{"2 CVEs detected", "max CVSS 9.8"}, "2025-06-01T12:00:00Z")
	assert.Equal(t, "SOC Alert: CRITICAL risk on 10.0.0.1", msg.Subject)
	assert.Equal(t, "Host: 10.0.0.1\nRisk level: critical\nRisk score: 92\n"+
		"Top findings: 2 CVEs detected, max CVSS 9.8\nTimestamp: 2025-06-01T12:00:00Z\n", msg.Body)
}

func TestComposeMessage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := string(ComposeMessage("soc@example.org", "oncall@example.org", Message{Subject: "hi", Body: "a\nb\n"}, now))

	assert.Contains(t, raw, "From: soc@example.org\r\n")
	assert.Contains(t, raw, "To: oncall@example.org\r\n")
	assert.Contains(t, raw, "Subject: hi\r\n")
	assert.Contains(t, raw, "@example.org>\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\na\r\nb\r\n"))
}

// recordingBackend is an in-process SMTP server capturing delivered messages
type recordingBackend struct {
	mu   sync.Mutex
	from string
	to   []string
	data string
}

func (b *recordingBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &recordingSession{b: b}, nil
}

type recordingSession struct {
	b *recordingBackend
}

func (s *recordingSession) Mail(from string, _ *smtp.MailOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.from = from
	return nil
}

func (s *recordingSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.to = append(s.b.to, to)
	return nil
}

func (s *recordingSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data = string(data)
	return nil
}

func (s *recordingSession) Reset() {}

func (s *recordingSession) Logout() error { return nil }

func startSMTPServer(t *testing.T) (*recordingBackend, models.SMTPConfig) {
	t.Helper()
	be := &recordingBackend{}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return be, models.SMTPConfig{
		Host:    host,
		Port:    port,
		Sender:  "soc-alert@riskflow.local",
		Timeout: 5 * time.Second,
	}
}

func TestSMTPNotifierDelivers(t *testing.T) {
	be, cfg := startSMTPServer(t)
	n := NewSMTPNotifier(cfg, nil)

	msg := AlertFor("10.0.0.1", models.RiskHigh, 70, []string{"3 open ports"}, "2025-06-01T12:00:00Z")
	require.NoError(t, n.Notify(context.Background(), "oncall@example.org", msg))

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, "soc-alert@riskflow.local", be.from)
	assert.Equal(t, []string{"oncall@example.org"}, be.to)
	assert.Contains(t, be.data, "Subject: SOC Alert: HIGH risk on 10.0.0.1")
	assert.Contains(t, be.data, "Risk score: 70")
}

func TestSMTPNotifierRequiresRecipient(t *testing.T) {
	n := NewSMTPNotifier(models.SMTPConfig{Host: "127.0.0.1", Port: 1}, nil)
	assert.Error(t, n.Notify(context.Background(), "", Message{Subject: "x"}))
}

func TestSMTPNotifierUnreachableRelay(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	n := NewSMTPNotifier(models.SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Sender: "a@b"}, nil)
	assert.Error(t, n.Notify(context.Background(), "oncall@example.org", Message{Subject: "x"}))
}

func TestSMTPNotifierSilentRelayIsBounded(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	n := NewSMTPNotifier(models.SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Sender: "a@b", Timeout: 300 * time.Millisecond}, nil)

	start := time.Now()
	err = n.Notify(context.Background(), "oncall@example.org", Message{Subject: "x"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSMTPNotifierHonoursContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	n := NewSMTPNotifier(models.SMTPConfig{Host: "127.0.0.1", Port: addr.Port, Sender: "a@b", Timeout: time.Minute}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.Error(t, n.Notify(ctx, "oncall@example.org", Message{Subject: "x"}))
	assert.Less(t, time.Since(start), 10*time.Second)
}
