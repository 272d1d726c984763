// Package actions executes response side effects: firewall blocking and email alerts
package actions

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Blocker blocks a host at the firewall
type Blocker interface {
	Block(ctx context.Context, host string) error
}

// ScriptBlocker runs the firewall helper as `<script> block <host>`
type ScriptBlocker struct {
	Script  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewScriptBlocker creates a blocker for the helper at script
func NewScriptBlocker(script string, timeout time.Duration, logger *zap.Logger) *ScriptBlocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ScriptBlocker{Script: script, Timeout: timeout, Logger: logger}
}

// Block implements Blocker
func (b *ScriptBlocker) Block(ctx context.Context, host string) error {
	if strings.HasPrefix(host, "-") {
		return errors.Newf("refusing to pass %q to the firewall helper", host)
	}
	if _, err := os.Stat(b.Script); err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "firewall helper not found: %s", b.Script),
			"install the helper or set paths.block_script",
		)
	}

	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, b.Script, "block", host)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second

	b.Logger.Debug("Running firewall helper", zap.String("script", b.Script), zap.String("host", host))

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.Newf("firewall helper timed out after %s", b.Timeout)
		}
		return errors.Wrapf(err, "firewall helper failed: %s", strings.TrimSpace(output.String()))
	}
	return nil
}
