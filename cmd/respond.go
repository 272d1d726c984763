package cmd

import (
	"context"
	"fmt"

	"github.com/ethanolivertroy/riskflow/internal/actions"
	"github.com/ethanolivertroy/riskflow/internal/metrics"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/ethanolivertroy/riskflow/internal/responder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagRespDecisionLog string
	flagActionsLog      string
	flagRespAuditFile   string
	flagStateFile       string
	flagBlockScript     string
	flagMailTo          string
	flagDisableBlock    bool
	flagDisableNotify   bool
	flagDryRun          bool
)

var respondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Act on decision events appended since the last run",
	Long: `respond reads the decision events appended since its stored offset and
acts on each by risk level:

  critical  block at the firewall and email the SOC
  high      email the SOC
  medium    record only
  low       record only

The offset is committed before any action runs, so an interrupted batch is
never processed twice.`,
	Args: cobra.NoArgs,
	RunE: runRespond,
}

func init() {
	f := respondCmd.Flags()
	f.StringVar(&flagRespDecisionLog, "decision-log", "", "Decision log (JSON lines)")
	f.StringVar(&flagActionsLog, "actions-log", "", "Plaintext action log")
	f.StringVar(&flagRespAuditFile, "audit-file", "", "Response audit JSON array")
	f.StringVar(&flagStateFile, "state-file", "", "Responder offset state")
	f.StringVar(&flagBlockScript, "block-script", "", "Firewall helper invoked as <script> block <host>")
	f.StringVar(&flagMailTo, "mailto", "", "Alert recipient (default: $RISKFLOW_ALERT_EMAIL)")
	f.BoolVar(&flagDisableBlock, "disable-block", false, "Never block hosts")
	f.BoolVar(&flagDisableNotify, "disable-notify", false, "Never send alert emails")
	f.BoolVar(&flagDryRun, "dry-run", false, "Log actions without executing them")
}

func respondOverrides(cmd *cobra.Command, cfg *models.Config) {
	setString(cmd, "decision-log", &cfg.Paths.DecisionLog, flagRespDecisionLog)
	setString(cmd, "actions-log", &cfg.Paths.ActionsLog, flagActionsLog)
	setString(cmd, "audit-file", &cfg.Paths.ResponseAudit, flagRespAuditFile)
	setString(cmd, "state-file", &cfg.Paths.ResponderState, flagStateFile)
	setString(cmd, "block-script", &cfg.Paths.BlockScript, flagBlockScript)
	setString(cmd, "mailto", &cfg.Response.MailTo, flagMailTo)
	setBool(cmd, "disable-block", &cfg.Response.DisableBlock, flagDisableBlock)
	setBool(cmd, "disable-notify", &cfg.Response.DisableNotify, flagDisableNotify)
	setBool(cmd, "dry-run", &cfg.Response.DryRun, flagDryRun)
}

func runRespond(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd, respondOverrides)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m := metrics.New()

	orch := responder.New(responder.Options{
		DecisionLog:   cfg.Paths.DecisionLog,
		ActionsLog:    cfg.Paths.ActionsLog,
		AuditPath:     cfg.Paths.ResponseAudit,
		StatePath:     cfg.Paths.ResponderState,
		MailTo:        cfg.Response.MailTo,
		DisableBlock:  cfg.Response.DisableBlock,
		DisableNotify: cfg.Response.DisableNotify,
		DryRun:        cfg.Response.DryRun,
		Blocker:       actions.NewScriptBlocker(cfg.Paths.BlockScript, cfg.Response.BlockTimeout, logger.Named("block")),
		Notifier:      actions.NewSMTPNotifier(cfg.SMTP, logger.Named("notify")),
		Metrics:       m,
		Logger:        logger.Named("responder"),
	})

	sum, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn("Cannot write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
	}

	out := cmd.OutOrStdout()
	if sum.NoNew {
		fmt.Fprintln(out, "no new decisions to process")
		return nil
	}
	if sum.Failures > 0 {
		logger.Warn("Some actions failed, see the actions log",
			zap.Int("failures", sum.Failures),
			zap.String("path", cfg.Paths.ActionsLog))
	}
	fmt.Fprintf(out, "%d response actions recorded\n", sum.Recorded)
	return nil
}
