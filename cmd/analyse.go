package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/cache"
	"github.com/ethanolivertroy/riskflow/internal/clients"
	"github.com/ethanolivertroy/riskflow/internal/decisionlog"
	"github.com/ethanolivertroy/riskflow/internal/intel"
	"github.com/ethanolivertroy/riskflow/internal/metrics"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/ethanolivertroy/riskflow/internal/pipeline"
	"github.com/ethanolivertroy/riskflow/internal/reporter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagModel          string
	flagDecisionLog    string
	flagMirrorLog      string
	flagAuditFile      string
	flagScanHistory    string
	flagTICache        string
	flagLastFeatures   string
	flagDisableExplain bool
	flagTIOffline      bool
	flagReport         string
	flagOutput         string
)

var analyseCmd = &cobra.Command{
	Use:     "analyse <scan.json>",
	Aliases: []string{"analyze"},
	Short:   "Score a scan and append one decision event per host",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.WithHint(
				errors.Newf("expected exactly one scan document, got %d", len(args)),
				"usage: riskflow analyse <scan.json>",
			)
		}
		return nil
	},
	RunE: runAnalyse,
}

func init() {
	f := analyseCmd.Flags()
	f.StringVar(&flagModel, "model", "", "Trained model artifact")
	f.StringVar(&flagDecisionLog, "decision-log", "", "Decision log (JSON lines)")
	f.StringVar(&flagMirrorLog, "mirror-log", "", "Mirrored decision log for a log shipper, empty disables")
	f.StringVar(&flagAuditFile, "audit-file", "", "Decision audit JSON array")
	f.StringVar(&flagScanHistory, "scan-history", "", "Scan history JSON array, empty disables")
	f.StringVar(&flagTICache, "ti-cache", "", "Threat intel cache file")
	f.StringVar(&flagLastFeatures, "last-features", "", "Dump of this run's host features, empty disables")
	f.BoolVar(&flagDisableExplain, "disable-explain", false, "Do not attach feature attributions")
	f.BoolVar(&flagTIOffline, "ti-offline", false, "Never call remote threat intel services")
	f.StringVarP(&flagReport, "report", "r", "", "Also render a report: terminal, json, sarif")
	f.StringVarP(&flagOutput, "output", "o", "", "Report output file (default: stdout)")
}

func analyseOverrides(cmd *cobra.Command, cfg *models.Config) {
	setString(cmd, "model", &cfg.Paths.Model, flagModel)
	setString(cmd, "decision-log", &cfg.Paths.DecisionLog, flagDecisionLog)
	setString(cmd, "mirror-log", &cfg.Paths.MirrorLog, flagMirrorLog)
	setString(cmd, "audit-file", &cfg.Paths.Audit, flagAuditFile)
	setString(cmd, "scan-history", &cfg.Paths.ScanHistory, flagScanHistory)
	setString(cmd, "ti-cache", &cfg.Paths.TICache, flagTICache)
	setString(cmd, "last-features", &cfg.Paths.LastFeatures, flagLastFeatures)
	setBool(cmd, "disable-explain", &cfg.Analysis.DisableExplain, flagDisableExplain)
	setBool(cmd, "ti-offline", &cfg.Intel.Offline, flagTIOffline)
}

func runAnalyse(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, analyseOverrides)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m := metrics.New()

	// Threat intel cache and remote lookups
	store := openStore(ctx, cfg, logger)
	defer store.Close()

	otx := clients.NewOTXClient(clients.OTXConfig{
		BaseURL:   cfg.Intel.BaseURL,
		APIKey:    cfg.Intel.APIKey,
		Timeout:   cfg.Intel.Timeout,
		RateLimit: cfg.Intel.RateLimit,
	}, logger.Named("otx"))
	kev := clients.NewKEVClient(cfg.Intel.KEVURL, 0, logger.Named("kev"))
	enricher := intel.NewEnricher(store,
		intel.WithRemote(otx),
		intel.WithRemote(kev),
		intel.WithOffline(cfg.Intel.Offline),
		intel.WithLogger(logger.Named("intel")),
		intel.WithMetrics(m),
	)

	// Decision log and its mirrors
	logOpts := decisionlog.Options{
		Path:        cfg.Paths.DecisionLog,
		MirrorPath:  cfg.Paths.MirrorLog,
		AuditPath:   cfg.Paths.Audit,
		HistoryPath: cfg.Paths.ScanHistory,
		Logger:      logger.Named("decisionlog"),
	}
	if cfg.NATS.URL != "" {
		pub, err := decisionlog.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger.Named("nats"))
		if err != nil {
			logger.Warn("NATS unavailable, decisions will not be published", zap.String("url", cfg.NATS.URL), zap.Error(err))
		} else {
			logOpts.Publisher = pub
		}
	}
	dlog := decisionlog.New(logOpts)
	defer dlog.Close()

	analyser := pipeline.New(pipeline.Options{
		ModelPath:       cfg.Paths.Model,
		LastFeatures:    cfg.Paths.LastFeatures,
		MetricsTextfile: cfg.Metrics.Textfile,
		DisableExplain:  cfg.Analysis.DisableExplain,
		Log:             dlog,
		Enricher:        enricher,
		Metrics:         m,
		Logger:          logger.Named("pipeline"),
	})

	res, err := analyser.Run(ctx, args[0])
	if err != nil {
		return err
	}

	// decisions are already logged, a report failure does not fail the run
	if flagReport != "" {
		if err := writeReport(cmd, res.Events); err != nil {
			logger.Warn("Cannot write report", zap.String("format", flagReport), zap.String("output", flagOutput), zap.Error(err))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d hosts analysed (strategy=%s)\n", len(res.Events), res.Strategy)
	return nil
}

// openStore returns the Redis cache when configured and reachable, else the file cache
func openStore(ctx context.Context, cfg *models.Config, logger *zap.Logger) cache.Store {
	if cfg.Intel.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.Intel.RedisAddr, cfg.Intel.RedisPassword, cfg.Intel.RedisDB)
		if err == nil {
			logger.Debug("Using shared threat intel cache", zap.String("addr", cfg.Intel.RedisAddr))
			return rs
		}
		logger.Warn("Redis unavailable, using the file cache",
			zap.String("addr", cfg.Intel.RedisAddr),
			zap.String("path", cfg.Paths.TICache),
			zap.Error(err))
	}
	return cache.NewFileStore(cfg.Paths.TICache)
}

func writeReport(cmd *cobra.Command, events []models.DecisionEvent) error {
	rep := reporter.Get(flagReport)
	output, err := rep.Report(events)
	if err != nil {
		return errors.Wrap(err, "failed to generate report")
	}

	if flagOutput != "" {
		if err := os.WriteFile(flagOutput, output, 0644); err != nil {
			return errors.Wrap(err, "failed to write output file")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", flagOutput)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(output)
	return err
}
