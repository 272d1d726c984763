package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ethanolivertroy/riskflow/internal/config"
	"github.com/ethanolivertroy/riskflow/internal/logging"
	"github.com/ethanolivertroy/riskflow/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig  string
	flagEnvFile string
	flagDebug   bool
	flagLogFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "riskflow",
	Short: "Score network scan results and respond to risky hosts",
	Long: `riskflow turns network scan results into risk decisions and acts on them.

The analyse stage extracts features for every scanned host, scores them with a
trained model or the built-in heuristic, enriches them with threat intel and
appends one decision event per host to the decision log.

The respond stage reads the decisions appended since its last run and, by risk
level, blocks the host at the firewall, emails the SOC, or only records it.

Examples:
  # Score a scan
  riskflow analyse scans/nightly.json

  # Score offline and print a SARIF report
  riskflow analyse scans/nightly.json --ti-offline --report sarif --output nightly.sarif

  # Act on new decisions without side effects
  riskflow respond --dry-run

  # Use a config file and a dedicated env file for credentials
  riskflow --config /etc/riskflow/riskflow.toml --env-file /etc/riskflow/riskflow.env respond`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		for _, hint := range errors.GetAllHints(err) {
			rootCmd.PrintErrln("hint:", hint)
		}
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Env file with credentials (default: ./.env when present)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(analyseCmd, respondCmd)
}

// setup loads the configuration, applies the command's explicit flags and builds the logger
func setup(cmd *cobra.Command, overrides func(cmd *cobra.Command, cfg *models.Config)) (*models.Config, *zap.Logger, error) {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return nil, nil, err
	}
	if overrides != nil {
		overrides(cmd, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, errors.WithHint(errors.Wrap(err, "invalid configuration"), "check the config file and flags")
	}

	logger := logging.New(logging.Options{
		Debug:   flagDebug,
		File:    flagLogFile,
		Console: cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

// setString copies a flag value over cfg when the flag was given explicitly
func setString(cmd *cobra.Command, name string, dst *string, value string) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func setBool(cmd *cobra.Command, name string, dst *bool, value bool) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}
