package cli

import (
	"log/slog"
	"os"

	"github.com/me/jobcascade/internal/config"
	"github.com/me/jobcascade/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDB        string
	flagServer    string
	flagUser      string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.Config
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking JOBCASCADE_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("JOBCASCADE_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the jobcascade CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobcascade",
		Short: "jobcascade: job templates and downstream build triggers",
		Long: "jobcascade stores CI job definitions, resolves their configuration through " +
			"template chains, and queues downstream builds when a build completes.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = flagLogFormat
			}
			if flagDB != "" {
				cfg.Storage.DBPath = flagDB
			}

			opts := logging.FromConfig(cfg.Log)
			opts.Debug = flagDebug
			logger = logging.New(opts)
			client = NewClient(flagServer, flagUser, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a TOML config file")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "Database path (overrides storage.db_path)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "jobcascade server URL (or JOBCASCADE_SERVER env)")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "Acting user for created projects and API requests")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newServeCmd(),
		newImportCmd(),
		newExportCmd(),
		newShowCmd(),
		newGraphCmd(),
		newNotifyCmd(),
		newQueueCmd(),
	)

	return root
}
