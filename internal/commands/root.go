package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lambdaspectre/internal/config"
	"github.com/ppiankov/lambdaspectre/internal/logging"
)

var (
	verbose   bool
	profile   string
	region    string
	bucket    string
	logFormat string
	version   string
	commit    string
	date      string
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lambdaspectre",
	Short: "lambdaspectre — Lambda cost and right-sizing reports",
	Long: `lambdaspectre computes the cost of your Lambda functions from their
CloudWatch Logs REPORT lines and recommends a memory size for each one.

Reports are built by a staged pipeline (initializer, generator, aggregator,
error-handler) that runs either as Lambda handlers behind a workflow or
locally with 'lambdaspectre run'. Results are stored in S3.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(".")
		if err != nil {
			logging.Init(verbose, logFormat)
			slog.Warn("Failed to load config file", "error", err)
		} else {
			cfg = loaded
		}
		cfg = cfg.WithEnv(os.Getenv)
		applyGlobalFlags()
		logging.Init(verbose, cfg.LogFormat)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with injected build info.
func Execute(v, c, d string) error {
	version = v
	commit = c
	date = d
	return rootCmd.Execute()
}

// applyGlobalFlags lets explicit flags win over the file and environment.
func applyGlobalFlags() {
	if profile != "" {
		cfg.Profile = profile
	}
	if region != "" {
		cfg.Region = region
	}
	if bucket != "" {
		cfg.Bucket = bucket
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS profile name")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (default: from AWS config)")
	rootCmd.PersistentFlags().StringVar(&bucket, "bucket", "", "Report bucket (default: config or $BUCKET_NAME)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
