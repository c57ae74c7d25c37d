package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/ppiankov/lambdaspectre/internal/logging"
	"github.com/ppiankov/lambdaspectre/internal/pipeline"
)

// envStage selects the stage when --stage is not given, so one image can back every function.
const envStage = "LAMBDASPECTRE_STAGE"

var serveFlags struct {
	stage string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a pipeline stage as a Lambda handler",
	Long: `Start the Lambda runtime loop for one pipeline stage. Deploy the binary once
per stage with --stage (or ` + envStage + `) set to one of: ` + strings.Join(pipeline.Stages, ", ") + `.

Reports are written to the bucket named by BUCKET_NAME. Logs are JSON unless
log_format says otherwise.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.stage, "stage", "", "Stage to serve")
}

func runServe(cmd *cobra.Command, _ []string) error {
	stage := serveFlags.stage
	if stage == "" {
		stage = os.Getenv(envStage)
	}
	if !validStage(stage) {
		return fmt.Errorf("unknown stage %q (use --stage with %s)", stage, strings.Join(pipeline.Stages, ", "))
	}
	if cfg.LogFormat == "" {
		logging.Init(verbose, logging.FormatJSON)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := newClient(cmd.Context())
	if err != nil {
		return err
	}
	store, err := newStore(client, "")
	if err != nil {
		return err
	}
	stages := buildStages(client, store)

	slog.Info("Serving pipeline stage", "stage", stage, "bucket", cfg.Bucket, "version", version)
	awslambda.Start(func(ctx context.Context, event json.RawMessage) (any, error) {
		return stages.dispatch(ctx, stage, event)
	})
	return nil
}
