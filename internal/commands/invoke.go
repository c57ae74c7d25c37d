package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lambdaspectre/internal/pipeline"
)

var invokeFlags struct {
	event    string
	localDir string
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <stage>",
	Short: "Run one pipeline stage on a JSON event",
	Long: `Run a single stage handler with the event the workflow would pass and print
its output. Stages: ` + strings.Join(pipeline.Stages, ", ") + `.

Read the event from a file with --event, or from stdin with --event -.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeFlags.event, "event", "-", "Event file path, or - for stdin")
	invokeCmd.Flags().StringVar(&invokeFlags.localDir, "local-dir", "", "Use this directory instead of S3")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	stage := args[0]
	if !validStage(stage) {
		return fmt.Errorf("unknown stage %q (use %s)", stage, strings.Join(pipeline.Stages, ", "))
	}
	if invokeFlags.localDir != "" && cfg.Bucket == "" {
		cfg.Bucket = "local"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	event, err := readEvent(invokeFlags.event, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	store, err := newStore(client, invokeFlags.localDir)
	if err != nil {
		return err
	}

	out, err := buildStages(client, store).dispatch(ctx, stage, event)
	if err != nil {
		return enhanceError("invoke "+stage, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
