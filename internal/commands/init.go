package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initFlags struct {
	force bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate sample config and IAM policy",
	Long: `Creates a sample .lambdaspectre.yaml config file and an IAM policy JSON file
with the permissions the pipeline stages need.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, _ []string) error {
	configPath := ".lambdaspectre.yaml"
	policyPath := "lambdaspectre-policy.json"
	out := cmd.OutOrStdout()

	if err := writeIfNotExists(out, configPath, sampleConfig, initFlags.force); err != nil {
		return err
	}
	if err := writeIfNotExists(out, policyPath, sampleIAMPolicy, initFlags.force); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created %s and %s\n", configPath, policyPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set bucket in .lambdaspectre.yaml")
	fmt.Fprintln(out, "  2. Apply lambdaspectre-policy.json to your AWS IAM role/user (replace REPORT_BUCKET)")
	fmt.Fprintln(out, "  3. Run: lambdaspectre run --all")
	return nil
}

func writeIfNotExists(out io.Writer, path, content string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Skipping %s (already exists, use --force to overwrite)\n", path)
			return nil
		}
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return os.WriteFile(path, []byte(content), 0o644)
}

const sampleConfig = `# lambdaspectre configuration
# See: https://github.com/ppiankov/lambdaspectre

# AWS profile and region (or set AWS_PROFILE / AWS_REGION)
# profile: default
# region: us-east-1

# Bucket for batches, tables and summaries (or set BUCKET_NAME)
bucket: ""

# Functions per generator invocation
batch_size: 5

# Worker pools
partition_workers: 20
# Logs Insights throttles quickly; raise with care
query_workers: 2
download_workers: 10
# Batches analysed at once by 'lambdaspectre run'
batch_workers: 4

# Abort a batch when a function's configuration cannot be read
fail_on_lookup_error: false

# Skip functions with no invocations in CloudWatch metrics
skip_idle: false

# Logs Insights result polling
poll:
  base_interval: 1s
  max_interval: 30s
  throttle_max_interval: 60s
  max_attempts: 30

# Log format: text or json
log_format: text

# Run timeout
timeout: 30m

# Functions to leave out of discovery
# exclude:
#   functions:
#     - "dev-*"
`

const sampleIAMPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "LambdaSpectreAnalyse",
      "Effect": "Allow",
      "Action": [
        "lambda:GetFunctionConfiguration",
        "lambda:ListFunctions",
        "logs:DescribeLogGroups",
        "logs:StartQuery",
        "logs:GetQueryResults",
        "cloudwatch:GetMetricData",
        "sts:GetCallerIdentity"
      ],
      "Resource": "*"
    },
    {
      "Sid": "LambdaSpectreReports",
      "Effect": "Allow",
      "Action": [
        "s3:GetObject",
        "s3:PutObject",
        "s3:ListBucket"
      ],
      "Resource": [
        "arn:aws:s3:::REPORT_BUCKET",
        "arn:aws:s3:::REPORT_BUCKET/*"
      ]
    }
  ]
}
`
