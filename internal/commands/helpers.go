package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/lambdaspectre/internal/report"
)

// enhanceError wraps an error with context and suggestions for common AWS issues.
func enhanceError(action string, err error) error {
	msg := err.Error()

	var hint string
	switch {
	case strings.Contains(msg, "NoCredentialProviders") || strings.Contains(msg, "failed to retrieve credentials"):
		hint = "Configure AWS credentials: set AWS_PROFILE, AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY, or run 'aws configure'"
	case strings.Contains(msg, "ExpiredToken"):
		hint = "AWS session token expired. Refresh credentials or run 'aws sso login'"
	case strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "UnauthorizedAccess"):
		hint = "Insufficient permissions. Apply the IAM policy from 'lambdaspectre init' to your role/user"
	case strings.Contains(msg, "NoSuchBucket"):
		hint = "Report bucket does not exist. Set bucket in .lambdaspectre.yaml, --bucket or BUCKET_NAME"
	case strings.Contains(msg, "RequestExpired"):
		hint = "Request expired. Check system clock synchronization"
	case strings.Contains(msg, "Throttling") || strings.Contains(msg, "TooManyRequests"):
		hint = "AWS API rate limit hit. Lower query_workers or raise poll.max_attempts"
	}

	if hint != "" {
		return fmt.Errorf("%s: %w\n  hint: %s", action, err, hint)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// selectReporter returns the reporter for format writing to outputFile, or
// stdout, and the function that closes the output. The format is checked
// before any file is created.
func selectReporter(format, outputFile string, top int) (report.Reporter, func() error, error) {
	if _, err := newReporter(format, io.Discard, top); err != nil {
		return nil, nil, err
	}
	if outputFile == "" {
		r, _ := newReporter(format, os.Stdout, top)
		return r, func() error { return nil }, nil
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	r, _ := newReporter(format, f, top)
	return r, f.Close, nil
}

func newReporter(format string, w io.Writer, top int) (report.Reporter, error) {
	switch format {
	case "json":
		return &report.JSONReporter{Writer: w}, nil
	case "text":
		return &report.TextReporter{Writer: w, Top: top}, nil
	case "sarif":
		return &report.SARIFReporter{Writer: w}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (use text, json, or sarif)", format)
	}
}

// writeReport renders data in format and closes the output.
func writeReport(format, outputFile string, top int, data report.Data) error {
	reporter, closeOut, err := selectReporter(format, outputFile, top)
	if err != nil {
		return err
	}
	if err := reporter.Generate(data); err != nil {
		_ = closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

// readEvent reads a JSON event from a file, or stdin when path is "-".
func readEvent(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read event from stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event %s: %w", path, err)
	}
	return b, nil
}
