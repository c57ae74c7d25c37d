package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// queryRetryAttempts is the SDK-level retry budget for the Lambda and Logs APIs.
// Logs Insights throttles aggressively, so those clients use adaptive retries.
const queryRetryAttempts = 10

// Client wraps the AWS SDK configuration for creating service clients.
type Client struct {
	cfg aws.Config
}

// NewClient creates a new AWS client using the specified profile and region.
// If profile is empty, the default credential chain is used.
// If region is empty, the default region from config/env is used.
func NewClient(ctx context.Context, profile, region string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Client{cfg: cfg}, nil
}

// Config returns the underlying AWS config.
func (c *Client) Config() aws.Config {
	return c.cfg
}

// Region returns the resolved region.
func (c *Client) Region() string {
	return c.cfg.Region
}

// Lambda returns a Lambda client with adaptive retries.
func (c *Client) Lambda() *lambda.Client {
	return lambda.NewFromConfig(c.cfg, func(o *lambda.Options) {
		o.RetryMode = aws.RetryModeAdaptive
		o.RetryMaxAttempts = queryRetryAttempts
	})
}

// Logs returns a CloudWatch Logs client with adaptive retries.
func (c *Client) Logs() *cloudwatchlogs.Client {
	return cloudwatchlogs.NewFromConfig(c.cfg, func(o *cloudwatchlogs.Options) {
		o.RetryMode = aws.RetryModeAdaptive
		o.RetryMaxAttempts = queryRetryAttempts
	})
}

// CloudWatch returns a CloudWatch metrics client.
func (c *Client) CloudWatch() *cloudwatch.Client {
	return cloudwatch.NewFromConfig(c.cfg)
}

// S3 returns an S3 client.
func (c *Client) S3() *s3.Client {
	return s3.NewFromConfig(c.cfg)
}

// AccountID returns the account the credentials belong to.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	out, err := sts.NewFromConfig(c.cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("GetCallerIdentity: %w", err)
	}
	id := aws.ToString(out.Account)
	slog.Debug("Resolved caller identity", "account", id, "arn", aws.ToString(out.Arn))
	return id, nil
}
