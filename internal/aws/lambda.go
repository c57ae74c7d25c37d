package aws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

const (
	defaultRuntime          = "Docker Image"
	defaultMemoryMB         = 128
	defaultEphemeralMB      = 512
	defaultArchitecture     = "x86_64"
	defaultLogGroupTemplate = "/aws/lambda/%s"
)

// ErrFunctionNotFound is returned when a function does not exist in the region.
var ErrFunctionNotFound = errors.New("function not found")

// LambdaAPI is the minimal interface for Lambda operations.
type LambdaAPI interface {
	GetFunctionConfiguration(ctx context.Context, input *lambda.GetFunctionConfigurationInput, opts ...func(*lambda.Options)) (*lambda.GetFunctionConfigurationOutput, error)
	ListFunctions(ctx context.Context, input *lambda.ListFunctionsInput, opts ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

// FunctionLookup reads Lambda function configuration.
type FunctionLookup struct {
	client LambdaAPI
}

// NewFunctionLookup creates a lookup over the given Lambda client.
func NewFunctionLookup(client LambdaAPI) *FunctionLookup {
	return &FunctionLookup{client: client}
}

// FunctionConfig fetches the current configuration of a function.
// Image-packaged functions have no runtime and report "Docker Image".
func (l *FunctionLookup) FunctionConfig(ctx context.Context, name string) (FunctionConfig, error) {
	out, err := l.client.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: awssdk.String(name),
	})
	if err != nil {
		if IsNotFound(err) {
			return FunctionConfig{}, fmt.Errorf("%w: %s: %w", ErrFunctionNotFound, name, err)
		}
		return FunctionConfig{}, fmt.Errorf("GetFunctionConfiguration %s: %w", name, err)
	}

	fc := FunctionConfig{
		Name:               name,
		Runtime:            string(out.Runtime),
		MemoryMB:           defaultMemoryMB,
		EphemeralStorageMB: defaultEphemeralMB,
		Architecture:       defaultArchitecture,
		LogGroup:           fmt.Sprintf(defaultLogGroupTemplate, name),
	}
	if fc.Runtime == "" {
		fc.Runtime = defaultRuntime
	}
	if out.MemorySize != nil {
		fc.MemoryMB = int(*out.MemorySize)
	}
	if out.EphemeralStorage != nil && out.EphemeralStorage.Size != nil {
		fc.EphemeralStorageMB = int(*out.EphemeralStorage.Size)
	}
	if len(out.Architectures) > 0 {
		fc.Architecture = string(out.Architectures[0])
	}
	if out.LoggingConfig != nil && awssdk.ToString(out.LoggingConfig.LogGroup) != "" {
		fc.LogGroup = awssdk.ToString(out.LoggingConfig.LogGroup)
	}
	return fc, nil
}

// ListFunctionNames returns the names of every function in the region.
func (l *FunctionLookup) ListFunctionNames(ctx context.Context) ([]string, error) {
	var names []string
	paginator := lambda.NewListFunctionsPaginator(l.client, &lambda.ListFunctionsInput{})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListFunctions: %w", err)
		}
		for _, fn := range page.Functions {
			names = append(names, awssdk.ToString(fn.FunctionName))
		}
	}
	slog.Debug("Listed Lambda functions", "count", len(names))
	return names, nil
}

// DropIdle removes functions with zero invocations between start and end.
// If metrics cannot be fetched the input is returned unchanged.
func DropIdle(ctx context.Context, metrics *MetricsFetcher, names []string, start, end time.Time) []string {
	invocations, err := metrics.FetchSum(ctx, "AWS/Lambda", "Invocations", "FunctionName", names, start, end)
	if err != nil {
		slog.Warn("Failed to fetch Lambda metrics; keeping all functions", "error", err)
		return names
	}

	active := make([]string, 0, len(names))
	for _, name := range names {
		if invocations[name] > 0 {
			active = append(active, name)
			continue
		}
		slog.Debug("Skipping idle function", "function", name)
	}
	return active
}
