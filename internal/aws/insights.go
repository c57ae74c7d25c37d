package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// LogsAPI is the minimal interface for CloudWatch Logs operations.
type LogsAPI interface {
	DescribeLogGroups(ctx context.Context, input *cloudwatchlogs.DescribeLogGroupsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	StartQuery(ctx context.Context, input *cloudwatchlogs.StartQueryInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, input *cloudwatchlogs.GetQueryResultsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
}

// Insights runs Logs Insights queries.
type Insights struct {
	client LogsAPI
}

// NewInsights creates a query runner over the given CloudWatch Logs client.
func NewInsights(client LogsAPI) *Insights {
	return &Insights{client: client}
}

// LogGroupExists lists groups by name prefix and checks for an exact match.
func (i *Insights) LogGroupExists(ctx context.Context, name string) (bool, error) {
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(i.client, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: awssdk.String(name),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("DescribeLogGroups %s: %w", name, err)
		}
		for _, g := range page.LogGroups {
			if awssdk.ToString(g.LogGroupName) == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// StartQuery submits a query over one log group and returns its id.
func (i *Insights) StartQuery(ctx context.Context, logGroup string, start, end time.Time, query string) (string, error) {
	out, err := i.client.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: awssdk.String(logGroup),
		StartTime:    awssdk.Int64(start.Unix()),
		EndTime:      awssdk.Int64(end.Unix()),
		QueryString:  awssdk.String(query),
	})
	if err != nil {
		return "", fmt.Errorf("StartQuery %s: %w", logGroup, err)
	}
	return awssdk.ToString(out.QueryId), nil
}

// QueryResults fetches the current state of a query.
func (i *Insights) QueryResults(ctx context.Context, queryID string) (QueryResult, error) {
	out, err := i.client.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{
		QueryId: awssdk.String(queryID),
	})
	if err != nil {
		return QueryResult{}, fmt.Errorf("GetQueryResults %s: %w", queryID, err)
	}

	res := QueryResult{Status: QueryStatus(out.Status)}
	if res.Status == "" {
		res.Status = QueryUnknown
	}
	if out.Statistics != nil {
		res.BytesScanned = out.Statistics.BytesScanned
	}
	for _, fields := range out.Results {
		row := make(map[string]string, len(fields))
		for _, f := range fields {
			row[awssdk.ToString(f.Field)] = awssdk.ToString(f.Value)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
