package costquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lambdaspectre/internal/aws"
	"github.com/ppiankov/lambdaspectre/internal/report"
)

type fakeConfigs struct {
	configFn func(ctx context.Context, name string) (aws.FunctionConfig, error)
}

func (f *fakeConfigs) FunctionConfig(ctx context.Context, name string) (aws.FunctionConfig, error) {
	return f.configFn(ctx, name)
}

type fakeBackend struct {
	mu           sync.Mutex
	exists       bool
	existsErr    error
	startErr     error
	startCalls   int
	lastQuery    string
	resultsFn    func(call int) (aws.QueryResult, error)
	resultsCalls int
}

func (f *fakeBackend) LogGroupExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeBackend) StartQuery(_ context.Context, _ string, _, _ time.Time, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastQuery = query
	if f.startErr != nil {
		return "", f.startErr
	}
	return "q-1", nil
}

func (f *fakeBackend) QueryResults(context.Context, string) (aws.QueryResult, error) {
	f.mu.Lock()
	call := f.resultsCalls
	f.resultsCalls++
	f.mu.Unlock()
	return f.resultsFn(call)
}

func staticConfig(arch string) *fakeConfigs {
	return &fakeConfigs{configFn: func(_ context.Context, name string) (aws.FunctionConfig, error) {
		return aws.FunctionConfig{
			Name:               name,
			Runtime:            "python3.12",
			MemoryMB:           128,
			EphemeralStorageMB: 512,
			Architecture:       arch,
			LogGroup:           "/aws/lambda/" + name,
		}, nil
	}}
}

// sampleRow matches a function with 3 invocations, 128 MB provisioned and a 70 MB peak.
func sampleRow() map[string]string {
	return map[string]string{
		"timeoutInvocations":       "0",
		"countInvocations":         "3",
		"memoryExceededInvocation": "0",
		"singleInvocationCost":     "0.0000002",
		"provisionedMemoryMB":      "128",
		"allDurationInSeconds":     "3",
		"MemoryCost":               "0.000006250012",
		"StorageCost":              "0",
		"InvocationCost":           "0.0000006",
		"totalCost":                "0.000006850012",
		"maxMemoryUsedMB":          "70",
		"overProvisionedMB":        "58",
		"optimalMemory":            "84",
		"potentialSavings":         "0.000002148438",
		"avgCostPerInvocation":     "0.000002283337",
		"avgDurationPerInvocation": "1",
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestEngine(configs ConfigSource, backend QueryBackend) (*Engine, *sleepRecorder) {
	rec := &sleepRecorder{}
	e := NewEngine(configs, backend, PollPolicy{})
	e.sleep = rec.sleep
	return e, rec
}

var window = report.Window{
	Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC),
}

func TestAnalyze_CompletesAfterPolling(t *testing.T) {
	backend := &fakeBackend{
		exists: true,
		resultsFn: func(call int) (aws.QueryResult, error) {
			if call < 2 {
				return aws.QueryResult{Status: aws.QueryRunning}, nil
			}
			return aws.QueryResult{Status: aws.QueryComplete, Rows: []map[string]string{sampleRow()}, BytesScanned: 1 << 30}, nil
		},
	}
	engine, sleeper := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "orders-api", window)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "orders-api", rec.FunctionName)
	assert.Equal(t, "python3.12", rec.Runtime)
	assert.Equal(t, "x86_64", rec.Architecture)
	assert.Equal(t, 3.0, rec.CountInvocations)
	assert.Equal(t, 128.0, rec.ProvisionedMemoryMB)
	assert.Equal(t, 70.0, rec.MaxMemoryUsedMB)
	assert.Equal(t, 84.0, rec.OptimalMemory)
	assert.Equal(t, 1.0, rec.AvgDurationPerInvocation)
	assert.InDelta(t, 0.000002148438, rec.PotentialSavings, 1e-15)
	assert.Equal(t, 1.0, rec.LogSizeGB)
	assert.InDelta(t, 0.5, rec.LogIngestionCost, 1e-12)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestAnalyze_MissingLogGroup(t *testing.T) {
	backend := &fakeBackend{exists: false}
	engine, _ := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "never-invoked", window)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, backend.startCalls, "no query for a missing log group")
}

func TestAnalyze_LogGroupCheckErrorIsAbsent(t *testing.T) {
	backend := &fakeBackend{existsErr: errors.New("AccessDenied")}
	engine, _ := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "fn", window)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAnalyze_ConfigLookupFails(t *testing.T) {
	configs := &fakeConfigs{configFn: func(context.Context, string) (aws.FunctionConfig, error) {
		return aws.FunctionConfig{}, errors.New("ResourceNotFoundException")
	}}
	engine, _ := newTestEngine(configs, &fakeBackend{exists: true})

	rec, err := engine.Analyze(context.Background(), "ghost", window)
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Contains(t, err.Error(), "ghost")
}

func TestAnalyze_TerminalStatusesAreAbsent(t *testing.T) {
	for _, status := range []aws.QueryStatus{aws.QueryFailed, aws.QueryCancelled, aws.QueryTimeout} {
		t.Run(string(status), func(t *testing.T) {
			backend := &fakeBackend{
				exists: true,
				resultsFn: func(int) (aws.QueryResult, error) {
					return aws.QueryResult{Status: status}, nil
				},
			}
			engine, sleeper := newTestEngine(staticConfig("arm64"), backend)

			rec, err := engine.Analyze(context.Background(), "fn", window)
			require.NoError(t, err)
			assert.Nil(t, rec)
			assert.Empty(t, sleeper.waits)
		})
	}
}

func TestAnalyze_PollingExhausted(t *testing.T) {
	backend := &fakeBackend{
		exists: true,
		resultsFn: func(int) (aws.QueryResult, error) {
			return aws.QueryResult{Status: aws.QueryRunning}, nil
		},
	}
	engine, sleeper := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "slow", window)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 30, backend.resultsCalls)
	require.Len(t, sleeper.waits, 30)
	assert.Equal(t, 16*time.Second, sleeper.waits[4])
	assert.Equal(t, 30*time.Second, sleeper.waits[5])
	assert.Equal(t, 30*time.Second, sleeper.waits[29])
}

func TestAnalyze_ThrottlingBacksOffHarder(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"}
	backend := &fakeBackend{
		exists: true,
		resultsFn: func(call int) (aws.QueryResult, error) {
			switch call {
			case 0:
				return aws.QueryResult{}, throttled
			case 1:
				return aws.QueryResult{Status: aws.QueryRunning}, nil
			default:
				return aws.QueryResult{Status: aws.QueryComplete, Rows: []map[string]string{sampleRow()}}, nil
			}
		},
	}
	engine, sleeper := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "fn", window)
	require.NoError(t, err)
	require.NotNil(t, rec)
	// throttle wait at attempt 0 is 1s*2^2, then the normal wait at attempt 1 is 2s
	assert.Equal(t, []time.Duration{4 * time.Second, 2 * time.Second}, sleeper.waits)
}

func TestAnalyze_UnclassifiedPollErrorIsAbsent(t *testing.T) {
	backend := &fakeBackend{
		exists: true,
		resultsFn: func(int) (aws.QueryResult, error) {
			return aws.QueryResult{}, errors.New("connection reset")
		},
	}
	engine, _ := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "fn", window)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, backend.resultsCalls)
}

func TestAnalyze_MalformedQueryIsAbsent(t *testing.T) {
	backend := &fakeBackend{exists: true, startErr: &cwltypes.MalformedQueryException{}}
	engine, _ := newTestEngine(staticConfig("x86_64"), backend)

	rec, err := engine.Analyze(context.Background(), "fn", window)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAnalyze_EmptyAndZeroResults(t *testing.T) {
	zero := sampleRow()
	zero["countInvocations"] = "0"

	for name, rows := range map[string][]map[string]string{
		"no rows":         nil,
		"zero invocation": {zero},
	} {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{
				exists: true,
				resultsFn: func(int) (aws.QueryResult, error) {
					return aws.QueryResult{Status: aws.QueryComplete, Rows: rows}, nil
				},
			}
			engine, _ := newTestEngine(staticConfig("x86_64"), backend)

			rec, err := engine.Analyze(context.Background(), "fn", window)
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestAnalyze_NegativeSavingsClamped(t *testing.T) {
	row := sampleRow()
	row["potentialSavings"] = "-0.25"
	row["optimalMemory"] = "100"
	backend := &fakeBackend{
		exists: true,
		resultsFn: func(int) (aws.QueryResult, error) {
			return aws.QueryResult{Status: aws.QueryComplete, Rows: []map[string]string{row}}, nil
		},
	}
	engine, _ := newTestEngine(staticConfig("arm64"), backend)

	rec, err := engine.Analyze(context.Background(), "fn", window)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0.0, rec.PotentialSavings)
	assert.Equal(t, rec.ProvisionedMemoryMB, rec.OptimalMemory)
}

func TestProperty_SavingsInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("savings never negative and optimal never above provisioned", prop.ForAll(
		func(arm bool, provisioned, optimal, savings float64) bool {
			arch := "x86_64"
			if arm {
				arch = "arm64"
			}
			row := sampleRow()
			row["provisionedMemoryMB"] = fmt.Sprint(provisioned)
			row["optimalMemory"] = fmt.Sprint(optimal)
			row["potentialSavings"] = fmt.Sprint(savings)

			rec, err := buildRecord(aws.FunctionConfig{Name: "fn", Architecture: arch}, aws.QueryResult{Rows: []map[string]string{row}})
			if err != nil {
				return false
			}
			if rec.PotentialSavings < 0 || rec.OptimalMemory > rec.ProvisionedMemoryMB {
				return false
			}
			if savings < 0 {
				return rec.PotentialSavings == 0 && rec.OptimalMemory == rec.ProvisionedMemoryMB
			}
			return true
		},
		gen.Bool(),
		gen.Float64Range(128, 10240),
		gen.Float64Range(128, 10240),
		gen.Float64Range(-1, 1),
	))

	properties.TestingRun(t)
}

func TestBuildQuery(t *testing.T) {
	arm := BuildQuery(aws.FunctionConfig{Architecture: "arm64", EphemeralStorageMB: 512})
	x86 := BuildQuery(aws.FunctionConfig{Architecture: "x86_64", EphemeralStorageMB: 1024})

	assert.Contains(t, arm, "0.0000133334 as GBSecondMemoryPrice")
	assert.Contains(t, x86, "0.0000166667 as GBSecondMemoryPrice")
	assert.Contains(t, arm, "0 as StorageSizeMB")
	assert.Contains(t, x86, "512 as StorageSizeMB")
	assert.Contains(t, arm, "0.0000000309 as GBSecondStoragePrice")
	assert.Contains(t, arm, "0.0000002 as singleInvocationCost")
	assert.Contains(t, arm, "greatest(maxMemoryUsedMB * 1.2, 128) as optimalMinMemory")
	assert.NotContains(t, arm, "{{", "all placeholders must be replaced")

	for _, field := range []string{"countInvocations", "timeoutInvocations", "memoryExceededInvocation", "potentialSavings", "avgCostPerInvocation", "avgDurationPerInvocation"} {
		assert.True(t, strings.Contains(arm, " as "+field), field)
	}
}

func TestPollPolicy_Schedule(t *testing.T) {
	p := DefaultPollPolicy()

	var waits []time.Duration
	for i := 0; i < 7; i++ {
		waits = append(waits, p.Wait(i))
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, waits)

	assert.Equal(t, 4*time.Second, p.ThrottleWait(0))
	assert.Equal(t, 32*time.Second, p.ThrottleWait(3))
	assert.Equal(t, 60*time.Second, p.ThrottleWait(4))
	assert.Equal(t, 60*time.Second, p.ThrottleWait(100), "large attempts must not overflow")
}

func TestPollPolicy_WithDefaults(t *testing.T) {
	p := PollPolicy{MaxAttempts: 5}.WithDefaults()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseInterval)
	assert.Equal(t, 30*time.Second, p.MaxInterval)
	assert.Equal(t, 60*time.Second, p.ThrottleMaxInterval)
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
