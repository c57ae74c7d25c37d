package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/lambdaspectre/internal/aws"
	"github.com/ppiankov/lambdaspectre/internal/costquery"
	"github.com/ppiankov/lambdaspectre/internal/pipeline"
	"github.com/ppiankov/lambdaspectre/internal/storage"
)

// stageSet holds one handler per pipeline stage over a shared store.
type stageSet struct {
	store       storage.BlobStore
	bucket      string
	batches     int
	initializer *pipeline.Initializer
	generator   *pipeline.Generator
	aggregator  *pipeline.Aggregator
	recorder    *pipeline.ErrorRecorder
}

// newClient creates the AWS client for the configured profile and region.
func newClient(ctx context.Context) (*aws.Client, error) {
	client, err := aws.NewClient(ctx, cfg.Profile, cfg.Region)
	if err != nil {
		return nil, enhanceError("initialize AWS client", err)
	}
	return client, nil
}

// newStore returns a filesystem store when localDir is set, S3 otherwise.
func newStore(client *aws.Client, localDir string) (storage.BlobStore, error) {
	if localDir != "" {
		store, err := storage.NewLocalStore(localDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return storage.NewS3Store(client.S3()), nil
}

// buildStages wires every stage from the loaded configuration.
func buildStages(client *aws.Client, store storage.BlobStore) *stageSet {
	opts := cfg.PipelineOptions()
	engine := costquery.NewEngine(
		aws.NewFunctionLookup(client.Lambda()),
		aws.NewInsights(client.Logs()),
		cfg.Poll.Policy(),
	)
	return &stageSet{
		store:       store,
		bucket:      opts.Bucket,
		batches:     opts.BatchWorkers,
		initializer: pipeline.NewInitializer(store, opts),
		generator:   pipeline.NewGenerator(store, engine, opts),
		aggregator:  pipeline.NewAggregator(store, opts),
		recorder:    pipeline.NewErrorRecorder(store, opts),
	}
}

// dispatch decodes event for the named stage, runs it and returns its output.
func (s *stageSet) dispatch(ctx context.Context, stage string, event json.RawMessage) (any, error) {
	switch stage {
	case pipeline.StageInitializer:
		var ev pipeline.InitializeEvent
		if err := decodeEvent(event, &ev); err != nil {
			return nil, err
		}
		return s.initializer.Handle(ctx, ev)
	case pipeline.StageGenerator:
		var ev pipeline.BatchEvent
		if err := decodeEvent(event, &ev); err != nil {
			return nil, err
		}
		return s.generator.Handle(ctx, ev)
	case pipeline.StageAggregator:
		var ev []pipeline.BatchResult
		if err := decodeEvent(event, &ev); err != nil {
			return nil, err
		}
		return s.aggregator.Handle(ctx, ev)
	case pipeline.StageErrorHandler:
		var ev pipeline.FailureEvent
		if err := decodeEvent(event, &ev); err != nil {
			return nil, err
		}
		return s.recorder.Handle(ctx, ev)
	default:
		return nil, fmt.Errorf("unknown stage %q (use %v)", stage, pipeline.Stages)
	}
}

func decodeEvent(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrInvalidEvent, err)
	}
	return nil
}

// validStage reports whether name is a known stage.
func validStage(name string) bool {
	for _, s := range pipeline.Stages {
		if s == name {
			return true
		}
	}
	return false
}
