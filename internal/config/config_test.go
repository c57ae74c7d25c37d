package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ppiankov/lambdaspectre/internal/pipeline"
)

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "" {
		t.Fatalf("expected empty profile, got %q", cfg.Profile)
	}
	if cfg.BatchSize != 0 {
		t.Fatalf("expected zero batch_size, got %d", cfg.BatchSize)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	content := `profile: production
region: eu-west-1
bucket: cost-reports
batch_size: 10
query_workers: 3
fail_on_lookup_error: true
skip_idle: true
log_format: json
timeout: 15m
poll:
  base_interval: 2s
  max_interval: 20s
  max_attempts: 12
exclude:
  functions:
    - "dev-*"
`
	if err := os.WriteFile(filepath.Join(dir, ".lambdaspectre.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "production" || cfg.Region != "eu-west-1" || cfg.Bucket != "cost-reports" {
		t.Fatalf("unexpected identity fields: %+v", cfg)
	}
	if cfg.BatchSize != 10 || cfg.QueryWorkers != 3 {
		t.Fatalf("unexpected pool fields: %+v", cfg)
	}
	if !cfg.FailOnLookupError || !cfg.SkipIdle {
		t.Fatal("expected boolean flags set")
	}
	if cfg.TimeoutDuration() != 15*time.Minute {
		t.Fatalf("expected 15m timeout, got %s", cfg.TimeoutDuration())
	}

	policy := cfg.Poll.Policy()
	if policy.BaseInterval != 2*time.Second || policy.MaxInterval != 20*time.Second || policy.MaxAttempts != 12 {
		t.Fatalf("unexpected poll policy: %+v", policy)
	}
	if policy.ThrottleMaxInterval != time.Minute {
		t.Fatalf("expected default throttle cap, got %s", policy.ThrottleMaxInterval)
	}
	if len(cfg.Exclude.Functions) != 1 {
		t.Fatalf("expected 1 exclude pattern, got %d", len(cfg.Exclude.Functions))
	}
}

func TestLoad_YMLExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".lambdaspectre.yml"), []byte("profile: staging\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "staging" {
		t.Fatalf("expected profile staging, got %q", cfg.Profile)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".lambdaspectre.yaml"), []byte(`[invalid yaml content`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_YAMLPriority(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".lambdaspectre.yaml"), []byte(`profile: from-yaml`), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".lambdaspectre.yml"), []byte(`profile: from-yml`), 0o644); err != nil {
		t.Fatalf("write yml: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Profile != "from-yaml" {
		t.Fatalf("expected profile from-yaml (priority), got %q", cfg.Profile)
	}
}

func TestWithEnv(t *testing.T) {
	env := map[string]string{EnvBucket: "from-env", EnvLogFormat: "json"}
	cfg := Config{Bucket: "from-file", LogFormat: "text"}.WithEnv(func(k string) string { return env[k] })

	if cfg.Bucket != "from-env" {
		t.Fatalf("expected env bucket, got %q", cfg.Bucket)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("expected env log format, got %q", cfg.LogFormat)
	}

	unchanged := Config{Bucket: "from-file"}.WithEnv(func(string) string { return "" })
	if unchanged.Bucket != "from-file" {
		t.Fatalf("empty env must not override, got %q", unchanged.Bucket)
	}
}

func TestPipelineOptions_Defaults(t *testing.T) {
	opts := Config{Bucket: "b", QueryWorkers: 4}.PipelineOptions()
	want := pipeline.Options{
		Bucket:           "b",
		BatchSize:        pipeline.DefaultBatchSize,
		PartitionWorkers: pipeline.DefaultPartitionWorkers,
		QueryWorkers:     4,
		DownloadWorkers:  pipeline.DefaultDownloadWorkers,
		BatchWorkers:     pipeline.DefaultBatchWorkers,
	}
	if opts != want {
		t.Fatalf("expected %+v, got %+v", want, opts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{Bucket: "b"}, false},
		{"no bucket", Config{}, true},
		{"negative workers", Config{Bucket: "b", QueryWorkers: -1}, true},
		{"bad interval", Config{Bucket: "b", Poll: Poll{BaseInterval: "soon"}}, true},
		{"bad timeout", Config{Bucket: "b", Timeout: "10"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExclude_Filter(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		in       []string
		want     []string
	}{
		{"no patterns", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"exact", []string{"b"}, []string{"a", "b"}, []string{"a"}},
		{"glob", []string{"dev-*"}, []string{"dev-api", "prod-api", "dev-worker"}, []string{"prod-api"}},
		{"malformed pattern", []string{"["}, []string{"a"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Exclude{Functions: tt.patterns}.Filter(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
