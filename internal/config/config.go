package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/lambdaspectre/internal/costquery"
	"github.com/ppiankov/lambdaspectre/internal/pipeline"
)

// Environment variables that override the file.
const (
	EnvBucket    = "BUCKET_NAME"
	EnvLogFormat = "LAMBDASPECTRE_LOG_FORMAT"
)

// Config holds lambdaspectre configuration loaded from .lambdaspectre.yaml.
type Config struct {
	Profile           string  `yaml:"profile"`
	Region            string  `yaml:"region"`
	Bucket            string  `yaml:"bucket"`
	BatchSize         int     `yaml:"batch_size"`
	PartitionWorkers  int     `yaml:"partition_workers"`
	QueryWorkers      int     `yaml:"query_workers"`
	DownloadWorkers   int     `yaml:"download_workers"`
	BatchWorkers      int     `yaml:"batch_workers"`
	FailOnLookupError bool    `yaml:"fail_on_lookup_error"`
	SkipIdle          bool    `yaml:"skip_idle"`
	Poll              Poll    `yaml:"poll"`
	LogFormat         string  `yaml:"log_format"`
	Timeout           string  `yaml:"timeout"`
	Exclude           Exclude `yaml:"exclude"`
}

// Exclude defines functions to skip during discovery.
type Exclude struct {
	// Functions holds names or path.Match patterns such as "dev-*".
	Functions []string `yaml:"functions"`
}

// Filter drops names matching any exclude pattern. Malformed patterns match nothing.
func (e Exclude) Filter(names []string) []string {
	if len(e.Functions) == 0 {
		return names
	}
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if !e.matches(name) {
			kept = append(kept, name)
		}
	}
	return kept
}

func (e Exclude) matches(name string) bool {
	for _, pattern := range e.Functions {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Poll tunes Logs Insights result polling. Durations use Go syntax ("1s", "30s").
type Poll struct {
	BaseInterval        string `yaml:"base_interval"`
	MaxInterval         string `yaml:"max_interval"`
	ThrottleMaxInterval string `yaml:"throttle_max_interval"`
	MaxAttempts         int    `yaml:"max_attempts"`
}

// Policy converts the poll settings, leaving unset or invalid fields at their defaults.
func (p Poll) Policy() costquery.PollPolicy {
	return costquery.PollPolicy{
		BaseInterval:        parseDuration(p.BaseInterval),
		MaxInterval:         parseDuration(p.MaxInterval),
		ThrottleMaxInterval: parseDuration(p.ThrottleMaxInterval),
		MaxAttempts:         p.MaxAttempts,
	}.WithDefaults()
}

// PipelineOptions returns the stage options for the configured bucket and pools.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Bucket:            c.Bucket,
		BatchSize:         c.BatchSize,
		PartitionWorkers:  c.PartitionWorkers,
		QueryWorkers:      c.QueryWorkers,
		DownloadWorkers:   c.DownloadWorkers,
		BatchWorkers:      c.BatchWorkers,
		FailOnLookupError: c.FailOnLookupError,
	}.WithDefaults()
}

// TimeoutDuration parses the timeout string as a duration.
func (c Config) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// WithEnv applies environment overrides.
func (c Config) WithEnv(getenv func(string) string) Config {
	if v := getenv(EnvBucket); v != "" {
		c.Bucket = v
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	return c
}

// Validate checks the settings every stage needs.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("no bucket configured; set bucket in .lambdaspectre.yaml or %s", EnvBucket)
	}
	for name, v := range map[string]int{
		"batch_size":        c.BatchSize,
		"partition_workers": c.PartitionWorkers,
		"query_workers":     c.QueryWorkers,
		"download_workers":  c.DownloadWorkers,
		"poll.max_attempts": c.Poll.MaxAttempts,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}
	for name, v := range map[string]string{
		"timeout":                    c.Timeout,
		"poll.base_interval":         c.Poll.BaseInterval,
		"poll.max_interval":          c.Poll.MaxInterval,
		"poll.throttle_max_interval": c.Poll.ThrottleMaxInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := time.ParseDuration(s)
	return d
}

// Load searches for .lambdaspectre.yaml or .lambdaspectre.yml in the given
// directory and returns the parsed config. Returns an empty Config if no file is found.
func Load(dir string) (Config, error) {
	candidates := []string{
		filepath.Join(dir, ".lambdaspectre.yaml"),
		filepath.Join(dir, ".lambdaspectre.yml"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}

		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		return cfg, nil
	}

	return Config{}, nil
}
