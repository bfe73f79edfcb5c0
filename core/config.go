package core

import (
	"fmt"
	"strings"
)

type RetryConfig struct {
	// MaxRetries is the ceiling after which a failed delivery is routed to
	// the dead-letter queue instead of being reprocessed.
	MaxRetries int `koanf:"max_retries" mapstructure:"max_retries"`
}

type DeadLetterConfig struct {
	ListLimit           int `koanf:"list_limit" mapstructure:"list_limit"`
	DispatchBatchSize   int `koanf:"dispatch_batch_size" mapstructure:"dispatch_batch_size"`
	MaxDispatchAttempts int `koanf:"max_dispatch_attempts" mapstructure:"max_dispatch_attempts"`
}

type BackfillConfig struct {
	// ErrorArtifactDir is where per-job error CSVs are written. Empty means
	// the system temp directory.
	ErrorArtifactDir string `koanf:"error_artifact_dir" mapstructure:"error_artifact_dir"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Retry       RetryConfig      `koanf:"retry" mapstructure:"retry"`
	DeadLetter  DeadLetterConfig `koanf:"dead_letter" mapstructure:"dead_letter"`
	Backfill    BackfillConfig   `koanf:"backfill" mapstructure:"backfill"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "ingest",
		Retry:       RetryConfig{MaxRetries: DefaultMaxRetries},
		DeadLetter: DeadLetterConfig{
			ListLimit:           100,
			DispatchBatchSize:   50,
			MaxDispatchAttempts: 5,
		},
		Backfill: BackfillConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("core: retry.max_retries must be positive")
	}
	if c.DeadLetter.ListLimit < 0 {
		return fmt.Errorf("core: dead_letter.list_limit must not be negative")
	}
	if c.DeadLetter.DispatchBatchSize <= 0 {
		return fmt.Errorf("core: dead_letter.dispatch_batch_size must be positive")
	}
	return nil
}
