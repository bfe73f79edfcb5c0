package core

import (
	"context"
	"testing"
)

func TestCfgxConfigProviderLoadsDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(nil)
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retry.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max retries, got %d", cfg.Retry.MaxRetries)
	}
}

func TestCfgxConfigProviderOverrides(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name": "ingest-edge",
		"retry": map[string]any{
			"max_retries": 5,
		},
	}})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "ingest-edge" {
		t.Fatalf("expected loaded service name, got %s", cfg.ServiceName)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Fatalf("expected loaded max retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.DeadLetter.DispatchBatchSize != 50 {
		t.Fatalf("expected defaults to survive partial overrides, got %d", cfg.DeadLetter.DispatchBatchSize)
	}
}

func TestGoOptionsResolverPrecedence(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{Retry: RetryConfig{MaxRetries: 4}}
	runtime := Config{ServiceName: "ingest-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "ingest-runtime" {
		t.Fatalf("expected runtime override to win, got %s", resolved.ServiceName)
	}
	if resolved.Retry.MaxRetries != 4 {
		t.Fatalf("expected loaded layer value, got %d", resolved.Retry.MaxRetries)
	}
	if resolved.DeadLetter.ListLimit != 100 {
		t.Fatalf("expected defaults for untouched keys, got %d", resolved.DeadLetter.ListLimit)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
	cfg.Retry.MaxRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected zero max retries to fail validation")
	}
}
