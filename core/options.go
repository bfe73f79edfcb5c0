package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// ConfigProvider loads an external configuration layered on top of the
// compiled defaults.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// OptionsResolver merges configuration layers, lowest precedence first:
// defaults, loaded config, then runtime overrides.
type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// RawConfigLoader yields the raw key/value map backing a config source.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// StaticRawConfigLoader serves a fixed raw configuration map. Useful for
// tests and embedded setups.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// CfgxConfigProvider builds the typed Config from a raw loader using
// go-config's cfgx pipeline.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver resolves configuration precedence with go-options
// layers before re-validating the merged result through cfgx.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.Retry.MaxRetries > 0 {
		layer["retry"] = map[string]any{
			"max_retries": cfg.Retry.MaxRetries,
		}
	}
	deadLetter := map[string]any{}
	if includeZero || cfg.DeadLetter.ListLimit > 0 {
		deadLetter["list_limit"] = cfg.DeadLetter.ListLimit
	}
	if includeZero || cfg.DeadLetter.DispatchBatchSize > 0 {
		deadLetter["dispatch_batch_size"] = cfg.DeadLetter.DispatchBatchSize
	}
	if includeZero || cfg.DeadLetter.MaxDispatchAttempts > 0 {
		deadLetter["max_dispatch_attempts"] = cfg.DeadLetter.MaxDispatchAttempts
	}
	if len(deadLetter) > 0 {
		layer["dead_letter"] = deadLetter
	}
	if includeZero || strings.TrimSpace(cfg.Backfill.ErrorArtifactDir) != "" {
		layer["backfill"] = map[string]any{
			"error_artifact_dir": cfg.Backfill.ErrorArtifactDir,
		}
	}
	return layer
}
