package main

import (
	"context"
	"fmt"

	"github.com/straja-ai/harassguard/internal/activation"
	"github.com/straja-ai/harassguard/internal/analysis"
	"github.com/straja-ai/harassguard/internal/classifier"
	"github.com/straja-ai/harassguard/internal/config"
	"github.com/straja-ai/harassguard/internal/intel"
	"github.com/straja-ai/harassguard/internal/taxonomy"
	"github.com/straja-ai/harassguard/internal/telemetry"
)

// app bundles the pieces every command shares.
type app struct {
	cfg      *config.Config
	tables   *taxonomy.Tables
	registry *classifier.Registry
	analyzer *analysis.Analyzer
	tel      *telemetry.Provider
	emitter  *activation.Emitter
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadTables(cfg *config.Config) (*taxonomy.Tables, error) {
	if cfg.Rules.TablesPath == "" {
		return taxonomy.Default(), nil
	}
	t, err := taxonomy.Load(cfg.Rules.TablesPath)
	if err != nil {
		return nil, fmt.Errorf("load rule tables: %w", err)
	}
	return t, nil
}

func newRegistry(cfg *config.Config) (*classifier.Registry, error) {
	loader, err := classifier.NewLoader(classifier.LoaderConfig{
		Backend:      cfg.Models.Backend,
		Dir:          cfg.Models.Dir,
		SeqLen:       cfg.Models.SeqLen,
		IntraThreads: cfg.Models.IntraThreads,
		HTTPBaseURL:  cfg.Models.HTTP.BaseURL,
		HTTPTimeout:  cfg.Models.HTTP.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	return classifier.NewRegistry(loader), nil
}

// newApp builds the analyzer. withModels=false runs rules-only; withEvents
// starts telemetry and the activation emitter.
func newApp(ctx context.Context, cfg *config.Config, withModels, withEvents bool) (*app, error) {
	tables, err := loadTables(cfg)
	if err != nil {
		return nil, err
	}
	matcher, err := intel.NewMatcher(tables)
	if err != nil {
		return nil, fmt.Errorf("compile rule tables: %w", err)
	}

	a := &app{cfg: cfg, tables: tables, tel: telemetry.Noop()}

	if withEvents {
		tel, err := telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:  cfg.Telemetry.Enabled,
			Endpoint: cfg.Telemetry.Endpoint,
			Protocol: cfg.Telemetry.Protocol,
			Service:  "harassguard",
			Version:  version,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		a.tel = tel

		if len(cfg.Activation.Sinks) > 0 {
			specs := make([]activation.SinkSpec, 0, len(cfg.Activation.Sinks))
			for _, s := range cfg.Activation.Sinks {
				specs = append(specs, activation.SinkSpec{Type: s.Type, Path: s.Path, URL: s.URL, Headers: s.Headers, Timeout: s.Timeout()})
			}
			sinks, err := activation.BuildSinks(specs)
			if err != nil {
				a.tel.Shutdown(ctx)
				return nil, fmt.Errorf("activation sinks: %w", err)
			}
			a.emitter = activation.NewEmitter(activation.EmitterConfig{
				QueueSize:       cfg.Activation.QueueSize,
				Workers:         cfg.Activation.Workers,
				ShutdownTimeout: cfg.Activation.ShutdownTimeout(),
			}, sinks)
		}
	}

	var models analysis.ModelSource
	if withModels {
		reg, err := newRegistry(cfg)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.registry = reg
		models = reg
	}

	a.analyzer = analysis.New(tables, matcher, models, analysis.Options{
		Telemetry:    a.tel,
		Emitter:      a.emitter,
		LoggingLevel: cfg.Logging.ActivationLevel,
	})
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.emitter != nil {
		a.emitter.Close(ctx)
	}
	if a.registry != nil {
		a.registry.Close()
	}
	a.tel.Shutdown(ctx)
}
