package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/switchboard/internal/agent"
	"github.com/ent0n29/switchboard/internal/brain"
	"github.com/ent0n29/switchboard/internal/config"
	"github.com/ent0n29/switchboard/internal/dialogue"
	"github.com/ent0n29/switchboard/internal/extract"
	"github.com/ent0n29/switchboard/internal/httpapi"
	"github.com/ent0n29/switchboard/internal/memory"
	"github.com/ent0n29/switchboard/internal/observability"
	"github.com/ent0n29/switchboard/internal/policy"
	"github.com/ent0n29/switchboard/internal/session"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Agents    []httpapi.Agent
	Knowledge *memory.Knowledge
	Metrics   *observability.Metrics
	Brain     string

	// Cleanup should be called on shutdown to release external resources (DB handles).
	Cleanup func() error
}

// Build wires every agent engine, the knowledge store and the HTTP surface.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	redactor := policy.Redactor{Enabled: cfg.RedactPII}

	defs, err := agent.Load(cfg.AgentsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("agent catalog load failed: %w", err)
	}

	adapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainHTTPURL,
		Timeout: cfg.BrainTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("brain adapter init failed: %w", err)
	}
	brainName := "off"
	if adapter != nil {
		brainName = adapter.Name()
	}

	agents := make([]httpapi.Agent, 0, len(defs))
	for _, def := range defs {
		engine, err := newEngine(def, adapter, metrics, redactor, logger)
		if err != nil {
			return nil, err
		}
		agents = append(agents, httpapi.Agent{Definition: def, Engine: engine})
	}

	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	knowledge := memory.NewKnowledge(store,
		memory.WithKeywordLimit(cfg.MemoryKeywordLimit),
		memory.WithRedactor(redactor.Redact),
		memory.WithMetrics(metrics),
		memory.WithLogger(logger.Named("memory")),
	)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		for _, a := range agents {
			a.Engine.Forget(s.ID)
		}
		metrics.ObserveSessionEvent("expired", sessions.ActiveCount())
		logger.Debug("session expired", zap.String("session_id", s.ID), zap.Int("chats", s.ChatCount))
	})
	sessions.SetPurgeHook(func(id string) {
		for _, a := range agents {
			a.Engine.Forget(id)
		}
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:  sessions,
		Agents:    agents,
		Knowledge: knowledge,
		Extractor: extract.NewTextExtractor(cfg.MemoryUploadMaxBytes),
		Metrics:   metrics,
		Logger:    logger.Named("http"),
	})

	cleanup := func() error {
		var errs []string
		if err := knowledge.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	logger.Info("switchboard assembled",
		zap.Int("agents", len(agents)),
		zap.String("brain", brainName),
		zap.String("memory_backend", knowledge.Backend()),
		zap.Bool("redact_pii", cfg.RedactPII))

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Agents:    agents,
		Knowledge: knowledge,
		Metrics:   metrics,
		Brain:     brainName,
		Cleanup:   cleanup,
	}, nil
}

func newEngine(def agent.Definition, adapter brain.Adapter, metrics *observability.Metrics, redactor policy.Redactor, logger *zap.Logger) (*dialogue.Engine, error) {
	dcfg, err := agent.Build(def)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.ID, err)
	}
	opts := []dialogue.Option{
		dialogue.WithObservability(metrics),
		dialogue.WithRedactor(redactor.Redact),
		dialogue.WithLogger(logger.Named("dialogue").With(zap.String("agent", def.ID))),
	}
	if adapter != nil {
		opts = append(opts, dialogue.WithBrain(adapter))
	}
	engine, err := dialogue.New(dcfg, session.NewBoundedHistory(def.Capacity()), opts...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", def.ID, err)
	}
	return engine, nil
}
