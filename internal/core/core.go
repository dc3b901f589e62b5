// Package core assembles the dependency graph shared by cmd/orchestrator
// and cmd/worker: the store, event bus, provider registry, router, tool
// registry, scheduler, and every other long-lived value either binary
// needs. Building it once in one place keeps the two processes from
// drifting into two different wiring orders.
package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentrail/core/internal/auth"
	"github.com/agentrail/core/internal/chatrouter"
	"github.com/agentrail/core/internal/config"
	"github.com/agentrail/core/internal/domain"
	"github.com/agentrail/core/internal/eventbus"
	"github.com/agentrail/core/internal/mcp"
	"github.com/agentrail/core/internal/provider"
	"github.com/agentrail/core/internal/provider/anthropic"
	"github.com/agentrail/core/internal/provider/bedrock"
	"github.com/agentrail/core/internal/provider/openai"
	"github.com/agentrail/core/internal/ratelimit"
	"github.com/agentrail/core/internal/routing"
	"github.com/agentrail/core/internal/scheduler"
	"github.com/agentrail/core/internal/store"
	"github.com/agentrail/core/internal/telemetry"
	"github.com/agentrail/core/internal/tools"
	"github.com/agentrail/core/internal/tools/httptool"
	"github.com/agentrail/core/internal/tools/mcptool"
	"github.com/agentrail/core/internal/tools/notifier"
	"github.com/agentrail/core/internal/workflow"
)

// Core holds every dependency cmd/orchestrator and cmd/worker share. Both
// binaries build one Core at startup and read fields off it rather than
// constructing their own copies of the same wiring.
type Core struct {
	Config *config.Config
	Logger *slog.Logger

	Store store.Store
	Bus   eventbus.Bus

	Providers *provider.Registry
	Catalog   *routing.Catalog
	Health    *routing.Health
	Router    *routing.Router
	Quota     *routing.QuotaEnforcer
	KeyVault  *routing.KeyVault

	MCP         *mcp.Manager
	Tools       *tools.Registry
	ChatRouter  *chatrouter.Router
	Notifier    *notifier.Notifier
	Auth        *auth.Service
	Metrics     *telemetry.Metrics
	RateLimiter *ratelimit.Limiter

	Scheduler   *scheduler.Scheduler
	Interpreter *workflow.Interpreter
}

// New builds a Core from cfg. It opens (but does not migrate) the
// database, so callers that need a current schema should run
// store.Migrate before calling New.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := newStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus, err := newBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("open event bus: %w", err)
	}

	providers, err := newProviders(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}

	catalog := routing.NewCatalog()
	health := routing.NewHealth()
	router := routing.NewRouter(catalog, health)
	quota := routing.NewQuotaEnforcer(st)

	keyVault, err := newKeyVault(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build key vault: %w", err)
	}

	mcpManager := mcp.NewManager(&mcp.Config{}, logger)

	toolRegistry := tools.NewRegistry(st)
	registerToolFactories(toolRegistry, mcpManager, http.DefaultClient)

	chatRouter := chatrouter.NewRouter(nil)

	var notif *notifier.Notifier
	if cfg.Notifier.SlackBotToken != "" {
		notif = notifier.New(cfg.Notifier.SlackBotToken)
	}

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		Enabled:           cfg.RateLimit.Enabled,
	})

	sched := scheduler.New(st, bus, logger, scheduler.WithTickInterval(cfg.Scheduler.TickInterval))

	interpreter := workflow.New(st, bus, router, providers, quota, keyVault, toolRegistry)

	return &Core{
		Config: cfg, Logger: logger,
		Store: st, Bus: bus,
		Providers: providers, Catalog: catalog, Health: health, Router: router,
		Quota: quota, KeyVault: keyVault,
		MCP: mcpManager, Tools: toolRegistry, ChatRouter: chatRouter,
		Notifier: notif, Auth: authService, Metrics: metrics, RateLimiter: limiter,
		Scheduler: sched, Interpreter: interpreter,
	}, nil
}

// Close releases the resources Core opened (database pool, event bus
// connections). It does not stop the scheduler; callers own that
// lifecycle via Core.Scheduler.Stop.
func (c *Core) Close() error {
	if err := c.Store.Close(); err != nil {
		return err
	}
	return c.Bus.Close()
}

func newStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	pgCfg := &store.PostgresConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	}
	pg, err := store.NewPostgresFromDSN(cfg.Database.DSN, pgCfg)
	if err != nil {
		logger.Warn("postgres unavailable, falling back to in-memory store", "error", err)
		return store.NewMemory(), nil
	}
	return pg, nil
}

func newBus(cfg *config.Config) (eventbus.Bus, error) {
	if cfg.Redis.URL == "" {
		return eventbus.NewMemory(), nil
	}
	return eventbus.NewRedis(cfg.Redis.URL)
}

func newProviders(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	var built []provider.Provider

	for name, pc := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			p, err := anthropic.New(anthropic.Config{APIKey: pc.APIKey, DefaultModel: pc.DefaultModel})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			built = append(built, p)
		case "bedrock":
			p, err := bedrock.New(ctx, bedrock.Config{
				Region:          pc.Region,
				AccessKeyID:     pc.AccessKeyID,
				SecretAccessKey: pc.SecretAccessKey,
				DefaultModel:    pc.DefaultModel,
			})
			if err != nil {
				return nil, fmt.Errorf("bedrock provider: %w", err)
			}
			built = append(built, p)
		default:
			// openai and any OpenAI-compatible provider (groq, together, ...)
			// share the same client with a configurable base URL and name.
			p, err := openai.New(openai.Config{
				Name: name, APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel,
			})
			if err != nil {
				return nil, fmt.Errorf("%s provider: %w", name, err)
			}
			built = append(built, p)
		}
	}

	return provider.NewRegistry(built...), nil
}

func newKeyVault(cfg *config.Config, logger *slog.Logger) (*routing.KeyVault, error) {
	var key [32]byte
	if cfg.LLM.KeyVaultMasterKey == "" {
		if _, err := rand.Read(key[:]); err != nil {
			return nil, fmt.Errorf("generate random key vault master key: %w", err)
		}
		logger.Warn("llm.keyvault_master_key is unset, generated a random key for this process; tenant BYOK keys will not decrypt across restarts")
	} else {
		raw, err := hex.DecodeString(cfg.LLM.KeyVaultMasterKey)
		if err != nil {
			return nil, fmt.Errorf("decode llm.keyvault_master_key: %w", err)
		}
		copy(key[:], raw)
	}
	return routing.NewKeyVault(key), nil
}

// registerToolFactories wires the http and mcp tool backends into registry,
// keyed by the domain.ToolRef.Category each one handles.
func registerToolFactories(registry *tools.Registry, mcpManager *mcp.Manager, httpClient *http.Client) {
	registry.RegisterFactory("http", func(ref *domain.ToolRef) (tools.Tool, error) {
		return httptool.New(ref, httpClient)
	})
	registry.RegisterFactory("mcp", func(ref *domain.ToolRef) (tools.Tool, error) {
		return mcptool.New(mcpManager, ref)
	})
}
