// Package wire 提供依赖装配
package wire

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"fiction-ai-api/internal/application/orchestrator"
	"fiction-ai-api/internal/application/retrieval"
	"fiction-ai-api/internal/application/writing"
	"fiction-ai-api/internal/config"
	"fiction-ai-api/internal/domain/repository"
	"fiction-ai-api/internal/infrastructure/llm"
	"fiction-ai-api/internal/infrastructure/persistence/file"
	"fiction-ai-api/internal/infrastructure/persistence/postgres"
	"fiction-ai-api/internal/infrastructure/persistence/redis"
	"fiction-ai-api/internal/interfaces/http/handler"
	"fiction-ai-api/internal/interfaces/http/router"
	"fiction-ai-api/pkg/logger"
)

// App 装配完成的应用
type App struct {
	Store  repository.Store
	Orch   *orchestrator.Orchestrator
	Runner *writing.Runner
	router *router.Router
}

// Engine 返回 HTTP 引擎
func (a *App) Engine() *gin.Engine {
	return a.router.Engine()
}

// InitializeApp 按配置装配整个应用。
// 持久化后端由 storage.backend 选择；redis 缓存与限流仅在
// postgres 后端且 cache.enabled 时启用。
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var (
		store       repository.Store
		pgClient    *postgres.Client
		redisClient *redis.Client
		rateLimiter *redis.RateLimiter
		cleanups    []func()
	)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	switch cfg.Storage.Backend {
	case "", "file":
		fileStore, err := file.NewStore(cfg.Storage.WorkspaceRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file store: %w", err)
		}
		store = fileStore
		cleanups = append(cleanups, func() {
			if err := fileStore.Close(); err != nil {
				logger.Warn(ctx, "failed to close file store", "error", err.Error())
			}
		})

	case "postgres":
		client, err := postgres.NewClient(&cfg.Database.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect postgres: %w", err)
		}
		pgClient = client
		cleanups = append(cleanups, func() {
			if err := client.Close(); err != nil {
				logger.Warn(ctx, "failed to close postgres client", "error", err.Error())
			}
		})
		if err := client.AutoMigrate(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}

		var cache *redis.Cache
		if cfg.Cache.Enabled {
			rc, err := redis.NewClient(&cfg.Cache.Redis)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
			}
			redisClient = rc
			cache = redis.NewCache(rc)
			rateLimiter = redis.NewRateLimiter(rc)
			cleanups = append(cleanups, func() {
				if err := rc.Close(); err != nil {
					logger.Warn(ctx, "failed to close redis client", "error", err.Error())
				}
			})
		}

		store = postgres.NewStore(client, cache, cfg.Cache.TTL)

	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	llmClient := llm.NewClient(&cfg.LLM)
	engine := retrieval.NewEngine(store)
	writer := writing.NewWriter(llmClient)
	runner := writing.NewRunner(store, engine, writer)
	orch := orchestrator.New(store, engine, writer, llmClient, cfg.Retrieval.DefaultLimit)

	handlers := router.Handlers{
		Health:  handler.NewHealthHandler(pgClient, redisClient, llmClient, cfg.App.Version),
		Turn:    handler.NewTurnHandler(orch),
		Book:    handler.NewBookHandler(store, llmClient),
		Chapter: handler.NewChapterHandler(store, runner, llmClient),
		Stream:  handler.NewStreamHandler(store, runner, llmClient),
		Snippet: handler.NewSnippetHandler(store, engine),
	}

	app := &App{
		Store:  store,
		Orch:   orch,
		Runner: runner,
		router: router.New(cfg, handlers, rateLimiter),
	}
	return app, cleanup, nil
}
