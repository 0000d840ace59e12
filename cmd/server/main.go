package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"neurodata/internal/api"
	"neurodata/internal/app/bootstrap"
	"neurodata/internal/db/postgres"
	redisdb "neurodata/internal/db/redis"
	"neurodata/internal/domain/credits"
	"neurodata/internal/domain/module"
	"neurodata/internal/domain/result"
	"neurodata/internal/domain/run"
	"neurodata/internal/domain/template"
	"neurodata/internal/domain/workflow"
	"neurodata/internal/platform/config"
	applog "neurodata/internal/platform/log"
	"neurodata/internal/provider"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// PostgreSQL 可选：未配置时进入演示模式（保存/结果端点返回 503）
	var store workflow.Store
	var pgRepo *postgres.Repository
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			applog.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer db.Close()
		applog.Info("✅ Connected to PostgreSQL")

		pgRepo = postgres.NewRepository(db)
		store = pgRepo

		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pgRepo.EnsureWorkflowTables(migrateCtx); err != nil {
			applog.Warnf("⚠️  Failed to ensure workflow tables: %v", err)
		} else {
			applog.Info("✅ Workflow tables ready (workflows, workflow_runs)")
		}
		if err := pgRepo.EnsureModuleTable(migrateCtx); err != nil {
			applog.Warnf("⚠️  Failed to ensure custom_modules table: %v", err)
		}
		if err := pgRepo.EnsureCreditTable(migrateCtx); err != nil {
			applog.Warnf("⚠️  Failed to ensure credit_usage table: %v", err)
		}
		migrateCancel()
	} else {
		applog.Info("ℹ️  No DATABASE_URL set, running in demo mode (no persistence)")
	}

	// Redis 可选：承载自定义模块列表与月度额度计数
	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		opt, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			applog.Fatalf("❌ Invalid REDIS_URL: %v", err)
		}
		redisClient = goredis.NewClient(opt)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			applog.Warnf("⚠️  Redis connection failed, modules and credits run in-memory: %v", err)
			redisClient = nil
		} else {
			applog.Info("✅ Connected to Redis")
		}
	} else {
		applog.Info("ℹ️  No REDIS_URL set, modules and credits run in-memory")
	}

	bootstrap.RegisterLLMProviders(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)

	orch, wizard := buildOrchestrator(cfg)
	ledger := buildLedger(cfg, redisClient)
	registry := buildModuleRegistry(redisClient, pgRepo)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.RunTimeout = time.Duration(cfg.Server.RunTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Auth.JWTSecret
	serverConfig.JWTIssuer = cfg.Auth.JWTIssuer
	serverConfig.MobileLimits = result.MobileLimits{
		MaxNodes:        cfg.Mobile.MaxNodes,
		MaxNodeTextLen:  cfg.Mobile.MaxNodeTextLen,
		MaxAnalysisLen:  cfg.Mobile.MaxAnalysisLen,
		MaxSectionCount: cfg.Mobile.MaxSectionCount,
	}
	server := api.NewServer(serverConfig, store, orch, wizard, ledger, registry)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}

// buildOrchestrator 用配置的动画节拍表构造编排器与向导。
func buildOrchestrator(cfg *config.AppConfig) (*run.Orchestrator, *template.Wizard) {
	oc := run.DefaultConfig()
	oc.ColumnThresholdPx = float64(cfg.Orchestra.ColumnThresholdPx)
	oc.QueueDelay = time.Duration(cfg.Orchestra.QueueDelayMs) * time.Millisecond
	oc.FocusDelay = time.Duration(cfg.Orchestra.FocusDelayMs) * time.Millisecond
	oc.Initializing = time.Duration(cfg.Orchestra.InitializingMs) * time.Millisecond
	oc.Running = time.Duration(cfg.Orchestra.RunningMs) * time.Millisecond
	oc.ProgressStep = time.Duration(cfg.Orchestra.ProgressStepMs) * time.Millisecond
	oc.CompletionWave = time.Duration(cfg.Orchestra.CompletionWaveMs) * time.Millisecond
	oc.NodeTimeout = time.Duration(cfg.Orchestra.NodeTimeoutSeconds) * time.Second
	oc.MaxNodes = cfg.Orchestra.MaxNodesPerWorkflow
	oc.Model = cfg.OpenAI.Model

	var wizard *template.Wizard
	llm, err := provider.GetProvider("openai")
	if err != nil {
		llm = nil
	} else {
		wizard = template.NewWizard(llm, cfg.OpenAI.Model)
	}
	return run.New(oc, llm, nil), wizard
}

func buildLedger(cfg *config.AppConfig, redisClient *goredis.Client) *credits.Ledger {
	var counter credits.Counter
	if redisClient != nil {
		counter = redisdb.NewCreditCounter(redisClient)
	}
	return credits.NewLedger(counter, credits.Config{
		FreeLimit:   int64(cfg.Credits.FreeLimit),
		ProLimit:    int64(cfg.Credits.ProLimit),
		DefaultTier: cfg.Credits.DefaultTier,
		KeyNS:       cfg.Credits.CounterKeyNS,
	}, nil)
}

// buildModuleRegistry Redis 为主存储；同时配置 Postgres 时用它做启动回填。
func buildModuleRegistry(redisClient *goredis.Client, pgRepo *postgres.Repository) *module.Registry {
	var store module.Store
	switch {
	case redisClient != nil:
		store = redisdb.NewModuleStore(redisClient)
	case pgRepo != nil:
		store = pgRepo
	}

	registry := module.NewRegistry(store)
	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := registry.Load(loadCtx); err != nil {
		applog.Warnf("⚠️  Failed to load custom modules: %v", err)
	}

	// Redis 为空但 Postgres 有历史数据时回填一次
	if redisClient != nil && pgRepo != nil && registry.Count() == 0 {
		if defs, err := pgRepo.LoadModules(loadCtx); err == nil && len(defs) > 0 {
			for _, d := range defs {
				if _, err := registry.Save(loadCtx, d); err != nil {
					applog.Warnf("⚠️  Failed to backfill module %s: %v", d.Name, err)
					break
				}
			}
			applog.Infof("✅ Backfilled %d custom modules from PostgreSQL", registry.Count())
		}
	}
	return registry
}
