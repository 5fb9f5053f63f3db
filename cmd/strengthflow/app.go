package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/agent/crews"
	"github.com/BaSui01/strengthflow/agent/persistence"
	"github.com/BaSui01/strengthflow/config"
	"github.com/BaSui01/strengthflow/internal/cache"
	"github.com/BaSui01/strengthflow/internal/database"
	"github.com/BaSui01/strengthflow/internal/metrics"
	"github.com/BaSui01/strengthflow/llm"
	"github.com/BaSui01/strengthflow/llm/budget"
	"github.com/BaSui01/strengthflow/llm/providers"
	"github.com/BaSui01/strengthflow/llm/providers/groq"
	"github.com/BaSui01/strengthflow/llm/providers/openaicompat"
	"github.com/BaSui01/strengthflow/llm/retry"
)

// metricsNamespace Prometheus 指标前缀
const metricsNamespace = "strengthflow"

// =============================================================================
// 🧩 组件装配（serve 与 run 共用）
// =============================================================================

// App 持有一次进程生命周期内的全部组件
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Collector
	Provider llm.Provider
	Governor *budget.Governor
	Crew     *crews.Crew
	Store    persistence.ReportStore

	logger *zap.Logger
}

// NewApp 按配置装配组件。withStore 为 false 时不打开报告存储（run 命令）。
func NewApp(cfg *config.Config, withStore bool, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(metricsNamespace, registry, logger)

	provider, err := newProvider(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	governor, err := budget.NewGovernor(budget.Config{
		RPMLimit:      cfg.Budget.RPMLimit,
		TPMLimit:      cfg.Budget.TPMLimit,
		TokensPerCall: cfg.Budget.TokensPerCall,
		Window:        cfg.Budget.Window,
	}, logger, budget.WithObserver(collector))
	if err != nil {
		return nil, fmt.Errorf("create budget governor: %w", err)
	}
	collector.SetBudgetState(governor.Status())

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.LLM.MaxRetries

	crew, err := crews.NewCrew(crews.CrewConfig{
		Name:    cfg.Crew.Name,
		Members: toMembers(cfg.Crew.Members),
		Call: crews.CallOptions{
			Model:          cfg.LLM.Model,
			MaxTokens:      cfg.LLM.MaxTokens,
			Temperature:    float32(cfg.LLM.Temperature),
			Timeout:        cfg.LLM.Timeout,
			ResponseFormat: cfg.LLM.ResponseFormat,
		},
		TokensPerCall: cfg.Budget.TokensPerCall,
	}, provider, governor, logger,
		crews.WithRetryer(retry.NewBackoffRetryer(policy, logger)),
		crews.WithRecorder(collector),
	)
	if err != nil {
		return nil, fmt.Errorf("create crew: %w", err)
	}

	app := &App{
		Config:   cfg,
		Registry: registry,
		Metrics:  collector,
		Provider: provider,
		Governor: governor,
		Crew:     crew,
		logger:   logger.With(zap.String("component", "app")),
	}

	if withStore {
		store, err := newReportStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		app.Store = store
	}

	return app, nil
}

// Close 释放报告存储及其底层连接
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	if err := a.Store.Close(); err != nil && !errors.Is(err, persistence.ErrStoreClosed) {
		return err
	}
	return nil
}

// newProvider 根据 llm.provider 创建推理服务客户端
func newProvider(cfg config.LLMConfig, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "groq":
		return groq.NewGroqProvider(providers.GroqConfig{
			BaseProviderConfig: providers.BaseProviderConfig{
				APIKey:  cfg.APIKey,
				BaseURL: cfg.BaseURL,
				Model:   cfg.Model,
				Timeout: cfg.Timeout,
			},
		}, logger), nil
	case "openai":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm.base_url is required for provider %q", cfg.Provider)
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName: cfg.Provider,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// newReportStore 打开 store.driver 所需的后端并创建报告存储
func newReportStore(cfg *config.Config, logger *zap.Logger) (persistence.ReportStore, error) {
	storeCfg := persistence.StoreConfig{
		Type:            persistence.StoreType(cfg.Store.Driver),
		Retention:       cfg.Store.Retention,
		MaxReports:      cfg.Store.MaxReports,
		CleanupInterval: cfg.Store.CleanupInterval,
	}
	if err := storeCfg.Validate(); err != nil {
		return nil, err
	}

	var backends persistence.Backends
	switch storeCfg.Type {
	case persistence.StoreTypeRedis:
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		cacheCfg.KeyPrefix = cfg.Redis.KeyPrefix
		cacheCfg.PoolSize = cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
		cacheCfg.TLSEnabled = cfg.Redis.TLSEnabled
		manager, err := cache.NewManager(cacheCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		backends.Cache = manager
	case persistence.StoreTypeSQL:
		pool, err := openDatabase(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		backends.DB = pool
	}

	store, err := persistence.NewReportStore(storeCfg, backends, logger)
	if err != nil {
		if backends.Cache != nil {
			_ = backends.Cache.Close()
		}
		if backends.DB != nil {
			_ = backends.DB.Close()
		}
		return nil, fmt.Errorf("create report store: %w", err)
	}
	return store, nil
}

// openDatabase 根据配置打开数据库连接池
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*database.PoolManager, error) {
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = dbCfg.MaxOpenConns
	pool.MaxIdleConns = dbCfg.MaxIdleConns
	pool.ConnMaxLifetime = dbCfg.ConnMaxLifetime

	pm, err := database.Open(database.Config{
		Driver: dbCfg.Driver,
		DSN:    dbCfg.DSN(),
		Pool:   pool,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return pm, nil
}

func toMembers(in []config.MemberConfig) []crews.Member {
	if len(in) == 0 {
		return nil
	}
	out := make([]crews.Member, len(in))
	for i, m := range in {
		out[i] = crews.Member{
			Category:  m.Category,
			Role:      m.Role,
			Goal:      m.Goal,
			Backstory: m.Backstory,
		}
	}
	return out
}
