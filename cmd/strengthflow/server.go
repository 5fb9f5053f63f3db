package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/strengthflow/api/handlers"
	"github.com/BaSui01/strengthflow/config"
	"github.com/BaSui01/strengthflow/internal/server"
)

// skipAuthPaths 探针与指标端点不做认证
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组合 API 与 Metrics 两个 HTTP 服务
type Server struct {
	cfg    *config.Config
	app    *App
	logger *zap.Logger

	healthHandler   *handlers.HealthHandler
	analysisHandler *handlers.AnalysisHandler

	handler        http.Handler
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 注册路由、构建中间件链并创建服务器管理器（不启动）
func NewServer(cfg *config.Config, app *App, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		app:    app,
		logger: logger,
	}

	s.initHandlers()
	s.handler = s.buildHandler()

	s.httpManager = server.NewManager(s.handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metricsHandler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.ReadTimeout,
			IdleTimeout:     2 * cfg.Server.ReadTimeout,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, logger)
	}

	return s
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.app.Store != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("report_store", s.app.Store.Ping))
	}

	s.analysisHandler = handlers.NewAnalysisHandler(
		s.app.Crew,
		s.app.Store,
		s.app.Governor,
		s.cfg.Server.AnalysisTimeout,
		s.logger,
	)
}

// buildHandler 注册路由并包装中间件链
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 分析 API
	mux.HandleFunc("POST /api/v1/analyses", s.analysisHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/analyses", s.analysisHandler.HandleList)
	mux.HandleFunc("GET /api/v1/analyses/{id}", s.analysisHandler.HandleGet)
	mux.HandleFunc("GET /api/v1/budget", s.analysisHandler.HandleBudget)
	mux.HandleFunc("POST /api/v1/budget/reset", s.analysisHandler.HandleBudgetReset)

	// 未单独暴露 metrics 端口时挂在 API 上
	if s.cfg.Server.MetricsPort <= 0 {
		mux.Handle("GET /metrics", s.metricsHandler())
	}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.app.Metrics),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	if s.cfg.Server.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWTSecret, s.cfg.Server.JWTIssuer, skipAuthPaths, s.logger))
	}

	return Chain(mux, middlewares...)
}

func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{
		ErrorLog:          zap.NewStdLog(s.logger.Named("promhttp")),
		EnableOpenMetrics: true,
	})
}

// Handler 返回带完整中间件链的 API handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start 启动所有服务（非阻塞）
func (s *Server) Start() error {
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Start(); err != nil {
			_ = s.httpManager.Shutdown(context.Background())
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// Run 启动服务并阻塞到 ctx 取消或任一服务异常退出，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		s.rateLimiterCancel()
		return err
	}

	var metricsErrs <-chan error
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case runErr = <-s.httpManager.Errors():
		s.logger.Error("HTTP server exited unexpectedly", zap.Error(runErr))
	case runErr = <-metricsErrs:
		s.logger.Error("Metrics server exited unexpectedly", zap.Error(runErr))
	}

	return errors.Join(runErr, s.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")

	s.rateLimiterCancel()

	var errs []error
	if err := s.httpManager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
	return errors.Join(errs...)
}
