package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/analysis"
	"github.com/BaSui01/taskflow/api/handlers"
	"github.com/BaSui01/taskflow/config"
	"github.com/BaSui01/taskflow/coordinator"
	"github.com/BaSui01/taskflow/fulfillment"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/internal/server"
	"github.com/BaSui01/taskflow/liveness"
	"github.com/BaSui01/taskflow/pipeline"
	"github.com/BaSui01/taskflow/task"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting TaskFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	srv, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build server", zap.Error(err))
	}

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	srv.WaitForShutdown()

	logger.Info("TaskFlow stopped")
}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 TaskFlow 的 worker 与 API 服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 执行协议组件
	registry  *task.Registry
	channel   liveness.Channel
	collector *metrics.Collector
	coord     *coordinator.Coordinator
	signals   *coordinator.SignalHub
	orch      *pipeline.Orchestrator
	store     pipeline.InstanceStore

	// Prometheus 注册表
	promRegistry *prometheus.Registry

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 运行中流水线的生命周期
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	// 1. 指标
	s.promRegistry = prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		s.promRegistry.MustRegister(collectors.NewGoCollector())
		s.collector = metrics.NewCollector("taskflow", s.promRegistry, logger)
	}

	// 2. 活性通道
	if cfg.Redis.Enabled {
		channel, err := liveness.NewRedisChannel(liveness.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.ProofTTL,
			WriteRate: cfg.Redis.WriteRate,
			TraceLen:  256,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect liveness channel: %w", err)
		}
		s.channel = channel
	} else {
		s.channel = liveness.NewHistory(logger)
	}

	// 3. 任务注册表
	s.registry = task.NewRegistry(logger)
	if err := s.registerAdapters(); err != nil {
		return nil, fmt.Errorf("failed to register adapters: %w", err)
	}

	// 4. 派发协调器与信号枢纽
	s.coord = coordinator.NewCoordinator(s.registry, s.channel, s.collector, logger)
	s.signals = coordinator.NewSignalHub(logger)

	// 5. 实例归档存储
	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	s.store = store

	// 6. 编排器
	s.orch = pipeline.NewOrchestrator(s.coord, s.signals, logger,
		pipeline.WithStore(s.store),
		pipeline.WithMetrics(s.collector),
	)

	return s, nil
}

// registerAdapters 注册全部任务类型，打包耗时取配置值
func (s *Server) registerAdapters() error {
	itemDelay := s.cfg.Pipeline.PackItemDelay

	factories := map[string]task.Factory{
		fulfillment.TaskTypePayment:   func() task.Adapter { return fulfillment.NewPaymentAdapter() },
		fulfillment.TaskTypeInventory: func() task.Adapter { return fulfillment.NewInventoryAdapter() },
		fulfillment.TaskTypeDelivery:  func() task.Adapter { return fulfillment.NewDeliveryAdapter() },
		fulfillment.TaskTypePacking: func() task.Adapter {
			a := fulfillment.NewPackingAdapter()
			a.ItemDelay = itemDelay
			return a
		},
	}
	for taskType, factory := range factories {
		if err := s.registry.Register(taskType, factory); err != nil {
			return err
		}
	}
	return analysis.Register(s.registry)
}

// openStore 打开实例归档存储，数据库不可用时退化为内存存储
func (s *Server) openStore() (pipeline.InstanceStore, error) {
	db, err := pipeline.OpenDatabase(s.cfg.Database.Driver, s.cfg.Database.DSN())
	if err != nil {
		s.logger.Warn("Database not available, using in-memory instance store", zap.Error(err))
		return pipeline.NewMemoryInstanceStore(), nil
	}
	store, err := pipeline.NewGormInstanceStore(db, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init instance store: %w", err)
	}
	s.logger.Info("Instance store connected", zap.String("driver", s.cfg.Database.Driver))
	return store, nil
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if s.cfg.Metrics.Enabled {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Bool("metrics_enabled", s.cfg.Metrics.Enabled),
		zap.Bool("redis_liveness", s.cfg.Redis.Enabled),
		zap.Strings("task_types", s.registry.Types()),
	)
	return nil
}

// startHTTPServer 启动业务 API 服务器
func (s *Server) startHTTPServer() error {
	health := handlers.NewHealthHandler(Version, BuildTime, GitCommit)
	pipelines := handlers.NewPipelineHandler(s, s.store, s.signals, s.logger)
	livenessH := handlers.NewLivenessHandler(s.channel, s.logger)

	mux := http.NewServeMux()

	// 健康与版本
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /version", health.HandleVersion)

	// 流水线 API
	mux.HandleFunc("POST /api/v1/orders", pipelines.HandleStartOrder)
	mux.HandleFunc("GET /api/v1/instances", pipelines.HandleListInstances)
	mux.HandleFunc("GET /api/v1/instances/{id}", pipelines.HandleGetInstance)
	mux.HandleFunc("POST /api/v1/instances/{id}/approve", pipelines.HandleDecision(true))
	mux.HandleFunc("POST /api/v1/instances/{id}/reject", pipelines.HandleDecision(false))

	// 活性观测 API
	mux.HandleFunc("GET /api/v1/tasks/{id}/liveness", livenessH.HandleLiveness)

	s.httpManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Worker.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Metrics.Port),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Worker.ShutdownTimeout,
	}, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Metrics.Port))
	return nil
}

// =============================================================================
// 🚚 订单受理
// =============================================================================

// StartOrder 实现 handlers.OrderStarter。
// 实例 ID 由订单号派生，进程重启后重新提交同一订单会恢复
// 同一批任务实例标识，打包进度从检查点续跑。
func (s *Server) StartOrder(order fulfillment.Order) (string, string, error) {
	def := fulfillment.Pipeline(fulfillment.PipelineOptions{
		SignalTimeout: s.cfg.Pipeline.SignalTimeout,
		InventoryDown: order.InventoryDown || s.cfg.Pipeline.InventoryDown,
	})
	instanceID := "order-" + order.OrderID

	input, err := json.Marshal(order)
	if err != nil {
		return "", "", fmt.Errorf("invalid order: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		inst, err := s.orch.RunAs(s.runCtx, def, instanceID, input)
		if err != nil {
			s.logger.Warn("pipeline interrupted",
				zap.String("instance_id", instanceID),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("pipeline finished",
			zap.String("instance_id", inst.ID),
			zap.String("state", string(inst.State)),
		)
	}()

	return instanceID, def.Name, nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 取消运行中的流水线，中间态已归档，重启后可恢复
	s.runCancel()

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 等待流水线 goroutine 退出
	s.wg.Wait()

	// 5. 释放活性通道连接
	if ch, ok := s.channel.(*liveness.RedisChannel); ok {
		if err := ch.Close(); err != nil {
			s.logger.Error("Liveness channel close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

