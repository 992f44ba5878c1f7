package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sudooom.im.group/internal/cache"
	"sudooom.im.group/internal/config"
	"sudooom.im.group/internal/handler"
	"sudooom.im.group/internal/health"
	"sudooom.im.group/internal/jwt"
	imNats "sudooom.im.group/internal/nats"
	"sudooom.im.group/internal/router"
	"sudooom.im.group/internal/service"
	"sudooom.im.group/internal/store"
	"sudooom.im.group/internal/store/postgres"
	"sudooom.im.group/internal/store/sqlite"
	"sudooom.im.group/internal/task"
	"sudooom.im.group/internal/telemetry"
	"sudooom.im.group/pkg/snowflake"
)

// @title           IM Group Service API
// @version         1.0
// @description     群组、成员角色、群邀请与私聊会话服务
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Group service exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 链路追踪
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	// 连接数据库
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("Connected to database", "driver", cfg.Database.Driver)

	node, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		return fmt.Errorf("create snowflake node: %w", err)
	}

	opts := service.Options{
		Store:         st,
		IDs:           node,
		InvitationTTL: cfg.Invitation.TTL,
	}

	// 连接 Redis（可选）
	var redisPinger health.Pinger
	if cfg.Redis.Enabled {
		redisClient := cache.NewClient(cfg.Redis)
		defer redisClient.Close()
		memberCache := cache.NewMemberCache(redisClient, cfg.Redis.MemberCacheTTL)
		opts.Cache = memberCache
		redisPinger = memberCache
		logger.Info("Connected to Redis", "addr", cfg.Redis.Addr())
	}

	// 连接 NATS（可选）
	var (
		natsClient *imNats.Client
		natsConn   health.ConnChecker
	)
	if cfg.NATS.Enabled {
		natsClient, err = imNats.NewClient(cfg.NATS, cfg.App.Name)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsClient.Close()
		opts.Publisher = imNats.NewEventPublisher(natsClient.Conn())
		natsConn = natsClient
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	// 初始化服务
	groupService := service.NewGroupService(opts)
	memberService := service.NewMemberService(opts)
	invitationService := service.NewInvitationService(opts)
	directMessageService := service.NewDirectMessageService(opts)

	if natsClient != nil {
		subscriber := imNats.NewSubscriber(natsClient.Conn(), groupService, memberService, imNats.SubscriberConfig{})
		if err := subscriber.Start(ctx); err != nil {
			return fmt.Errorf("start nats subscriber: %w", err)
		}
		defer subscriber.Stop()
	}

	// 过期邀请清理（可选）
	var scheduler *task.Scheduler
	if cfg.Invitation.SweepEnabled {
		scheduler = task.NewScheduler(cfg.Invitation.SweepWorkers, time.Second)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Stop()

		sweeper := service.NewInvitationSweeper(invitationService, scheduler, cfg.Invitation.SweepInterval, cfg.Invitation.SweepBatch)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("start invitation sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	// 健康检查
	healthChecker := health.NewChecker(natsConn, redisPinger, st)
	if scheduler != nil {
		healthChecker.WithScheduler(scheduler)
	}
	healthServer := startHealthServer(cfg.App.HealthPort, healthChecker, logger)

	// HTTP 服务
	jwtService := jwt.NewService(cfg.JWT.SecretKey, cfg.JWT.Issuer)
	engine := router.SetupRouter(cfg, jwtService, router.Handlers{
		Group:         handler.NewGroupHandler(groupService),
		Member:        handler.NewMemberHandler(memberService),
		Invitation:    handler.NewInvitationHandler(invitationService),
		DirectMessage: handler.NewDirectMessageHandler(directMessageService),
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Group service started", "name", cfg.App.Name, "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Health server shutdown failed", "error", err)
	}
	cancel()

	logger.Info("Group service stopped")
	return nil
}

// openStore 按驱动打开存储
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		return sqlite.Open(cfg.SQLitePath, cfg.TxTimeout)
	default:
		return postgres.Open(ctx, cfg)
	}
}

// startHealthServer 启动健康检查 HTTP 服务
func startHealthServer(port int, healthChecker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/health", healthChecker)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if healthChecker.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Not Ready"))
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Health check server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed", "error", err)
		}
	}()
	return server
}

// parseLevel 解析日志级别
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
