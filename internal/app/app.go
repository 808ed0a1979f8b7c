package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment_backend/internal/config"
	"assessment_backend/internal/controller"
	"assessment_backend/internal/notify"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/scheduler"
	"assessment_backend/internal/service"
	"assessment_backend/pkg/configwatcher"
	"assessment_backend/pkg/database"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/security"
	"assessment_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services *services
	sched    scheduler.Client
	memory   *scheduler.MemoryScheduler
	worker   *scheduler.AsynqWorker
	limiter  *security.Limiter
	tracer   *sdktrace.TracerProvider

	ctx    context.Context
	cancel context.CancelFunc
}

type repositories struct {
	tests     *repository.TestRepository
	questions *repository.QuestionRepository
	attempts  *repository.AttemptRepository
}

type services struct {
	attempt   *service.AttemptService
	grading   *service.GradingService
	lifecycle *service.LifecycleService
	report    *service.ReportService
}

type controllers struct {
	attempt *controller.AttemptController
	grading *controller.GradingController
	test    *controller.TestController
	health  *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		tests:     repository.NewTestRepository(db),
		questions: repository.NewQuestionRepository(db),
		attempts:  repository.NewAttemptRepository(db),
	}
}

// initScheduler 选择延时任务驱动；redis 驱动下只有 worker 角色消费任务
func (a *App) initScheduler(cfg *config.Config) {
	if cfg.Scheduler.Driver == "memory" {
		a.memory = scheduler.NewMemoryScheduler(cfg.Scheduler)
		a.sched = a.memory
		return
	}
	a.sched = scheduler.NewAsynqClient(asynqOpt(cfg), cfg.Scheduler)
}

func asynqOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func (a *App) notifier() *notify.Publisher {
	if !a.Config.Notify.Enabled || a.Redis == nil {
		return nil
	}
	return notify.NewPublisher(a.Redis, a.Config.Notify.ChannelPrefix)
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	var (
		notifier  notify.Notifier  = notify.Nop{}
		analytics notify.Analytics = notify.Nop{}
	)
	if pub := a.notifier(); pub != nil {
		notifier, analytics = pub, pub
	}
	grace := cfg.Scheduler.DeadlineGrace

	storage := service.NewStorageService(cfg)
	attempt := service.NewAttemptService(repos.tests, repos.questions, repos.attempts, a.sched, notifier, analytics, grace)
	return &services{
		attempt:   attempt,
		grading:   service.NewGradingService(repos.tests, repos.attempts, notifier, analytics),
		lifecycle: service.NewLifecycleService(repos.tests, attempt, a.sched, notifier, grace),
		report:    service.NewReportService(repos.tests, repos.attempts, storage),
	}
}

func (a *App) initControllers(s *services) *controllers {
	// 避免把 nil *redis.Client 装进接口
	var rdb redis.UniversalClient
	if a.Redis != nil {
		rdb = a.Redis
	}
	return &controllers{
		attempt: controller.NewAttemptController(s.attempt),
		grading: controller.NewGradingController(s.grading, s.attempt),
		test:    controller.NewTestController(s.lifecycle, s.report),
		health:  controller.NewHealthController(a.DB, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startWorkers 启动延时任务消费端；dispatcher 依赖 lifecycle，所以在服务创建之后
func (a *App) startWorkers(s *services) error {
	dispatcher := scheduler.NewDispatcher(s.lifecycle, a.Config.Scheduler.JobTimeout)
	if a.memory != nil {
		return a.memory.Start(dispatcher)
	}
	if !a.Config.RunsWorkers() {
		return nil
	}
	a.worker = scheduler.NewAsynqWorker(asynqOpt(a.Config), a.Config.Scheduler, dispatcher)
	return a.worker.Start()
}

func (a *App) startBackgroundTasks(s *services) {
	if a.limiter != nil {
		go a.limiter.Run(a.ctx)
	}

	if a.Config.File != "" {
		go func() {
			if err := configwatcher.WatchConfig(a.ctx, a.Config.File, configwatcher.LogLevelReloader); err != nil {
				logger.Log.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// 补偿扫描：任务丢失（重启、Redis 故障）时由这里兜底
	if !a.Config.RunsWorkers() && a.memory == nil {
		return
	}
	interval := a.Config.Scheduler.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				rep, err := s.lifecycle.Sweep(a.ctx)
				if err != nil {
					logger.Log.Error("lifecycle sweep error", zap.Error(err))
				}
				if rep != (service.SweepReport{}) {
					logger.Log.Info("lifecycle sweep recovered",
						zap.Int("wentLive", rep.WentLive),
						zap.Int("completed", rep.Completed),
						zap.Int("autoSubmitted", rep.AutoSubmitted),
					)
				}
			}
		}
	}()
}

// needsRedis redis 驱动或开启通知时才连接 Redis
func needsRedis(cfg *config.Config) bool {
	return cfg.Scheduler.Driver == "redis" || cfg.Notify.Enabled
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully", zap.String("role", cfg.Role))

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MigrateOnly {
		return app
	}

	if needsRedis(cfg) {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	}

	app.initScheduler(cfg)
	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg)
	app.services = services

	if err := app.startWorkers(services); err != nil {
		logger.Log.Fatal("Failed to start lifecycle workers", zap.Error(err))
	}

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	if cfg.ServesHTTP() {
		gin.SetMode(cfg.Server.Mode)
		router := gin.Default()
		app.Router = router
		app.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)

		app.setupMiddlewares(router, cfg)
		app.registerRoutes(router, app.initControllers(services), cfg)

		if cfg.Storage.Type == "local" {
			router.Static("/uploads", cfg.Storage.LocalPath)
		}
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	var srv *http.Server
	if a.Router != nil {
		srv = &http.Server{
			Addr:    ":" + a.Config.Server.Port,
			Handler: a.Router,
		}

		// 启动服务器
		go func() {
			logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("listen: %s\n", err)
			}
		}()
	}

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Log.Error("Server forced to shutdown", zap.Error(err))
		}
	}
	a.Close(ctx)

	logger.Log.Info("Server exiting")
}

// Close 停止后台任务并释放连接
func (a *App) Close(ctx context.Context) {
	a.cancel()
	if a.worker != nil {
		a.worker.Shutdown()
	}
	if a.sched != nil {
		if err := a.sched.Close(); err != nil {
			logger.Log.Warn("Failed to close scheduler client", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Log.Sync()
}
