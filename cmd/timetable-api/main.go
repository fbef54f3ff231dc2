package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/api/swagger"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/handler"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/incremental"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/service"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/cache"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/database"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/jobs"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/logger"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/tracing"
)

// @title Exam Timetabling API
// @version 1.0.0
// @description Schedules exams into days, slots and rooms with invigilators, and applies manual edits to published timetables.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, logr, cfg.Tracing, cfg.Env)

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Sugar().Fatalw("schema migration failed", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}

	metrics := service.NewMetricsService()

	// A nil *CacheRepository must not leak into the interface.
	var (
		cacheRepo  service.CacheRepository
		redisCache *repository.CacheRepository
	)
	if redisClient != nil {
		defer redisClient.Close()
		redisCache = repository.NewCacheRepository(redisClient, logr)
		cacheRepo = redisCache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, "timetable", cfg.ProblemCache.TTL, logr, cfg.ProblemCache.RedisMirror && cacheRepo != nil)
	problems := service.NewProblemCacheService(
		repository.NewExamDataRepository(db),
		cacheSvc,
		problem.Options{CapacityBufferPercent: cfg.Encoder.CapacityBufferPercent},
		cfg.ProblemCache.TTL,
		logr,
	)

	hub := service.NewProgressHub(cfg.Progress.BufferSize, logr)
	if cfg.Progress.RedisFanout && redisCache != nil {
		bus := service.NewRedisProgressBus(redisCache, cfg.Progress.Channel, logr)
		hub.SetBroadcaster(bus)
		go func() {
			if err := bus.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logr.Warn("progress fan-out stopped", zap.Error(err))
			}
		}()
	}

	plan, err := service.LoadConstraintPlan(cfg)
	if err != nil {
		logr.Sugar().Fatalw("invalid constraint configuration", "error", err)
	}
	optimizer := service.NewHybridOptimizer(solver.NewSearchSolver(logr), plan, service.OptimizerConfigFrom(cfg), metrics, logr)

	jobRepo := repository.NewTimetableJobRepository(db)
	versionRepo := repository.NewTimetableVersionRepository(db)
	store := repository.NewTimetableStore(db, jobRepo, versionRepo)

	validate := validator.New()
	configurations := service.NewConfigurationService(repository.NewConfigurationRepository(db), cfg.Encoder, validate, logr)

	runner := service.NewTimetableRunner(jobRepo, store, problems, optimizer, hub, metrics, cfg.Jobs.MaxRetries, logr)
	runner.SetConfigurations(configurations)
	queue := jobs.NewQueue(service.TimetableJobType, runner.Handle, jobs.QueueConfig{
		Workers:       cfg.Jobs.Workers,
		BufferSize:    cfg.Jobs.BufferSize,
		MaxRetries:    cfg.Jobs.MaxRetries,
		RetryDelay:    cfg.Jobs.RetryDelay,
		MaxRetryDelay: cfg.Jobs.MaxRetryDelay,
		TaskTimeLimit: cfg.Jobs.TaskTimeLimit,
		Retryable:     appErrors.IsTransient,
		Logger:        logr,
	})
	queue.Start(ctx)

	jobSvc := service.NewTimetableJobService(jobRepo, queue, hub, validate, service.TimetableJobServiceConfig{
		SingleActivePerSession: cfg.Jobs.SingleActivePerSession,
	}, logr)
	jobSvc.RecoverPendingJobs(ctx)

	editSvc := service.NewTimetableEditService(versionRepo, problems, validate, incremental.Options{
		StudentsPerInvigilator: cfg.Encoder.StudentsPerInvigilator,
		Rules:                  plan.Rules(),
	}, metrics, logr)

	checks := []handler.ReadinessCheck{{Name: "postgres", Ping: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	router := handler.NewRouter(handler.RouterDeps{
		Config:         cfg,
		Logger:         logr,
		Metrics:        metrics,
		Jobs:           handler.NewTimetableJobHandler(jobSvc, problems, cfg.Progress.Heartbeat),
		Versions:       handler.NewTimetableVersionHandler(editSvc),
		Configurations: handler.NewConfigurationHandler(configurations),
		Probes:         handler.NewMetricsHandler(metrics, checks...),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	queue.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing flush failed", zap.Error(err))
	}
}
