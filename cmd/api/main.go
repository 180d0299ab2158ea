package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/SilverKineticsIndustries/w80-sub000/api/swagger"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/handler"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/middleware"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/models"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/repository"
	"github.com/SilverKineticsIndustries/w80-sub000/internal/service"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/cache"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/clock"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/config"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/database"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/jobs"
	"github.com/SilverKineticsIndustries/w80-sub000/pkg/logger"
	corsmiddleware "github.com/SilverKineticsIndustries/w80-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/SilverKineticsIndustries/w80-sub000/pkg/middleware/requestid"
)

// @title Job Applications API
// @version 1.0.0
// @description Job application tracking: workflow transitions, appointments and rejection statistics.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable; continuing without lock, cache and in-app alerts", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}
	metrics := service.NewMetricsService()
	validate := validator.New()

	applicationRepo := repository.NewApplicationRepository(db)
	stateRepo := repository.NewApplicationStateRepository(db)
	eventRepo := repository.NewEventRepository(db)
	statisticsRepo := repository.NewStatisticsRepository(db)

	coordinator := service.NewMutationCoordinator(database.NewTxRunner(db), eventRepo, metrics, logr)
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, stateRepo, coordinator, cfg.Applications, logr,
		service.WithApplicationClock(clk),
		service.WithApplicationValidator(validate),
		service.WithApplicationMetrics(metrics),
	)
	sessionSvc := service.NewSessionService(coordinator, clk, logr)

	statisticsOpts := []service.StatisticsServiceOption{
		service.WithStatisticsClock(clk),
		service.WithStatisticsMetrics(metrics),
	}
	notifiers := []service.Notifier{service.NewLogNotifier(logr)}
	readiness := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		statisticsOpts = append(statisticsOpts,
			service.WithStatisticsLocker(cache.NewLocker(redisClient, "lock:")),
			service.WithStatisticsCache(repository.NewCacheRepository(redisClient, logr)),
		)
		notifiers = append(notifiers, service.NewRedisNotifier(redisClient, ""))
		readiness["redis"] = cache.Pinger{Client: redisClient}
	}
	statisticsSvc := service.NewStatisticsService(eventRepo, statisticsRepo, database.NewTxRunner(db), cfg.Statistics, logr, statisticsOpts...)
	alertSvc := service.NewAlertService(applicationRepo, database.NewTxRunner(db), notifiers, cfg.Alerts, clk, metrics, logr)

	alertQueue := jobs.NewQueue("appointment-alerts", alertSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Alerts.Workers,
		MaxRetries: cfg.Alerts.MaxRetries,
		RetryDelay: cfg.Alerts.RetryDelay,
		Logger:     logr,
	})
	alertQueue.Start(ctx)
	defer alertQueue.Stop()
	alertSvc.SetQueue(alertQueue)

	scheduler := jobs.NewScheduler(logr)
	if cfg.Statistics.Enabled {
		if err := scheduler.Register("statistics", cfg.Statistics.Schedule, func(ctx context.Context) error {
			_, err := statisticsSvc.Run(ctx)
			return err
		}); err != nil {
			logr.Sugar().Fatalw("failed to schedule statistics", "error", err)
		}
	}
	if cfg.Alerts.Enabled {
		if err := scheduler.Register("appointment-alerts", cfg.Alerts.Schedule, func(ctx context.Context) error {
			_, err := alertSvc.Sweep(ctx)
			return err
		}); err != nil {
			logr.Sugar().Fatalw("failed to schedule appointment alerts", "error", err)
		}
	}
	scheduler.Start()

	router := newRouter(cfg, logr, metrics, authSvc, routes{
		applications: handler.NewApplicationHandler(applicationSvc),
		statistics:   handler.NewStatisticsHandler(statisticsSvc),
		sessions:     handler.NewSessionHandler(sessionSvc),
		metrics:      handler.NewMetricsHandler(metrics, readiness),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

type routes struct {
	applications *handler.ApplicationHandler
	statistics   *handler.StatisticsHandler
	sessions     *handler.SessionHandler
	metrics      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, auth middleware.TokenValidator, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(auth))
	api.POST("/applications", h.applications.Create)
	api.GET("/applications/:id", h.applications.Get)
	api.PUT("/applications/:id", h.applications.Upsert)
	api.POST("/applications/:id/accept", h.applications.Accept)
	api.POST("/applications/:id/reject", h.applications.Reject)
	api.POST("/applications/:id/archive", h.applications.Archive)
	api.POST("/applications/:id/unarchive", h.applications.Unarchive)
	api.POST("/applications/:id/deactivate", h.applications.Deactivate)
	api.POST("/applications/:id/reactivate", h.applications.Reactivate)
	api.GET("/statistics", h.statistics.Get)
	api.POST("/sessions/login", h.sessions.Login)

	admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/statistics/run", h.statistics.Run)

	return r
}
