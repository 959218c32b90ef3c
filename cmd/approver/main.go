package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/extension-approver/api/swagger"
	"github.com/noah-isme/extension-approver/internal/handler"
	"github.com/noah-isme/extension-approver/internal/mailer"
	"github.com/noah-isme/extension-approver/internal/middleware"
	"github.com/noah-isme/extension-approver/internal/notify"
	"github.com/noah-isme/extension-approver/internal/repository"
	"github.com/noah-isme/extension-approver/internal/roster"
	"github.com/noah-isme/extension-approver/internal/service"
	"github.com/noah-isme/extension-approver/internal/sheets"
	"github.com/noah-isme/extension-approver/pkg/cache"
	"github.com/noah-isme/extension-approver/pkg/config"
	"github.com/noah-isme/extension-approver/pkg/database"
	"github.com/noah-isme/extension-approver/pkg/jobs"
	"github.com/noah-isme/extension-approver/pkg/logger"
	corsmiddleware "github.com/noah-isme/extension-approver/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/extension-approver/pkg/middleware/requestid"
)

// @title Extension Approver API
// @version 1.0.0
// @description Automated approval pipeline for assignment extension requests
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	// The dedup guard degrades gracefully: without Redis every submission
	// is evaluated, duplicates included.
	var dedup *service.RedisDedup
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, duplicate guard disabled", "error", err)
	} else {
		defer redisClient.Close()
		dedup = service.NewRedisDedup(redisClient, cfg.Dedup.TTL)
	}

	store, closeStore, err := newRosterStore(ctx, cfg.Roster, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to open roster store", "error", err)
	}
	defer closeStore()

	metrics := service.NewMetricsService()
	decisions := repository.NewDecisionLogRepository(db)
	confirmations := mailer.New(cfg.SMTP, logr)
	newNotifier := func() service.EvaluationNotifier {
		return notify.NewSlack(cfg.Slack, logr)
	}

	approvals := service.NewApprovalService(store, decisions, dedup, confirmations, newNotifier, metrics, cfg.Policy, logr)

	queue := jobs.NewQueue("evaluations", evaluationHandler(approvals, logr), jobs.QueueConfig{
		Workers: 1, // serializes roster access
		Logger:  logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics)
	router.GET("/health", metricsHandler.Health)
	router.GET("/ready", metricsHandler.Health)
	router.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	submissions := handler.NewSubmissionHandler(queue, cfg.Webhook.SigningSecret)
	decisionsHandler := handler.NewDecisionHandler(approvals)

	api := router.Group(cfg.APIPrefix)
	{
		api.POST("/submissions", submissions.Create)
		api.GET("/decisions", decisionsHandler.List)
		api.GET("/decisions/export", decisionsHandler.Export)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "roster_backend", cfg.Roster.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}

// rosterStore is what the approval pipeline needs from a roster backend.
type rosterStore interface {
	LookupRecord(ctx context.Context, email string) (*roster.Record, error)
	AssignmentRows(ctx context.Context) ([][]string, error)
}

func newRosterStore(ctx context.Context, cfg config.RosterConfig, logr *zap.Logger) (rosterStore, func(), error) {
	switch cfg.Backend {
	case config.RosterBackendSheets:
		store, err := sheets.NewGoogleStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.RosterBackendWorkbook:
		store, err := sheets.NewWorkbookStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logr.Sugar().Warnw("failed to close workbook", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown roster backend %q", cfg.Backend)
	}
}

func evaluationHandler(approvals *service.ApprovalService, logr *zap.Logger) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(handler.EvaluationJob)
		if !ok {
			return fmt.Errorf("unexpected job payload %T", job.Payload)
		}
		outcome, err := approvals.Evaluate(ctx, payload.Payload, payload.Silent)
		if err != nil {
			if outcome != nil {
				// Roster writes committed; only the confirmation failed.
				logr.Sugar().Errorw("confirmation delivery failed", "job_id", job.ID, "error", err)
				return nil
			}
			return err
		}
		logr.Sugar().Infow("evaluation complete", "job_id", job.ID, "outcome", outcome.Kind)
		return nil
	}
}
