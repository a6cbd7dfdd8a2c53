package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/garyjia/expense-gate/internal/audit"
	"github.com/garyjia/expense-gate/internal/config"
	httpapi "github.com/garyjia/expense-gate/internal/interfaces/http"
	"github.com/garyjia/expense-gate/internal/lark"
	"github.com/garyjia/expense-gate/internal/metrics"
	"github.com/garyjia/expense-gate/internal/notification"
	"github.com/garyjia/expense-gate/internal/pipeline"
	"github.com/garyjia/expense-gate/internal/repository"
	"github.com/garyjia/expense-gate/internal/service"
	"github.com/garyjia/expense-gate/pkg/database"
	"github.com/garyjia/expense-gate/pkg/utils"
)

func main() {
	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense gate",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(context.Background(), cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	submissionRepo := repository.NewSubmissionRepository(db.DB, logger)
	policyRepo := repository.NewPolicyRepository(db, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)

	recorder := audit.NewRecorder(auditRepo, logger)

	var channel notification.Channel
	if cfg.Lark.AppID != "" {
		channel = lark.NewMessenger(lark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
		}, logger)
		logger.Info("Notification channel: lark")
	} else {
		channel = notification.NewLogChannel(logger)
		logger.Info("Notification channel: log (no lark credentials)")
	}

	dispatcher := notification.NewDispatcher(channel, notificationRepo, recorder, m, notification.Config{
		Retry: &notification.RetryStrategy{
			MaxAttempts: cfg.Notification.MaxAttempts,
			BaseBackoff: cfg.Notification.BaseBackoff,
			MaxBackoff:  cfg.Notification.MaxBackoff,
			Jitter:      true,
		},
		SendTimeout:     cfg.Notification.SendTimeout,
		AdminRecipients: cfg.Notification.AdminRecipients,
	}, logger)

	processor := pipeline.NewProcessor(*cfg, submissionRepo, policyRepo, recorder, dispatcher, m, logger)

	submissionService := service.NewSubmissionService(processor, submissionRepo, cfg.Pipeline.BatchWorkers, logger)
	approvalService := service.NewApprovalService(submissionRepo, recorder, dispatcher, m, logger)
	policyService := service.NewPolicyService(policyRepo, recorder, logger)

	handlers := httpapi.NewHandlers(submissionService, approvalService, policyService, auditRepo, logger)
	server := httpapi.NewServer(cfg.Server, handlers, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
