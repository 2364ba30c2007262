package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deadline_notification_bot/internal/app"
	"deadline_notification_bot/internal/infra/config"
	idb "deadline_notification_bot/internal/infra/database"
	"deadline_notification_bot/internal/infra/health"
	"deadline_notification_bot/internal/infra/logger"
	"deadline_notification_bot/internal/infra/scheduler"
	"deadline_notification_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Get().WithField("component", "main")
	mainLogger.WithField("environment", cfg.Environment).Info("Deadline notification bot starting")

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	if err := idb.RunMigrations(db, cfg.MigrationsPath); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database migrations")
	}
	mainLogger.Info("Database ready, migrations applied")

	// Repositories and ledger
	deadlineRepo := idb.NewPostgresDeadlineRepository(db)
	settingsRepo := idb.NewPostgresSettingsRepository(db)
	ledger := idb.NewPostgresLedger(db)

	// Telegram bot
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Get().WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	})
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	bot.Use(telegram.RateLimitMiddleware(
		cfg.InboundRateMaxCalls, cfg.InboundRateWindow,
		logger.Get().WithField("component", "ratelimit"),
	))
	client := telegram.NewTelebotAdapter(bot)

	// Dispatcher and scheduling core
	dispatcher := app.NewDispatcher(app.DispatcherConfig{
		Workers:     cfg.DispatchWorkers,
		QueueSize:   cfg.DispatchQueueSize,
		RetryBudget: cfg.DispatchRetryBudget,
		BackoffBase: cfg.DispatchBackoffBase,
		RateLimit:   cfg.RateLimitMaxCalls,
		RateWindow:  cfg.RateLimitWindow,
	}, client, logger.Get().WithField("component", "dispatcher"))

	schedulerService := app.NewSchedulerService(
		deadlineRepo, settingsRepo, ledger, dispatcher, nil,
		logger.Get().WithField("component", "scheduler"),
		app.SchedulerConfig{
			ScanInterval:    cfg.UpcomingScanInterval,
			LateGrace:       cfg.LateGrace,
			RetryBudget:     cfg.DispatchRetryBudget,
			StalePendingAge: cfg.StalePendingAge,
		},
	)
	dispatcher.OnOutcome(schedulerService.HandleOutcome)
	dispatcher.Start(context.Background())

	scanScheduler := scheduler.NewScanScheduler(
		schedulerService,
		logger.Get().WithField("component", "cron"),
		cfg.CronSpecUpcomingScan,
		cfg.CronSpecReconciliation,
	)
	scanScheduler.Start()

	// CRUD service and bot handlers
	deadlineService := app.NewDeadlineService(
		deadlineRepo, settingsRepo, ledger, nil,
		cfg.MaxTitleLength, cfg.MaxDescriptionLength,
	)
	handlerCtx := context.Background()
	handlerLogger := logger.Get().WithField("component", "handlers")
	telegram.RegisterBotCommands(bot, handlerLogger)
	telegram.RegisterDeadlineHandlers(handlerCtx, bot, deadlineService, handlerLogger)
	telegram.RegisterCallbackHandlers(handlerCtx, bot, deadlineService)

	// Health endpoint
	healthServer := health.NewServer(cfg.HealthAddr, db, schedulerService,
		logger.Get().WithField("component", "health"))
	healthServer.Start()

	mainLogger.Info("Application setup complete. Bot and scheduler are starting...")
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	scanScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	dispatcher.Stop(shutdownCtx)
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Health server shutdown failed")
	}
	bot.Stop()
	mainLogger.Info("Application shut down gracefully")
}
