package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Akash0391/todo-project/internal/config"
	"github.com/Akash0391/todo-project/internal/hub"
	"github.com/Akash0391/todo-project/internal/platform/mailer"
	"github.com/Akash0391/todo-project/internal/platform/postgres"
	"github.com/Akash0391/todo-project/internal/reminder"
	"github.com/Akash0391/todo-project/internal/service"
	"github.com/Akash0391/todo-project/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	taskStore store.TaskStore
	userStore store.UserStore
	jobStore  store.JobStore

	// Realtime
	hub       *hub.Hub
	backplane *hub.RedisBackplane
	redis     *redis.Client

	// Services
	taskService service.TaskService

	// Reminder pipeline
	queue     *reminder.Queue
	scheduler *reminder.Scheduler
	worker    *reminder.Worker
}

// newApplication creates a new application instance with all dependencies
// initialized and background components started.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	// Stores
	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.userStore = postgres.NewPostgresUserStore(db)
	app.jobStore = postgres.NewPostgresJobStore(db)

	// Broadcast hub, with the Redis backplane when configured
	app.hub = hub.New(logger)
	if cfg.Hub.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Hub.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		app.redis = redis.NewClient(opts)
		app.backplane = hub.NewRedisBackplane(
			app.redis, cfg.Hub.RedisChannel, app.hub, logger)
		app.backplane.Start(ctx)
		logger.Info("Redis backplane started", "channel", cfg.Hub.RedisChannel)
	}

	// Task service: the single mutation path
	var err error
	app.taskService, err = service.NewTaskService(db, app.taskStore, app.hub, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	// Notification transport: SMTP when configured, log-only otherwise
	var transport mailer.Transport
	if cfg.Mail.Host != "" {
		transport, err = mailer.NewSMTPTransport(mailer.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create smtp transport: %w", err)
		}
	} else {
		transport = mailer.NewLogTransport(logger)
		logger.Warn("no SMTP host configured, reminders will be logged only")
	}

	// Reminder pipeline
	app.queue = reminder.NewQueue(app.jobStore, cfg.Reminder.QueueSize, logger)

	app.worker = reminder.NewWorker(
		app.queue, app.jobStore, app.taskStore, app.userStore, transport,
		reminder.WorkerConfig{
			WorkerCount: cfg.Reminder.WorkerCount,
			MaxAttempts: cfg.Reminder.MaxAttempts,
			StuckJobAge: time.Duration(cfg.Reminder.StuckJobAgeMinutes) * time.Minute,
		}, logger)
	if err := app.worker.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start reminder worker: %w", err)
	}

	app.scheduler = reminder.NewScheduler(app.taskStore, app.queue,
		reminder.SchedulerConfig{
			TickInterval:  time.Duration(cfg.Reminder.TickSeconds) * time.Second,
			ClaimLimit:    cfg.Reminder.ClaimLimit,
			StaleClaimAge: time.Duration(cfg.Reminder.ClaimAgeMinutes) * time.Minute,
		}, logger)
	app.scheduler.Start(ctx)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. Order matters:
// the scheduler stops producing before the workers stop consuming, and the
// hub closes before the backplane detaches.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.worker != nil {
		app.worker.Stop()
	}

	if app.hub != nil {
		app.hub.Close()
	}
	if app.backplane != nil {
		app.backplane.Stop()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
