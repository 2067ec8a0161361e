package di

import (
	"context"
	"fmt"
	"time"

	"github.com/fitlife/fitlife-sync/internal/infrastructure/repositories"
	"github.com/fitlife/fitlife-sync/internal/infrastructure/services"
	"github.com/fitlife/fitlife-sync/internal/interfaces/controllers"
	"github.com/fitlife/fitlife-sync/internal/usecases/notification"
	repositories_ports "github.com/fitlife/fitlife-sync/internal/usecases/ports/repositories"
	services_ports "github.com/fitlife/fitlife-sync/internal/usecases/ports/services"
	"github.com/fitlife/fitlife-sync/pkg/config"
	"github.com/fitlife/fitlife-sync/pkg/db"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/metrics"
	"github.com/fitlife/fitlife-sync/pkg/redis"
	"github.com/fitlife/fitlife-sync/pkg/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

// Container holds all dependencies for the application
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry *prometheus.Registry

	// Repositories
	NotificationRepo repositories_ports.NotificationRepository
	SubscriptionRepo repositories_ports.SubscriptionRepository

	// Services
	PushService services_ports.PushService

	// Metrics
	DeliveryMetrics *metrics.DeliveryMetrics
	JobMetrics      *metrics.JobMetrics

	// Use Cases
	SendNotificationUC   *notification.SendNotificationUseCase
	ManageSubscriptionUC *notification.ManageSubscriptionUseCase
	ReadStateUC          *notification.ReadStateUseCase

	// Controllers
	HealthController       *controllers.HealthController
	SubscriptionController *controllers.SubscriptionController
	NotificationController *controllers.NotificationController
	AdminController        *controllers.AdminController
	HTTPServer             *controllers.HTTPServer

	// DueWorker is nil unless a scheduler cron expression is configured.
	DueWorker *schedule.Worker
}

const deliverDueJobName = "deliver-due"

// NewContainer creates and configures a new dependency injection container.
// It opens the database and migrates the schema.
func NewContainer(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Container, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	c := &Container{Config: cfg, Logger: logg}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	c.initMetrics()
	c.initRepositories()
	c.initServices(ctx)
	c.initUseCases()
	c.initControllers()
	if err := c.initScheduler(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close releases the database and redis connections.
func (c *Container) Close() error {
	var err error
	if c.Redis != nil {
		err = multierr.Append(err, c.Redis.Close())
	}
	if c.DB != nil {
		err = multierr.Append(err, c.DB.Close())
	}
	return err
}

func (c *Container) initDatabase(ctx context.Context) error {
	client, err := db.New(ctx, c.Config.DB, c.Logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := client.Migrate(ctx, repositories.Models()...); err != nil {
		_ = client.Close()
		return err
	}
	c.DB = client
	return nil
}

func (c *Container) initMetrics() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.DeliveryMetrics = metrics.NewDeliveryMetrics(c.Registry)
	c.JobMetrics = metrics.NewJobMetrics(c.Registry)
}

// initRepositories initializes all repository dependencies
func (c *Container) initRepositories() {
	c.NotificationRepo = repositories.NewGormNotificationRepository(c.DB.DB())
	c.SubscriptionRepo = repositories.NewGormSubscriptionRepository(c.DB.DB())
}

// initServices initializes all service dependencies
func (c *Container) initServices(ctx context.Context) {
	pushSvc, err := services.NewWebPushService(c.Config.Push, nil)
	if err != nil {
		c.Logger.Warn(ctx, "web push disabled: "+err.Error())
		c.PushService = services.NewNoopPushService()
		return
	}
	c.PushService = pushSvc
}

// initUseCases initializes all use case dependencies
func (c *Container) initUseCases() {
	c.SendNotificationUC = notification.NewSendNotificationUseCase(
		c.NotificationRepo,
		c.SubscriptionRepo,
		c.PushService,
		c.Logger,
		notification.WithConcurrency(c.Config.Push.Concurrency),
		notification.WithMetrics(c.DeliveryMetrics),
	)

	c.ManageSubscriptionUC = notification.NewManageSubscriptionUseCase(
		c.SubscriptionRepo,
		c.PushService,
		c.Logger,
	)

	c.ReadStateUC = notification.NewReadStateUseCase(c.NotificationRepo)
}

// initControllers initializes all controller dependencies
func (c *Container) initControllers() {
	c.HealthController = controllers.NewHealthController(c.DB)
	c.SubscriptionController = controllers.NewSubscriptionController(c.ManageSubscriptionUC)
	c.NotificationController = controllers.NewNotificationController(c.SendNotificationUC, c.ReadStateUC)
	c.AdminController = controllers.NewAdminController(c.SendNotificationUC)

	c.HTTPServer = controllers.NewHTTPServer(
		c.Config.JWT,
		c.Logger,
		c.Registry,
		c.HealthController,
		c.SubscriptionController,
		c.NotificationController,
		c.AdminController,
	)
}

// initScheduler builds the due-notification worker when a cron expression
// is configured. Redis, when available, keeps replicas from running the
// same activation twice.
func (c *Container) initScheduler(ctx context.Context) error {
	if !c.Config.Scheduler.Enabled() {
		return nil
	}
	cronSchedule, err := schedule.ParseCron(c.Config.Scheduler.Cron, c.Config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	var lock schedule.Lock = schedule.NewLocalLock()
	if c.Config.Redis.Enabled() {
		client, err := redis.New(ctx, c.Config.Redis, c.Logger)
		if err != nil {
			return fmt.Errorf("scheduler lock: %w", err)
		}
		c.Redis = client
		lock, err = schedule.NewRedisLock(client, "fitlife:lock:"+deliverDueJobName, c.Config.Scheduler.LockTTL)
		if err != nil {
			return err
		}
	}

	worker, err := schedule.NewWorker(schedule.WorkerParams{
		Cron:    cronSchedule,
		Job:     schedule.JobFunc(deliverDueJobName, c.deliverDue),
		Lock:    lock,
		Logger:  c.Logger,
		Metrics: c.JobMetrics,
	})
	if err != nil {
		return err
	}
	c.DueWorker = worker
	return nil
}

func (c *Container) deliverDue(ctx context.Context) error {
	resp, err := c.SendNotificationUC.DeliverDue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	c.Logger.Info(c.Logger.WithFields(ctx, map[string]any{
		"delivered": resp.Delivered,
		"sent":      resp.Sent,
		"failed":    resp.Failed,
	}), "due notifications delivered")
	return nil
}
