package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sharedApplication "github.com/felixgeelhaar/subtrack/internal/shared/application"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/subtrack/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/commands"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/infrastructure/persistence"
	"github.com/felixgeelhaar/subtrack/internal/workflow"
	"github.com/felixgeelhaar/subtrack/pkg/config"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// reminderClaimSlack extends the reminder claim past the trigger timeout so
// a slow but successful trigger still records its run under the claim.
const reminderClaimSlack = 5 * time.Second

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.InMemoryMetrics
	Health  *observability.HealthRegistry

	// Database. Nil for the in-memory container.
	DB *database.Connection

	// Redis
	RedisClient *redis.Client

	// Repositories
	SubscriptionRepo subscription.Repository
	OutboxRepo       outbox.Repository
	UnitOfWork       sharedApplication.UnitOfWork

	// Workflow
	WorkflowClient    workflow.Client
	RunStore          workflow.RunStore
	ReminderScheduler *workflow.ReminderScheduler

	// Publishers
	BroadcastPublisher eventbus.Publisher
	EventPublisher     eventbus.Publisher
	OutboxProcessor    *outbox.Processor

	// Command Handlers
	CreateSubscriptionHandler *commands.CreateSubscriptionHandler
	UpdateSubscriptionHandler *commands.UpdateSubscriptionHandler
	CancelSubscriptionHandler *commands.CancelSubscriptionHandler
	DeleteSubscriptionHandler *commands.DeleteSubscriptionHandler

	// Query Handlers
	GetSubscriptionHandler       *queries.GetSubscriptionHandler
	ListUserSubscriptionsHandler *queries.ListUserSubscriptionsHandler
	ListAllSubscriptionsHandler  *queries.ListAllSubscriptionsHandler
	UpcomingRenewalsHandler      *queries.UpcomingRenewalsHandler
}

// NewContainer creates and wires all dependencies. An empty DATABASE_URL
// selects SQLite, which is migrated on open.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := newContainer(cfg, logger)

	conn, err := database.Open(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.DB = conn
	logger.Info("connected to database", "driver", conn.Driver.String())

	if conn.Driver == database.DriverSQLite {
		if err := migrations.RunSQLiteMigrations(ctx, conn.DB); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to migrate SQLite database: %w", err)
		}
	}

	factory := NewRepositoryFactory(conn)
	if c.SubscriptionRepo, err = factory.SubscriptionRepository(); err != nil {
		c.Close()
		return nil, err
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		c.Close()
		return nil, err
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		c.Close()
		return nil, err
	}
	c.Health.Register("database", observability.PingChecker("database", true, conn.Ping))

	if err := c.connectRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.connectBroker(); err != nil {
		c.Close()
		return nil, err
	}

	c.wire()
	return c, nil
}

// NewInMemoryContainer wires the application against in-memory stores and
// a noop broadcast publisher. The workflow client still follows cfg.
func NewInMemoryContainer(cfg *config.Config, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	c := newContainer(cfg, logger)
	c.SubscriptionRepo = persistence.NewInMemorySubscriptionRepository()
	c.OutboxRepo = outbox.NewInMemoryRepository()
	c.UnitOfWork = sharedApplication.NoopUnitOfWork{}
	c.BroadcastPublisher = eventbus.NewNoopPublisher(logger)
	c.wire()
	return c
}

func newContainer(cfg *config.Config, logger *slog.Logger) *Container {
	return &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(0),
	}
}

// connectRedis opens the run store backend. Redis is optional in
// development; elsewhere a configured but unreachable Redis is fatal.
func (c *Container) connectRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}

	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, reminder runs will be kept in memory", "error", err)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, reminder runs will be kept in memory", "error", err)
		return nil
	}

	c.RedisClient = client
	c.Health.Register("redis", observability.PingChecker("redis", false, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("connected to Redis")
	return nil
}

// connectBroker opens the broadcast publisher. Without RABBITMQ_URL events
// are dropped by a noop publisher.
func (c *Container) connectBroker() error {
	if c.Config.RabbitMQURL == "" {
		c.BroadcastPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}

	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Config.RabbitMQExchange, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return err
		}
		c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.BroadcastPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}

	c.BroadcastPublisher = publisher
	c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", false, publisher.Ping))
	return nil
}

// wire builds the workflow, publisher and handler graph on top of the
// repositories already set on c.
func (c *Container) wire() {
	cfg := c.Config

	if c.RedisClient != nil {
		c.RunStore = workflow.NewRedisRunStore(c.RedisClient, cfg.ReminderRunTTL)
	} else {
		c.RunStore = workflow.NewMemoryRunStore(cfg.ReminderRunTTL)
	}

	client := workflow.NewHTTPClient(workflow.ClientConfig{
		TriggerURL:      cfg.WorkflowTriggerURL,
		Token:           cfg.WorkflowToken,
		Timeout:         cfg.WorkflowTimeout,
		BreakerFailures: uint32(max(cfg.WorkflowBreakerFailures, 0)),
		BreakerTimeout:  cfg.WorkflowBreakerTimeout,
	}, nil, c.Logger)
	c.WorkflowClient = client
	c.Health.Register("workflow", func(context.Context) observability.HealthCheckResult {
		if client.State() == gobreaker.StateOpen {
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusDegraded,
				Message: "workflow trigger circuit open",
			}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
	})

	c.ReminderScheduler = workflow.NewReminderScheduler(c.WorkflowClient, c.RunStore, workflow.ReminderConfig{
		ServerURL: cfg.ServerURL,
		ClaimTTL:  cfg.WorkflowTimeout + reminderClaimSlack,
	}, c.Logger)

	c.EventPublisher = eventbus.NewRoutingPublisher(c.BroadcastPublisher).
		Route(subscription.RoutingKeyReminderPrefix, workflow.NewReminderPublisher(c.ReminderScheduler))

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     cfg.OutboxPollInterval,
		BatchSize:        cfg.OutboxBatchSize,
		MaxRetries:       cfg.OutboxMaxRetries,
		RetryBackoffBase: outbox.DefaultProcessorConfig().RetryBackoffBase,
		RetryBackoffMax:  outbox.DefaultProcessorConfig().RetryBackoffMax,
		DeferDelay:       outbox.DefaultProcessorConfig().DeferDelay,
		PublishTimeout:   outbox.DefaultProcessorConfig().PublishTimeout,
		Metrics:          c.Metrics,
	}, c.Logger.With("component", "outbox_processor"))

	c.CreateSubscriptionHandler = commands.NewCreateSubscriptionHandler(
		c.SubscriptionRepo,
		c.OutboxRepo,
		c.UnitOfWork,
		c.ReminderScheduler,
		commands.CreateConfig{InlineDispatch: cfg.WorkflowInlineDispatch},
		c.Logger,
	)
	c.UpdateSubscriptionHandler = commands.NewUpdateSubscriptionHandler(c.SubscriptionRepo, c.UnitOfWork)
	c.CancelSubscriptionHandler = commands.NewCancelSubscriptionHandler(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork)
	c.DeleteSubscriptionHandler = commands.NewDeleteSubscriptionHandler(c.SubscriptionRepo, c.OutboxRepo, c.UnitOfWork)

	c.GetSubscriptionHandler = queries.NewGetSubscriptionHandler(c.SubscriptionRepo)
	c.ListUserSubscriptionsHandler = queries.NewListUserSubscriptionsHandler(c.SubscriptionRepo)
	c.ListAllSubscriptionsHandler = queries.NewListAllSubscriptionsHandler(c.SubscriptionRepo)
	c.UpcomingRenewalsHandler = queries.NewUpcomingRenewalsHandler(c.SubscriptionRepo, nil)
}

// RecordOutboxStats copies the processor counters into the metrics
// collector.
func (c *Container) RecordOutboxStats() outbox.Stats {
	stats := c.OutboxProcessor.GetStats()
	c.Metrics.Gauge(observability.MetricOutboxPublished, float64(stats.PublishedCount))
	c.Metrics.Gauge(observability.MetricOutboxFailed, float64(stats.FailedCount))
	c.Metrics.Gauge(observability.MetricOutboxDead, float64(stats.DeadCount))
	c.Metrics.Gauge(observability.MetricOutboxLag, stats.LagSeconds)
	return stats
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	} else if c.BroadcastPublisher != nil {
		if err := c.BroadcastPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		} else {
			c.Logger.Info("Redis connection closed")
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("error closing database", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DB.Driver.String())
		}
	}
}
