package config

import (
	"context"
	"fmt"

	"github.com/draftea/order-system/order-service/application"
	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/order-service/handlers"
	"github.com/draftea/order-system/order-service/infrastructure"
	"github.com/draftea/order-system/shared/events"
	sharedinfra "github.com/draftea/order-system/shared/infrastructure"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Dependencies struct {
	// Database
	DB *sqlx.DB

	// Repositories
	OrderRepository domain.OrderRepository

	// Collaborators
	Inventory     *infrastructure.InventoryHTTPClient
	Payments      *infrastructure.PaymentHTTPClient
	Notifications *infrastructure.NotificationHTTPClient

	// Resilience
	Breakers       *resilience.Registry
	BreakerMetrics *handlers.BreakerMetrics

	// Use Cases
	CreateOrderSync       *application.CreateOrderSync
	CreateOrderAsync      *application.CreateOrderAsync
	InitiatePayment       *application.InitiatePayment
	InitiatePaymentAsync  *application.InitiatePaymentAsync
	HandlePaymentCallback *application.HandlePaymentCallback
	GetPaymentStatus      *application.GetPaymentStatus
	GetOrderStatus        *application.GetOrderStatus
	StreamOrderStatus     *application.StreamOrderStatus
	NotifyOrderSync       *application.NotifyOrderSync
	NotifyOrderAsync      *application.NotifyOrderAsync

	// HTTP Handlers
	OrderHandlers *handlers.OrderHandlers

	// Event Handlers
	OrderEventHandlers *handlers.OrderEventHandlers

	// Messaging
	Requester       events.Requester
	EventPublisher  events.Publisher
	EventSubscriber events.Subscriber

	amqpClient     *sharedinfra.AMQPClient
	amqpSubscriber *sharedinfra.AMQPSubscriber
	kafkaPublisher *sharedinfra.KafkaPublisher
	sqsSubscriber  *sharedinfra.SQSEventSubscriber
}

// BuildDependencies wires the service. Breaker metrics are registered on reg.
func BuildDependencies(ctx context.Context, cfg *Config, logger *zap.Logger, reg prometheus.Registerer) (*Dependencies, error) {
	deps := &Dependencies{}

	if err := deps.buildRepository(ctx, cfg); err != nil {
		return nil, err
	}

	deps.Inventory = infrastructure.NewInventoryHTTPClient(cfg.Services.InventoryURL, cfg.Services.Timeout)
	deps.Payments = infrastructure.NewPaymentHTTPClient(cfg.Services.PaymentURL, cfg.Services.Timeout)
	deps.Notifications = infrastructure.NewNotificationHTTPClient(infrastructure.NotificationEndpoints{
		Notification: cfg.Notifications.NotificationURL,
		Email:        cfg.Notifications.EmailURL,
		Analytics:    cfg.Notifications.AnalyticsURL,
		Unreachable:  cfg.Notifications.UnreachableURL,
	}, cfg.Notifications.Timeout)

	if err := deps.buildMessaging(ctx, cfg, logger); err != nil {
		_ = deps.Close()
		return nil, err
	}

	deps.BreakerMetrics = handlers.NewBreakerMetrics(reg)
	deps.Breakers = resilience.NewRegistry(breakerSettings(cfg.Resilience),
		deps.BreakerMetrics.Listener(), handlers.LogTransitions(logger))
	paymentSettings := breakerSettings(cfg.Resilience)
	// declines and validation answers are not outages
	paymentSettings.IsIgnored = resilience.IsPermanent
	deps.Breakers.Register(application.PaymentBreakerName, paymentSettings)

	policy := resilience.RetryPolicy{
		MaxRetries:     cfg.Resilience.MaxRetries,
		AttemptTimeout: cfg.Resilience.AttemptTimeout,
	}
	publishTimeout := cfg.Messaging.PublishTimeout
	repo := deps.OrderRepository

	// Initialize use cases
	deps.CreateOrderSync = application.NewCreateOrderSync(repo, deps.Inventory, policy, logger)
	deps.CreateOrderAsync = application.NewCreateOrderAsync(repo, deps.Requester, policy, cfg.Messaging.SettleBudget, logger)
	deps.InitiatePayment = application.NewInitiatePayment(repo, deps.Payments, deps.Breakers, policy, logger)
	deps.InitiatePaymentAsync = application.NewInitiatePaymentAsync(repo, deps.EventPublisher, publishTimeout, logger)
	deps.HandlePaymentCallback = application.NewHandlePaymentCallback(repo, logger)
	deps.GetPaymentStatus = application.NewGetPaymentStatus(deps.Payments)
	deps.GetOrderStatus = application.NewGetOrderStatus(repo)
	deps.StreamOrderStatus = application.NewStreamOrderStatus(repo, cfg.Stream.PollInterval, cfg.Stream.MaxDuration, logger)
	deps.NotifyOrderSync = application.NewNotifyOrderSync(repo, deps.Notifications,
		application.DefaultNotificationPolicies(), cfg.Notifications.AllowDisableHook, logger)
	deps.NotifyOrderAsync = application.NewNotifyOrderAsync(repo, deps.EventPublisher, publishTimeout, logger)

	// Initialize handlers
	deps.OrderHandlers = handlers.NewOrderHandlers(
		deps.CreateOrderSync,
		deps.CreateOrderAsync,
		deps.InitiatePayment,
		deps.InitiatePaymentAsync,
		deps.GetPaymentStatus,
		deps.GetOrderStatus,
		deps.StreamOrderStatus,
		deps.NotifyOrderSync,
		deps.NotifyOrderAsync,
		logger,
	)
	deps.OrderEventHandlers = handlers.NewOrderEventHandlers(deps.HandlePaymentCallback, logger)

	return deps, nil
}

func (d *Dependencies) buildRepository(ctx context.Context, cfg *Config) error {
	if cfg.Database.Driver != DriverPostgres {
		d.OrderRepository = infrastructure.NewMemoryOrderRepository()
		return nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.GetDatabaseURL())
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	d.DB = db

	repo := infrastructure.NewPostgresOrderRepository(db)
	if err := repo.InitSchema(ctx); err != nil {
		db.Close()
		return err
	}
	d.OrderRepository = repo
	return nil
}

func (d *Dependencies) buildMessaging(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	m := cfg.Messaging

	if m.Driver == DriverMemory {
		bus := sharedinfra.NewMemoryBus(logger)
		bus.Respond(events.CheckUpdateInventoryTopic, infrastructure.NewInventoryResponder(d.Inventory))
		d.Requester = bus
		d.EventPublisher = bus
		d.EventSubscriber = bus
		return nil
	}

	routes := map[events.Topic]string{events.CheckUpdateInventoryTopic: m.InventoryQueue}
	if m.Driver == DriverAMQP {
		routes[events.ProcessPaymentTopic] = m.PaymentQueue
	}

	client, err := sharedinfra.DialAMQP(m.AMQPURL, routes, logger)
	if err != nil {
		return err
	}
	d.amqpClient = client
	d.Requester = client

	if m.Driver == DriverAWS {
		awsOpts := sharedinfra.AWSOptions{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint}

		publisher, err := sharedinfra.NewSNSEventPublisherFromConfig(ctx, awsOpts, cfg.AWS.SNSTopicArn, logger)
		if err != nil {
			return err
		}
		d.EventPublisher = publisher

		subscriber, err := sharedinfra.NewSQSEventSubscriberFromConfig(ctx, awsOpts, cfg.AWS.SQSQueueURL, logger)
		if err != nil {
			return err
		}
		d.sqsSubscriber = subscriber
		d.EventSubscriber = subscriber
		return nil
	}

	d.kafkaPublisher = sharedinfra.NewKafkaPublisher(m.KafkaBrokers, logger)
	d.EventPublisher = sharedinfra.NewTopicPublisher(client).Route(events.OrderConfirmedTopic, d.kafkaPublisher)

	d.amqpSubscriber = sharedinfra.NewAMQPSubscriber(client.Connection(), m.OrderQueue, m.Prefetch, logger)
	d.EventSubscriber = d.amqpSubscriber
	return nil
}

func breakerSettings(r Resilience) resilience.Settings {
	return resilience.Settings{
		Timeout:                  r.BreakerTimeout,
		ErrorThresholdPercentage: r.ErrorThreshold,
		ResetTimeout:             r.ResetTimeout,
		RollingWindow:            r.RollingWindow,
		Buckets:                  r.Buckets,
		VolumeThreshold:          r.VolumeThreshold,
	}
}

// Close closes all dependencies, subscribers before the connections they use
func (d *Dependencies) Close() error {
	var errs []error

	if d.amqpSubscriber != nil {
		if err := d.amqpSubscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close amqp subscriber: %w", err))
		}
	}

	if d.sqsSubscriber != nil {
		if err := d.sqsSubscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sqs subscriber: %w", err))
		}
	}

	if d.kafkaPublisher != nil {
		if err := d.kafkaPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close kafka publisher: %w", err))
		}
	}

	if d.amqpClient != nil {
		if err := d.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close amqp client: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
