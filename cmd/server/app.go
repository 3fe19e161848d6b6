package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/checkout"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/contracts"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/fulfillment"
	paymentapp "github.com/rcarvalho-pb/checkout_gateway-go/internal/application/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/retry"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/webhook"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/application/worker"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/config"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/event"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/domain/payment"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/logging"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infra/metrics"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/eventbus"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/gateway"
	httpapi "github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/http"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/outbox"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/gormstore"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/inmemory"
	"github.com/rcarvalho-pb/checkout_gateway-go/internal/infrastructure/persistence/sqlite"
)

type app struct {
	cfg     config.Config
	slog    *slog.Logger
	logger  logging.Logger
	metrics *metrics.Counters

	payments payment.Repository
	outbox   outbox.Repository

	checkout   *checkout.Service
	processor  *webhook.Processor
	status     *paymentapp.Service
	dispatcher *outbox.Dispatcher
	reconciler *worker.Reconciler

	closers []func() error
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return logging.NewJSON(os.Stdout, lvl)
}

func buildApp(cfg config.Config) (*app, error) {
	sl := newLogger(cfg.LogLevel)
	a := &app{
		cfg:     cfg,
		slog:    sl,
		logger:  logging.NewSlogLogger(sl),
		metrics: &metrics.Counters{},
	}

	if err := a.openStores(); err != nil {
		a.close()
		return nil, err
	}

	policy := retry.Default()
	policy.MaxAttempts = cfg.Retry.MaxAttempts
	policy.BaseDelay = cfg.Retry.BaseDelay
	policy.MaxDelay = cfg.Retry.MaxDelay
	policy.AttemptTimeout = cfg.Gateway.AttemptTimeout

	gw := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		Credentials: gateway.Credentials{
			APIKey:      cfg.Gateway.APIKey,
			AccessToken: cfg.Gateway.AccessToken,
		},
		Retry: policy,
	}, a.metrics, a.logger)

	creds := gateway.NewCredentialCache(0)

	a.checkout = checkout.NewService(a.payments, gw, checkout.Config{
		DefaultCurrency: cfg.Checkout.DefaultCurrency,
		RedirectURL:     cfg.Checkout.RedirectURL,
		WebhookURL:      cfg.Checkout.WebhookURL,
		Credentials:     creds,
	}, a.metrics, a.logger)

	a.processor = webhook.NewProcessor(a.payments, outbox.NewRecorder(a.outbox), a.metrics, a.logger)
	a.status = &paymentapp.Service{Repo: a.payments}

	a.dispatcher = &outbox.Dispatcher{
		Repo:         a.outbox,
		EventBus:     a.publisher(),
		Logger:       a.logger,
		PollInterval: cfg.OutboxPollInterval,
	}

	a.reconciler = &worker.Reconciler{
		Repo:        a.payments,
		Gateway:     gw,
		Credentials: creds,
		Processor:   a.processor,
		OlderThan:   cfg.ReconcileOlderThan,
		Metrics:     a.metrics,
		Logger:      a.logger,
	}

	return a, nil
}

func (a *app) openStores() error {
	switch a.cfg.DBDriver {
	case "memory":
		a.payments = inmemory.NewPaymentRepository()
		a.outbox = inmemory.NewOutboxRepository()

	case "sqlite":
		db, err := sqlite.Open(a.cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := sqlite.RunMigrations(db); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		a.payments = sqlite.NewPaymentRepository(db)
		a.outbox = sqlite.NewOutboxRepository(db)

	case "mysql":
		db, err := gormstore.OpenMySQL(a.cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		var sqlDB *sql.DB
		if sqlDB, err = db.DB(); err != nil {
			return err
		}
		a.closers = append(a.closers, sqlDB.Close)
		if err := gormstore.Migrate(db); err != nil {
			return fmt.Errorf("migrate mysql: %w", err)
		}
		a.payments = gormstore.NewPaymentRepository(db)
		a.outbox = gormstore.NewOutboxRepository(db)

	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", a.cfg.DBDriver)
	}

	a.logger.Info("store ready", map[string]any{"driver": a.cfg.DBDriver})
	return nil
}

// publisher delivers dispatched events to in-process subscribers and, when
// brokers are configured, to Kafka.
func (a *app) publisher() contracts.EventPublisher {
	bus := eventbus.NewInMemoryBus()

	fulfill := &fulfillment.Handler{Completer: fulfillment.LogCompleter{Logger: a.logger}}
	bus.Subscribe(event.PaymentApproved, fulfill.Handle)

	if len(a.cfg.KafkaBrokers) == 0 {
		return bus
	}

	kafka := eventbus.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
	a.closers = append(a.closers, kafka.Close)
	a.logger.Info("kafka publishing enabled", map[string]any{
		"brokers": a.cfg.KafkaBrokers,
		"topic":   a.cfg.KafkaTopic,
	})
	return eventbus.Fanout{bus, kafka}
}

func (a *app) handlers() *httpapi.Handlers {
	return &httpapi.Handlers{
		Checkouts:     a.checkout,
		Webhooks:      a.processor,
		Payments:      a.status,
		Metrics:       a.metrics,
		WebhookSecret: a.cfg.WebhookSecret,
	}
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// reconcileOnce runs one reconcile pass and flushes the events it produced.
func (a *app) reconcileOnce(ctx context.Context) (int, error) {
	changed, err := a.reconciler.RunOnce(ctx)
	if err != nil {
		return changed, err
	}
	a.dispatcher.DispatchOnce(ctx)
	return changed, nil
}
