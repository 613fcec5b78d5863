package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/furnitune/api/internal/platform/config"
	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/platform/idempotency"
	"github.com/furnitune/api/internal/platform/observability"
	firestorerepo "github.com/furnitune/api/internal/repositories/firestore"
	"github.com/furnitune/api/internal/services"
)

// Services bundles the service-layer contracts the HTTP layer relies upon.
type Services struct {
	Ledger        services.OrderLedgerService
	Proofs        services.PaymentProofService
	Shipments     services.ShipmentService
	Returns       services.ReturnService
	Revenue       services.RevenueService
	System        services.SystemService
	Notifications services.NotificationDispatcher
}

// Container owns every long-lived dependency of the API process.
type Container struct {
	Config      config.Config
	Logger      *zap.Logger
	Build       services.BuildInfo
	Firestore   *pfirestore.Provider
	Registry    *firestorerepo.Registry
	Infra       *Infra
	Idempotency idempotency.Store
	Services    Services

	now func() time.Time
}

// NewContainer dials the backing stores and assembles the services. On error everything
// opened so far is closed again.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, build services.BuildInfo) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger, Build: build, now: time.Now}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = c.Close(closeCtx)
		}
	}()

	c.Firestore = pfirestore.NewProvider(cfg.Firestore)
	if c.Registry, err = firestorerepo.NewRegistry(c.Firestore, pfirestore.WithTxAttempts(cfg.Ledger.TransactionAttempts)); err != nil {
		return nil, fmt.Errorf("build repositories: %w", err)
	}
	if c.Infra, err = NewInfra(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if c.Idempotency, err = c.idempotencyStore(ctx); err != nil {
		return nil, err
	}
	if c.Services, err = c.buildServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) idempotencyStore(ctx context.Context) (idempotency.Store, error) {
	switch c.Config.Idempotency.Store {
	case "redis":
		if c.Infra.Redis == nil {
			return nil, errors.New("idempotency: redis store selected without API_REDIS_ADDR")
		}
		return idempotency.NewRedisStore(c.Infra.Redis, ""), nil
	default:
		client, err := c.Firestore.Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("idempotency: %w", err)
		}
		return idempotency.NewFirestoreStore(client), nil
	}
}

func (c *Container) buildServices() (Services, error) {
	var svc Services
	reg := c.Registry
	named := func(name string) services.Logger {
		return observability.EventLogger(c.Logger.Named(name))
	}
	policy := services.ReturnPolicy{
		DefaultWindowDays:  c.Config.Ledger.DefaultReturnPolicyDays,
		OneRequestPerOrder: c.Config.Ledger.OneReturnPerOrder,
	}

	var publisher services.NotificationPublisher
	var events services.OrderEventPublisher
	if c.Infra.Publisher != nil {
		publisher, events = c.Infra.Publisher, c.Infra.Publisher
	}
	var reportCache services.ReportCache
	if c.Infra.Reports != nil {
		reportCache = c.Infra.Reports
	}

	var err error
	if svc.Notifications, err = services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: reg.Notifications(),
		Publisher:     publisher,
		Clock:         c.now,
		Logger:        named("notifications"),
	}); err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}

	if svc.Revenue, err = services.NewRevenueService(services.RevenueServiceDeps{
		Orders:     reg.Orders(),
		WorkOrders: reg.WorkOrders(),
		Cache:      reportCache,
		Location:   c.Config.Ledger.RevenueLocation(),
		Clock:      c.now,
		Logger:     named("revenue"),
	}); err != nil {
		return Services{}, fmt.Errorf("build revenue service: %w", err)
	}

	if svc.Ledger, err = services.NewOrderLedgerService(services.OrderLedgerServiceDeps{
		Orders:     reg.Orders(),
		WorkOrders: reg.WorkOrders(),
		Shipments:  reg.Shipments(),
		UnitOfWork: reg,
		Clock:      c.now,
		Notifier:   svc.Notifications,
		Events:     events,
		Revenue:    svc.Revenue,
		Logger:     named("ledger"),
	}); err != nil {
		return Services{}, fmt.Errorf("build order ledger service: %w", err)
	}

	if svc.Proofs, err = services.NewPaymentProofService(services.PaymentProofServiceDeps{
		Orders:     reg.Orders(),
		WorkOrders: reg.WorkOrders(),
		Shipments:  reg.Shipments(),
		UnitOfWork: reg,
		Signer:     c.Infra.Uploads,
		Objects:    c.Infra.Objects,
		Bucket:     c.Config.Storage.UploadsBucket,
		Clock:      c.now,
		Events:     events,
		Logger:     named("proofs"),
	}); err != nil {
		return Services{}, fmt.Errorf("build payment proof service: %w", err)
	}

	if svc.Shipments, err = services.NewShipmentService(services.ShipmentServiceDeps{
		Orders:     reg.Orders(),
		Shipments:  reg.Shipments(),
		UnitOfWork: reg,
		Policy:     policy,
		Clock:      c.now,
		Notifier:   svc.Notifications,
		Events:     events,
		Revenue:    svc.Revenue,
		Logger:     named("shipments"),
	}); err != nil {
		return Services{}, fmt.Errorf("build shipment service: %w", err)
	}

	if svc.Returns, err = services.NewReturnService(services.ReturnServiceDeps{
		Orders:     reg.Orders(),
		Returns:    reg.Returns(),
		WorkOrders: reg.WorkOrders(),
		Shipments:  reg.Shipments(),
		UnitOfWork: reg,
		Policy:     policy,
		Signer:     c.Infra.Uploads,
		Bucket:     c.Config.Storage.UploadsBucket,
		Clock:      c.now,
		Notifier:   svc.Notifications,
		Events:     events,
		Revenue:    svc.Revenue,
		Logger:     named("returns"),
	}); err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}

	if svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            c.now,
		Build:            c.Build,
		Probes:           c.Infra.Probes(),
	}); err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	return svc, nil
}

// SweepIdempotency deletes expired idempotency keys until ctx is cancelled.
func (c *Container) SweepIdempotency(ctx context.Context) error {
	idempotency.Sweep(ctx, c.Idempotency, c.Config.Idempotency.CleanupInterval, c.Config.Idempotency.CleanupBatchSize, c.Logger.Named("idempotency"))
	return nil
}

// Close releases clients in reverse order of construction.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Infra != nil {
		errs = append(errs, c.Infra.Close())
	}
	if c.Registry != nil {
		errs = append(errs, c.Registry.Close(ctx))
	} else if c.Firestore != nil {
		errs = append(errs, c.Firestore.Close(ctx))
	}
	return errors.Join(errs...)
}
