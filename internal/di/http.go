package di

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/furnitune/api/internal/handlers"
	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/idempotency"
	"github.com/furnitune/api/internal/platform/observability"
)

const meterName = "github.com/furnitune/api"

// Router assembles the authenticated HTTP surface on top of the container's services.
func (c *Container) Router(ctx context.Context) (http.Handler, error) {
	cfg := c.Config
	authLogger := c.Logger.Named("auth")

	metrics, err := auth.NewOTelRecorder(otel.Meter(meterName))
	if err != nil {
		return nil, fmt.Errorf("auth metrics: %w", err)
	}

	var firebaseOpts []auth.FirebaseOption
	if cfg.Security.Production() {
		firebaseOpts = append(firebaseOpts, auth.WithRevocationCheck())
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, firebaseOpts...)
	if err != nil {
		return nil, fmt.Errorf("firebase verifier: %w", err)
	}
	authn := auth.NewAuthenticator(verifier, auth.WithAuthLogger(authLogger), auth.WithAuthMetrics(metrics))

	scheduler := auth.NewOIDCValidator(
		auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(authLogger)),
		auth.WithOIDCLogger(authLogger),
		auth.WithOIDCMetrics(metrics),
	).RequireOIDC(auth.SchedulerPolicy{
		Audience:        cfg.Security.OIDC.Audience,
		Issuers:         cfg.Security.OIDC.Issuers,
		ServiceAccounts: cfg.Security.OIDC.ServiceAccounts,
	})
	if cfg.Security.OIDC.Audience == "" {
		authLogger.Warn("oidc audience not configured; /internal rejects every caller")
	}

	hmac := cfg.Security.HMAC
	courier := auth.NewSignatureValidator(auth.StaticSecrets(hmac.Secrets), c.Infra.Nonces,
		auth.WithSignatureHeaders(hmac.SignatureHeader, hmac.TimestampHeader, hmac.NonceHeader),
		auth.WithSignatureWindow(hmac.ClockSkew, hmac.NonceTTL),
		auth.WithSignatureLogger(authLogger),
		auth.WithSignatureMetrics(metrics),
	).RequireSignature(handlers.CourierSecretResolver(hmac.Secrets))
	if len(hmac.Secrets) == 0 {
		authLogger.Warn("no courier secrets configured; /webhooks rejects every caller")
	}

	replays := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(c.Logger.Named("idempotency")),
	)

	svc := c.Services
	orders := handlers.NewOrderHandlers(authn, svc.Ledger, svc.Proofs, svc.Returns, svc.Shipments,
		handlers.WithOrderMutationLimiter(handlers.RateLimit(cfg.RateLimits.AuthenticatedPerMinute)),
		handlers.WithOrderIdempotency(replays),
	)
	admin := handlers.NewAdminHandlers(authn, handlers.AdminServices{
		Ledger:    svc.Ledger,
		Proofs:    svc.Proofs,
		Shipments: svc.Shipments,
		Returns:   svc.Returns,
		Revenue:   svc.Revenue,
	},
		handlers.WithRevenueCountOnlyPaidDefault(cfg.Ledger.CountOnlyPaid),
		handlers.WithAdminIdempotency(replays),
	)
	webhooks := handlers.NewCourierWebhookHandlers(svc.Shipments, handlers.CourierRateLimit(cfg.RateLimits.CourierBurst))
	internal := handlers.NewInternalHandlers(svc.Revenue)
	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.Build),
		handlers.WithHealthSystemService(svc.System),
	)

	httpLogger := c.Logger.Named("http")
	return handlers.NewRouter(
		handlers.WithSecurityOptions(handlers.DefaultSecurityOptions(cfg.Security.Production())),
		handlers.WithMiddlewares(
			observability.Tracing(cfg.Firebase.ProjectID),
			observability.AccessLog(httpLogger),
			observability.Recoverer(httpLogger),
			handlers.RateLimit(cfg.RateLimits.DefaultPerMinute),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithOrderRoutes(orders.Routes),
		handlers.WithAdminRoutes(admin.Routes),
		handlers.WithWebhookRoutes(webhooks.Routes),
		handlers.WithWebhookMiddlewares(courier, replays),
		handlers.WithInternalRoutes(internal.Routes),
		handlers.WithInternalMiddlewares(scheduler),
	), nil
}
