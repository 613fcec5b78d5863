package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/furnitune/api/internal/di"
	"github.com/furnitune/api/internal/platform/config"
	"github.com/furnitune/api/internal/platform/observability"
	"github.com/furnitune/api/internal/platform/secrets"
	"github.com/furnitune/api/internal/services"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "furnitune-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	production := config.SecurityConfig{Environment: environment}.Production()

	logger, err := observability.NewLogger(observability.LoggerOptions{
		Level:       env["API_LOG_LEVEL"],
		Development: !production,
		Service:     "furnitune-api",
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	fetcher, err := newSecretFetcher(ctx, logger, env, production)
	if err != nil {
		return fmt.Errorf("init secret fetcher: %w", err)
	}
	defer func() { _ = fetcher.Close() }()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecrets(env)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load config: %w", err)
	}

	build := services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Security.Environment,
		StartedAt:   startedAt,
	}
	container, err := di.NewContainer(ctx, cfg, logger, build)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("closing dependencies", zap.Error(err))
		}
	}()

	router, err := container.Router(ctx)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("furnitune api listening", zap.String("addr", server.Addr), zap.String("environment", cfg.Security.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return container.SweepIdempotency(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down; draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string, production bool) (*secrets.Fetcher, error) {
	project := strings.TrimSpace(env["API_SECRET_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
	}
	if !production {
		opts = append(opts, secrets.WithFallbackFile(env["API_SECRET_FALLBACK_FILE"]))
	}
	if creds := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); creds != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(creds)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecrets lists the secret-backed fields that must resolve before serving: the Redis
// password when one is referenced and every configured courier signing secret.
func requiredSecrets(env map[string]string) []string {
	var required []string
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	for _, entry := range strings.Split(env["API_SECURITY_HMAC_SECRETS"], ",") {
		name, value, _ := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.TrimSpace(value) != "" {
			required = append(required, fmt.Sprintf("Security.HMAC.Secrets[%s]", name))
		}
	}
	sort.Strings(required)
	return required
}
