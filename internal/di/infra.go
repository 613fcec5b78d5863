package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/cache"
	"github.com/furnitune/api/internal/platform/config"
	"github.com/furnitune/api/internal/platform/jobs"
	"github.com/furnitune/api/internal/platform/storage"
	"github.com/furnitune/api/internal/services"
)

const (
	reportKeyPrefix = "furnitune:revenue:"
	nonceKeyPrefix  = "furnitune:nonce:"
)

// Infra holds the non-Firestore clients. Optional pieces stay nil when unconfigured.
type Infra struct {
	Redis     *redis.Client
	Reports   *cache.ReportCache
	Publisher *jobs.PubSubPublisher
	Uploads   services.UploadSigner
	Objects   services.ObjectChecker
	Nonces    auth.NonceStore

	closers []func() error
}

// NewInfra dials Redis, Pub/Sub and Cloud Storage according to cfg.
func NewInfra(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Infra, err error) {
	in := &Infra{}
	defer func() {
		if err != nil {
			_ = in.Close()
		}
	}()

	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", addr, err)
		}
		in.Redis = client
		in.Reports = cache.NewWithClient(client, cfg.Redis.ReportTTL, reportKeyPrefix)
		in.Nonces = auth.NewRedisNonceStore(client, nonceKeyPrefix)
		in.closers = append(in.closers, client.Close)
	} else {
		logger.Info("redis not configured; revenue reports are uncached and courier nonces are process local")
		in.Nonces = auth.NewInMemoryNonceStore()
	}

	if err := in.dialPubSub(ctx, cfg.PubSub); err != nil {
		return nil, err
	}
	if err := in.dialStorage(ctx, cfg); err != nil {
		return nil, err
	}
	return in, nil
}

func (in *Infra) dialPubSub(ctx context.Context, cfg config.PubSubConfig) error {
	if cfg.NotificationsTopic == "" && cfg.OrderEventsTopic == "" {
		return nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client: %w", err)
	}
	in.closers = append(in.closers, client.Close)

	topic := func(name string) *pubsub.Topic {
		if name == "" {
			return nil
		}
		t := client.Topic(name)
		in.closers = append(in.closers, func() error { t.Stop(); return nil })
		return t
	}
	in.Publisher, err = jobs.NewPubSubPublisher(topic(cfg.NotificationsTopic), topic(cfg.OrderEventsTopic))
	return err
}

func (in *Infra) dialStorage(ctx context.Context, cfg config.Config) error {
	signer, err := newSigner(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := signer.(interface{ Close() error }); ok {
		in.closers = append(in.closers, closer.Close)
	}
	client, err := storage.NewClient(signer)
	if err != nil {
		return err
	}
	urls, err := storage.NewUploadURLs(client, storage.UploadURLsConfig{
		TTL:     cfg.Storage.SignedURLTTL,
		MaxSize: cfg.Storage.MaxUploadBytes,
	})
	if err != nil {
		return err
	}
	in.Uploads = uploadSigner{urls: urls}

	gcsClient, err := gcs.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	in.closers = append(in.closers, gcsClient.Close)
	objects, err := storage.NewObjectInspector(gcsClient)
	if err != nil {
		return err
	}
	in.Objects = objects
	return nil
}

// newSigner prefers the IAM signBlob API. Without a signer email a local service account key
// (the Firebase credentials file) is used instead.
func newSigner(ctx context.Context, cfg config.Config) (storage.Signer, error) {
	if email := strings.TrimSpace(cfg.Storage.SignerEmail); email != "" {
		return storage.NewIAMSigner(ctx, email)
	}
	path := strings.TrimSpace(cfg.Firebase.CredentialsFile)
	if path == "" {
		return nil, errors.New("storage: set API_STORAGE_SIGNER_EMAIL or API_FIREBASE_CREDENTIALS_FILE to sign upload urls")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read signer key: %w", err)
	}
	return storage.NewKeySigner(data)
}

// Probes lists the optional dependencies checked by /readyz.
func (in *Infra) Probes() map[string]services.HealthProbe {
	probes := map[string]services.HealthProbe{}
	if in.Reports != nil {
		probes["redis"] = in.Reports.Ping
	}
	return probes
}

// Close stops topics and closes clients, newest first.
func (in *Infra) Close() error {
	if in == nil {
		return nil
	}
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		errs = append(errs, in.closers[i]())
	}
	in.closers = nil
	return errors.Join(errs...)
}
