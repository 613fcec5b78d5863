package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/furnitune/api/internal/domain"
	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/repositories"
)

const defaultPingTimeout = 1500 * time.Millisecond

// HealthRepository reports whether Firestore answers. Every route depends on it, so an
// unreachable store marks the report as error rather than degraded.
type HealthRepository struct {
	provider *pfirestore.Provider
	timeout  time.Duration
	now      func() time.Time
}

// NewHealthRepository probes provider with a bounded single-document read on orders.
func NewHealthRepository(provider *pfirestore.Provider, timeout time.Duration) *HealthRepository {
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return &HealthRepository{provider: provider, timeout: timeout, now: time.Now}
}

func (h *HealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	started := h.now().UTC()
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := h.provider.Ping(pingCtx, orderCollection)

	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   h.now().UTC().Sub(started),
		CheckedAt: started,
	}
	if err != nil {
		check.Status = domain.HealthStatusError
		check.Detail = "unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			check.Detail = "timeout"
		}
		check.Error = err.Error()
	}
	return domain.SystemHealthReport{
		Status:      check.Status,
		Checks:      map[string]domain.SystemHealthCheck{"firestore": check},
		GeneratedAt: started,
	}, nil
}

var _ repositories.HealthRepository = (*HealthRepository)(nil)
