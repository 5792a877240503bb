package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultHealthCheckTimeout bounds a single connector health check
const DefaultHealthCheckTimeout = 10 * time.Second

// HealthService reports the health of a tenant's integrations
type HealthService struct {
	connectors ConnectorResolver
	configs    integration.ConfigRepository
	timeout    time.Duration
	logger     *zap.Logger
}

// NewHealthService creates a new HealthService
func NewHealthService(connectors ConnectorResolver, configs integration.ConfigRepository, timeout time.Duration, logger *zap.Logger) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultHealthCheckTimeout
	}
	return &HealthService{
		connectors: connectors,
		configs:    configs,
		timeout:    timeout,
		logger:     logger,
	}
}

// CheckSystemHealth resolves one connector and checks it. Resolution
// failures come back as an error Health.
func (s *HealthService) CheckSystemHealth(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) integration.Health {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	conn, err := s.connectors.Resolve(ctx, tenantID, system)
	if err != nil {
		return integration.Unhealthy(system, err)
	}
	health := conn.CheckHealth(ctx)
	health.System = system
	if health.Latency == 0 {
		health.Latency = time.Since(started)
	}
	if health.CheckedAt.IsZero() {
		health.CheckedAt = time.Now()
	}
	return health
}

// CheckAllSystemsHealth checks every active integration of tenant
// concurrently. The result is ordered by system type.
func (s *HealthService) CheckAllSystemsHealth(ctx context.Context, tenantID uuid.UUID) ([]integration.Health, error) {
	configs, err := s.configs.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]integration.Health, len(configs))
	var wg sync.WaitGroup
	for i := range configs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.CheckSystemHealth(ctx, tenantID, configs[i].SystemType)
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].System < results[b].System })
	for _, h := range results {
		if h.Status != integration.HealthConnected {
			s.logger.Warn("Integration unhealthy",
				zap.String("tenant_id", tenantID.String()),
				zap.String("system", string(h.System)),
				zap.String("status", string(h.Status)),
				zap.String("message", h.Message),
			)
		}
	}
	return results, nil
}
