package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultConnectorCacheSize bounds the number of live connectors
const DefaultConnectorCacheSize = 256

// ConnectorBuilder builds one tenant's connector from its configuration
type ConnectorBuilder func(ctx context.Context, cfg *integration.IntegrationConfig) (integration.Connector, error)

// ConnectorResolver resolves the connector of a tenant for a system
type ConnectorResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (integration.Connector, error)
}

// ConnectorFactory turns (tenant, system) into a connector. Connectors
// are cached per tenant, system and configuration version, so saving a
// configuration makes the next Resolve build a fresh one.
type ConnectorFactory struct {
	configs  integration.ConfigRepository
	mu       sync.RWMutex
	builders map[integration.SystemType]ConnectorBuilder
	cache    *lru.Cache[string, integration.Connector]
	logger   *zap.Logger
}

// NewConnectorFactory creates a ConnectorFactory
func NewConnectorFactory(configs integration.ConfigRepository, cacheSize int, logger *zap.Logger) (*ConnectorFactory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultConnectorCacheSize
	}
	cache, err := lru.New[string, integration.Connector](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector cache: %w", err)
	}
	return &ConnectorFactory{
		configs:  configs,
		builders: make(map[integration.SystemType]ConnectorBuilder),
		cache:    cache,
		logger:   logger,
	}, nil
}

// Register installs the builder for a system, replacing any previous one
func (f *ConnectorFactory) Register(system integration.SystemType, builder ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[system] = builder
}

// Resolve returns the connector for tenant and system.
//
// Unknown system types fail with ErrUnknownSystem, known systems without
// a connector with ErrSystemNotImplemented, and a missing or inactive
// configuration with ErrNotConfigured.
func (f *ConnectorFactory) Resolve(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (integration.Connector, error) {
	if !system.IsKnown() {
		return nil, fmt.Errorf("%w: %q", integration.ErrUnknownSystem, system)
	}
	f.mu.RLock()
	builder, ok := f.builders[system]
	f.mu.RUnlock()
	if !system.IsImplemented() || !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrSystemNotImplemented, system.DisplayName())
	}

	cfg, err := f.configs.FindByTenantAndSystem(ctx, tenantID, system)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, fmt.Errorf("%w: %s integration is inactive", integration.ErrNotConfigured, system)
	}

	key := cacheKey(tenantID, system, cfg.Version())
	if conn, ok := f.cache.Get(key); ok {
		return conn, nil
	}

	conn, err := builder(ctx, cfg)
	if err != nil {
		f.logger.Warn("Failed to build connector",
			zap.String("tenant_id", tenantID.String()),
			zap.String("system", string(system)),
			zap.Error(err),
		)
		return nil, err
	}
	f.evict(tenantID, system)
	f.cache.Add(key, conn)
	f.logger.Debug("Connector built",
		zap.String("tenant_id", tenantID.String()),
		zap.String("system", string(system)),
	)
	return conn, nil
}

// Invalidate drops every cached connector of tenant for system
func (f *ConnectorFactory) Invalidate(tenantID uuid.UUID, system integration.SystemType) {
	f.evict(tenantID, system)
}

// Len returns the number of cached connectors
func (f *ConnectorFactory) Len() int {
	return f.cache.Len()
}

func (f *ConnectorFactory) evict(tenantID uuid.UUID, system integration.SystemType) {
	prefix := tenantID.String() + "|" + string(system) + "|"
	for _, key := range f.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			f.cache.Remove(key)
		}
	}
}

func cacheKey(tenantID uuid.UUID, system integration.SystemType, version int64) string {
	return fmt.Sprintf("%s|%s|%d", tenantID, system, version)
}

var _ ConnectorResolver = (*ConnectorFactory)(nil)
