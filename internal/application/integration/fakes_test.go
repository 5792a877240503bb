package integration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memConfigRepository is an in-memory integration.ConfigRepository
type memConfigRepository struct {
	mu      sync.Mutex
	configs map[string]*integration.IntegrationConfig
	states  []integration.IntegrationSyncStatus
}

func newMemConfigRepository(configs ...*integration.IntegrationConfig) *memConfigRepository {
	r := &memConfigRepository{configs: make(map[string]*integration.IntegrationConfig)}
	for _, c := range configs {
		r.configs[configKey(c.TenantID, c.SystemType)] = c
	}
	return r
}

func configKey(tenantID uuid.UUID, system integration.SystemType) string {
	return tenantID.String() + "|" + string(system)
}

func (r *memConfigRepository) FindByTenantAndSystem(_ context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.IntegrationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[configKey(tenantID, system)]
	if !ok {
		return nil, integration.ErrNotConfigured
	}
	out := *c
	return &out, nil
}

func (r *memConfigRepository) FindActiveByTenant(_ context.Context, tenantID uuid.UUID) ([]integration.IntegrationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.IntegrationConfig
	for _, c := range r.configs {
		if c.TenantID == tenantID && c.IsActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memConfigRepository) Save(_ context.Context, cfg *integration.IntegrationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *cfg
	r.configs[configKey(cfg.TenantID, cfg.SystemType)] = &out
	return nil
}

func (r *memConfigRepository) UpdateSyncState(_ context.Context, tenantID uuid.UUID, system integration.SystemType, status integration.IntegrationSyncStatus, lastSyncAt *time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[configKey(tenantID, system)]
	if !ok {
		return integration.ErrNotConfigured
	}
	c.SyncStatus = status
	c.LastSyncAt = lastSyncAt
	c.LastError = lastError
	r.states = append(r.states, status)
	return nil
}

// memMappingRepository is an in-memory integration.MappingRepository
type memMappingRepository struct {
	mu       sync.Mutex
	mappings []*integration.SyncMapping
	// failUpserts makes the next n upserts fail
	failUpserts int
}

func (r *memMappingRepository) FindByLocalID(_ context.Context, tenantID uuid.UUID, localID string, system integration.SystemType) (*integration.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.TenantID == tenantID && m.LocalEntityID == localID && m.ExternalSystem == system {
			out := *m
			return &out, nil
		}
	}
	return nil, integration.ErrMappingNotFound
}

func (r *memMappingRepository) FindByExternalID(_ context.Context, tenantID uuid.UUID, externalID string, system integration.SystemType) (*integration.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.TenantID == tenantID && m.ExternalID == externalID && m.ExternalSystem == system {
			out := *m
			return &out, nil
		}
	}
	return nil, integration.ErrMappingNotFound
}

func (r *memMappingRepository) Upsert(_ context.Context, m *integration.SyncMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpserts > 0 {
		r.failUpserts--
		return errors.New("connection reset by peer")
	}
	out := *m
	for i, existing := range r.mappings {
		if existing.TenantID == m.TenantID && existing.LocalEntityID == m.LocalEntityID && existing.ExternalSystem == m.ExternalSystem {
			out.ID = existing.ID
			r.mappings[i] = &out
			return nil
		}
	}
	r.mappings = append(r.mappings, &out)
	return nil
}

func (r *memMappingRepository) ListByIntegration(_ context.Context, tenantID uuid.UUID, system integration.SystemType) ([]integration.SyncMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.SyncMapping
	for _, m := range r.mappings {
		if m.TenantID == tenantID && m.ExternalSystem == system {
			out = append(out, *m)
		}
	}
	return out, nil
}

// memCustomerRepository is an in-memory customer.Repository
type memCustomerRepository struct {
	mu        sync.Mutex
	customers []*customer.Customer
}

func (r *memCustomerRepository) FindByID(_ context.Context, tenantID uuid.UUID, id string) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.TenantID == tenantID && c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, customer.ErrCustomerNotFound
}

func (r *memCustomerRepository) FindByEmail(_ context.Context, tenantID uuid.UUID, email string) (*customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = customer.NormalizeEmail(email)
	for _, c := range r.customers {
		if c.TenantID == tenantID && email != "" && c.Email == email {
			out := *c
			return &out, nil
		}
	}
	return nil, customer.ErrCustomerNotFound
}

func (r *memCustomerRepository) Search(ctx context.Context, tenantID uuid.UUID, _ string, limit int) ([]customer.Customer, error) {
	return r.List(ctx, tenantID, limit)
}

func (r *memCustomerRepository) List(_ context.Context, tenantID uuid.UUID, limit int) ([]customer.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []customer.Customer
	for _, c := range r.customers {
		if c.TenantID != tenantID {
			continue
		}
		out = append(out, *c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memCustomerRepository) Save(_ context.Context, c *customer.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *c
	for i, existing := range r.customers {
		if existing.ID == c.ID {
			r.customers[i] = &out
			return nil
		}
	}
	r.customers = append(r.customers, &out)
	return nil
}

// MockCustomerSystem is a mock implementation of integration.CustomerSystem
type MockCustomerSystem struct {
	mock.Mock
}

func (m *MockCustomerSystem) CheckHealth(ctx context.Context) integration.Health {
	args := m.Called(ctx)
	return args.Get(0).(integration.Health)
}

func (m *MockCustomerSystem) TestConnection(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCustomerSystem) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerSystem) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerSystem) SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]customer.Customer), args.Error(1)
}

func (m *MockCustomerSystem) CreateCustomer(ctx context.Context, in customer.Input) (*customer.Customer, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(customer.Input) *customer.Customer); ok {
		return fn(in), args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerSystem) UpdateCustomer(ctx context.Context, id string, in customer.Input) (*customer.Customer, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

// staticResolver always returns the same connector
type staticResolver struct {
	conn integration.Connector
	err  error
}

func (r staticResolver) Resolve(context.Context, uuid.UUID, integration.SystemType) (integration.Connector, error) {
	return r.conn, r.err
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
