package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type syncFixture struct {
	tenantID  uuid.UUID
	svc       *CRMSyncService
	cs        *MockCustomerSystem
	configs   *memConfigRepository
	customers *memCustomerRepository
	mappings  *memMappingRepository
	events    *recordingPublisher
}

func newSyncFixture(t *testing.T, system integration.SystemType) *syncFixture {
	t.Helper()
	f := &syncFixture{
		tenantID:  uuid.New(),
		cs:        &MockCustomerSystem{},
		customers: &memCustomerRepository{},
		mappings:  &memMappingRepository{},
		events:    &recordingPublisher{},
	}
	f.configs = newMemConfigRepository(newActiveConfig(t, f.tenantID, system))
	conn := integration.NewConnector(system, f.cs, integration.Capabilities{Customers: f.cs})
	f.svc = NewCRMSyncService(
		staticResolver{conn: conn},
		f.configs,
		f.customers,
		f.mappings,
		NewNoOpTransactionScope(f.customers, f.mappings),
		f.events,
		CRMSyncConfig{QPS: 1000, Burst: 100, MaxCustomers: 50},
		nil,
	)
	return f
}

func (f *syncFixture) addLocal(t *testing.T, in customer.Input) *customer.Customer {
	t.Helper()
	c, err := customer.New(f.tenantID, in)
	require.NoError(t, err)
	require.NoError(t, f.customers.Save(context.Background(), c))
	return c
}

func TestCRMSyncService_SyncToExternal_CreateThenUpdate(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	ctx := context.Background()
	local := f.addLocal(t, customer.Input{FirstName: "Julie", LastName: "Mercier", Email: "julie@example.com"})

	f.cs.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(in customer.Input) bool {
		return in.Email == "julie@example.com"
	})).Return(&customer.Customer{ID: "hs-101"}, nil).Once()
	f.cs.On("UpdateCustomer", mock.Anything, "hs-101", mock.Anything).Return(&customer.Customer{ID: "hs-101"}, nil).Once()

	externalID, err := f.svc.SyncToExternal(ctx, f.tenantID, local.ID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "hs-101", externalID)

	externalID, err = f.svc.SyncToExternal(ctx, f.tenantID, local.ID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "hs-101", externalID)

	mappings, err := f.mappings.ListByIntegration(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, local.ID, mappings[0].LocalEntityID)
	assert.Equal(t, integration.MappingSynced, mappings[0].SyncStatus)
	assert.Equal(t, 2, f.events.count())
	f.cs.AssertExpectations(t)
}

func TestCRMSyncService_SyncToExternal_FailureLeavesNoMapping(t *testing.T) {
	f := newSyncFixture(t, integration.SystemSalesforce)
	ctx := context.Background()
	local := f.addLocal(t, customer.Input{FirstName: "Emma", Email: "emma@example.com"})

	f.cs.On("CreateCustomer", mock.Anything, mock.Anything).Return(nil, &integration.ExternalSystemError{
		System: integration.SystemSalesforce, Operation: "create_contact", StatusCode: 503, Transient: true, Err: errors.New("unavailable"),
	})

	_, err := f.svc.SyncToExternal(ctx, f.tenantID, local.ID, integration.SystemSalesforce)
	require.Error(t, err)
	assert.True(t, integration.IsTransient(err))

	_, err = f.mappings.FindByLocalID(ctx, f.tenantID, local.ID, integration.SystemSalesforce)
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)
	assert.Equal(t, 0, f.events.count())
}

func TestCRMSyncService_SyncToExternal_RecoversFromLostMapping(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	ctx := context.Background()
	local := f.addLocal(t, customer.Input{FirstName: "Julie", LastName: "Mercier", Email: "julie@example.com"})
	f.mappings.failUpserts = 1

	f.cs.On("CreateCustomer", mock.Anything, mock.Anything).Return(&customer.Customer{ID: "hs-101"}, nil).Once()
	f.cs.On("CreateCustomer", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: hubspot contact hs-101", customer.ErrDuplicateEmail)).Once()
	f.cs.On("GetCustomerByEmail", mock.Anything, "julie@example.com").Return(&customer.Customer{ID: "hs-101"}, nil).Once()
	f.cs.On("UpdateCustomer", mock.Anything, "hs-101", mock.Anything).Return(&customer.Customer{ID: "hs-101"}, nil).Once()

	_, err := f.svc.SyncToExternal(ctx, f.tenantID, local.ID, integration.SystemHubSpot)
	require.Error(t, err)

	externalID, err := f.svc.SyncToExternal(ctx, f.tenantID, local.ID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, "hs-101", externalID)

	mappings, err := f.mappings.ListByIntegration(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, local.ID, mappings[0].LocalEntityID)
	assert.Equal(t, "hs-101", mappings[0].ExternalID)
	f.cs.AssertNumberOfCalls(t, "CreateCustomer", 2)
	f.cs.AssertExpectations(t)
	assert.Equal(t, 1, f.events.count())
}

func TestCRMSyncService_SyncToExternal_DoesNotAdoptAnotherCustomersContact(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	ctx := context.Background()
	local := f.addLocal(t, customer.Input{FirstName: "Julie", Email: "julie@example.com"})

	owner, err := integration.NewSyncMapping(f.tenantID, uuid.New(), "cust_other", "hs-101", integration.SystemHubSpot)
	require.NoError(t, err)
	require.NoError(t, f.mappings.Upsert(ctx, owner))

	f.cs.On("CreateCustomer", mock.Anything, mock.Anything).Return(nil, customer.ErrDuplicateEmail).Once()
	f.cs.On("GetCustomerByEmail", mock.Anything, "julie@example.com").Return(&customer.Customer{ID: "hs-101"}, nil).Once()

	_, err = f.svc.SyncToExternal(ctx, f.tenantID, local.ID, integration.SystemHubSpot)
	assert.ErrorIs(t, err, customer.ErrDuplicateEmail)
	f.cs.AssertNotCalled(t, "UpdateCustomer", mock.Anything, mock.Anything, mock.Anything)

	_, err = f.mappings.FindByLocalID(ctx, f.tenantID, local.ID, integration.SystemHubSpot)
	assert.ErrorIs(t, err, integration.ErrMappingNotFound)
}

func TestCRMSyncService_RejectsNonCRMSystems(t *testing.T) {
	f := newSyncFixture(t, integration.SystemMock)
	ctx := context.Background()

	_, err := f.svc.SyncToExternal(ctx, f.tenantID, "any", integration.SystemMock)
	assert.ErrorIs(t, err, integration.ErrNotExternalCRM)

	_, err = f.svc.SyncFromExternal(ctx, f.tenantID, "any", integration.SystemWooCommerce)
	assert.ErrorIs(t, err, integration.ErrNotExternalCRM)

	_, err = f.svc.SyncAll(ctx, f.tenantID, integration.SystemNative)
	assert.ErrorIs(t, err, integration.ErrNotExternalCRM)
}

func TestCRMSyncService_SyncAll_IsolatesFailures(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	ctx := context.Background()

	var failing *customer.Customer
	for i := 0; i < 5; i++ {
		c := f.addLocal(t, customer.Input{
			FirstName: gofakeit.FirstName(),
			LastName:  gofakeit.LastName(),
			Email:     fmt.Sprintf("customer%d.%s", i, gofakeit.Email()),
		})
		if i == 2 {
			failing = c
		}
	}

	f.cs.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(in customer.Input) bool {
		return in.Email == failing.Email
	})).Return(nil, &integration.ExternalSystemError{
		System: integration.SystemHubSpot, Operation: "create_contact", StatusCode: 429, Transient: true, Err: errors.New("rate limited"),
	})
	var seq int
	f.cs.On("CreateCustomer", mock.Anything, mock.Anything).Return(func(customer.Input) *customer.Customer {
		seq++
		return &customer.Customer{ID: fmt.Sprintf("hs-%d", seq)}
	}, nil)

	result, err := f.svc.SyncAll(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Synced)
	assert.Equal(t, 4, result.Created)
	assert.Equal(t, 0, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, failing.ID, result.Errors[0].CustomerID)
	assert.True(t, result.Errors[0].Transient)
	assert.Equal(t, 5, result.Processed())

	cfg, err := f.configs.FindByTenantAndSystem(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, integration.IntegrationIdle, cfg.SyncStatus)
	assert.NotNil(t, cfg.LastSyncAt)
	assert.Equal(t, []integration.IntegrationSyncStatus{integration.IntegrationIdle}, f.configs.states)

	mappings, err := f.mappings.ListByIntegration(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Len(t, mappings, 4)
}

func TestCRMSyncService_SyncAll_AllFailuresMarkError(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	ctx := context.Background()
	f.addLocal(t, customer.Input{FirstName: "A", Email: "a@example.com"})
	f.addLocal(t, customer.Input{FirstName: "B", Email: "b@example.com"})

	f.cs.On("CreateCustomer", mock.Anything, mock.Anything).Return(nil, errors.New("invalid property"))

	result, err := f.svc.SyncAll(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Synced)
	assert.Len(t, result.Errors, 2)
	assert.False(t, result.Errors[0].Transient)

	cfg, err := f.configs.FindByTenantAndSystem(ctx, f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, integration.IntegrationError, cfg.SyncStatus)
	assert.Equal(t, "invalid property", cfg.LastError)
	assert.Equal(t, []integration.IntegrationSyncStatus{integration.IntegrationError}, f.configs.states)
}

func TestCRMSyncService_SyncAll_CancelledContext(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	f.addLocal(t, customer.Input{FirstName: "A", Email: "a@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.SyncAll(ctx, f.tenantID, integration.SystemHubSpot)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Synced)

	cfg, err := f.configs.FindByTenantAndSystem(context.Background(), f.tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, integration.IntegrationError, cfg.SyncStatus)
}

func TestCRMSyncService_SyncFromExternal(t *testing.T) {
	f := newSyncFixture(t, integration.SystemHubSpot)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	f.svc.SetClock(func() time.Time { return now })

	existing := f.addLocal(t, customer.Input{FirstName: "Léa", LastName: "Martin", Email: "lea@example.com"})

	f.cs.On("GetCustomer", mock.Anything, "hs-7").Return(&customer.Customer{
		ID: "hs-7", FirstName: "Léa", LastName: "Martin-Roux", Email: "LEA@example.com", Tags: []string{"vip"},
	}, nil)
	f.cs.On("GetCustomer", mock.Anything, "hs-8").Return(&customer.Customer{
		ID: "hs-8", FirstName: "Nina", Phone: "+33611111111",
	}, nil)

	t.Run("matches an existing customer by email", func(t *testing.T) {
		localID, err := f.svc.SyncFromExternal(ctx, f.tenantID, "hs-7", integration.SystemHubSpot)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, localID)

		local, err := f.customers.FindByID(ctx, f.tenantID, localID)
		require.NoError(t, err)
		assert.Equal(t, "Martin-Roux", local.LastName)
		assert.Equal(t, "hs-7", local.ExternalID)

		mapping, err := f.mappings.FindByExternalID(ctx, f.tenantID, "hs-7", integration.SystemHubSpot)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, mapping.LocalEntityID)
		assert.Equal(t, now, mapping.LastSyncedAt)
	})

	t.Run("pulling again resolves through the mapping", func(t *testing.T) {
		localID, err := f.svc.SyncFromExternal(ctx, f.tenantID, "hs-7", integration.SystemHubSpot)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, localID)

		all, err := f.customers.List(ctx, f.tenantID, 0)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("creates a customer when nothing matches", func(t *testing.T) {
		localID, err := f.svc.SyncFromExternal(ctx, f.tenantID, "hs-8", integration.SystemHubSpot)
		require.NoError(t, err)
		assert.NotEqual(t, existing.ID, localID)

		local, err := f.customers.FindByID(ctx, f.tenantID, localID)
		require.NoError(t, err)
		assert.Equal(t, "Nina", local.FirstName)
	})

	t.Run("external not found is returned", func(t *testing.T) {
		f.cs.On("GetCustomer", mock.Anything, "hs-404").Return(nil, integration.ErrExternalNotFound)

		_, err := f.svc.SyncFromExternal(ctx, f.tenantID, "hs-404", integration.SystemHubSpot)
		assert.ErrorIs(t, err, integration.ErrExternalNotFound)
	})
}
