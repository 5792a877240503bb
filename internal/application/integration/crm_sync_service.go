package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxSyncCustomers is the upper bound of customers pushed by one SyncAll run
const MaxSyncCustomers = 1000

// SyncReportArchive stores the report of a finished bulk sync
type SyncReportArchive interface {
	Archive(ctx context.Context, result *integration.SyncResult) error
}

// CRMSyncConfig tunes bulk synchronization
type CRMSyncConfig struct {
	// QPS is the token refill rate of the per-system limiter
	QPS          float64
	Burst        int
	MaxCustomers int
}

// DefaultCRMSyncConfig returns the default bulk sync settings
func DefaultCRMSyncConfig() CRMSyncConfig {
	return CRMSyncConfig{QPS: 5, Burst: 5, MaxCustomers: MaxSyncCustomers}
}

// CRMSyncService reconciles local customers with external CRMs through
// the connector's CustomerSystem and keeps the sync mappings current.
// No transaction is held across an external call.
type CRMSyncService struct {
	connectors ConnectorResolver
	configs    integration.ConfigRepository
	customers  customer.Repository
	mappings   integration.MappingRepository
	txScope    TransactionScope
	eventBus   shared.EventPublisher
	archive    SyncReportArchive
	cfg        CRMSyncConfig
	logger     *zap.Logger
	now        func() time.Time

	limitersMu sync.Mutex
	limiters   map[integration.SystemType]*rate.Limiter
}

// NewCRMSyncService creates a new CRMSyncService
func NewCRMSyncService(
	connectors ConnectorResolver,
	configs integration.ConfigRepository,
	customers customer.Repository,
	mappings integration.MappingRepository,
	txScope TransactionScope,
	eventBus shared.EventPublisher,
	cfg CRMSyncConfig,
	logger *zap.Logger,
) *CRMSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QPS <= 0 {
		cfg.QPS = DefaultCRMSyncConfig().QPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxCustomers <= 0 || cfg.MaxCustomers > MaxSyncCustomers {
		cfg.MaxCustomers = MaxSyncCustomers
	}
	return &CRMSyncService{
		connectors: connectors,
		configs:    configs,
		customers:  customers,
		mappings:   mappings,
		txScope:    txScope,
		eventBus:   eventBus,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		limiters:   make(map[integration.SystemType]*rate.Limiter),
	}
}

// SetArchive sets where bulk sync reports are stored
func (s *CRMSyncService) SetArchive(archive SyncReportArchive) {
	s.archive = archive
}

// SetClock overrides time.Now
func (s *CRMSyncService) SetClock(now func() time.Time) {
	s.now = now
}

// SyncToExternal pushes a local customer to system and returns its
// external id. The mapping is written only after the external call
// succeeded.
func (s *CRMSyncService) SyncToExternal(ctx context.Context, tenantID uuid.UUID, localID string, system integration.SystemType) (string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "crm_sync", "push",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSystem, string(system)),
		telemetry.WithAttribute(telemetry.SpanAttrCustomerID, localID),
	)
	defer span.End()

	cfg, cs, err := s.customerSystem(ctx, tenantID, system)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	local, err := s.customers.FindByID(ctx, tenantID, localID)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	externalID, _, err := s.push(ctx, cfg, cs, local)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	telemetry.SetOK(span)
	return externalID, nil
}

// push creates or updates the external twin of local and upserts the
// mapping. It reports whether the external record was created.
func (s *CRMSyncService) push(ctx context.Context, cfg *integration.IntegrationConfig, cs integration.CustomerSystem, local *customer.Customer) (string, bool, error) {
	tenantID := cfg.TenantID
	system := cfg.SystemType
	payload := customer.ToExternal(local)

	mapping, err := s.mappings.FindByLocalID(ctx, tenantID, local.ID, system)
	if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
		return "", false, err
	}

	created := mapping == nil
	if created {
		ext, err := cs.CreateCustomer(ctx, payload)
		if errors.Is(err, customer.ErrDuplicateEmail) {
			ext, err = s.adopt(ctx, cs, tenantID, local.ID, system, payload)
			created = false
		}
		if err != nil {
			return "", false, err
		}
		mapping, err = integration.NewSyncMapping(tenantID, cfg.ID, local.ID, ext.ID, system)
		if err != nil {
			return "", false, err
		}
	} else {
		if _, err := cs.UpdateCustomer(ctx, mapping.ExternalID, payload); err != nil {
			return "", false, err
		}
		mapping.IntegrationID = cfg.ID
	}
	mapping.MarkSynced(s.now())
	if err := s.mappings.Upsert(ctx, mapping); err != nil {
		return "", false, fmt.Errorf("failed to record sync mapping: %w", err)
	}

	s.logger.Info("Customer pushed to external CRM",
		zap.String("tenant_id", tenantID.String()),
		zap.String("system", string(system)),
		zap.String("customer_id", local.ID),
		zap.String("external_id", mapping.ExternalID),
		zap.Bool("created", created),
	)
	s.publish(ctx, integration.NewCustomerSyncedEvent(tenantID, system, integration.SyncPush, local.ID, mapping.ExternalID, created))
	return mapping.ExternalID, created, nil
}

// adopt takes over the external contact that already carries the email of
// an unmapped local customer, which is left behind when a create succeeded
// but its mapping write did not. A contact mapped to another local
// customer is never taken.
func (s *CRMSyncService) adopt(ctx context.Context, cs integration.CustomerSystem, tenantID uuid.UUID, localID string, system integration.SystemType, payload customer.Input) (*customer.Customer, error) {
	existing, err := cs.GetCustomerByEmail(ctx, payload.Email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, customer.ErrDuplicateEmail
	}
	owner, err := s.mappings.FindByExternalID(ctx, tenantID, existing.ID, system)
	switch {
	case err == nil && owner.LocalEntityID != localID:
		return nil, fmt.Errorf("%w: external contact %s is mapped to %s", customer.ErrDuplicateEmail, existing.ID, owner.LocalEntityID)
	case err != nil && !errors.Is(err, integration.ErrMappingNotFound):
		return nil, err
	}

	updated, err := cs.UpdateCustomer(ctx, existing.ID, payload)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Adopted existing external contact",
		zap.String("tenant_id", tenantID.String()),
		zap.String("system", string(system)),
		zap.String("customer_id", localID),
		zap.String("external_id", existing.ID),
	)
	if updated == nil || updated.ID == "" {
		return existing, nil
	}
	return updated, nil
}

// SyncFromExternal pulls one contact from system into the local store
// and returns the local id. The local record is resolved through the
// mapping first, then by email, and created otherwise. The local write
// and the mapping upsert commit together.
func (s *CRMSyncService) SyncFromExternal(ctx context.Context, tenantID uuid.UUID, externalID string, system integration.SystemType) (string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "crm_sync", "pull",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSystem, string(system)),
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, externalID),
	)
	defer span.End()

	cfg, cs, err := s.customerSystem(ctx, tenantID, system)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	ext, err := cs.GetCustomer(ctx, externalID)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	in := customer.FromExternal(ext)
	now := s.now()

	var (
		localID string
		created bool
	)
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		local, err := s.resolveLocal(ctx, repos, tenantID, ext.ID, in.Email, system)
		if err != nil {
			return err
		}
		if local == nil {
			local, err = customer.New(tenantID, in)
			if err != nil {
				return err
			}
			created = true
		} else {
			local.Apply(in, now)
		}
		local.ExternalID = ext.ID
		if err := repos.Customers().Save(ctx, local); err != nil {
			return err
		}

		mapping, err := integration.NewSyncMapping(tenantID, cfg.ID, local.ID, ext.ID, system)
		if err != nil {
			return err
		}
		mapping.MarkSynced(now)
		localID = local.ID
		return repos.Mappings().Upsert(ctx, mapping)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}

	s.logger.Info("Customer pulled from external CRM",
		zap.String("tenant_id", tenantID.String()),
		zap.String("system", string(system)),
		zap.String("external_id", ext.ID),
		zap.String("customer_id", localID),
		zap.Bool("created", created),
	)
	s.publish(ctx, integration.NewCustomerSyncedEvent(tenantID, system, integration.SyncPull, localID, ext.ID, created))
	telemetry.SetOK(span)
	return localID, nil
}

func (s *CRMSyncService) resolveLocal(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, externalID, email string, system integration.SystemType) (*customer.Customer, error) {
	mapping, err := repos.Mappings().FindByExternalID(ctx, tenantID, externalID, system)
	switch {
	case err == nil:
		local, err := repos.Customers().FindByID(ctx, tenantID, mapping.LocalEntityID)
		if err == nil {
			return local, nil
		}
		if !errors.Is(err, customer.ErrCustomerNotFound) {
			return nil, err
		}
	case !errors.Is(err, integration.ErrMappingNotFound):
		return nil, err
	}

	if email == "" {
		return nil, nil
	}
	local, err := repos.Customers().FindByEmail(ctx, tenantID, email)
	if errors.Is(err, customer.ErrCustomerNotFound) {
		return nil, nil
	}
	return local, err
}

// SyncAll pushes up to MaxSyncCustomers local customers to system. A
// failing customer is recorded in the result and does not stop the run.
// The integration's sync state is updated once the run ends.
func (s *CRMSyncService) SyncAll(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.SyncResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "crm_sync", "sync_all",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSystem, string(system)),
	)
	defer span.End()

	cfg, cs, err := s.customerSystem(ctx, tenantID, system)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := integration.NewSyncResult(tenantID, system)
	result.StartedAt = s.now()

	locals, err := s.customers.List(ctx, tenantID, s.cfg.MaxCustomers)
	if err != nil {
		s.finishRun(ctx, result, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	limiter := s.limiterFor(system)
	var runErr error
	for i := range locals {
		if err := limiter.Wait(ctx); err != nil {
			runErr = err
			break
		}
		_, created, err := s.push(ctx, cfg, cs, &locals[i])
		if err != nil {
			s.logger.Warn("Customer sync failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("system", string(system)),
				zap.String("customer_id", locals[i].ID),
				zap.Error(err),
			)
			result.Errors = append(result.Errors, integration.ItemError{
				CustomerID: locals[i].ID,
				Error:      err.Error(),
				Transient:  integration.IsTransient(err),
			})
			continue
		}
		result.Synced++
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.finishRun(ctx, result, runErr)
	telemetry.SetAttributes(span,
		"synced", result.Synced,
		"created", result.Created,
		"updated", result.Updated,
		"errors", len(result.Errors),
	)
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		return result, runErr
	}
	telemetry.SetOK(span)
	return result, nil
}

func (s *CRMSyncService) finishRun(ctx context.Context, result *integration.SyncResult, runErr error) {
	result.FinishedAt = s.now()
	status := result.FinalStatus()
	lastError := ""
	switch {
	case runErr != nil:
		status = integration.IntegrationError
		lastError = runErr.Error()
	case status == integration.IntegrationError:
		lastError = result.Errors[len(result.Errors)-1].Error
	}

	// The run may have been cancelled; the state update must still land.
	stateCtx := context.WithoutCancel(ctx)
	finished := result.FinishedAt
	if err := s.configs.UpdateSyncState(stateCtx, result.TenantID, result.System, status, &finished, lastError); err != nil {
		s.logger.Error("Failed to record sync state",
			zap.String("tenant_id", result.TenantID.String()),
			zap.String("system", string(result.System)),
			zap.Error(err),
		)
	}

	s.logger.Info("CRM sync run finished",
		zap.String("run_id", result.RunID.String()),
		zap.String("tenant_id", result.TenantID.String()),
		zap.String("system", string(result.System)),
		zap.Int("synced", result.Synced),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)

	if s.archive != nil {
		if err := s.archive.Archive(stateCtx, result); err != nil {
			s.logger.Warn("Failed to archive sync report",
				zap.String("run_id", result.RunID.String()),
				zap.Error(err),
			)
		}
	}
}

// customerSystem loads the configuration of an external CRM and the
// CustomerSystem of its connector
func (s *CRMSyncService) customerSystem(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.IntegrationConfig, integration.CustomerSystem, error) {
	if !system.IsExternalCRM() {
		return nil, nil, fmt.Errorf("%w: %s", integration.ErrNotExternalCRM, system)
	}
	conn, err := s.connectors.Resolve(ctx, tenantID, system)
	if err != nil {
		return nil, nil, err
	}
	cs, err := integration.RequireCustomers(conn)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.configs.FindByTenantAndSystem(ctx, tenantID, system)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cs, nil
}

func (s *CRMSyncService) limiterFor(system integration.SystemType) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[system]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.QPS), s.cfg.Burst)
		s.limiters[system] = l
	}
	return l
}

func (s *CRMSyncService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish sync events", zap.Error(err))
	}
}
