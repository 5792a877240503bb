package handler

import (
	"context"
	"strings"

	integrationapp "github.com/coccinelle/backend/internal/application/integration"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CustomerSyncer is the CRM sync surface used by CRMSyncHandler
type CustomerSyncer interface {
	SyncToExternal(ctx context.Context, tenantID uuid.UUID, localID string, system integration.SystemType) (string, error)
	SyncFromExternal(ctx context.Context, tenantID uuid.UUID, externalID string, system integration.SystemType) (string, error)
	SyncAll(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.SyncResult, error)
}

// SyncJobQueue queues bulk sync runs in the background
type SyncJobQueue interface {
	ScheduleSync(tenantID uuid.UUID, system integration.SystemType) (*scheduler.CRMSyncJob, error)
	GetJob(id uuid.UUID) (*scheduler.CRMSyncJob, error)
	GetJobHistoryByTenant(tenantID uuid.UUID, limit int) []*scheduler.CRMSyncJob
}

// HealthChecker checks a tenant's integrations
type HealthChecker interface {
	CheckAllSystemsHealth(ctx context.Context, tenantID uuid.UUID) ([]integration.Health, error)
	CheckSystemHealth(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) integration.Health
}

// CRMSyncHandler handles CRM sync and integration health endpoints
type CRMSyncHandler struct {
	BaseHandler
	syncer CustomerSyncer
	jobs   SyncJobQueue
	health HealthChecker
}

// NewCRMSyncHandler creates a new CRMSyncHandler. jobs may be nil, in which
// case bulk syncs always run inline.
func NewCRMSyncHandler(syncer CustomerSyncer, jobs SyncJobQueue, health HealthChecker) *CRMSyncHandler {
	return &CRMSyncHandler{syncer: syncer, jobs: jobs, health: health}
}

// SyncCustomer syncs one customer. direction=push (default) sends the local
// customer :customerId to the CRM; direction=pull imports the CRM record
// :customerId.
//
// POST /api/v1/crm/:system/sync/:customerId?direction=push|pull
func (h *CRMSyncHandler) SyncCustomer(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	system := systemParam(c)
	id := c.Param("customerId")
	ctx := c.Request.Context()

	resp := integrationapp.SyncCustomerResponse{System: system}
	switch direction := integration.SyncDirection(strings.ToLower(c.DefaultQuery("direction", string(integration.SyncPush)))); direction {
	case integration.SyncPush:
		externalID, err := h.syncer.SyncToExternal(ctx, tenantID, id, system)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		resp.Direction, resp.LocalID, resp.ExternalID = direction, id, externalID
	case integration.SyncPull:
		localID, err := h.syncer.SyncFromExternal(ctx, tenantID, id, system)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		resp.Direction, resp.LocalID, resp.ExternalID = direction, localID, id
	default:
		h.BadRequest(c, "direction must be push or pull")
		return
	}
	h.Success(c, resp)
}

// SyncAll pushes every local customer to the CRM. With async=true the run is
// queued and a 202 with the job is returned.
//
// POST /api/v1/crm/:system/sync?async=true
func (h *CRMSyncHandler) SyncAll(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	system := systemParam(c)

	if c.Query("async") == "true" && h.jobs != nil {
		job, err := h.jobs.ScheduleSync(tenantID, system)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, job)
		return
	}

	result, err := h.syncer.SyncAll(c.Request.Context(), tenantID, system)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, integrationapp.ToSyncResultResponse(result))
}

// ListJobs returns the tenant's recent sync jobs
//
// GET /api/v1/sync-jobs?limit=
func (h *CRMSyncHandler) ListJobs(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	if h.jobs == nil {
		h.Success(c, []*scheduler.CRMSyncJob{})
		return
	}
	h.Success(c, h.jobs.GetJobHistoryByTenant(tenantID, queryInt(c, "limit", 20)))
}

// GetJob returns one sync job of the tenant
//
// GET /api/v1/sync-jobs/:id
func (h *CRMSyncHandler) GetJob(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	jobID, err := parseUUIDParam(c, "id")
	if err != nil {
		h.BadRequest(c, "Invalid job ID format")
		return
	}
	if h.jobs == nil {
		h.HandleError(c, scheduler.ErrJobNotFound)
		return
	}
	job, err := h.jobs.GetJob(jobID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if job.TenantID != tenantID {
		h.HandleError(c, scheduler.ErrJobNotFound)
		return
	}
	h.Success(c, job)
}

// Health checks every active integration of the tenant, or only ?system=
//
// GET /api/v1/integrations/health
func (h *CRMSyncHandler) Health(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	ctx := c.Request.Context()

	if system := c.Query("system"); system != "" {
		health := h.health.CheckSystemHealth(ctx, tenantID, integration.SystemType(strings.ToLower(system)))
		h.Success(c, integrationapp.ToHealthResponse([]integration.Health{health}))
		return
	}

	systems, err := h.health.CheckAllSystemsHealth(ctx, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, integrationapp.ToHealthResponse(systems))
}

func systemParam(c *gin.Context) integration.SystemType {
	return integration.SystemType(strings.ToLower(c.Param("system")))
}
