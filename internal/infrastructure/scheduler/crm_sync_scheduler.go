package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// CRM Sync Job Types
// ---------------------------------------------------------------------------

// CRMSyncJobStatus represents the status of a CRM sync job
type CRMSyncJobStatus string

const (
	CRMSyncJobStatusPending CRMSyncJobStatus = "PENDING"
	CRMSyncJobStatusRunning CRMSyncJobStatus = "RUNNING"
	CRMSyncJobStatusSuccess CRMSyncJobStatus = "SUCCESS"
	CRMSyncJobStatusPartial CRMSyncJobStatus = "PARTIAL"
	CRMSyncJobStatusFailed  CRMSyncJobStatus = "FAILED"
)

// CRMSyncJob is one queued bulk push of a tenant's customers to a CRM
type CRMSyncJob struct {
	ID          uuid.UUID              `json:"id"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	System      integration.SystemType `json:"system"`
	Status      CRMSyncJobStatus       `json:"status"`
	Error       string                 `json:"error,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
	NextRetryAt *time.Time             `json:"next_retry_at,omitempty"`

	// Results of the last attempt
	RunID     uuid.UUID `json:"run_id,omitempty"`
	Synced    int       `json:"synced"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	retryable bool
}

// NewCRMSyncJob creates a pending job
func NewCRMSyncJob(tenantID uuid.UUID, system integration.SystemType, maxRetries int, now time.Time) *CRMSyncJob {
	return &CRMSyncJob{
		ID:          uuid.New(),
		TenantID:    tenantID,
		System:      system,
		Status:      CRMSyncJobStatusPending,
		SubmittedAt: now,
		MaxRetries:  maxRetries,
	}
}

// Start marks the job as running
func (j *CRMSyncJob) Start(now time.Time) {
	j.Status = CRMSyncJobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.NextRetryAt = nil
	j.Error = ""
	j.retryable = false
}

// Complete records the outcome of a SyncAll run.
// A run where every item failed counts as failed, and is retryable when
// at least one of the failures was transient.
func (j *CRMSyncJob) Complete(result *integration.SyncResult, now time.Time) {
	j.CompletedAt = &now
	j.RunID = result.RunID
	j.Synced = result.Synced
	j.Created = result.Created
	j.Updated = result.Updated
	j.Failed = len(result.Errors)

	switch {
	case j.Failed == 0:
		j.Status = CRMSyncJobStatusSuccess
	case j.Synced > 0:
		j.Status = CRMSyncJobStatusPartial
	default:
		j.Status = CRMSyncJobStatusFailed
		j.Error = result.Errors[len(result.Errors)-1].Error
		for _, e := range result.Errors {
			if e.Transient {
				j.retryable = true
				break
			}
		}
	}
}

// Fail marks the job as failed by a run-level error
func (j *CRMSyncJob) Fail(err error, now time.Time) {
	j.Status = CRMSyncJobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
	j.retryable = isRetryableRunError(err)
}

// ShouldRetry returns true if the job failed for a reason worth retrying
// and still has attempts left
func (j *CRMSyncJob) ShouldRetry() bool {
	return j.Status == CRMSyncJobStatusFailed && j.retryable && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the job back to pending with exponential backoff:
// base * 2^(retryCount-1), capped at maxDelay.
func (j *CRMSyncJob) ScheduleRetry(base, maxDelay time.Duration, now time.Time) {
	j.RetryCount++
	j.Status = CRMSyncJobStatusPending
	delay := base * time.Duration(1<<(j.RetryCount-1))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	next := now.Add(delay)
	j.NextRetryAt = &next
}

// snapshot copies the job for history and callers
func (j *CRMSyncJob) snapshot() *CRMSyncJob {
	cp := *j
	return &cp
}

// isRetryableRunError reports whether a run-level error may go away on its
// own. Configuration and validation problems need a human.
func isRetryableRunError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ese *integration.ExternalSystemError
	if errors.As(err, &ese) {
		return ese.Transient
	}
	switch shared.CodeOf(err) {
	case shared.CodeNotConfigured, shared.CodeValidation, shared.CodeNotFound:
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// CRMSyncRunner runs one bulk sync
type CRMSyncRunner interface {
	SyncAll(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.SyncResult, error)
}

// SyncRecorder receives the result of every sync attempt that produced one
type SyncRecorder interface {
	RecordSyncRun(ctx context.Context, result *integration.SyncResult)
}

// ---------------------------------------------------------------------------
// CRMSyncSchedulerConfig
// ---------------------------------------------------------------------------

// CRMSyncSchedulerConfig holds configuration for the CRM sync scheduler
type CRMSyncSchedulerConfig struct {
	// Workers is the number of concurrent sync jobs
	Workers int
	// QueueSize bounds the pending job queue
	QueueSize int
	// JobTimeout is the maximum time one SyncAll run can take
	JobTimeout time.Duration
	// MaxRetries is the number of retries of a failed job
	MaxRetries int
	// BackoffBase is the first retry delay
	BackoffBase time.Duration
	// BackoffMax caps the retry delay
	BackoffMax time.Duration
	// HistorySize is how many finished jobs are kept in memory
	HistorySize int
}

// DefaultCRMSyncSchedulerConfig returns default configuration
func DefaultCRMSyncSchedulerConfig() CRMSyncSchedulerConfig {
	return CRMSyncSchedulerConfig{
		Workers:     2,
		QueueSize:   100,
		JobTimeout:  15 * time.Minute,
		MaxRetries:  3,
		BackoffBase: time.Minute,
		BackoffMax:  30 * time.Minute,
		HistorySize: 100,
	}
}

// Validate validates the configuration
func (c *CRMSyncSchedulerConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 || c.HistorySize <= 0 {
		return fmt.Errorf("%w: workers, queue size and history size must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 || c.MaxRetries < 0 {
		return fmt.Errorf("%w: job timeout %s, max retries %d", ErrInvalidConfig, c.JobTimeout, c.MaxRetries)
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff %s..%s", ErrInvalidConfig, c.BackoffBase, c.BackoffMax)
	}
	return nil
}

// ---------------------------------------------------------------------------
// CRMSyncScheduler
// ---------------------------------------------------------------------------

// CRMSyncScheduler runs SyncAll jobs on a worker pool and retries failed ones
type CRMSyncScheduler struct {
	config CRMSyncSchedulerConfig
	runner   CRMSyncRunner
	recorder SyncRecorder
	logger   *zap.Logger
	now      func() time.Time

	jobs      chan *CRMSyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   sync.WaitGroup

	// Job history for monitoring, newest first
	historyMu sync.RWMutex
	history   []*CRMSyncJob
	active    map[uuid.UUID]*CRMSyncJob
}

// NewCRMSyncScheduler creates a new CRM sync scheduler
func NewCRMSyncScheduler(config CRMSyncSchedulerConfig, runner CRMSyncRunner, logger *zap.Logger) (*CRMSyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CRMSyncScheduler{
		config:  config,
		runner:  runner,
		logger:  logger,
		now:     time.Now,
		jobs:    make(chan *CRMSyncJob, config.QueueSize),
		history: make([]*CRMSyncJob, 0, config.HistorySize),
		active:  make(map[uuid.UUID]*CRMSyncJob),
	}, nil
}

// SetRecorder sets where sync results are reported
func (s *CRMSyncScheduler) SetRecorder(recorder SyncRecorder) {
	s.recorder = recorder
}

// SetClock overrides the time source (tests)
func (s *CRMSyncScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start starts the worker pool
func (s *CRMSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("CRM sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("job_timeout", s.config.JobTimeout),
		zap.Int("max_retries", s.config.MaxRetries),
	)
	return nil
}

// Stop cancels running jobs and waits for workers to exit
func (s *CRMSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.retries.Wait()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("CRM sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("CRM sync scheduler stop timed out")
		return ctx.Err()
	}
}

// ScheduleSync queues a SyncAll run for tenant and system
func (s *CRMSyncScheduler) ScheduleSync(tenantID uuid.UUID, system integration.SystemType) (*CRMSyncJob, error) {
	if !system.IsExternalCRM() {
		return nil, integration.ErrNotExternalCRM
	}
	job := NewCRMSyncJob(tenantID, system, s.config.MaxRetries, s.now())
	if err := s.submit(job); err != nil {
		return nil, err
	}
	return job.snapshot(), nil
}

func (s *CRMSyncScheduler) submit(job *CRMSyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.track(job)
		s.logger.Debug("CRM sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("tenant_id", job.TenantID.String()),
			zap.String("system", string(job.System)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *CRMSyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob runs a single attempt of job
func (s *CRMSyncScheduler) processJob(ctx context.Context, job *CRMSyncJob, workerID int) {
	job.Start(s.now())
	s.track(job)

	s.logger.Info("Processing CRM sync job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("system", string(job.System)),
		zap.Int("attempt", job.RetryCount+1),
	)

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	var (
		result *integration.SyncResult
		err    error
	)
	labels := telemetry.JobLabels("crm_sync", job.TenantID.String(), string(job.System))
	telemetry.WithProfilingLabels(jobCtx, labels, func(ctx context.Context) {
		result, err = s.runner.SyncAll(ctx, job.TenantID, job.System)
	})
	cancel()
	if result != nil && s.recorder != nil {
		s.recorder.RecordSyncRun(ctx, result)
	}

	switch {
	case err != nil && result == nil:
		job.Fail(err, s.now())
	case err != nil:
		job.Complete(result, s.now())
		job.Fail(err, s.now())
	default:
		job.Complete(result, s.now())
	}

	if job.Status == CRMSyncJobStatusFailed {
		s.logger.Error("CRM sync job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("tenant_id", job.TenantID.String()),
			zap.String("system", string(job.System)),
			zap.String("error", job.Error),
		)
		if ctx.Err() == nil && job.ShouldRetry() {
			s.addToHistory(job.snapshot())
			s.scheduleRetry(ctx, job)
			return
		}
	} else {
		s.logger.Info("CRM sync job completed",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)),
			zap.Int("synced", job.Synced),
			zap.Int("failed", job.Failed),
		)
	}

	s.untrack(job)
	s.addToHistory(job.snapshot())
}

// scheduleRetry re-queues job once its backoff has elapsed
func (s *CRMSyncScheduler) scheduleRetry(ctx context.Context, job *CRMSyncJob) {
	job.ScheduleRetry(s.config.BackoffBase, s.config.BackoffMax, s.now())
	s.track(job)
	delay := job.NextRetryAt.Sub(s.now())

	s.logger.Info("CRM sync job scheduled for retry",
		zap.String("job_id", job.ID.String()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Time("next_retry_at", *job.NextRetryAt),
	)

	s.retries.Add(1)
	go func() {
		defer s.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			s.untrack(job)
			return
		case <-timer.C:
		}

		select {
		case s.jobs <- job:
		case <-ctx.Done():
			s.untrack(job)
		}
	}()
}

func (s *CRMSyncScheduler) track(job *CRMSyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.active[job.ID] = job.snapshot()
}

func (s *CRMSyncScheduler) untrack(job *CRMSyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	delete(s.active, job.ID)
}

// addToHistory records a finished attempt
func (s *CRMSyncScheduler) addToHistory(job *CRMSyncJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*CRMSyncJob{job}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// GetJob returns the latest known state of a job
func (s *CRMSyncScheduler) GetJob(id uuid.UUID) (*CRMSyncJob, error) {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if job, ok := s.active[id]; ok {
		return job.snapshot(), nil
	}
	for _, job := range s.history {
		if job.ID == id {
			return job.snapshot(), nil
		}
	}
	return nil, ErrJobNotFound
}

// GetJobHistory returns recent finished attempts, newest first
func (s *CRMSyncScheduler) GetJobHistory(limit int) []*CRMSyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*CRMSyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByTenant returns finished attempts of one tenant
func (s *CRMSyncScheduler) GetJobHistoryByTenant(tenantID uuid.UUID, limit int) []*CRMSyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*CRMSyncJob, 0)
	for _, job := range s.history {
		if job.TenantID != tenantID {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}
