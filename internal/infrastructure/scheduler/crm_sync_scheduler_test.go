package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coccinelle/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

type runOutcome struct {
	result *integration.SyncResult
	err    error
}

// scriptedRunner returns queued outcomes in order and repeats the last one
type scriptedRunner struct {
	mu       sync.Mutex
	outcomes []runOutcome
	calls    int
	done     chan struct{}
}

func newScriptedRunner(outcomes ...runOutcome) *scriptedRunner {
	return &scriptedRunner{outcomes: outcomes, done: make(chan struct{}, 16)}
}

func (r *scriptedRunner) SyncAll(ctx context.Context, tenantID uuid.UUID, system integration.SystemType) (*integration.SyncResult, error) {
	r.mu.Lock()
	idx := r.calls
	if idx >= len(r.outcomes) {
		idx = len(r.outcomes) - 1
	}
	r.calls++
	out := r.outcomes[idx]
	r.mu.Unlock()

	defer func() { r.done <- struct{}{} }()
	if out.result != nil {
		res := *out.result
		res.TenantID = tenantID
		res.System = system
		return &res, out.err
	}
	return nil, out.err
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *scriptedRunner) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for run %d", i+1)
		}
	}
}

func syncResult(synced int, errs ...integration.ItemError) *integration.SyncResult {
	return &integration.SyncResult{RunID: uuid.New(), Synced: synced, Created: synced, Errors: errs}
}

func testSchedulerConfig() CRMSyncSchedulerConfig {
	cfg := DefaultCRMSyncSchedulerConfig()
	cfg.Workers = 1
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffMax = 40 * time.Millisecond
	cfg.JobTimeout = time.Second
	return cfg
}

func startScheduler(t *testing.T, cfg CRMSyncSchedulerConfig, runner CRMSyncRunner) *CRMSyncScheduler {
	t.Helper()
	s, err := NewCRMSyncScheduler(cfg, runner, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitForHistory(t *testing.T, s *CRMSyncScheduler, n int) []*CRMSyncJob {
	t.Helper()
	var history []*CRMSyncJob
	require.Eventually(t, func() bool {
		history = s.GetJobHistory(0)
		return len(history) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return history
}

// ---------------------------------------------------------------------------
// CRMSyncJob Tests
// ---------------------------------------------------------------------------

func TestCRMSyncJob_Complete(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		result    *integration.SyncResult
		status    CRMSyncJobStatus
		retryable bool
	}{
		{"all synced", syncResult(5), CRMSyncJobStatusSuccess, false},
		{"some failed", syncResult(4, integration.ItemError{CustomerID: "c5", Error: "429", Transient: true}), CRMSyncJobStatusPartial, false},
		{"all failed permanently", syncResult(0, integration.ItemError{CustomerID: "c1", Error: "400"}), CRMSyncJobStatusFailed, false},
		{"all failed transiently", syncResult(0, integration.ItemError{CustomerID: "c1", Error: "503", Transient: true}), CRMSyncJobStatusFailed, true},
		{"nothing to sync", syncResult(0), CRMSyncJobStatusSuccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewCRMSyncJob(uuid.New(), integration.SystemHubSpot, 3, now)
			job.Start(now)
			job.Complete(tt.result, now)

			assert.Equal(t, tt.status, job.Status)
			assert.Equal(t, tt.retryable, job.ShouldRetry())
			assert.Equal(t, tt.result.Synced, job.Synced)
			assert.Equal(t, len(tt.result.Errors), job.Failed)
			assert.NotNil(t, job.CompletedAt)
		})
	}
}

func TestCRMSyncJob_Fail(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"not configured", integration.ErrNotConfigured, false},
		{"not external crm", integration.ErrNotExternalCRM, false},
		{"cancelled", context.Canceled, false},
		{"rate limited", &integration.ExternalSystemError{System: integration.SystemHubSpot, StatusCode: 429, Transient: true, Err: errors.New("slow down")}, true},
		{"unauthorized", &integration.ExternalSystemError{System: integration.SystemHubSpot, StatusCode: 401, Err: errors.New("bad token")}, false},
		{"database down", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewCRMSyncJob(uuid.New(), integration.SystemHubSpot, 3, now)
			job.Start(now)
			job.Fail(tt.err, now)

			assert.Equal(t, CRMSyncJobStatusFailed, job.Status)
			assert.Equal(t, tt.err.Error(), job.Error)
			assert.Equal(t, tt.retryable, job.ShouldRetry())
		})
	}
}

func TestCRMSyncJob_ScheduleRetry_BackoffIsCapped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := NewCRMSyncJob(uuid.New(), integration.SystemSalesforce, 10, now)

	expected := []time.Duration{
		time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute,
		16 * time.Minute, 30 * time.Minute, 30 * time.Minute,
	}
	for i, want := range expected {
		job.ScheduleRetry(time.Minute, 30*time.Minute, now)
		assert.Equal(t, i+1, job.RetryCount)
		assert.Equal(t, CRMSyncJobStatusPending, job.Status)
		assert.Equal(t, now.Add(want), *job.NextRetryAt, "retry %d", i+1)
	}
}

func TestCRMSyncJob_NoRetryWhenExhausted(t *testing.T) {
	now := time.Now()
	job := NewCRMSyncJob(uuid.New(), integration.SystemHubSpot, 1, now)
	job.Fail(errors.New("timeout"), now)
	require.True(t, job.ShouldRetry())

	job.ScheduleRetry(time.Second, time.Minute, now)
	job.Start(now)
	job.Fail(errors.New("timeout"), now)
	assert.False(t, job.ShouldRetry())
}

// ---------------------------------------------------------------------------
// CRMSyncSchedulerConfig Tests
// ---------------------------------------------------------------------------

func TestCRMSyncSchedulerConfig_Validate(t *testing.T) {
	valid := DefaultCRMSyncSchedulerConfig()
	assert.NoError(t, valid.Validate())
	assert.Equal(t, 30*time.Minute, valid.BackoffMax)

	mutations := map[string]func(*CRMSyncSchedulerConfig){
		"no workers":         func(c *CRMSyncSchedulerConfig) { c.Workers = 0 },
		"no queue":           func(c *CRMSyncSchedulerConfig) { c.QueueSize = 0 },
		"no timeout":         func(c *CRMSyncSchedulerConfig) { c.JobTimeout = 0 },
		"negative retries":   func(c *CRMSyncSchedulerConfig) { c.MaxRetries = -1 },
		"max below base":     func(c *CRMSyncSchedulerConfig) { c.BackoffMax = c.BackoffBase / 2 },
		"no history":         func(c *CRMSyncSchedulerConfig) { c.HistorySize = 0 },
		"zero backoff base":  func(c *CRMSyncSchedulerConfig) { c.BackoffBase = 0 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultCRMSyncSchedulerConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

// ---------------------------------------------------------------------------
// CRMSyncScheduler Tests
// ---------------------------------------------------------------------------

func TestCRMSyncScheduler_SubmitRequiresRunning(t *testing.T) {
	s, err := NewCRMSyncScheduler(testSchedulerConfig(), newScriptedRunner(runOutcome{result: syncResult(1)}), zap.NewNop())
	require.NoError(t, err)

	_, err = s.ScheduleSync(uuid.New(), integration.SystemHubSpot)
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)
}

func TestCRMSyncScheduler_RejectsNonCRMSystems(t *testing.T) {
	s := startScheduler(t, testSchedulerConfig(), newScriptedRunner(runOutcome{result: syncResult(1)}))

	_, err := s.ScheduleSync(uuid.New(), integration.SystemWooCommerce)
	assert.ErrorIs(t, err, integration.ErrNotExternalCRM)
}

func TestCRMSyncScheduler_RunsJob(t *testing.T) {
	runner := newScriptedRunner(runOutcome{result: syncResult(3)})
	s := startScheduler(t, testSchedulerConfig(), runner)
	tenantID := uuid.New()

	job, err := s.ScheduleSync(tenantID, integration.SystemHubSpot)
	require.NoError(t, err)
	assert.Equal(t, CRMSyncJobStatusPending, job.Status)

	history := waitForHistory(t, s, 1)
	assert.Equal(t, job.ID, history[0].ID)
	assert.Equal(t, CRMSyncJobStatusSuccess, history[0].Status)
	assert.Equal(t, 3, history[0].Synced)

	got, err := s.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, CRMSyncJobStatusSuccess, got.Status)

	assert.Len(t, s.GetJobHistoryByTenant(tenantID, 10), 1)
	assert.Empty(t, s.GetJobHistoryByTenant(uuid.New(), 10))

	_, err = s.GetJob(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

type recordedRuns struct {
	mu      sync.Mutex
	results []*integration.SyncResult
}

func (r *recordedRuns) RecordSyncRun(_ context.Context, result *integration.SyncResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recordedRuns) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func TestCRMSyncScheduler_RecordsResults(t *testing.T) {
	runner := newScriptedRunner(runOutcome{result: syncResult(2)})
	s, err := NewCRMSyncScheduler(testSchedulerConfig(), runner, zap.NewNop())
	require.NoError(t, err)
	recorder := &recordedRuns{}
	s.SetRecorder(recorder)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})

	tenantID := uuid.New()
	_, err = s.ScheduleSync(tenantID, integration.SystemSalesforce)
	require.NoError(t, err)
	waitForHistory(t, s, 1)

	require.Equal(t, 1, recorder.len())
	assert.Equal(t, tenantID, recorder.results[0].TenantID)
	assert.Equal(t, integration.SystemSalesforce, recorder.results[0].System)
	assert.Equal(t, 2, recorder.results[0].Synced)
}

func TestCRMSyncScheduler_RetriesTransientFailure(t *testing.T) {
	transient := &integration.ExternalSystemError{System: integration.SystemHubSpot, StatusCode: 503, Transient: true, Err: errors.New("unavailable")}
	runner := newScriptedRunner(
		runOutcome{err: transient},
		runOutcome{result: syncResult(2)},
	)
	s := startScheduler(t, testSchedulerConfig(), runner)

	job, err := s.ScheduleSync(uuid.New(), integration.SystemHubSpot)
	require.NoError(t, err)

	runner.waitCalls(t, 2)
	history := waitForHistory(t, s, 2)

	assert.Equal(t, CRMSyncJobStatusSuccess, history[0].Status)
	assert.Equal(t, 1, history[0].RetryCount)
	assert.Equal(t, CRMSyncJobStatusFailed, history[1].Status)
	assert.Equal(t, job.ID, history[1].ID)
	assert.Equal(t, 2, runner.callCount())
}

func TestCRMSyncScheduler_GivesUpAfterMaxRetries(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.MaxRetries = 2
	runner := newScriptedRunner(runOutcome{err: errors.New("connection reset")})
	s := startScheduler(t, cfg, runner)

	_, err := s.ScheduleSync(uuid.New(), integration.SystemSalesforce)
	require.NoError(t, err)

	runner.waitCalls(t, 3)
	history := waitForHistory(t, s, 3)
	assert.Equal(t, CRMSyncJobStatusFailed, history[0].Status)
	assert.Equal(t, 2, history[0].RetryCount)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, runner.callCount(), "no attempt beyond MaxRetries")
}

func TestCRMSyncScheduler_DoesNotRetryPermanentFailure(t *testing.T) {
	runner := newScriptedRunner(runOutcome{err: integration.ErrNotConfigured})
	s := startScheduler(t, testSchedulerConfig(), runner)

	_, err := s.ScheduleSync(uuid.New(), integration.SystemHubSpot)
	require.NoError(t, err)

	history := waitForHistory(t, s, 1)
	assert.Equal(t, CRMSyncJobStatusFailed, history[0].Status)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())
}

func TestCRMSyncScheduler_QueueFull(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.QueueSize = 1
	s, err := NewCRMSyncScheduler(cfg, newScriptedRunner(runOutcome{result: syncResult(1)}), zap.NewNop())
	require.NoError(t, err)

	// Running without workers: mark running by hand so nothing drains the queue
	s.isRunning = true

	_, err = s.ScheduleSync(uuid.New(), integration.SystemHubSpot)
	require.NoError(t, err)
	_, err = s.ScheduleSync(uuid.New(), integration.SystemHubSpot)
	assert.ErrorIs(t, err, ErrJobQueueFull)
}

func TestCRMSyncScheduler_HistoryIsBounded(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.HistorySize = 2
	runner := newScriptedRunner(runOutcome{result: syncResult(1)})
	s := startScheduler(t, cfg, runner)

	for i := 0; i < 4; i++ {
		_, err := s.ScheduleSync(uuid.New(), integration.SystemHubSpot)
		require.NoError(t, err)
	}
	runner.waitCalls(t, 4)

	require.Eventually(t, func() bool {
		s.historyMu.RLock()
		defer s.historyMu.RUnlock()
		return len(s.active) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, s.GetJobHistory(0), 2)
	assert.Len(t, s.GetJobHistory(1), 1)
}

func TestCRMSyncScheduler_StartStopIdempotent(t *testing.T) {
	s, err := NewCRMSyncScheduler(testSchedulerConfig(), newScriptedRunner(runOutcome{result: syncResult(1)}), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}
