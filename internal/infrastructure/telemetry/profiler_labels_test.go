package telemetry_test

import (
	"context"
	"runtime/pprof"
	"strings"
	"sync"
	"testing"

	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
)

func labelOf(ctx context.Context, key string) string {
	v, _ := pprof.Label(ctx, key)
	return v
}

func TestWithProfilingLabels(t *testing.T) {
	t.Run("runs fn without labels", func(t *testing.T) {
		called := 0
		telemetry.WithProfilingLabels(context.Background(), nil, func(context.Context) { called++ })
		telemetry.WithProfilingLabels(context.Background(), map[string]string{}, func(context.Context) { called++ })
		assert.Equal(t, 2, called)
	})

	t.Run("attaches job labels", func(t *testing.T) {
		labels := telemetry.JobLabels("crm_sync", "tenant-a", "hubspot")
		telemetry.WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
			assert.Equal(t, "crm_sync", labelOf(ctx, telemetry.ProfilingLabelJob))
			assert.Equal(t, "tenant-a", labelOf(ctx, telemetry.ProfilingLabelTenantID))
			assert.Equal(t, "hubspot", labelOf(ctx, telemetry.ProfilingLabelSystem))
		})
	})

	t.Run("drops high cardinality and empty labels", func(t *testing.T) {
		labels := map[string]string{
			"job":            "reservation_sweep",
			"reservation_id": "6f1c",
			"customer_id":    "cust-1",
			"route":          "",
		}
		telemetry.WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
			assert.Equal(t, "reservation_sweep", labelOf(ctx, telemetry.ProfilingLabelJob))
			assert.Empty(t, labelOf(ctx, "reservation_id"))
			assert.Empty(t, labelOf(ctx, "customer_id"))
			_, ok := pprof.Label(ctx, telemetry.ProfilingLabelRoute)
			assert.False(t, ok)
		})
	})

	t.Run("truncates long values", func(t *testing.T) {
		long := strings.Repeat("x", telemetry.MaxLabelValueLength+40)
		telemetry.WithProfilingLabels(context.Background(), map[string]string{"system": long}, func(ctx context.Context) {
			assert.Len(t, labelOf(ctx, "system"), telemetry.MaxLabelValueLength)
		})
	})

	t.Run("sanitizes keys", func(t *testing.T) {
		labels := map[string]string{"Sync Direction": "push", "worker-id": "3", "a.b!": "c"}
		telemetry.WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
			assert.Equal(t, "push", labelOf(ctx, "sync_direction"))
			assert.Equal(t, "3", labelOf(ctx, "worker_id"))
			assert.Equal(t, "c", labelOf(ctx, "ab"))
		})
	})

	t.Run("does not leak labels to the caller", func(t *testing.T) {
		ctx := context.Background()
		telemetry.WithProfilingLabels(ctx, telemetry.JobLabels("crm_sync", "", ""), func(context.Context) {})
		assert.Empty(t, labelOf(ctx, telemetry.ProfilingLabelJob))
	})
}

func TestJobLabels(t *testing.T) {
	assert.Equal(t, map[string]string{"job": "reservation_sweep"}, telemetry.JobLabels("reservation_sweep", "", ""))
	assert.Equal(t, map[string]string{
		"job":       "crm_sync",
		"tenant_id": "t1",
		"system":    "salesforce",
	}, telemetry.JobLabels("crm_sync", "t1", "salesforce"))
}

func TestWithProfilingLabels_Nested(t *testing.T) {
	telemetry.WithProfilingLabels(context.Background(), telemetry.JobLabels("crm_sync", "t1", ""), func(ctx context.Context) {
		telemetry.WithProfilingLabels(ctx, map[string]string{telemetry.ProfilingLabelSystem: "woocommerce"}, func(inner context.Context) {
			assert.Equal(t, "crm_sync", labelOf(inner, telemetry.ProfilingLabelJob))
			assert.Equal(t, "woocommerce", labelOf(inner, telemetry.ProfilingLabelSystem))
		})
	})
}

func TestWithProfilingLabels_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	labels := telemetry.JobLabels("crm_sync", "shared", "hubspot")
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			telemetry.WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
				assert.Equal(t, "shared", labelOf(ctx, telemetry.ProfilingLabelTenantID))
			})
		}()
	}
	wg.Wait()
}
