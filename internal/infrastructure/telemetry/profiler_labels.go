package telemetry

import (
	"context"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelTenantID   = "tenant_id"
	// ProfilingLabelJob names a background job (reservation_sweep, crm_sync)
	ProfilingLabelJob = "job"
	// ProfilingLabelSystem is the external system a job talks to
	ProfilingLabelSystem = "system"
)

// MaxLabelValueLength caps label values so profiles stay small
const MaxLabelValueLength = 128

// HighCardinalityLabels are dropped from profiling labels. Reservation and
// customer ids would create one series per hold.
var HighCardinalityLabels = map[string]bool{
	"request_id":     true,
	"trace_id":       true,
	"span_id":        true,
	"reservation_id": true,
	"customer_id":    true,
	"external_id":    true,
	"job_id":         true,
}

// WithProfilingLabels runs fn with the given pprof labels attached, so CPU
// and allocation samples taken inside fn can be filtered in Pyroscope.
//
//	telemetry.WithProfilingLabels(ctx, telemetry.JobLabels("crm_sync", tenantID, "hubspot"), func(ctx context.Context) {
//	    result, err = runner.SyncAll(ctx, tenantID, system)
//	})
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// JobLabels builds the labels of a background job run. Empty values are
// skipped.
func JobLabels(job, tenantID, system string) map[string]string {
	labels := map[string]string{ProfilingLabelJob: job}
	if tenantID != "" {
		labels[ProfilingLabelTenantID] = tenantID
	}
	if system != "" {
		labels[ProfilingLabelSystem] = system
	}
	return labels
}

// sanitizeLabels returns key/value pairs sorted by key, without empty or
// high cardinality entries, with long values truncated.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" || HighCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		if k := sanitizeLabelKey(key); k != "" {
			pairs = append(pairs, k, value)
		}
	}
	return pairs
}

// sanitizeLabelKey lowercases key and keeps only [a-z0-9_]
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		switch c := key[i]; {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		case c == ' ', c == '-':
			b.WriteByte('_')
		}
	}
	return b.String()
}
