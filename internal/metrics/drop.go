package metrics

import "stratflow/logger"

// DropMetric identifies the metric name emitted when best-effort messages are dropped.
type DropMetric string

// DropMetricDashboardUpdate records dashboard updates discarded because the
// update channel was full.
const DropMetricDashboardUpdate DropMetric = "dashboard_updates_dropped"

// EmitDropMetric logs and emits a metric representing a dropped message. The
// metric value is always incremented by one so callers should invoke this helper
// for each dropped message. Optional metadata (pair, mode, stage) is added to the
// metric fields when provided which enables downstream aggregation per run.
func EmitDropMetric(log *logger.Log, metric DropMetric, pair, mode, stage string) {
	fields := logger.Fields{}
	if pair != "" {
		fields["pair"] = pair
	}
	if mode != "" {
		fields["mode"] = mode
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
