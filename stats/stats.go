// Package stats provides event stream observers which export guard
// activity to monitoring backends: Prometheus and statsd.
package stats

// DefaultMetricPrefix is used when a config does not override it.
const DefaultMetricPrefix = "bastion"

// Metric names shared by both backends.
const (
	MetricRequestsAllowed   = "requests_allowed"
	MetricRequestsRejected  = "requests_rejected"
	MetricBansActive        = "bans_active"
	MetricBansTotal         = "bans_total"
	MetricAnomalyAlerts     = "anomaly_alerts"
	MetricAnomalyScore      = "anomaly_score"
	MetricIdempotentReplays = "idempotent_replays"
	MetricShadowBanHits     = "shadow_ban_hits"
	MetricFailOpens         = "fail_opens"
	MetricStoreSize         = "store_size"
)

// Tag names.
const (
	TagBucket = "bucket"
	TagReason = "reason"
	TagStore  = "store"
)

// Tag values for TagReason.
const (
	ReasonRateLimited = "rate_limited"
	ReasonCircuit     = "circuit"
	ReasonBurst       = "burst"
)

// Tag values for TagStore.
const (
	StoreRateWindows = "rate_windows"
	StoreCircuits    = "open_circuits"
	StoreAnomalyKeys = "anomaly_keys"
	StoreIdempotency = "idempotency_keys"
)
