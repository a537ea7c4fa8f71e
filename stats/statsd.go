package stats

import (
	"fmt"
	"strings"

	"github.com/promptdeck/bastion/bastionlib"
	"github.com/promptdeck/bastion/events"
	statsd "github.com/smira/go-statsd"
)

type statsdProcessor struct {
	client *statsd.Client
}

func (s statsdProcessor) EventRequestAllowed(evt bastionlib.EventRequestAllowed) {
	bucket := evt.Bucket
	if bucket == "" {
		bucket = "none"
	}

	s.client.Incr(MetricRequestsAllowed, 1, statsd.StringTag(TagBucket, bucket))
}

func (s statsdProcessor) EventRateLimited(evt bastionlib.EventRateLimited) {
	s.client.Incr(MetricRequestsRejected, 1,
		statsd.StringTag(TagReason, ReasonRateLimited),
		statsd.StringTag(TagBucket, evt.Bucket))
}

func (s statsdProcessor) EventCircuitBanned(evt bastionlib.EventCircuitBanned) {
	s.client.Incr(MetricBansTotal, 1)
}

func (s statsdProcessor) EventCircuitRejected(evt bastionlib.EventCircuitRejected) {
	s.client.Incr(MetricRequestsRejected, 1,
		statsd.StringTag(TagReason, ReasonCircuit))
}

func (s statsdProcessor) EventBurstDetected(evt bastionlib.EventBurstDetected) {
	s.client.Incr(MetricRequestsRejected, 1,
		statsd.StringTag(TagReason, ReasonBurst))
}

func (s statsdProcessor) EventAnomalyAlert(evt bastionlib.EventAnomalyAlert) {
	s.client.Incr(MetricAnomalyAlerts, 1)
}

func (s statsdProcessor) EventIdempotentReplay(evt bastionlib.EventIdempotentReplay) {
	s.client.Incr(MetricIdempotentReplays, 1)
}

func (s statsdProcessor) EventShadowBanHit(evt bastionlib.EventShadowBanHit) {
	s.client.Incr(MetricShadowBanHits, 1)
}

func (s statsdProcessor) EventStoreSize(evt bastionlib.EventStoreSize) {
	s.client.Gauge(MetricStoreSize, int64(evt.RateWindows),
		statsd.StringTag(TagStore, StoreRateWindows))
	s.client.Gauge(MetricStoreSize, int64(evt.OpenCircuits),
		statsd.StringTag(TagStore, StoreCircuits))
	s.client.Gauge(MetricStoreSize, int64(evt.AnomalyKeys),
		statsd.StringTag(TagStore, StoreAnomalyKeys))
	s.client.Gauge(MetricStoreSize, int64(evt.IdempotencyKeys),
		statsd.StringTag(TagStore, StoreIdempotency))
	s.client.Gauge(MetricBansActive, int64(evt.OpenCircuits))
}

func (s statsdProcessor) EventFailOpen(evt bastionlib.EventFailOpen) {
	s.client.Incr(MetricFailOpens, 1)
}

func (s statsdProcessor) Shutdown() {}

// StatsdFactory is a factory of [events.Observer] which send metrics to
// a statsd daemon. All observers share a single client: the client
// itself is thread safe and batches writes.
type StatsdFactory struct {
	client *statsd.Client
}

// Make builds a new observer.
func (s *StatsdFactory) Make() events.Observer {
	return statsdProcessor{
		client: s.client,
	}
}

// Close flushes and stops the underlying client.
func (s *StatsdFactory) Close() error {
	return s.client.Close() //nolint: wrapcheck
}

// NewStatsd builds a statsd observer factory. tagFormat is one of
// "datadog", "influxdb" or "graphite".
func NewStatsd(address, metricPrefix, tagFormat string) (*StatsdFactory, error) {
	var format *statsd.TagFormat

	switch strings.ToLower(tagFormat) {
	case "datadog", "":
		format = statsd.TagFormatDatadog
	case "influxdb":
		format = statsd.TagFormatInfluxDB
	case "graphite":
		format = statsd.TagFormatGraphite
	default:
		return nil, fmt.Errorf("unknown statsd tag format %q", tagFormat)
	}

	client := statsd.NewClient(address,
		statsd.MetricPrefix(metricPrefix+"."),
		statsd.TagStyle(format))

	return &StatsdFactory{
		client: client,
	}, nil
}
