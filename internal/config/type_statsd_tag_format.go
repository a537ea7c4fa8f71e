package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TypeStatsdTagFormat — формат тегов statsd: datadog, influxdb или
// graphite.
type TypeStatsdTagFormat struct {
	Value string
}

func (t *TypeStatsdTagFormat) Set(value string) error {
	normalized := strings.ToLower(strings.TrimSpace(value))

	switch normalized {
	case "datadog", "influxdb", "graphite":
		t.Value = normalized
	default:
		return fmt.Errorf("unknown statsd tag format (%s)", value)
	}

	return nil
}

func (t TypeStatsdTagFormat) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeStatsdTagFormat) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse statsd tag format: %w", err)
	}

	return t.Set(str)
}

func (t TypeStatsdTagFormat) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

func (t TypeStatsdTagFormat) String() string {
	return t.Value
}
