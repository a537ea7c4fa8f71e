package config

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var metricPrefixRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TypeMetricPrefix — префикс метрик, валидный идентификатор.
type TypeMetricPrefix struct {
	Value string
}

func (t *TypeMetricPrefix) Set(value string) error {
	if !metricPrefixRx.MatchString(value) {
		return fmt.Errorf("incorrect metric prefix (%s)", value)
	}

	t.Value = value

	return nil
}

func (t TypeMetricPrefix) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeMetricPrefix) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse metric prefix: %w", err)
	}

	return t.Set(str)
}

func (t TypeMetricPrefix) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

func (t TypeMetricPrefix) String() string {
	return t.Value
}
