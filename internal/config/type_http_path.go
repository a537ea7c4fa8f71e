package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TypeHTTPPath — абсолютный HTTP-путь ("/metrics").
type TypeHTTPPath struct {
	Value string
}

func (t *TypeHTTPPath) Set(value string) error {
	if !strings.HasPrefix(value, "/") {
		return fmt.Errorf("http path must start with / (%s)", value)
	}

	t.Value = value

	return nil
}

func (t TypeHTTPPath) Get(defaultValue string) string {
	if t.Value == "" {
		return defaultValue
	}

	return t.Value
}

func (t *TypeHTTPPath) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse http path: %w", err)
	}

	return t.Set(str)
}

func (t TypeHTTPPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

func (t TypeHTTPPath) String() string {
	return t.Value
}
