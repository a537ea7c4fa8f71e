package config

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TypeErrorRate — допустимая доля ложных срабатываний фильтра, (0, 1).
type TypeErrorRate struct {
	Value float64
}

func (t *TypeErrorRate) Set(value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("value is not float (%s): %w", value, err)
	}

	if v <= 0 || v >= 1 {
		return fmt.Errorf("error rate must be in (0, 1), got %s", value)
	}

	t.Value = v

	return nil
}

func (t TypeErrorRate) Get(defaultValue float64) float64 {
	if t.Value == 0 {
		return defaultValue
	}

	return t.Value
}

func (t *TypeErrorRate) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cannot parse error rate: %w", err)
	}

	return t.Set(raw.String())
}

func (t TypeErrorRate) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t TypeErrorRate) String() string {
	return strconv.FormatFloat(t.Value, 'f', -1, 64)
}
