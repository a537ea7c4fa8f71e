package config

import (
	"fmt"
	"strconv"
)

// TypeLimit — количественный порог (uint, 0 = не задано/отключено).
type TypeLimit struct {
	Value uint
}

func (t *TypeLimit) Set(value string) error {
	v, err := strconv.ParseUint(value, 10, 32) //nolint: gomnd
	if err != nil {
		return fmt.Errorf("value is not uint (%s): %w", value, err)
	}

	t.Value = uint(v)

	return nil
}

func (t TypeLimit) Get(defaultValue uint) uint {
	if t.Value == 0 {
		return defaultValue
	}

	return t.Value
}

func (t *TypeLimit) UnmarshalJSON(data []byte) error {
	return t.Set(string(data))
}

func (t TypeLimit) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t TypeLimit) String() string {
	return strconv.FormatUint(uint64(t.Value), 10) //nolint: gomnd
}
