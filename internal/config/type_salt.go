package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// minSaltLength — короткая соль делает хэши перебираемыми: HMAC по
// известному словарю IP-адресов с 4-байтовой солью брутфорсится на
// ноутбуке.
const minSaltLength = 16

// TypeSalt — секрет хэширования. String() маскирует значение, чтобы
// соль не утекала через логи конфигурации.
type TypeSalt struct {
	Value string
}

func (t *TypeSalt) Set(value string) error {
	if len(value) < minSaltLength {
		return fmt.Errorf("salt must be at least %d characters long", minSaltLength)
	}

	t.Value = value

	return nil
}

func (t *TypeSalt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot parse salt: %w", err)
	}

	return t.Set(str)
}

func (t TypeSalt) MarshalJSON() ([]byte, error) {
	// json.Marshal экранирует «<» и «>» как </>, обходя
	// SetEscapeHTML(false) внешнего энкодера в Config.String().
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)

	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(t.String()); err != nil {
		return nil, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (t TypeSalt) String() string {
	if t.Value == "" {
		return ""
	}

	return "<masked>"
}
