package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/promptdeck/bastion/internal/config"
)

// ReadConfig parses a TOML config file into the Config structure.
//
// TOML декодируется в нетипизированную map, потом прогоняется через
// JSON: так все Type*-обёртки получают свои UnmarshalJSON и валидация
// значений происходит прямо при чтении.
func ReadConfig(path string) (*config.Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	tree := map[string]interface{}{}

	if err := toml.Unmarshal(contents, &tree); err != nil {
		return nil, fmt.Errorf("cannot parse toml: %w", err)
	}

	jsonBytes, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("cannot convert config to json: %w", err)
	}

	conf := &config.Config{}

	if err := json.Unmarshal(jsonBytes, conf); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return conf, nil
}
