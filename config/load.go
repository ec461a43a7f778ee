package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// LoadYAML reads path, expands ${VAR}/${VAR:-default} references, and
// decodes it as the lowest-precedence Config layer. An empty path is not
// an error: the YAML layer is entirely optional.
// Unknown keys are rejected to catch typos early.
func LoadYAML(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Msg: fmt.Sprintf("config file not found: %s", path)}
		}
		return nil, &Error{Msg: fmt.Sprintf("cannot read config file %q: %v", path, err)}
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Msg: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
	}
	return &cfg, nil
}

// LoadEnvJSON decodes the JSON blob carried in the CREDITRUNNER_CONFIG
// environment variable, if set. An unset or empty variable is not an
// error; it simply means this layer contributes nothing.
func LoadEnvJSON() (*Config, error) {
	raw := os.Getenv(EnvVar)
	if raw == "" {
		return nil, nil
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, &Error{Option: EnvVar, Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return &cfg, nil
}
