// Package config implements the Config Loader: it merges a project-level
// YAML defaults file, a JSON blob carried in an environment variable, CLI
// flags, and hard-coded defaults into one validated Config, grounded in the
// teacher's cli/config package (the same gopkg.in/yaml.v3 KnownFields(true)
// decode, the same ${VAR}/${VAR:-default} env-expansion pass before
// decoding).
package config

import (
	"fmt"
)

// EnvVar is the environment variable the Config Loader reads its JSON blob
// from.
const EnvVar = "CREDITRUNNER_CONFIG"

// Config is the fully merged, validated job configuration.
type Config struct {
	InputPath           string            `yaml:"inputPath" json:"inputPath"`
	OutputPath          string            `yaml:"outputPath" json:"outputPath"`
	CredentialsPath     string            `yaml:"credentialsPath" json:"credentialsPath"`
	PerCredentialLimit  int               `yaml:"perCredentialLimit" json:"perCredentialLimit"`
	MaxConcurrent       int               `yaml:"maxConcurrent" json:"maxConcurrent"`
	MaxRequestsPerSecond float64          `yaml:"maxRequestsPerSecond" json:"maxRequestsPerSecond"`
	RetryMax            int               `yaml:"retryMax" json:"retryMax"`
	BatchSize           int               `yaml:"batchSize" json:"batchSize"`
	ColumnMap           map[string]string `yaml:"columnMap" json:"columnMap"`
	ToolID              string            `yaml:"toolId" json:"toolId"`
	StopFlagPath        string            `yaml:"stopFlagPath" json:"stopFlagPath"`
	Endpoint            string            `yaml:"endpoint" json:"endpoint"`

	// Archival, AdapterURL, AdapterKind, MetricsAddr, and ResumeCachePath
	// configure optional components; unset disables each of them.
	Archival        string `yaml:"archival" json:"archival"`
	AdapterURL      string `yaml:"adapterURL" json:"adapterURL"`
	AdapterKind     string `yaml:"adapterKind" json:"adapterKind"`
	MetricsAddr     string `yaml:"metricsAddr" json:"metricsAddr"`
	ResumeCachePath string `yaml:"resumeCachePath" json:"resumeCachePath"`
}

// Error reports a Config Loader failure: a missing required option, an
// unreadable file, or an invalid integer value. Never wraps a network
// error, because the Config Loader never reads the network.
type Error struct {
	Option string
	Msg    string
}

func (e *Error) Error() string {
	if e.Option == "" {
		return e.Msg
	}
	return fmt.Sprintf("config: %s: %s", e.Option, e.Msg)
}

// Defaults returns the hard-coded baseline every other source overrides.
func Defaults() Config {
	return Config{
		PerCredentialLimit:  2500,
		MaxConcurrent:       10,
		MaxRequestsPerSecond: 4,
		RetryMax:            5,
		BatchSize:           1,
		ResumeCachePath:     "",
	}
}

// Merge layers sources from lowest to highest precedence: hard-coded
// defaults, an optional project YAML file, an env-carried JSON blob, then
// CLI flags. Each layer overlays the previous one field by field, treating
// a non-zero value as "explicitly provided" by that layer.
//
// yamlLayer and envLayer may be nil when that source is absent.
func Merge(yamlLayer, envLayer, cliLayer *Config) Config {
	out := Defaults()
	if yamlLayer != nil {
		out = overlay(out, *yamlLayer)
	}
	if envLayer != nil {
		out = overlay(out, *envLayer)
	}
	if cliLayer != nil {
		out = overlay(out, *cliLayer)
	}
	return out
}

// overlay returns base with every non-zero field of patch applied on top.
// ColumnMap merges key by key rather than replacing wholesale, so a YAML
// file's column map and a narrower CLI/env override can compose.
func overlay(base, patch Config) Config {
	if patch.InputPath != "" {
		base.InputPath = patch.InputPath
	}
	if patch.OutputPath != "" {
		base.OutputPath = patch.OutputPath
	}
	if patch.CredentialsPath != "" {
		base.CredentialsPath = patch.CredentialsPath
	}
	if patch.PerCredentialLimit != 0 {
		base.PerCredentialLimit = patch.PerCredentialLimit
	}
	if patch.MaxConcurrent != 0 {
		base.MaxConcurrent = patch.MaxConcurrent
	}
	if patch.MaxRequestsPerSecond != 0 {
		base.MaxRequestsPerSecond = patch.MaxRequestsPerSecond
	}
	if patch.RetryMax != 0 {
		base.RetryMax = patch.RetryMax
	}
	if patch.BatchSize != 0 {
		base.BatchSize = patch.BatchSize
	}
	if len(patch.ColumnMap) > 0 {
		if base.ColumnMap == nil {
			base.ColumnMap = make(map[string]string, len(patch.ColumnMap))
		}
		for k, v := range patch.ColumnMap {
			base.ColumnMap[k] = v
		}
	}
	if patch.ToolID != "" {
		base.ToolID = patch.ToolID
	}
	if patch.StopFlagPath != "" {
		base.StopFlagPath = patch.StopFlagPath
	}
	if patch.Endpoint != "" {
		base.Endpoint = patch.Endpoint
	}
	if patch.Archival != "" {
		base.Archival = patch.Archival
	}
	if patch.AdapterURL != "" {
		base.AdapterURL = patch.AdapterURL
	}
	if patch.AdapterKind != "" {
		base.AdapterKind = patch.AdapterKind
	}
	if patch.MetricsAddr != "" {
		base.MetricsAddr = patch.MetricsAddr
	}
	if patch.ResumeCachePath != "" {
		base.ResumeCachePath = patch.ResumeCachePath
	}
	return base
}

// Validate checks required options and cross-field constraints, failing
// with a config Error on missing required options or invalid values.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return &Error{Option: "inputPath", Msg: "required"}
	}
	if c.OutputPath == "" {
		return &Error{Option: "outputPath", Msg: "required"}
	}
	if c.CredentialsPath == "" {
		return &Error{Option: "credentialsPath", Msg: "required"}
	}
	if c.Endpoint == "" {
		return &Error{Option: "endpoint", Msg: "required"}
	}
	if c.PerCredentialLimit < 0 {
		return &Error{Option: "perCredentialLimit", Msg: "must be >= 0"}
	}
	if c.MaxConcurrent <= 0 {
		return &Error{Option: "maxConcurrent", Msg: "must be > 0"}
	}
	if c.MaxRequestsPerSecond <= 0 {
		return &Error{Option: "maxRequestsPerSecond", Msg: "must be > 0"}
	}
	if c.RetryMax < 0 {
		return &Error{Option: "retryMax", Msg: "must be >= 0"}
	}
	if c.BatchSize <= 0 {
		return &Error{Option: "batchSize", Msg: "must be > 0"}
	}
	if c.ResumeCachePath == "" {
		c.ResumeCachePath = c.InputPath + ".rcache"
	}
	if c.AdapterURL != "" {
		switch c.AdapterKind {
		case "webhook", "redis":
		default:
			return &Error{Option: "adapterKind", Msg: `must be "webhook" or "redis" when adapterURL is set`}
		}
	}
	return nil
}
