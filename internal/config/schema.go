// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for the gateway.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Log controls the process-wide logger.
	Log LogConfig `yaml:"log,omitempty"`

	// DataDir overrides the default persistent data directory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Workers holds the downstream worker service endpoints and credentials.
	// Every URL is optional: an unset URL marks the service as not
	// configured, which callers see as a distinct unavailability state.
	Workers WorkersConfig `yaml:"workers"`

	// Upstream configures the streaming proxy target.
	Upstream UpstreamConfig `yaml:"upstream,omitempty"`

	// Telemetry configures trace export. Disabled when the endpoint is empty.
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "gateway.http").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level,omitempty"`

	// Format is "text" or "json". Defaults to text.
	Format string `yaml:"format,omitempty"`
}

// WorkersConfig holds per-service endpoints plus the shared secret sent
// in the X-FlowChat-Worker-Auth header.
type WorkersConfig struct {
	Secret   string      `yaml:"secret,omitempty"`
	Query    QueryConfig `yaml:"query,omitempty"`
	Mutation Endpoint    `yaml:"mutation,omitempty"`
	Document Endpoint    `yaml:"document,omitempty"`
	Storage  Endpoint    `yaml:"storage,omitempty"`
	Email    Endpoint    `yaml:"email,omitempty"`
}

// QueryConfig is the read-side service endpoint. It authenticates with a
// bearer key instead of the shared worker secret.
type QueryConfig struct {
	URL string `yaml:"url,omitempty"`
	Key string `yaml:"key,omitempty"`
}

// Endpoint is a bare base URL for a worker service.
type Endpoint struct {
	URL string `yaml:"url,omitempty"`
}

// UpstreamConfig is the target of the pass-through proxy.
type UpstreamConfig struct {
	// URL is the upstream base URL requests under /mcp/* are relayed to.
	URL string `yaml:"url,omitempty"`

	// Token, when set, is forwarded upstream as a bearer credential.
	Token string `yaml:"token,omitempty"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}
