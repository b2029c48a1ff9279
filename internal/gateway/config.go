package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string `yaml:"bind"`

	// ProxyKey protects the tool and proxy endpoints. Clients present it
	// in the X-Proxy-Key header or the key query parameter. Empty
	// disables auth (local development).
	ProxyKey string `yaml:"proxy_key"`

	// WebhookSecret validates the HMAC signature of approval webhooks.
	WebhookSecret string `yaml:"webhook_secret"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// defaults fills zero values. No server-wide write timeout is set: the
// proxy streams server-sent events for as long as the upstream does.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}
