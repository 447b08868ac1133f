package telemetry

import (
	"fmt"
	"net/url"
	"strings"
)

// Config controls run tracing. The zero Enabled value yields a noop provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	Enabled bool

	// Endpoint is the collector host:port. When empty, spans are sampled
	// but not exported.
	Endpoint string
	// Insecure sends spans over plain HTTP
	Insecure bool

	// SampleRate is the fraction of runs traced, 0 to 1
	SampleRate float64
}

// DefaultConfig returns a disabled configuration that samples every run
// once enabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "dramascope",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// WithEndpoint enables tracing towards endpoint, which is either host:port
// or a URL as found in OTEL_EXPORTER_OTLP_ENDPOINT. An http:// URL makes
// the export insecure. An empty endpoint leaves cfg unchanged.
func (c Config) WithEndpoint(endpoint string) (Config, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return c, nil
	}

	c.Enabled = true
	if !strings.Contains(endpoint, "://") {
		c.Endpoint = endpoint
		return c, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return c, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		c.Insecure = true
	case "https":
	default:
		return c, fmt.Errorf("invalid OTLP endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return c, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	c.Endpoint = u.Host
	return c, nil
}

// Validate checks the sample rate.
func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %v", c.SampleRate)
	}
	return nil
}
