package telemetry

// Config holds configuration for the tracer
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Environment is the deployment environment (development, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector, either host:port or a full URL.
	// If empty, spans are recorded but not exported.
	Endpoint string

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig has tracing disabled
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tradeflow",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}
