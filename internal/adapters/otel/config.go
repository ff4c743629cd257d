package otel

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint string `envconfig:"STUDI_OTEL_ENDPOINT"`
	Enabled  bool   `envconfig:"STUDI_OTEL_ENABLED" default:"false"`
	Insecure bool   `envconfig:"STUDI_OTEL_INSECURE" default:"false"`
}
