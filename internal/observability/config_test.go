package observability

import (
	"testing"

	"github.com/restorehq/restore/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsAppSettings(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      " ",
		AppVersion:   "1.2.0",
		Environment:  "production",
		OTLPEndpoint: " collector:4317 ",
		Observability: config.ObservabilityConfig{
			LogLevel:      "warn",
			LogFormat:     "console",
			OtelEnabled:   true,
			OtelProtocol:  "http",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "restore", cfg.ServiceName)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "test"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
