package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMustLoad(t *testing.T) {
	asserts := require.New(t)

	content := `env: test
http_server:
  host: 127.0.0.1
  port: "9090"
cache:
  max_size: 50
  ttl: 120s
circuit_breaker:
  failure_threshold: 3
kafka-service:
  host: localhost
  port: "9092"
  enabled: true
preload:
  disabled: true
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	asserts.NoError(os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("RATES_CONFIG_PATH", path)
	t.Setenv("APILAYER_API_KEY", "test-key-123")

	cfg := MustLoad()

	asserts.Equal("test", cfg.Env)
	asserts.Equal("127.0.0.1", cfg.HTTPServer.Host)
	asserts.Equal("9090", cfg.HTTPServer.Port)

	asserts.Equal(50, cfg.CacheConfig.MaxSize)
	asserts.Equal(2*time.Minute, cfg.CacheConfig.TTL)
	// опущенные поля добираются из env-default
	asserts.Equal(10*time.Minute, cfg.CacheConfig.FiatTTL)
	asserts.Equal(time.Minute, cfg.CacheConfig.SweepInterval)

	asserts.Equal(3, cfg.CircuitBreaker.FailureThreshold)
	asserts.Equal(time.Minute, cfg.CircuitBreaker.ResetTimeout)

	asserts.Equal(5*time.Second, cfg.AggregatorConfig.FetchTimeout)
	asserts.Equal(10*time.Second, cfg.AggregatorConfig.BatchTimeout)

	asserts.Equal("https://api.rapira.net", cfg.RapiraService.BaseURL)
	asserts.Equal(5, cfg.RapiraService.PlateDepth)
	asserts.Equal("test-key-123", cfg.APILayerService.APIKey)
	asserts.Equal(time.Second, cfg.APILayerService.MinInterval)

	asserts.Equal("localhost", cfg.KafkaService.Host)
	asserts.True(cfg.KafkaService.Enabled)
	asserts.Equal("rate-events", cfg.KafkaService.Topic)

	asserts.True(cfg.PreloadConfig.Disabled)
	asserts.Equal("info", cfg.LogConfig.LogLevel)
}
