package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.HTTP.Port)
	assert.Equal(t, "mysql", cfg.Ledger.Driver)
	assert.Equal(t, DeliveryAtMostOnce, cfg.Notification.Delivery)
	assert.Equal(t, 5*time.Second, cfg.Notification.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Order.ProcessingTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Infra.Kafka.Brokers)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 8080
ledger:
  driver: redis
notification:
  delivery: at_least_once
  sink: kafka
  timeout: 2s
mysql_ignored: true
`), 0o600))
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port, "env wins over file")
	assert.Equal(t, "redis", cfg.Ledger.Driver)
	assert.Equal(t, DeliveryAtLeastOnce, cfg.Notification.Delivery)
	assert.Equal(t, "kafka", cfg.Notification.Sink)
	assert.Equal(t, 2*time.Second, cfg.Notification.Timeout)
}

func TestOverlay(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, cfg.Overlay([]byte("lock:\n  driver: zookeeper\n")))
	assert.Equal(t, "zookeeper", cfg.Lock.Driver)
}

func TestValidate(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"ledger":   func(c *Config) { c.Ledger.Driver = "etcd" },
		"delivery": func(c *Config) { c.Notification.Delivery = "exactly_once" },
		"sink":     func(c *Config) { c.Notification.Sink = "smtp" },
		"lock":     func(c *Config) { c.Lock.Driver = "redis" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
