package config_test

import (
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/meshworks/meshd/mesh/config"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigParses(t *testing.T) {
	c := config.DefaultConfig()
	require.NoError(t, c.Parse())

	require.Equal(t, 2*time.Second, c.StoreTimeout())
	require.Equal(t, 5*time.Second, c.RPLStoreTimeout())
	require.Equal(t, 500*time.Millisecond, c.ProvisionFlushDelay())
	require.Equal(t, 96*time.Hour, c.IVUpdateMin())
	require.Equal(t, 24*time.Hour, c.IVUpdateRefresh())
	require.Equal(t, uint8(24), c.IVUpdateRefreshHours())
	require.Equal(t, 12, c.KeyUpdateCount())
}

func TestConfigValidation(t *testing.T) {
	bad := func(mutate func(*config.Config)) {
		c := config.DefaultConfig()
		mutate(c)
		require.Error(t, c.Parse())
	}

	bad(func(c *config.Config) { c.StoreBackend = "etcd" })
	bad(func(c *config.Config) { c.StorePath = "" })
	bad(func(c *config.Config) { c.SubnetCount = 0 })
	bad(func(c *config.Config) { c.AppKeyCount = 0 })
	bad(func(c *config.Config) { c.RPLSize = 0 })
	bad(func(c *config.Config) { c.LabelCount = 0 })
	bad(func(c *config.Config) { c.ModelKeyCount = 0 })
	bad(func(c *config.Config) { c.StoreTimeout_s = 0 })
	bad(func(c *config.Config) { c.IVUpdateMinHours = 128 })
	bad(func(c *config.Config) { c.IVUpdateDivider = 0 })
	bad(func(c *config.Config) { c.LogLevel = "LOUD" })
	bad(func(c *config.Config) { c.Role = "sink" })

	c := config.DefaultConfig()
	c.StoreBackend = config.BackendMemory
	c.StorePath = ""
	require.NoError(t, c.Parse())
}

func TestConfigYaml(t *testing.T) {
	doc := []byte(`
mesh:
  store_backend: sqlite
  store_path: /tmp/meshd.db
  log_level: DEBUG
  subnet_count: 2
  seq_store_rate: 16
  store_timeout: 3
`)

	wrap := struct {
		Mesh *config.Config `json:"mesh"`
	}{Mesh: config.DefaultConfig()}

	require.NoError(t, yaml.Unmarshal(doc, &wrap))
	require.NoError(t, wrap.Mesh.Parse())

	require.Equal(t, config.BackendSqlite, wrap.Mesh.StoreBackend)
	require.Equal(t, "/tmp/meshd.db", wrap.Mesh.StorePath)
	require.Equal(t, uint16(2), wrap.Mesh.SubnetCount)
	require.Equal(t, uint32(16), wrap.Mesh.SeqStoreRate)
	require.Equal(t, 3*time.Second, wrap.Mesh.StoreTimeout())
	// untouched fields keep their defaults
	require.Equal(t, uint16(8), wrap.Mesh.AppKeyCount)
}
