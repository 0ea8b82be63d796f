package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:8732", cfg.Addr())
}

func TestLoadFromPathCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)

	// The default file was written and loads again.
	_, err = os.Stat(path)
	require.NoError(t, err)
	again, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.Port, again.Server.Port)
}

func TestLoadFromPathReadsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
server:
  host: 0.0.0.0
  port: 9100
storage:
  enabled: false
logging:
  level: debug
  pretty: true
`)
	require.NoError(t, os.WriteFile(path, raw, 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9100", cfg.Addr())
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestSaveToPathRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Server.Port = 9200
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, loaded.Server.Port)
}

func TestOverrideStore(t *testing.T) {
	o := NewOverrideStore()

	_, ok := o.Get("flow.max_go_backs")
	assert.False(t, ok)

	o.Set("flow.max_go_backs", "5")
	v, ok := o.Get("flow.max_go_backs")
	assert.True(t, ok)
	assert.Equal(t, "5", v)

	snap := o.Snapshot()
	snap["flow.max_go_backs"] = "mutated"
	v, _ = o.Get("flow.max_go_backs")
	assert.Equal(t, "5", v)

	// Empty value deletes.
	o.Set("flow.max_go_backs", "")
	_, ok = o.Get("flow.max_go_backs")
	assert.False(t, ok)
}
