package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5300, cfg.ListenPort)
	assert.Equal(t, filepath.Join("data", "keys"), cfg.KeyDir)
	assert.Equal(t, filepath.Join("data", "contacts"), cfg.ContactDir)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Run("MissingFileReturnsDefaults", func(t *testing.T) {
		cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default().ListenPort, cfg.ListenPort)
	})

	t.Run("OverridesDefaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "murmur.yaml")
		require.NoError(t, os.WriteFile(path, []byte("listen_port: 7000\nkey_dir: /tmp/keys\n"), 0o644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 7000, cfg.ListenPort)
		assert.Equal(t, "/tmp/keys", cfg.KeyDir)
		assert.Equal(t, Default().ContactDir, cfg.ContactDir)
	})
}

func TestApplyDataDirOverride(t *testing.T) {
	cfg := Default()
	t.Setenv("MURMUR_DATA_DIR", "/var/lib/murmur")
	cfg.ApplyDataDirOverride()
	assert.Equal(t, "/var/lib/murmur/keys", cfg.KeyDir)
	assert.Equal(t, "/var/lib/murmur/contacts", cfg.ContactDir)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ListenPort = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.KeyDir = ""
	assert.Error(t, cfg.Validate())
}
