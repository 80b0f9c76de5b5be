package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestNoHaltCriterionRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm.MaxIteration = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "halt criterion")
}

func TestLoadConfigMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ea":{"size":64,"nParents":8}}`), 0644))

	os.Setenv("EVOGENEVA_MAX_ITERATION", "250")
	defer os.Unsetenv("EVOGENEVA_MAX_ITERATION")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 64, cfg.EA.Size)
	require.Equal(t, uint64(250), cfg.Algorithm.MaxIteration)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().EA.Size, cfg.EA.Size)
}

func TestResolveAddrMultiaddrAndPlain(t *testing.T) {
	got, err := ResolveAddr("/ip4/127.0.0.1/tcp/9090")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", got)

	got2, err := ResolveAddr("localhost:9090")
	require.NoError(t, err)
	require.Equal(t, "localhost:9090", got2)
}

func TestPresets(t *testing.T) {
	qs := GetPresetConfig("quickstart")
	require.Less(t, qs.EA.Size, DefaultConfig().EA.Size)

	dist := GetPresetConfig("distributed")
	require.Greater(t, dist.EA.Size, DefaultConfig().EA.Size)
}
