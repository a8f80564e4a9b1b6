package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesFileTargetsAndDefaults(t *testing.T) {
	path := writeConfigFile(t, `
targets:
  - name: router1
    address: 10.0.0.1:8728
    user: admin
    password: secret
`)
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "router1", cfg.Targets[0].Name)
	assert.Equal(t, defaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, defaultCollectionInterval, cfg.CollectionInterval)
}

func TestLoadFlagOverridesFileListenAddress(t *testing.T) {
	path := writeConfigFile(t, `
listen_address: ":1234"
targets:
  - name: router1
    address: 10.0.0.1:8728
    user: admin
    password: secret
`)
	cfg, err := Load([]string{"--config", path, "--listen-address", ":9999"})
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddress)
}

func TestLoadFileListenAddressUsedWhenFlagNotSet(t *testing.T) {
	path := writeConfigFile(t, `
listen_address: ":1234"
targets:
  - name: router1
    address: 10.0.0.1:8728
    user: admin
    password: secret
`)
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.ListenAddress)
}

func TestLoadAcceptsEmptyTargetList(t *testing.T) {
	path := writeConfigFile(t, `targets: []`)
	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Empty(t, cfg.Targets)
}

func TestLoadRejectsDuplicateTargetNames(t *testing.T) {
	path := writeConfigFile(t, `
targets:
  - name: router1
    address: 10.0.0.1:8728
    user: admin
    password: secret
  - name: router1
    address: 10.0.0.2:8728
    user: admin
    password: secret
`)
	_, err := Load([]string{"--config", path})
	assert.ErrorContains(t, err, "duplicate target name")
}

func TestLoadRejectsMissingAddress(t *testing.T) {
	path := writeConfigFile(t, `
targets:
  - name: router1
    user: admin
    password: secret
`)
	_, err := Load([]string{"--config", path})
	assert.ErrorContains(t, err, "address must not be empty")
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := writeConfigFile(t, `
targets:
  - name: router1
    address: 10.0.0.1:8728
    user: admin
    password: secret
`)
	_, err := Load([]string{"--config", path, "--log-level", "bogus"})
	assert.Error(t, err)
}

func TestLoadShowVersionSkipsFileRequirement(t *testing.T) {
	cfg, err := Load([]string{"--version"})
	require.NoError(t, err)
	assert.True(t, cfg.ShowVersion)
}
