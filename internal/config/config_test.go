package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, defaultBackend, cfg.Backend)
	assert.Equal(t, defaultHybridFuzzyWeight, cfg.HybridFuzzyWeight)
	assert.Equal(t, defaultHybridFullTextWeight, cfg.HybridFullTextWeight)
}

func TestLoadReadsConfigTOML(t *testing.T) {
	dir := t.TempDir()
	contents := "backend = \"dolt\"\nproject = \"scratch\"\nhybrid_fuzzy_weight = 0.7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(contents), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "dolt", cfg.Backend)
	assert.Equal(t, "scratch", cfg.Project)
	assert.Equal(t, 0.7, cfg.HybridFuzzyWeight)
}

func TestLoadEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("project = \"from-file\"\n"), 0o600))

	t.Setenv("PARSNIP_PROJECT", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Project)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir
	cfg.Project = "roundtrip"
	cfg.Backend = "memory"

	require.NoError(t, cfg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.Project)
	assert.Equal(t, "memory", loaded.Backend)
}

func TestDefaultDataDirIsNonEmpty(t *testing.T) {
	assert.NotEmpty(t, DefaultDataDir())
}
