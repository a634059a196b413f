package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/taxon"
)

// isolate points HOME and the working directory at an empty directory so
// no real config file is discovered.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	d := DefaultConfig()
	assert.Equal(t, d.Store, cfg.Store)
	assert.Equal(t, d.Assemble, cfg.Assemble)
	assert.Equal(t, d.Reconcile, cfg.Reconcile)
	assert.Equal(t, d.Log, cfg.Log)
	assert.Equal(t, "en", cfg.Language)
	assert.Empty(t, cfg.Languages)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
  cache:
    ttl: 30s
languages: [en, nl]
assemble:
  sequence: per-rank
  factor: 10
  baseline: 4
  root: kl:Aves
reconcile:
  mode: full-sync
  renumber: true
`), 0o644))
	t.Setenv("TAXA_LOG_LEVEL", "debug")
	t.Setenv("TAXA_RECONCILE_SKIP_SUBSPECIES", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "taxa.db", cfg.Store.DSN)
	assert.Equal(t, 30*time.Second, cfg.Store.Cache.TTL)
	assert.Equal(t, []string{"en", "nl"}, cfg.Languages)
	assert.Equal(t, "debug", cfg.Log.Level)

	ao, err := cfg.AssemblerOptions()
	require.NoError(t, err)
	assert.Equal(t, hierarchy.PerRank, ao.Policy)
	assert.Equal(t, int64(10), ao.Factor)
	assert.Equal(t, int64(4), ao.Baseline)
	require.NotNil(t, ao.Root)
	assert.Equal(t, taxon.Class, ao.Root.Rank)
	assert.Equal(t, "Aves", ao.Root.Latin)

	ro, err := cfg.ReconcileOptions()
	require.NoError(t, err)
	assert.Equal(t, reconcile.FullSync, ro.Mode)
	assert.True(t, ro.Renumber)
	assert.True(t, ro.SkipSubspecies)
	assert.Equal(t, []string{"en", "nl"}, ro.Languages)
}

func TestDiscoverWorkingDirectory(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taxa.yaml"), []byte("language: nl\n"), 0o644))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nl", cfg.Language)
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("store:\n  driver: oracle\nreconcile:\n  mode: maybe\n"), 0o644))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "reconcile.mode")
}

func TestFlagOverride(t *testing.T) {
	isolate(t)
	v := viper.New()
	require.NoError(t, Setup(v, ""))
	v.Set("store.driver", "postgres")
	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestParseRoot(t *testing.T) {
	n, err := ParseRoot("fa:Corvidae")
	require.NoError(t, err)
	assert.Equal(t, taxon.Family, n.Rank)

	for _, bad := range []string{"Aves", "kl:", "xx:Aves"} {
		_, err := ParseRoot(bad)
		assert.Error(t, err, bad)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	out, err := DefaultConfig().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "ttl: 5m0s")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, *DefaultConfig(), back)
}
