package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("manifest-path", "", "")
	flags.String("metadata", "", "")
	flags.String("output", "", "")
	flags.String("ranking", "", "")
	flags.String("strategy", "", "")
	flags.Bool("allow-dirty", false, "")
	flags.Bool("dry-run", true, "")
	flags.BoolP("verbose", "v", false, "")
	return flags
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "easyrelease.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", newFlags())
	require.NoError(t, err)

	assert.Equal(t, DefaultCargo, cfg.Cargo)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Equal(t, DefaultRanking, cfg.Ranking)
	assert.Equal(t, DefaultBumpStrategy, cfg.Bump.Strategy)
	assert.True(t, cfg.Publish.DryRun)
	assert.False(t, cfg.Publish.AllowDirty)
	assert.Empty(t, cfg.ManifestPath)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_FileSearchedUpward(t *testing.T) {
	ResetConfig()
	root := t.TempDir()
	path := writeConfig(t, root, `
manifest_path: Cargo.toml
ranking: weighted
bump:
  strategy: minor-keep-patch
publish:
  allow_dirty: true
  dry_run: false
`)
	nested := filepath.Join(root, "crates", "core")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	t.Chdir(nested)

	cfg, err := LoadConfig("", newFlags())
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "Cargo.toml"), cfg.ManifestPath, "file paths resolve against the config file")
	assert.Equal(t, "weighted", cfg.Ranking)
	assert.Equal(t, "minor-keep-patch", cfg.Bump.Strategy)
	assert.True(t, cfg.Publish.AllowDirty)
	assert.False(t, cfg.Publish.DryRun)
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "ranking: weighted\noutput: text\n")
	t.Chdir(dir)
	t.Setenv("EASYRELEASE_RANKING", "topological")
	t.Setenv("EASYRELEASE_PUBLISH__DRY_RUN", "false")

	cfg, err := LoadConfig("", newFlags())
	require.NoError(t, err)

	assert.Equal(t, "topological", cfg.Ranking)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.False(t, cfg.Publish.DryRun)
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	dir := t.TempDir()
	writeConfig(t, dir, "output: text\nbump:\n  strategy: patch\n")
	t.Chdir(dir)
	t.Setenv("EASYRELEASE_OUTPUT", "markdown")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--output", "json", "--strategy", "major", "--dry-run=false", "--allow-dirty", "--manifest-path", "ws/Cargo.toml"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, "major", cfg.Bump.Strategy)
	assert.False(t, cfg.Publish.DryRun)
	assert.True(t, cfg.Publish.AllowDirty)
	assert.Equal(t, filepath.Join(dir, "ws", "Cargo.toml"), cfg.ManifestPath)
}

func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())
	t.Setenv("EASYRELEASE_OUTPUT", "yaml")

	cfg, err := LoadConfig("", newFlags())
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.OutputFormat)
}

func TestLoadConfig_ExplicitFile(t *testing.T) {
	ResetConfig()
	other := t.TempDir()
	path := filepath.Join(other, "release.yml")
	require.NoError(t, os.WriteFile(path, []byte("metadata_file: meta.json\ncargo: /opt/cargo\n"), 0o600))
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(other, "meta.json"), cfg.MetadataFile)
	assert.Equal(t, "/opt/cargo", cfg.Cargo)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errStr  string
	}{
		{"ranking", "ranking: alphabetical\n", "unknown ranking"},
		{"strategy", "bump:\n  strategy: sideways\n", "unknown bump strategy"},
		{"output", "output: xml\n", "unknown output format"},
		{"yaml", "output: [\n", "error reading config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			t.Chdir(dir)

			_, err := LoadConfig("", nil)
			assert.ErrorContains(t, err, tt.errStr)
		})
	}
}

func TestConfig_ValidateInputs(t *testing.T) {
	cfg := &Config{MetadataFile: filepath.Join(t.TempDir(), "missing.json")}
	assert.ErrorContains(t, cfg.ValidateInputs(), "metadata file does not exist")

	cfg = &Config{ManifestPath: filepath.Join(t.TempDir(), "Cargo.toml")}
	assert.ErrorContains(t, cfg.ValidateInputs(), "manifest does not exist")

	assert.NoError(t, (&Config{}).ValidateInputs())
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()), "falls back to a discard logger")

	logger := GetLogger(WithLogger(context.Background(), nil))
	assert.NotNil(t, logger)
}
