// Package config loads easyrelease settings.
//
// Values are layered, lowest precedence first: built-in defaults, the
// easyrelease.yaml file, EASYRELEASE_* environment variables, and finally
// flags that were set explicitly on the command line.
package config

// Config holds all CLI configuration options.
type Config struct {
	// ManifestPath points at the workspace Cargo.toml. Empty lets cargo search from the working directory.
	ManifestPath string `koanf:"manifest_path"`
	// MetadataFile is a captured `cargo metadata` JSON file used instead of running cargo.
	MetadataFile string        `koanf:"metadata_file"`
	Cargo        string        `koanf:"cargo"`
	Verbose      bool          `koanf:"verbose"`
	OutputFormat string        `koanf:"output"`
	Ranking      string        `koanf:"ranking"`
	Watch        bool          `koanf:"watch"`
	Bump         BumpConfig    `koanf:"bump"`
	Publish      PublishConfig `koanf:"publish"`

	// ProjectRoot is the directory relative paths from the config file are resolved against.
	ProjectRoot string `koanf:"-"`
}

// BumpConfig holds defaults for version bumps.
type BumpConfig struct {
	Strategy string `koanf:"strategy"`
}

// PublishConfig holds the initial cargo publish toggles.
type PublishConfig struct {
	AllowDirty bool `koanf:"allow_dirty"`
	DryRun     bool `koanf:"dry_run"`
}

// Default configuration values.
const (
	DefaultCargo        = "cargo"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultRanking      = "topological"
	DefaultBumpStrategy = "minor"
	EnvPrefix           = "EASYRELEASE_"
)

// ConfigFileNames are searched in this order.
var ConfigFileNames = []string{"easyrelease.yaml", "easyrelease.yml"}

func defaults() map[string]any {
	return map[string]any{
		"manifest_path":       "",
		"metadata_file":       "",
		"cargo":               DefaultCargo,
		"verbose":             false,
		"output":              DefaultOutput,
		"ranking":             DefaultRanking,
		"watch":               false,
		"bump.strategy":       DefaultBumpStrategy,
		"publish.allow_dirty": false,
		"publish.dry_run":     true,
	}
}
