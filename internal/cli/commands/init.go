package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/easyrelease/internal/cli/config"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/spf13/cobra"
)

// configTemplate is written by init. %s is the manifest_path line.
const configTemplate = `# easyrelease configuration
#
# Every key can also be set with an EASYRELEASE_ environment variable
# (nested keys use a double underscore, e.g. EASYRELEASE_PUBLISH__DRY_RUN)
# or with the matching command line flag.

# Workspace manifest. Relative paths are resolved against this file.
%s
# Captured 'cargo metadata --format-version 1' output to use instead of running cargo.
# metadata_file: metadata.json

cargo: cargo

# Output format: auto, text, markdown, json or yaml.
output: auto

# Publish order: topological (exact) or weighted (bounded-depth heuristic).
ranking: topological

bump:
  # minor, minor-keep-patch, patch or major.
  strategy: minor

publish:
  allow_dirty: false
  dry_run: true

# Reload the session when a Cargo.toml changes.
watch: false
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create an easyrelease.yaml configuration file",
		Long: `Write an easyrelease.yaml with the default settings.

If the directory contains a Cargo.toml, it is set as the workspace
manifest. Existing configuration is kept unless --force is given.`,
		Example: `  # Initialize in current directory
  easyrelease init

  # Initialize another workspace
  easyrelease init ../other

  # Force overwrite existing config
  easyrelease init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	for _, name := range config.ConfigFileNames {
		existing := filepath.Join(dir, name)
		if _, err := os.Stat(existing); err == nil && !force {
			return fmt.Errorf("%s already exists. Use --force to overwrite", existing)
		}
	}

	manifestLine := "# manifest_path: Cargo.toml"
	if _, err := os.Stat(filepath.Join(dir, "Cargo.toml")); err == nil {
		manifestLine = "manifest_path: Cargo.toml"
	}

	content := fmt.Sprintf(configTemplate, manifestLine)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(config.ConfigFileNames[0], "success", "")
	r.Println("")
	r.Success("easyrelease initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Run 'easyrelease doctor' to check the workspace is ready")
	r.Println("  2. Run 'easyrelease order' to see the publish order")
	r.Println("  3. Run 'easyrelease session' to release interactively")

	return nil
}
