// Package cli provides the command-line interface for easyrelease.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/easyrelease/internal/cli/commands"
	"github.com/leapstack-labs/easyrelease/internal/cli/config"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// rendererKey is used to store renderer in context.
type rendererKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "easyrelease",
		Short: "easyrelease - Cargo workspace release helper",
		Long: `easyrelease helps release the packages of a multi-crate Cargo workspace.

It computes an order in which every package can be published after the
workspace packages it depends on, bumps versions while keeping the
requirements of dependent packages in sync, checks packages are ready
for crates.io, and runs cargo publish from an interactive session.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.LoadConfig(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			ctx = config.WithLogger(ctx, logger)

			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
			ctx = context.WithValue(ctx, rendererKey{}, renderer)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", slog.String("path", configFile))
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	info := commands.ResolveBuildInfo(Version, GitCommit, BuildDate)
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (%s, %s)\n", info.Commit, info.BuildDate))

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./easyrelease.yaml)")
	rootCmd.PersistentFlags().String("manifest-path", "", "Path to the workspace Cargo.toml")
	rootCmd.PersistentFlags().String("metadata", "", "Read a captured `cargo metadata` JSON file instead of running cargo")
	rootCmd.PersistentFlags().String("cargo", "", "cargo binary to run (default: cargo)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json|yaml)")
	rootCmd.PersistentFlags().String("ranking", "", "Publish order ranking (topological|weighted)")
	rootCmd.PersistentFlags().Bool("allow-dirty", false, "Pass --allow-dirty to cargo publish")
	rootCmd.PersistentFlags().Bool("dry-run", true, "Pass --dry-run to cargo publish")
	rootCmd.PersistentFlags().Bool("watch", false, "Reload the session when a manifest changes")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("ranking", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		rankings := make([]string, 0, len(workspace.Rankings))
		for _, r := range workspace.Rankings {
			rankings = append(rankings, string(r))
		}
		return rankings, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(info))
	rootCmd.AddCommand(commands.NewOrderCommand())
	rootCmd.AddCommand(commands.NewGraphCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewBumpCommand())
	rootCmd.AddCommand(commands.NewPublishCommand())
	rootCmd.AddCommand(commands.NewSessionCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	// Return default config if none in context
	return &config.Config{
		Cargo:        config.DefaultCargo,
		OutputFormat: config.DefaultOutput,
		Ranking:      config.DefaultRanking,
		Bump:         config.BumpConfig{Strategy: config.DefaultBumpStrategy},
		Publish:      config.PublishConfig{DryRun: true},
	}
}

// GetRenderer retrieves the renderer from the command context.
func GetRenderer(ctx context.Context) *output.Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	// Return default renderer if none in context
	return output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for easyrelease.

To load completions:

Bash:
  $ source <(easyrelease completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ easyrelease completion bash > /etc/bash_completion.d/easyrelease
  # macOS:
  $ easyrelease completion bash > $(brew --prefix)/etc/bash_completion.d/easyrelease

Zsh:
  $ easyrelease completion zsh > "${fpath[1]}/_easyrelease"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ easyrelease completion fish > ~/.config/fish/completions/easyrelease.fish

PowerShell:
  PS> easyrelease completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
