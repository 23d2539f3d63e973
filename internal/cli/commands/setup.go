package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/leapstack-labs/easyrelease/internal/cli/config"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/publish"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with logger and renderer.
// A workspace path argument, if given, overrides the configured manifest path.
func NewCommandContext(cmd *cobra.Command, workspaceArg string) *CommandContext {
	cfg := *getConfig()
	if workspaceArg != "" {
		cfg.ManifestPath = manifestFor(workspaceArg)
	}
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      &cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// LoadSnapshot reads the metadata file if one is configured and runs
// `cargo metadata` otherwise.
func (c *CommandContext) LoadSnapshot(ctx context.Context) (*metadata.Snapshot, error) {
	if err := c.Cfg.ValidateInputs(); err != nil {
		return nil, err
	}
	if c.Cfg.MetadataFile != "" {
		c.Logger.Debug("loading metadata file", slog.String("path", c.Cfg.MetadataFile))
		return metadata.Load(c.Cfg.MetadataFile)
	}
	c.Logger.Debug("running cargo metadata",
		slog.String("cargo", c.Cfg.Cargo),
		slog.String("manifest_path", c.Cfg.ManifestPath))
	return metadata.Exec(ctx, c.Cfg.Cargo, c.Cfg.ManifestPath)
}

// LoadGraph loads the snapshot and builds the workspace graph with the
// configured ranking.
func (c *CommandContext) LoadGraph(ctx context.Context) (*workspace.Graph, error) {
	snap, err := c.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return c.Build(snap)
}

// Build builds the workspace graph of snap.
func (c *CommandContext) Build(snap *metadata.Snapshot) (*workspace.Graph, error) {
	ranking, err := workspace.ParseRanking(c.Cfg.Ranking)
	if err != nil {
		return nil, err
	}
	return workspace.Build(snap, workspace.WithRanking(ranking), workspace.WithLogger(c.Logger))
}

// PublishOptions returns the configured initial publish toggles.
func (c *CommandContext) PublishOptions() publish.Options {
	return publish.Options{
		AllowDirty: c.Cfg.Publish.AllowDirty,
		DryRun:     c.Cfg.Publish.DryRun,
	}
}

// Strategy returns the configured bump strategy.
func (c *CommandContext) Strategy() (bump.Strategy, error) {
	return bump.ParseStrategy(c.Cfg.Bump.Strategy)
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	return &config.Config{
		ManifestPath: os.Getenv("EASYRELEASE_MANIFEST_PATH"),
		MetadataFile: os.Getenv("EASYRELEASE_METADATA_FILE"),
		Cargo:        getEnvOrDefault("EASYRELEASE_CARGO", config.DefaultCargo),
		Verbose:      os.Getenv("EASYRELEASE_VERBOSE") == "true",
		OutputFormat: getEnvOrDefault("EASYRELEASE_OUTPUT", config.DefaultOutput),
		Ranking:      getEnvOrDefault("EASYRELEASE_RANKING", config.DefaultRanking),
		Bump:         config.BumpConfig{Strategy: config.DefaultBumpStrategy},
		Publish:      config.PublishConfig{DryRun: true},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// manifestFor turns a workspace path argument into a manifest path.
func manifestFor(path string) string {
	if strings.HasSuffix(path, ".toml") {
		return path
	}
	return filepath.Join(path, "Cargo.toml")
}

// optionalArg returns args[0] or "".
func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// lookupPackages resolves package names to ids of g, keeping their order.
func lookupPackages(g *workspace.Graph, names []string) ([]metadata.PackageID, error) {
	ids := make([]metadata.PackageID, 0, len(names))
	var unknown []string
	for _, name := range names {
		id, ok := g.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		ids = append(ids, id)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("not a workspace member: %s", strings.Join(unknown, ", "))
	}
	return ids, nil
}

// packageNames completes workspace member names from the metadata file.
func packageNames(cmd *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cmdCtx := NewCommandContext(cmd, "")
	if cmdCtx.Cfg.MetadataFile == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	snap, err := metadata.Load(cmdCtx.Cfg.MetadataFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, pkg := range snap.WorkspacePackages() {
		if strings.HasPrefix(pkg.Name, toComplete) {
			names = append(names, pkg.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
