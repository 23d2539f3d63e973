package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leapstack-labs/easyrelease/internal/publish"
	"github.com/leapstack-labs/easyrelease/internal/session"
	"github.com/leapstack-labs/easyrelease/internal/tui"
	"github.com/leapstack-labs/easyrelease/internal/watch"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long quitting waits for killed publishes.
const shutdownTimeout = 5 * time.Second

// NewSessionCommand creates the interactive session command.
func NewSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session [workspace]",
		Aliases: []string{"ui"},
		Short:   "Start an interactive release session",
		Long: `Open an interactive view of the workspace in publish order.

Select a package and release it, ignore it, or bump its version. Publish
runs happen in the background and their outcome is shown when they finish.
Runs are dry runs until dry-run is toggled off with 'd'.

With --watch the workspace is re-read whenever a member's Cargo.toml
changes on disk. Quitting cancels publish runs still in progress.`,
		Example: `  # Session for the workspace in the current directory
  easyrelease session

  # Session for another workspace, reloading on manifest changes
  easyrelease session ../other --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, optionalArg(args))
		},
	}

	return cmd
}

func runSession(cmd *cobra.Command, workspaceArg string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cmdCtx := NewCommandContext(cmd, workspaceArg)
	logger := cmdCtx.Logger

	strategy, err := cmdCtx.Strategy()
	if err != nil {
		return err
	}
	g, err := cmdCtx.LoadGraph(ctx)
	if err != nil {
		return err
	}

	invoker := publish.NewInvoker(
		publish.WithCargo(cmdCtx.Cfg.Cargo),
		publish.WithRunner(publish.ExecRunner{Dir: g.Snapshot().WorkspaceRoot}),
		publish.WithLogger(logger),
	)
	s := session.New(g,
		session.WithPublisher(invoker),
		session.WithPublishOptions(cmdCtx.PublishOptions()),
		session.WithLogger(logger),
	)
	reload := func(ctx context.Context) error {
		snap, err := cmdCtx.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to reload workspace: %w", err)
		}
		return s.Reload(snap)
	}

	m := tui.New(ctx, s, tui.WithReload(reload), tui.WithStrategy(strategy))
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)

	if cmdCtx.Cfg.Watch {
		w, err := watch.New(watchedManifests(g), watch.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to watch manifests: %w", err)
		}
		go func() {
			_ = w.Run(ctx, func(changed []string) {
				logger.Info("reloading workspace", slog.Int("changed", len(changed)))
				if err := reload(ctx); err != nil {
					p.Send(tui.WorkspaceErrorMsg{Err: err})
				}
			})
		}()
	}

	_, err = p.Run()
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if werr := s.Wait(waitCtx); werr != nil {
		logger.Warn("publish runs still active at exit", slog.String("error", werr.Error()))
	}

	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// watchedManifests returns every member manifest plus the workspace manifest.
func watchedManifests(g *workspace.Graph) []string {
	var files []string
	if root := g.Snapshot().WorkspaceRoot; root != "" {
		files = append(files, filepath.Join(root, "Cargo.toml"))
	}
	for _, id := range g.Crates() {
		if pkg, ok := g.Package(id); ok {
			files = append(files, pkg.ManifestPath)
		}
	}
	return files
}
