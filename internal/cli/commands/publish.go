package commands

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/publish"
	"github.com/leapstack-labs/easyrelease/internal/session"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

// Publish outcomes.
const (
	outcomePublished = "released"
	outcomeDryRun    = "passed"
	outcomeFailed    = "failed"
	outcomeSkipped   = "ignored"
)

// NewPublishCommand creates the publish command.
func NewPublishCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "publish [package...]",
		Short: "Publish packages in dependency order",
		Long: `Run cargo publish for the given packages, or every publishable member
with --all, one at a time in publish order.

Publishing stops at the first failure, since later packages may depend
on the one that failed. Runs are dry runs unless --dry-run=false is given.
Packages with publish = false are skipped.`,
		Example: `  # Dry run of the whole workspace
  easyrelease publish --all

  # Really publish two packages
  easyrelease publish core cli --dry-run=false

  # Publish with uncommitted changes
  easyrelease publish core --dry-run=false --allow-dirty`,
		ValidArgsFunction: packageNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("give package names or --all, not both")
			}
			return runPublish(cmd, args, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Publish every publishable workspace member")

	return cmd
}

func runPublish(cmd *cobra.Command, packages []string, all bool) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd, "")
	r := cmdCtx.Renderer

	g, err := cmdCtx.LoadGraph(ctx)
	if err != nil {
		return err
	}
	targets, err := publishTargets(g, packages, all)
	if err != nil {
		return err
	}

	invoker := publish.NewInvoker(
		publish.WithCargo(cmdCtx.Cfg.Cargo),
		publish.WithRunner(publish.ExecRunner{Dir: g.Snapshot().WorkspaceRoot}),
		publish.WithLogger(cmdCtx.Logger),
	)
	s := session.New(g,
		session.WithPublisher(invoker),
		session.WithPublishOptions(cmdCtx.PublishOptions()),
		session.WithLogger(cmdCtx.Logger),
	)

	opts := s.Options()
	out := output.PublishOutput{DryRun: opts.DryRun, AllowDirty: opts.AllowDirty}
	structured := r.EffectiveMode() == output.ModeJSON || r.EffectiveMode() == output.ModeYAML
	if !structured {
		mode := "publish"
		if opts.DryRun {
			mode = "dry run"
		}
		r.Header(1, fmt.Sprintf("Publishing %d packages (%s)", len(targets), mode))
	}

	var failed error
	for _, id := range targets {
		entry, err := publishOne(cmd, s, id)
		out.Packages = append(out.Packages, entry)
		if !structured {
			r.StatusLine(entry.Name, entry.Outcome, entry.Duration)
		}
		if err != nil {
			failed = err
			break
		}
	}

	if structured {
		if _, err := r.Structured(out); err != nil {
			return err
		}
	}
	if failed != nil {
		var invErr *publish.InvocationError
		if !structured && errors.As(failed, &invErr) && invErr.Stderr != "" {
			r.Println(output.FormatCodeBlock("", invErr.Stderr))
		}
		return failed
	}
	if !structured {
		r.Success(fmt.Sprintf("%d packages done", len(out.Packages)))
	}
	return nil
}

// publishTargets returns the packages to publish in publish order.
func publishTargets(g *workspace.Graph, packages []string, all bool) ([]metadata.PackageID, error) {
	var wanted []metadata.PackageID
	if !all {
		ids, err := lookupPackages(g, packages)
		if err != nil {
			return nil, err
		}
		wanted = ids
	}

	var out []metadata.PackageID
	for _, ranked := range g.Sorted() {
		if !all && !slices.Contains(wanted, ranked.ID) {
			continue
		}
		out = append(out, ranked.ID)
	}
	return out, nil
}

// publishOne releases id and waits for the outcome.
func publishOne(cmd *cobra.Command, s *session.Session, id metadata.PackageID) (output.PublishEntry, error) {
	ctx := cmd.Context()
	st, _ := s.Status(id)
	entry := output.PublishEntry{Name: st.Name, Version: st.Version}

	if st.State == session.StateIgnored {
		entry.Outcome = outcomeSkipped
		return entry, nil
	}
	if err := s.Dispatch(ctx, session.Release{ID: id}); err != nil {
		entry.Outcome = outcomeFailed
		entry.Error = err.Error()
		return entry, err
	}
	if err := s.Wait(ctx); err != nil {
		entry.Outcome = outcomeFailed
		entry.Error = err.Error()
		return entry, err
	}

	st, _ = s.Status(id)
	res := st.LastResult
	if res == nil {
		entry.Outcome = outcomeFailed
		return entry, fmt.Errorf("no publish result for %s", st.Name)
	}
	entry.ExitCode = res.ExitCode
	entry.Duration = res.Duration.Round(time.Millisecond).String()
	switch {
	case !res.OK():
		entry.Outcome = outcomeFailed
		entry.Error = res.Err.Error()
		return entry, res.Err
	case res.Options.DryRun:
		entry.Outcome = outcomeDryRun
	default:
		entry.Outcome = outcomePublished
	}
	return entry, nil
}
