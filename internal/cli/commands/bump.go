package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/spf13/cobra"
)

// NewBumpCommand creates the bump command.
func NewBumpCommand() *cobra.Command {
	var planOnly bool

	cmd := &cobra.Command{
		Use:   "bump <package>",
		Short: "Bump a package version and update its dependents",
		Long: `Raise the version of a workspace package and rewrite the dependency
requirement of every workspace package that depends on it.

All affected Cargo.toml files are staged first and replaced together;
if any replacement fails the files already written are restored.
Comments, ordering and formatting of the manifests are preserved.

Strategies:
  minor             1.2.3 -> 1.3.0 (default)
  minor-keep-patch  1.2.3 -> 1.3.3
  patch             1.2.3 -> 1.2.4
  major             1.2.3 -> 2.0.0`,
		Example: `  # Minor bump of core and its dependents
  easyrelease bump core

  # Preview a patch bump without writing
  easyrelease bump core --strategy patch --plan`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: packageNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBump(cmd, args[0], planOnly)
		},
	}

	cmd.Flags().String("strategy", "", "Bump strategy (minor|minor-keep-patch|patch|major)")
	cmd.Flags().BoolVar(&planOnly, "plan", false, "Show the changes without writing any file")

	_ = cmd.RegisterFlagCompletionFunc("strategy", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, s := range bump.Strategies() {
			names = append(names, string(s))
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runBump(cmd *cobra.Command, name string, planOnly bool) error {
	cmdCtx := NewCommandContext(cmd, "")
	r := cmdCtx.Renderer

	strategy, err := cmdCtx.Strategy()
	if err != nil {
		return err
	}

	g, err := cmdCtx.LoadGraph(cmd.Context())
	if err != nil {
		return err
	}
	ids, err := lookupPackages(g, []string{name})
	if err != nil {
		return err
	}

	p := bump.New(g, bump.WithLogger(cmdCtx.Logger))
	var plan *bump.Plan
	if planOnly {
		plan, err = p.Plan(cmd.Context(), ids[0], strategy)
	} else {
		plan, err = p.Apply(cmd.Context(), ids[0], strategy)
	}
	if err != nil {
		return fmt.Errorf("failed to bump %s: %w", name, err)
	}

	if ok, err := r.Structured(plan); ok {
		return err
	}

	root := g.Snapshot().WorkspaceRoot
	title := fmt.Sprintf("Bump %s %s -> %s", plan.Name, plan.OldVersion, plan.NewVersion)
	r.Header(1, title)
	rows := make([]table.Row, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		rows = append(rows, table.Row{c.Name, relativeTo(root, c.Path), c.Field, c.Old, c.New})
	}
	r.Table(table.Row{"Package", "Manifest", "Field", "Old", "New"}, rows)
	if len(plan.Republish) > 0 {
		r.Println(r.Muted("republish after " + plan.Name + ": " + strings.Join(plan.Republish, ", ")))
	}
	for _, st := range plan.Stale {
		r.Warning(fmt.Sprintf("%s keeps %s %s %s, which does not accept %s", st.Name, st.Kind, plan.Name, st.Requirement, plan.NewVersion))
	}

	if planOnly {
		r.Println(r.Muted(fmt.Sprintf("plan only: %d manifests would change", len(plan.Manifests()))))
		return nil
	}
	r.Success(fmt.Sprintf("%s bumped to %s, %d manifests written", plan.Name, plan.NewVersion, len(plan.Written)))
	return nil
}

// relativeTo shortens path for display when it is inside root.
func relativeTo(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
