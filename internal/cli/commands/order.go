package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

// NewOrderCommand creates the order command.
func NewOrderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order [workspace]",
		Short: "Show the order packages must be published in",
		Long: `Print every workspace member in a safe publish order.

A package always comes after every workspace package it depends on.
The default ranking is an exact topological order; --ranking weighted
orders by a bounded-depth dependency weight instead.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table (agent-friendly)`,
		Example: `  # Publish order of the workspace in the current directory
  easyrelease order

  # Order of another workspace using the weighted ranking
  easyrelease order ../other --ranking weighted

  # From a captured metadata file, as JSON
  easyrelease order --metadata metadata.json -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd, optionalArg(args))
		},
	}

	return cmd
}

func runOrder(cmd *cobra.Command, workspaceArg string) error {
	cmdCtx := NewCommandContext(cmd, workspaceArg)
	r := cmdCtx.Renderer

	g, err := cmdCtx.LoadGraph(cmd.Context())
	if err != nil {
		return err
	}

	out := orderOutput(g)
	if ok, err := r.Structured(out); ok {
		return err
	}

	r.Header(1, "Publish Order")
	rows := make([]table.Row, 0, len(out.Packages))
	for _, e := range out.Packages {
		publishes := "yes"
		if !e.Publishes {
			publishes = "no"
		}
		rows = append(rows, table.Row{e.Position, e.Name, e.Version, e.Weight, publishes})
	}
	r.Table(table.Row{"#", "Package", "Version", "Weight", "Publishes"}, rows)
	r.Println(r.Muted(fmt.Sprintf("%d packages, ranking: %s", len(out.Packages), out.Ranking)))
	return nil
}

func orderOutput(g *workspace.Graph) output.OrderOutput {
	sorted := g.Sorted()
	out := output.OrderOutput{
		Ranking:  string(g.Ranking()),
		Packages: make([]output.OrderEntry, 0, len(sorted)),
	}
	for i, ranked := range sorted {
		pkg, _ := g.Package(ranked.ID)
		out.Packages = append(out.Packages, output.OrderEntry{
			Position:  i + 1,
			Name:      pkg.Name,
			Version:   pkg.Version,
			Weight:    ranked.Weight,
			ID:        ranked.ID.String(),
			PURL:      pkg.PURL(),
			Publishes: !pkg.PublishRestricted(),
		})
	}
	return out
}
