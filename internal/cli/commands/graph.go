package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [workspace]",
		Short: "Show the workspace dependency graph",
		Long: `Display the dependency graph of all workspace members.

Packages are grouped by level: level 0 has no workspace dependencies,
and a package at level N depends on at least one package at level N-1.
Packages of the same level can be published in any order.

With --package, only the given package is shown together with every
member it depends on (upstream) and every member that has to be
republished after it changes (downstream).

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the graph
  easyrelease graph

  # What depends on core, directly or not
  easyrelease graph --package core

  # Output as JSON
  easyrelease graph --output json

  # Output as Markdown
  easyrelease graph --output markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgName, _ := cmd.Flags().GetString("package")
			return runGraph(cmd, optionalArg(args), pkgName)
		},
	}

	cmd.Flags().StringP("package", "p", "", "Show the graph around one package")
	_ = cmd.RegisterFlagCompletionFunc("package", packageNames)

	return cmd
}

func runGraph(cmd *cobra.Command, workspaceArg, pkgName string) error {
	cmdCtx := NewCommandContext(cmd, workspaceArg)
	r := cmdCtx.Renderer

	g, err := cmdCtx.LoadGraph(cmd.Context())
	if err != nil {
		return err
	}

	if pkgName != "" {
		ids, err := lookupPackages(g, []string{pkgName})
		if err != nil {
			return err
		}
		return renderPackageGraph(r, packageGraphOutput(g, ids[0]))
	}

	switch r.EffectiveMode() {
	case output.ModeJSON, output.ModeYAML:
		_, err := r.Structured(graphOutput(g))
		return err
	case output.ModeMarkdown:
		return graphMarkdown(r, g)
	default:
		return graphText(r, g)
	}
}

// names maps ids to package names.
func names(g *workspace.Graph, ids []metadata.PackageID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if pkg, ok := g.Package(id); ok {
			out = append(out, pkg.Name)
		}
	}
	return out
}

// graphText outputs the graph in styled text format.
func graphText(r *output.Renderer, g *workspace.Graph) error {
	styles := r.Styles()

	r.Header(1, "Dependency Graph")

	for i, level := range g.Levels() {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, id := range level {
			pkg, _ := g.Package(id)
			deps := names(g, g.Deps(id))
			dependents := names(g, g.Dependents(id))

			r.Printf("  %s %s\n", styles.Package.Render(pkg.Name), styles.Version.Render(pkg.Version))
			if len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(deps, ", "))
			}
			if len(dependents) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(dependents, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d packages, %d dependencies", g.Len(), g.EdgeCount())))

	return nil
}

// graphMarkdown outputs the graph in markdown format.
func graphMarkdown(r *output.Renderer, g *workspace.Graph) error {
	r.Println(output.FormatHeader(1, "Dependency Graph"))
	r.Println("")

	for i, level := range g.Levels() {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Roots)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, id := range level {
			pkg, _ := g.Package(id)
			deps := names(g, g.Deps(id))
			dependents := names(g, g.Dependents(id))

			r.Printf("- %s %s\n", pkg.Name, pkg.Version)
			if len(deps) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(deps, ", "))
			}
			if len(dependents) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(dependents, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Packages", fmt.Sprintf("%d", g.Len())))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", g.EdgeCount())))

	return nil
}

func graphOutput(g *workspace.Graph) output.GraphOutput {
	levels := g.Levels()
	out := output.GraphOutput{
		Levels:        make([]output.GraphLevel, 0, len(levels)),
		TotalPackages: g.Len(),
		TotalEdges:    g.EdgeCount(),
	}

	out.Roots = names(g, g.Roots())
	out.Leaves = names(g, g.Leaves())

	for i, level := range levels {
		gl := output.GraphLevel{
			Level:    i,
			Packages: make([]output.GraphNode, 0, len(level)),
		}
		for _, id := range level {
			pkg, _ := g.Package(id)
			gl.Packages = append(gl.Packages, output.GraphNode{
				Name:      pkg.Name,
				ID:        id.String(),
				DependsOn: names(g, g.Deps(id)),
				UsedBy:    names(g, g.Dependents(id)),
			})
		}
		out.Levels = append(out.Levels, gl)
	}
	return out
}

func packageGraphOutput(g *workspace.Graph, id metadata.PackageID) output.PackageGraphOutput {
	pkg, _ := g.Package(id)
	return output.PackageGraphOutput{
		Name:       pkg.Name,
		Version:    pkg.Version,
		Upstream:   names(g, g.TransitiveDeps(id)),
		Downstream: names(g, g.TransitiveDependents(id)),
	}
}

func renderPackageGraph(r *output.Renderer, out output.PackageGraphOutput) error {
	if ok, err := r.Structured(out); ok {
		return err
	}

	list := func(names []string) string {
		if len(names) == 0 {
			return "none"
		}
		return strings.Join(names, ", ")
	}

	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatHeader(1, fmt.Sprintf("Dependency Graph: %s %s", out.Name, out.Version)))
		r.Println("")
		r.Println(output.FormatKeyValue("Upstream", list(out.Upstream)))
		r.Println(output.FormatKeyValue("Downstream", list(out.Downstream)))
		return nil
	}

	styles := r.Styles()
	r.Header(1, fmt.Sprintf("Dependency Graph: %s %s", out.Name, out.Version))
	r.Printf("  %s %s\n", styles.Muted.Render("depends on:"), list(out.Upstream))
	r.Printf("  %s %s\n", styles.Muted.Render("republish after changes:"), list(out.Downstream))
	return nil
}
