package commands

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/easyrelease/internal/checklist"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/spf13/cobra"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor [workspace]",
		Short: "Run a workspace release health check",
		Long: `Analyze the workspace for anything that would get in the way of a release.

The doctor command runs the publish checklist for every member and
summarizes it per check, including:
- Workspace summary (packages, graph depth, roots and leaves)
- Checks grouped by category (Metadata, Dependencies)
- Readiness score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON/YAML: Machine-readable format`,
		Example: `  # Run health check
  easyrelease doctor

  # Output as JSON
  easyrelease doctor -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, optionalArg(args))
		},
	}

	return cmd
}

// DoctorOutput is the structured output of the doctor command.
type DoctorOutput struct {
	Summary         WorkspaceSummary `json:"summary" yaml:"summary"`
	HealthChecks    []HealthCheck    `json:"health_checks" yaml:"health_checks"`
	Score           int              `json:"score" yaml:"score"`
	Recommendations []string         `json:"recommendations" yaml:"recommendations"`
	IssueCount      int              `json:"issue_count" yaml:"issue_count"`
}

// WorkspaceSummary contains workspace-level statistics.
type WorkspaceSummary struct {
	Packages    int `json:"packages" yaml:"packages"`
	Publishable int `json:"publishable" yaml:"publishable"`
	Ready       int `json:"ready" yaml:"ready"`
	Depth       int `json:"depth" yaml:"depth"`
	RootCount   int `json:"root_count" yaml:"root_count"`
	LeafCount   int `json:"leaf_count" yaml:"leaf_count"`
	EdgeCount   int `json:"edge_count" yaml:"edge_count"`
}

// HealthCheck aggregates one checklist item over all packages.
type HealthCheck struct {
	Name       string   `json:"name" yaml:"name"`
	Group      string   `json:"group" yaml:"group"`
	Status     string   `json:"status" yaml:"status"` // "ok", "warn", "fail"
	IssueCount int      `json:"issue_count" yaml:"issue_count"`
	Details    []string `json:"details,omitempty" yaml:"details,omitempty"`
}

// checkGroups orders the checklist items for display.
var checkGroups = []struct {
	group string
	names []string
}{
	{"metadata", []string{
		checklist.CheckDescription,
		checklist.CheckLicense,
		checklist.CheckEdition,
		checklist.CheckAuthors,
		checklist.CheckKeywords,
		checklist.CheckPublish,
	}},
	{"dependencies", []string{
		checklist.CheckLocalDeps,
		checklist.CheckRequirements,
	}},
}

func runDoctor(cmd *cobra.Command, workspaceArg string) error {
	cmdCtx := NewCommandContext(cmd, workspaceArg)
	r := cmdCtx.Renderer

	g, err := cmdCtx.LoadGraph(cmd.Context())
	if err != nil {
		return err
	}
	if g.Len() == 0 {
		r.Warning("No packages found in workspace")
		return nil
	}

	reports, err := checklist.EvaluateAll(g)
	if err != nil {
		return err
	}
	doctorOutput := buildDoctorOutput(g, reports)

	switch r.EffectiveMode() {
	case output.ModeJSON, output.ModeYAML:
		_, err := r.Structured(doctorOutput)
		return err
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, doctorOutput)
	default:
		return renderDoctorText(r, doctorOutput)
	}
}

func buildDoctorOutput(g *workspace.Graph, reports []checklist.Report) *DoctorOutput {
	summary := buildWorkspaceSummary(g, reports)

	var healthChecks []HealthCheck
	issues := 0
	for _, grp := range checkGroups {
		for _, name := range grp.names {
			hc := HealthCheck{Name: name, Group: grp.group, Status: string(checklist.StatusOK)}
			for _, report := range reports {
				c, ok := report.Check(name)
				if !ok || c.Status == checklist.StatusOK {
					continue
				}
				hc.IssueCount++
				detail := report.Name
				if c.Detail != "" {
					detail += ": " + c.Detail
				}
				hc.Details = append(hc.Details, detail)
				if c.Status == checklist.StatusFail {
					hc.Status = string(checklist.StatusFail)
				} else if hc.Status == string(checklist.StatusOK) {
					hc.Status = string(checklist.StatusWarn)
				}
			}
			issues += hc.IssueCount
			healthChecks = append(healthChecks, hc)
		}
	}

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    healthChecks,
		Score:           calculateHealthScore(healthChecks, summary.Packages),
		Recommendations: generateRecommendations(healthChecks),
		IssueCount:      issues,
	}
}

func buildWorkspaceSummary(g *workspace.Graph, reports []checklist.Report) WorkspaceSummary {
	summary := WorkspaceSummary{
		Packages:  g.Len(),
		Depth:     len(g.Levels()),
		EdgeCount: g.EdgeCount(),
		RootCount: len(g.Roots()),
		LeafCount: len(g.Leaves()),
	}
	for _, id := range g.Crates() {
		if pkg, ok := g.Package(id); ok && !pkg.PublishRestricted() {
			summary.Publishable++
		}
	}
	for _, report := range reports {
		if report.Ready() {
			summary.Ready++
		}
	}
	return summary
}

// calculateHealthScore computes a readiness score from 0-100.
// Failures weigh twice as much as warnings, and each issue matters less
// in larger workspaces.
func calculateHealthScore(checks []HealthCheck, packageCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0

	basePenalty := 5.0
	if packageCount > 10 {
		basePenalty = 3.0
	}
	if packageCount > 50 {
		basePenalty = 2.0
	}

	for _, check := range checks {
		switch check.Status {
		case string(checklist.StatusFail):
			score -= float64(check.IssueCount) * basePenalty * 2
		case string(checklist.StatusWarn):
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	return int(min(max(score, 0), 100))
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		if rec := getRecommendation(check.Name); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

// getRecommendation returns a recommendation for a checklist item.
func getRecommendation(name string) string {
	switch name {
	case checklist.CheckDescription:
		return "Add a description to every package; crates.io rejects uploads without one"
	case checklist.CheckLicense:
		return "Set license to a valid SPDX expression such as \"MIT OR Apache-2.0\""
	case checklist.CheckEdition:
		return "Declare the edition explicitly in [package]"
	case checklist.CheckAuthors:
		return "List package authors"
	case checklist.CheckKeywords:
		return "Add keywords so the package can be found on crates.io"
	case checklist.CheckPublish:
		return "Check publish restrictions; packages with publish = false are skipped"
	case checklist.CheckLocalDeps:
		return "Give path dependencies a version and replace git dependencies with published releases"
	case checklist.CheckRequirements:
		return "Run 'easyrelease bump' on stale dependencies to refresh requirements of dependents"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("Workspace Release Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Workspace Summary"))
	r.Printf("   Packages: %d | Publishable: %d | Ready: %d\n", out.Summary.Packages, out.Summary.Publishable, out.Summary.Ready)
	r.Printf("   Graph Depth: %d levels | Roots: %d | Leaves: %d\n", out.Summary.Depth, out.Summary.RootCount, out.Summary.LeafCount)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case string(checklist.StatusWarn):
			icon = styles.Warning.Render("!")
		case string(checklist.StatusFail):
			icon = styles.Error.Render("✗")
		}

		status := fmt.Sprintf("%s %s", icon, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d packages)", check.IssueCount)
		}
		r.Println("   " + status)

		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Readiness Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# Workspace Release Health Report")
	r.Println("")

	r.Println("## Workspace Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Packages", fmt.Sprint(out.Summary.Packages)))
	r.Println(output.FormatKeyValue("Publishable", fmt.Sprint(out.Summary.Publishable)))
	r.Println(output.FormatKeyValue("Ready", fmt.Sprint(out.Summary.Ready)))
	r.Println(output.FormatKeyValue("Graph Depth", fmt.Sprintf("%d levels", out.Summary.Depth)))
	r.Println(output.FormatKeyValue("Root Packages", fmt.Sprint(out.Summary.RootCount)))
	r.Println(output.FormatKeyValue("Leaf Packages", fmt.Sprint(out.Summary.LeafCount)))
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		r.Printf("- **[%s]** %s", strings.ToUpper(check.Status), check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d packages)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Readiness Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
