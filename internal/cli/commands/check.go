package commands

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/easyrelease/internal/checklist"
	"github.com/leapstack-labs/easyrelease/internal/cli/output"
	"github.com/spf13/cobra"
)

// ErrNotReady is returned by `check --strict` when a package fails a check.
var ErrNotReady = errors.New("packages not ready to publish")

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check [package...]",
		Short: "Check packages are ready to publish",
		Long: `Run the publish readiness checklist for workspace packages.

Each package is checked for keywords, authors, edition, a valid SPDX
license, a description, dependencies that only exist locally (git or
path without a version), and workspace dependency requirements that no
longer accept the dependency's current version.

Without arguments every member is checked, in publish order.`,
		Example: `  # Check every package
  easyrelease check

  # Check two packages and fail if either is not ready
  easyrelease check core cli --strict

  # Machine readable report
  easyrelease check -o json`,
		ValidArgsFunction: packageNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error if any check fails")

	return cmd
}

func runCheck(cmd *cobra.Command, packages []string, strict bool) error {
	cmdCtx := NewCommandContext(cmd, "")
	r := cmdCtx.Renderer

	g, err := cmdCtx.LoadGraph(cmd.Context())
	if err != nil {
		return err
	}

	var reports []checklist.Report
	if len(packages) == 0 {
		reports, err = checklist.EvaluateAll(g)
		if err != nil {
			return err
		}
	} else {
		ids, err := lookupPackages(g, packages)
		if err != nil {
			return err
		}
		for _, id := range ids {
			report, err := checklist.Evaluate(g, id)
			if err != nil {
				return err
			}
			reports = append(reports, report)
		}
	}

	ok, err := r.Structured(reports)
	if err != nil {
		return err
	}
	if !ok {
		if r.EffectiveMode() == output.ModeMarkdown {
			checkMarkdown(r, reports)
		} else {
			checkText(r, reports)
		}
	}

	var notReady []string
	for _, report := range reports {
		if !report.Ready() {
			notReady = append(notReady, report.Name)
		}
	}
	if strict && len(notReady) > 0 {
		return fmt.Errorf("%w: %s", ErrNotReady, output.FormatList(notReady))
	}
	return nil
}

func checkText(r *output.Renderer, reports []checklist.Report) {
	styles := r.Styles()

	r.Header(1, "Publish Checklist")
	for _, report := range reports {
		r.Println(styles.Package.Render(report.Name) + " " + styles.Version.Render(report.Version))
		for _, c := range report.Checks {
			r.StatusLine(c.Name, string(c.Status), c.Detail)
		}
		for _, d := range report.Drift {
			if d.State != checklist.DriftOK {
				r.StatusLine("  "+d.Dependency, string(d.State), fmt.Sprintf("%s requires %q, current %s", d.Kind, d.Requirement, d.Version))
			}
		}
		r.Println("")
	}
	checkSummary(r, reports)
}

func checkMarkdown(r *output.Renderer, reports []checklist.Report) {
	r.Header(1, "Publish Checklist")
	for _, report := range reports {
		r.Println(output.FormatHeader(2, report.Name+" "+report.Version))
		r.Println("")
		rows := make([]table.Row, 0, len(report.Checks))
		for _, c := range report.Checks {
			rows = append(rows, table.Row{c.Name, c.Status, c.Detail})
		}
		r.Table(table.Row{"Check", "Status", "Detail"}, rows)
	}
	checkSummary(r, reports)
}

func checkSummary(r *output.Renderer, reports []checklist.Report) {
	ready := 0
	for _, report := range reports {
		if report.Ready() {
			ready++
		}
	}
	msg := fmt.Sprintf("%d of %d packages ready to publish", ready, len(reports))
	if ready == len(reports) {
		r.Success(msg)
		return
	}
	r.Warning(msg)
}
