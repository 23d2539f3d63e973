package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/easyrelease/internal/checklist"
	clitest "github.com/leapstack-labs/easyrelease/internal/cli/testutil"
	"github.com/leapstack-labs/easyrelease/internal/testutil"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
)

func TestCalculateHealthScore(t *testing.T) {
	tests := []struct {
		name         string
		checks       []HealthCheck
		packageCount int
		minScore     int
		maxScore     int
	}{
		{
			name:         "no checks returns 100",
			checks:       nil,
			packageCount: 10,
			minScore:     100,
			maxScore:     100,
		},
		{
			name: "all passing returns 100",
			checks: []HealthCheck{
				{Name: checklist.CheckLicense, Status: "ok"},
				{Name: checklist.CheckDescription, Status: "ok"},
			},
			packageCount: 10,
			minScore:     100,
			maxScore:     100,
		},
		{
			name: "warnings reduce score",
			checks: []HealthCheck{
				{Name: checklist.CheckKeywords, Status: "warn", IssueCount: 2},
			},
			packageCount: 4,
			minScore:     90,
			maxScore:     90,
		},
		{
			name: "failures count double",
			checks: []HealthCheck{
				{Name: checklist.CheckLicense, Status: "fail", IssueCount: 2},
			},
			packageCount: 4,
			minScore:     80,
			maxScore:     80,
		},
		{
			name: "larger workspaces lose less per issue",
			checks: []HealthCheck{
				{Name: checklist.CheckKeywords, Status: "warn", IssueCount: 5},
			},
			packageCount: 60,
			minScore:     90,
			maxScore:     90,
		},
		{
			name: "many issues clamp to 0",
			checks: []HealthCheck{
				{Name: checklist.CheckLicense, Status: "fail", IssueCount: 20},
			},
			packageCount: 5,
			minScore:     0,
			maxScore:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := calculateHealthScore(tt.checks, tt.packageCount)
			assert.GreaterOrEqual(t, score, tt.minScore, "score should be >= %d", tt.minScore)
			assert.LessOrEqual(t, score, tt.maxScore, "score should be <= %d", tt.maxScore)
		})
	}
}

func TestGetRecommendation(t *testing.T) {
	for _, grp := range checkGroups {
		for _, name := range grp.names {
			assert.NotEmpty(t, getRecommendation(name), "expected recommendation for %s", name)
		}
	}
	assert.Empty(t, getRecommendation("unknown"))
}

func TestGenerateRecommendations(t *testing.T) {
	checks := []HealthCheck{
		{Name: checklist.CheckLicense, Status: "fail", IssueCount: 1},
		{Name: checklist.CheckRequirements, Status: "warn", IssueCount: 2},
		{Name: checklist.CheckEdition, Status: "ok"},
	}

	recommendations := generateRecommendations(checks)

	assert.Len(t, recommendations, 2)
	assert.Contains(t, recommendations[0], "SPDX")
	assert.Contains(t, recommendations[1], "easyrelease bump")
}

func TestGenerateRecommendations_LimitTo5(t *testing.T) {
	var checks []HealthCheck
	for _, grp := range checkGroups {
		for _, name := range grp.names {
			checks = append(checks, HealthCheck{Name: name, Status: "warn", IssueCount: 1})
		}
	}

	assert.Len(t, generateRecommendations(checks), 5)
}

func TestBuildDoctorOutput(t *testing.T) {
	g, err := workspace.Build(testutil.Snapshot("/ws", fixtureCrates()...))
	require.NoError(t, err)
	reports, err := checklist.EvaluateAll(g)
	require.NoError(t, err)

	out := buildDoctorOutput(g, reports)

	assert.Equal(t, WorkspaceSummary{
		Packages:    3,
		Publishable: 2,
		Ready:       2,
		Depth:       2,
		RootCount:   2,
		LeafCount:   2,
		EdgeCount:   1,
	}, out.Summary)

	byName := make(map[string]HealthCheck)
	for _, hc := range out.HealthChecks {
		byName[hc.Name] = hc
	}
	assert.Equal(t, "fail", byName[checklist.CheckDescription].Status)
	assert.Equal(t, []string{"tool: missing description"}, byName[checklist.CheckDescription].Details)
	assert.Equal(t, "warn", byName[checklist.CheckPublish].Status)
	assert.Equal(t, "ok", byName[checklist.CheckRequirements].Status)
	assert.Equal(t, "dependencies", byName[checklist.CheckLocalDeps].Group)
}

func TestRenderDoctorMarkdown(t *testing.T) {
	tr := clitest.NewTestRendererMarkdown()
	out := &DoctorOutput{
		Summary: WorkspaceSummary{Packages: 2, Depth: 1},
		HealthChecks: []HealthCheck{
			{Name: checklist.CheckLicense, Group: "metadata", Status: "fail", IssueCount: 1, Details: []string{"tool: missing license"}},
			{Name: checklist.CheckLocalDeps, Group: "dependencies", Status: "ok"},
		},
		Score:           90,
		Recommendations: []string{"Fix something"},
	}

	require.NoError(t, renderDoctorMarkdown(tr.Renderer, out))

	md := tr.Output()
	clitest.AssertValidMarkdown(t, md)
	clitest.AssertOutputMode(t, tr, "markdown")
	assert.Contains(t, md, "### Metadata")
	assert.Contains(t, md, "- **[FAIL]** license (1 packages)")
	assert.Contains(t, md, "  - tool: missing license")
	assert.Contains(t, md, "**90/100**")
	assert.Contains(t, md, "1. Fix something")
}

func TestRenderDoctorText(t *testing.T) {
	tr := clitest.NewTestRendererText()
	out := &DoctorOutput{
		HealthChecks: []HealthCheck{
			{Name: checklist.CheckKeywords, Group: "metadata", Status: "warn", IssueCount: 4,
				Details: []string{"a", "b", "c", "d"}},
		},
		Score: 40,
	}

	require.NoError(t, renderDoctorText(tr.Renderer, out))

	text := tr.Output()
	assert.Contains(t, text, "keywords (4 packages)")
	assert.Contains(t, text, "... and 1 more")
	assert.Contains(t, text, "40/100")
}
