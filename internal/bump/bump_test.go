package bump

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/easyrelease/internal/manifest"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/testutil"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coreManifest = `[package]
name = "core"
version = "1.2.3" # keep in sync with CHANGELOG
edition = "2021"
license = "MIT"

[dependencies]
serde = "1"
`

const appManifest = `[package]
name = "app"
version = "0.4.0"
edition = "2021"

# internal crates
[dependencies]
core = { path = "../core", version = "^1.2.0" }
log = "0.4"

[dev-dependencies]
core = { path = "../core", version = "^1.2.0", features = ["testing"] }
`

func setup(t *testing.T, crates ...testutil.Crate) (*workspace.Graph, *metadata.Snapshot) {
	t.Helper()
	snap := testutil.WriteWorkspace(t, crates...)
	g, err := workspace.Build(snap)
	require.NoError(t, err)
	return g, snap
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func manifestOf(t *testing.T, g *workspace.Graph, name string) (metadata.PackageID, string) {
	t.Helper()
	id, ok := g.Lookup(name)
	require.True(t, ok, "package %s", name)
	pkg, _ := g.Package(id)
	return id, pkg.ManifestPath
}

func coreAndApp() []testutil.Crate {
	return []testutil.Crate{
		{Name: "core", Version: "1.2.3", Manifest: coreManifest},
		{
			Name:    "app",
			Version: "0.4.0",
			Deps: []testutil.Dep{
				{Name: "core", Req: "^1.2.0"},
				{Name: "core", Req: "^1.2.0", Kind: metadata.KindDev},
			},
			Manifest: appManifest,
		},
	}
}

func TestApply_RewritesVersionAndDependents(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	coreID, corePath := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	p := New(g, WithLogger(testutil.NewTestLogger(t)))
	plan, err := p.Apply(context.Background(), coreID, StrategyMinor)
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", plan.OldVersion)
	assert.Equal(t, "1.3.0", plan.NewVersion)
	assert.Equal(t, []string{corePath, appPath}, plan.Written)
	require.Len(t, plan.Changes, 2)
	assert.Equal(t, Change{
		Package: plan.Changes[1].Package,
		Name:    "app",
		Path:    appPath,
		Field:   "dependencies.core",
		Old:     "^1.2.0",
		New:     "^1.3.0",
	}, plan.Changes[1])

	wantCore := strings.Replace(coreManifest, `version = "1.2.3"`, `version = "1.3.0"`, 1)
	assert.Equal(t, wantCore, readFile(t, corePath))

	// Only the normal dependency entry changes; dev-dependencies keep their requirement.
	wantApp := strings.Replace(appManifest,
		`core = { path = "../core", version = "^1.2.0" }`,
		`core = { path = "../core", version = "^1.3.0" }`, 1)
	assert.Equal(t, wantApp, readFile(t, appPath))
	assert.Empty(t, plan.Stale, "^1.2.0 still accepts 1.3.0")
}

func TestApply_ReportsStaleDevDependency(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	coreID, _ := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	logger, log := testutil.NewRecordingLogger(t)
	plan, err := New(g, WithLogger(logger)).Apply(context.Background(), coreID, StrategyMajor)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", plan.NewVersion)

	warning, ok := log.Find("requirement left stale")
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, warning.Level)
	assert.Equal(t, "app", warning.Attrs["package"])
	assert.Equal(t, "2.0.0", warning.Attrs["version"])

	assert.Equal(t, []StaleRequirement{
		{Name: "app", Kind: metadata.KindDev, Requirement: "^1.2.0"},
	}, plan.Stale)
	app := readFile(t, appPath)
	assert.Contains(t, app, `core = { path = "../core", version = "^2.0.0" }`)
	assert.Contains(t, app, `core = { path = "../core", version = "^1.2.0", features = ["testing"] }`)
}

func TestApply_MinorKeepPatch(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	coreID, corePath := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	plan, err := New(g).Apply(context.Background(), coreID, StrategyMinorKeepPatch)
	require.NoError(t, err)
	assert.Equal(t, "1.3.3", plan.NewVersion)

	assert.Contains(t, readFile(t, corePath), `version = "1.3.3"`)
	assert.Contains(t, readFile(t, appPath), `version = "^1.3.3" }`)
}

func TestApply_NoDependentsWritesOneFile(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	appID, appPath := manifestOf(t, g, "app")
	_, corePath := manifestOf(t, g, "core")

	plan, err := New(g).Apply(context.Background(), appID, StrategyPatch)
	require.NoError(t, err)

	assert.Equal(t, []string{appPath}, plan.Written)
	assert.Contains(t, readFile(t, appPath), `version = "0.4.1"`)
	assert.Equal(t, coreManifest, readFile(t, corePath))
}

func TestApply_RenamedDependency(t *testing.T) {
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "2.0.0"},
		testutil.Crate{Name: "app", Deps: []testutil.Dep{{Name: "core", Req: "2", Rename: "engine"}}},
	)
	coreID, _ := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	plan, err := New(g).Apply(context.Background(), coreID, StrategyMajor)
	require.NoError(t, err)
	assert.Equal(t, "dependencies.engine", plan.Changes[1].Field)
	assert.Contains(t, readFile(t, appPath), `engine = { path = "../core", version = "^3.0.0", package = "core" }`)
}

func TestApply_InsertsMissingVersion(t *testing.T) {
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "0.3.0"},
		testutil.Crate{Name: "app", Deps: []testutil.Dep{{Name: "core"}}},
	)
	coreID, _ := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	plan, err := New(g).Apply(context.Background(), coreID, StrategyMinor)
	require.NoError(t, err)
	assert.Equal(t, "", plan.Changes[1].Old)
	assert.Contains(t, readFile(t, appPath), `core = { version = "^0.4.0", path = "../core" }`)
}

func TestApply_TargetScopedDependency(t *testing.T) {
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "1.2.3"},
		testutil.Crate{Name: "app", Deps: []testutil.Dep{{Name: "core", Req: "^1.2.0", Target: "cfg(unix)"}}},
	)
	coreID, _ := manifestOf(t, g, "core")
	appID, appPath := manifestOf(t, g, "app")
	require.Equal(t, []metadata.PackageID{coreID}, g.Deps(appID))

	plan, err := New(g).Apply(context.Background(), coreID, StrategyMinor)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "target.'cfg(unix)'.dependencies.core", plan.Changes[1].Field)
	assert.Equal(t, "^1.2.0", plan.Changes[1].Old)
	assert.Contains(t, readFile(t, appPath),
		"[target.'cfg(unix)'.dependencies]\ncore = { path = \"../core\", version = \"^1.3.0\" }")
}

func TestApply_DependencyDeclaredInSeveralTables(t *testing.T) {
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "1.2.3"},
		testutil.Crate{Name: "app", Deps: []testutil.Dep{
			{Name: "core", Req: "^1.2.0"},
			{Name: "core", Req: "^1.2.0", Target: "cfg(windows)"},
		}},
	)
	coreID, _ := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	plan, err := New(g).Apply(context.Background(), coreID, StrategyPatch)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 3)
	assert.Equal(t, "dependencies.core", plan.Changes[1].Field)
	assert.Equal(t, "target.'cfg(windows)'.dependencies.core", plan.Changes[2].Field)
	assert.Len(t, plan.Manifests(), 2)
	assert.Len(t, plan.Written, 2)

	content := readFile(t, appPath)
	assert.Equal(t, 2, strings.Count(content, `version = "^1.2.4"`))
	assert.NotContains(t, content, "^1.2.0")
}

func TestApply_ResolutionFailureWritesNothing(t *testing.T) {
	broken := `[package]
name = "app"
version = "0.4.0"

[target.'cfg(unix)'.dependencies]
core = { path = "../core", version = "1" }
`
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "1.2.3", Manifest: coreManifest},
		testutil.Crate{Name: "app", Version: "0.4.0", Deps: []testutil.Dep{{Name: "core", Req: "1"}}, Manifest: broken},
	)
	coreID, corePath := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	_, err := New(g).Apply(context.Background(), coreID, StrategyMinor)
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrParse)

	assert.Equal(t, coreManifest, readFile(t, corePath))
	assert.Equal(t, broken, readFile(t, appPath))
}

func TestApply_RollsBackOnRenameFailure(t *testing.T) {
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "1.2.3", Manifest: coreManifest},
		testutil.Crate{Name: "app", Deps: []testutil.Dep{{Name: "core", Req: "^1.2.0"}}},
		testutil.Crate{Name: "cli", Deps: []testutil.Dep{{Name: "core", Req: "^1.2.0"}}},
	)
	coreID, corePath := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")
	_, cliPath := manifestOf(t, g, "cli")

	before := map[string]string{
		corePath: readFile(t, corePath),
		appPath:  readFile(t, appPath),
		cliPath:  readFile(t, cliPath),
	}

	// Dependents are committed in id order, so cli comes last.
	p := New(g, WithLogger(testutil.NewTestLogger(t)), WithRetries(1, time.Millisecond))
	failures := 0
	p.rename = func(from, to string) error {
		if to == cliPath {
			failures++
			return errors.New("disk full")
		}
		return os.Rename(from, to)
	}

	_, err := p.Apply(context.Background(), coreID, StrategyMinor)
	require.Error(t, err)
	assert.ErrorIs(t, err, manifest.ErrWrite)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 2, failures, "one attempt plus one retry")

	for path, content := range before {
		assert.Equal(t, content, readFile(t, path), path)
		leftovers, globErr := filepath.Glob(filepath.Join(filepath.Dir(path), ".Cargo.toml.*.tmp"))
		require.NoError(t, globErr)
		assert.Empty(t, leftovers, path)
	}
}

func TestPlan_DoesNotWrite(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	coreID, corePath := manifestOf(t, g, "core")

	plan, err := New(g).Plan(context.Background(), coreID, StrategyMinor)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", plan.NewVersion)
	assert.Len(t, plan.Changes, 2)
	assert.Equal(t, []string{"app"}, plan.Republish)
	assert.Empty(t, plan.Written)
	assert.Equal(t, coreManifest, readFile(t, corePath))
}

func TestPlan_RepublishIncludesIndirectDependents(t *testing.T) {
	g, _ := setup(t,
		testutil.Crate{Name: "core", Version: "1.0.0"},
		testutil.Crate{Name: "net", Deps: []testutil.Dep{{Name: "core", Req: "^1.0.0"}}},
		testutil.Crate{Name: "cli", Deps: []testutil.Dep{{Name: "net", Req: "^0.1.0"}}},
	)
	coreID, _ := manifestOf(t, g, "core")

	plan, err := New(g).Plan(context.Background(), coreID, StrategyMinor)
	require.NoError(t, err)

	assert.Len(t, plan.Changes, 2, "only direct dependents are rewritten")
	assert.ElementsMatch(t, []string{"net", "cli"}, plan.Republish)
}

func TestApply_UnknownPackage(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)

	_, err := New(g).Apply(context.Background(), "path+file:///nowhere#ghost@1.0.0", StrategyMinor)
	assert.ErrorIs(t, err, ErrUnknownPackage)
}

func TestApply_InvalidStrategy(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	coreID, corePath := manifestOf(t, g, "core")

	_, err := New(g).Apply(context.Background(), coreID, Strategy("sideways"))
	assert.ErrorContains(t, err, "unknown bump strategy")
	assert.Equal(t, coreManifest, readFile(t, corePath))
}

func TestApply_ConcurrentBumpsSerialize(t *testing.T) {
	g, _ := setup(t, coreAndApp()...)
	coreID, corePath := manifestOf(t, g, "core")
	_, appPath := manifestOf(t, g, "app")

	p := New(g)
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.Apply(context.Background(), coreID, StrategyPatch)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Contains(t, readFile(t, corePath), `version = "1.2.7"`)
	assert.Contains(t, readFile(t, appPath), `core = { path = "../core", version = "^1.2.7" }`)
}

func TestLockSet_Acquire(t *testing.T) {
	s := newLockSet()
	release := s.acquire([]string{"b", "a", "b"})

	acquired := make(chan struct{})
	go func() {
		r := s.acquire([]string{"a"})
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("lock on a acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	<-acquired
}
