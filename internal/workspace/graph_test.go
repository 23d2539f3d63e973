package workspace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/testutil"
)

const root = "/ws"

func id(name string) metadata.PackageID {
	return testutil.PackageID(root, name, "0.1.0")
}

func abcSnapshot() *metadata.Snapshot {
	return testutil.Snapshot(root,
		testutil.Crate{Name: "a"},
		testutil.Crate{Name: "b", Deps: []testutil.Dep{{Name: "a", Req: "^0.1.0"}}},
		testutil.Crate{Name: "c", Deps: []testutil.Dep{{Name: "b", Req: "^0.1.0"}, {Name: "a", Req: "^0.1.0"}}},
	)
}

func TestBuild_Basic(t *testing.T) {
	g, err := Build(abcSnapshot(), WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	assert.Empty(t, g.Deps(id("a")))
	assert.Equal(t, []metadata.PackageID{id("a")}, g.Deps(id("b")))
	assert.Equal(t, []metadata.PackageID{id("a"), id("b")}, g.Deps(id("c")))
	assert.Equal(t, []metadata.PackageID{id("b"), id("c")}, g.Dependents(id("a")))
	assert.Equal(t, []metadata.PackageID{id("b"), id("c")}, g.TransitiveDependents(id("a")))
	assert.Equal(t, []metadata.PackageID{id("a"), id("b")}, g.TransitiveDeps(id("c")))
	assert.Empty(t, g.TransitiveDeps(id("a")))
	assert.Equal(t, []metadata.PackageID{id("a")}, g.Roots())
	assert.Equal(t, []metadata.PackageID{id("c")}, g.Leaves())
	assert.Equal(t, 3, g.EdgeCount())

	got, ok := g.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, id("b"), got)

	pkg, ok := g.Package(id("c"))
	require.True(t, ok)
	assert.Equal(t, "c", pkg.Name)
}

func TestBuild_TargetScopedDependencyIsAnEdge(t *testing.T) {
	snap := testutil.Snapshot(root,
		testutil.Crate{Name: "a"},
		testutil.Crate{Name: "b", Deps: []testutil.Dep{{Name: "a", Req: "^0.1.0", Target: "cfg(unix)"}}},
	)

	g, err := Build(snap)
	require.NoError(t, err)
	assert.Equal(t, []metadata.PackageID{id("a")}, g.Deps(id("b")))

	_, ok := g.Package("path+file:///elsewhere#x@1.0.0")
	assert.False(t, ok)
}

func TestBuild_FiltersNonNormalAndExternalDeps(t *testing.T) {
	snap := testutil.Snapshot(root,
		testutil.Crate{Name: "a"},
		testutil.Crate{Name: "b", Deps: []testutil.Dep{
			{Name: "a", Req: "^0.1.0", Kind: metadata.KindDev},
			{Name: "serde", Req: "^1", External: true},
		}},
		testutil.Crate{Name: "c", Deps: []testutil.Dep{
			{Name: "a", Req: "^0.1.0", Kind: metadata.KindBuild},
		}},
	)

	g, err := Build(snap)
	require.NoError(t, err)

	for _, crate := range g.Crates() {
		assert.Empty(t, g.Deps(crate), "crate %s should have no workspace deps", crate)
	}
}

func TestBuild_DepsStayInsideWorkspace(t *testing.T) {
	snap := testutil.Snapshot(root,
		testutil.Crate{Name: "a", Deps: []testutil.Dep{{Name: "tokio", Req: "^1", External: true}}},
		testutil.Crate{Name: "b", Deps: []testutil.Dep{{Name: "a"}, {Name: "anyhow", Req: "^1", External: true}}},
		testutil.Crate{Name: "c", Deps: []testutil.Dep{{Name: "b"}, {Name: "a"}}},
		testutil.Crate{Name: "d"},
	)

	g, err := Build(snap)
	require.NoError(t, err)

	for _, crate := range g.Crates() {
		deps := g.Deps(crate)
		assert.NotNil(t, deps, "deps must be defined for %s", crate)
		for _, dep := range deps {
			assert.True(t, g.Contains(dep), "%s depends on non-member %s", crate, dep)
		}
	}
}

func TestBuild_RenamedDependency(t *testing.T) {
	snap := testutil.Snapshot(root,
		testutil.Crate{Name: "a"},
		testutil.Crate{Name: "b", Deps: []testutil.Dep{{Name: "a", Rename: "alpha"}}},
	)

	g, err := Build(snap)
	require.NoError(t, err)
	assert.Equal(t, []metadata.PackageID{id("a")}, g.Deps(id("b")))
}

func TestBuild_Cycle(t *testing.T) {
	snap := testutil.Snapshot(root,
		testutil.Crate{Name: "a", Deps: []testutil.Dep{{Name: "b"}}},
		testutil.Crate{Name: "b", Deps: []testutil.Dep{{Name: "a"}}},
	)

	g, err := Build(snap)
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, ErrMalformedWorkspace))

	var mwErr *MalformedWorkspaceError
	require.ErrorAs(t, err, &mwErr)
	assert.Equal(t, "dependency cycle", mwErr.Reason)
	assert.Equal(t, []metadata.PackageID{id("a"), id("b"), id("a")}, mwErr.Cycle)
}

func TestBuild_SelfDependency(t *testing.T) {
	snap := testutil.Snapshot(root,
		testutil.Crate{Name: "a", Deps: []testutil.Dep{{Name: "a"}}},
	)

	_, err := Build(snap)
	require.ErrorIs(t, err, ErrMalformedWorkspace)
}

func TestBuild_MissingMember(t *testing.T) {
	snap := abcSnapshot()
	snap.WorkspaceMembers = append(snap.WorkspaceMembers, "path+file:///ws/ghost#ghost@1.0.0")

	_, err := Build(snap)
	require.ErrorIs(t, err, ErrMalformedWorkspace)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuild_DuplicateNames(t *testing.T) {
	snap := abcSnapshot()
	dup := *snap.Packages[0]
	dup.ID = "path+file:///ws/other/a#a@0.2.0"
	dup.Version = "0.2.0"
	snap.Packages = append(snap.Packages, &dup)
	snap.WorkspaceMembers = append(snap.WorkspaceMembers, dup.ID)

	_, err := Build(snap)
	require.ErrorIs(t, err, ErrMalformedWorkspace)
	assert.Contains(t, err.Error(), "more than one member")
}

func TestBuild_UnknownRanking(t *testing.T) {
	_, err := Build(abcSnapshot(), WithRanking("alphabetical"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ranking")
}

func TestGraph_Levels(t *testing.T) {
	g, err := Build(abcSnapshot())
	require.NoError(t, err)

	assert.Equal(t, [][]metadata.PackageID{{id("a")}, {id("b")}, {id("c")}}, g.Levels())
}
