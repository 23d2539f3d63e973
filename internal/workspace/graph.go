// Package workspace models the dependency graph between the members of a
// cargo workspace and derives the order in which they can be published.
//
// A Graph is built once from a metadata.Snapshot and never changes
// afterwards, so it can be shared between goroutines without locking.
// Manifest edits made on disk are only visible after building a new Graph
// from a fresh snapshot.
package workspace

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/easyrelease/internal/dag"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
)

// Graph is the in-workspace dependency graph.
type Graph struct {
	snap   *metadata.Snapshot
	crates map[metadata.PackageID]struct{}
	byName map[string]metadata.PackageID

	// dag holds one edge per direct, in-workspace, normal dependency,
	// pointing from the dependency to its dependent.
	dag *dag.Graph

	ranking Ranking
	sorted  []Ranked
	levels  [][]metadata.PackageID
}

type options struct {
	ranking Ranking
	logger  *slog.Logger
}

// Option configures Build.
type Option func(*options)

// WithRanking selects the strategy used to derive the publish order.
func WithRanking(r Ranking) Option {
	return func(o *options) {
		if r != "" {
			o.ranking = r
		}
	}
}

// WithLogger sets the logger used while building.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Build constructs the workspace graph from a snapshot.
// Any inconsistency fails with a *MalformedWorkspaceError; no partial graph is returned.
func Build(snap *metadata.Snapshot, opts ...Option) (*Graph, error) {
	o := options{
		ranking: RankTopological,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.ranking.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		snap:    snap,
		crates:  make(map[metadata.PackageID]struct{}, len(snap.WorkspaceMembers)),
		byName:  make(map[string]metadata.PackageID, len(snap.WorkspaceMembers)),
		dag:     dag.NewGraph(),
		ranking: o.ranking,
	}

	// Members and the name index. Names must be unique among members,
	// otherwise a dependency name could resolve to more than one crate.
	for _, id := range snap.WorkspaceMembers {
		pkg, ok := snap.Package(id)
		if !ok {
			return nil, &MalformedWorkspaceError{Reason: "workspace member missing from package list", Package: id}
		}
		if other, dup := g.byName[pkg.Name]; dup && other != id {
			return nil, &MalformedWorkspaceError{Reason: "package name " + pkg.Name + " is used by more than one member", Package: id}
		}
		g.crates[id] = struct{}{}
		g.byName[pkg.Name] = id
		g.dag.AddNode(id.String(), pkg)
	}

	for _, id := range g.Crates() {
		pkg, _ := g.Package(id)
		for _, dep := range pkg.Dependencies {
			if !dep.IsNormal() {
				continue
			}
			depID, inWorkspace := g.byName[dep.Name]
			if !inWorkspace {
				continue
			}
			if err := g.dag.AddEdge(depID.String(), id.String()); err != nil {
				return nil, malformedFromDAG(err, id)
			}
		}
		o.logger.Debug("resolved workspace dependencies",
			slog.String("package", pkg.Name),
			slog.Int("deps", len(g.Deps(id))))
	}

	if hasCycle, path := g.dag.HasCycle(); hasCycle {
		return nil, malformedFromDAG(&dag.CycleError{Path: path}, "")
	}

	levels, err := g.dag.GetExecutionLevels()
	if err != nil {
		return nil, malformedFromDAG(err, "")
	}
	g.levels = make([][]metadata.PackageID, len(levels))
	for i, level := range levels {
		for _, id := range level {
			g.levels[i] = append(g.levels[i], metadata.PackageID(id))
		}
	}

	sorted, err := Rank(g, o.ranking)
	if err != nil {
		return nil, err
	}
	g.sorted = sorted

	o.logger.Debug("built workspace graph",
		slog.Int("crates", len(g.crates)),
		slog.Int("edges", g.dag.EdgeCount()),
		slog.String("ranking", string(o.ranking)))

	return g, nil
}

func malformedFromDAG(err error, pkg metadata.PackageID) error {
	var cycleErr *dag.CycleError
	if errors.As(err, &cycleErr) {
		cycle := make([]metadata.PackageID, len(cycleErr.Path))
		for i, id := range cycleErr.Path {
			cycle[i] = metadata.PackageID(id)
		}
		return &MalformedWorkspaceError{Reason: "dependency cycle", Cycle: cycle}
	}
	return &MalformedWorkspaceError{Reason: err.Error(), Package: pkg}
}

// Snapshot returns the snapshot the graph was built from.
func (g *Graph) Snapshot() *metadata.Snapshot {
	return g.snap
}

// Crates returns every workspace member in canonical order.
func (g *Graph) Crates() []metadata.PackageID {
	return sortedIDs(g.crates)
}

// Len returns the number of workspace members.
func (g *Graph) Len() int {
	return g.dag.NodeCount()
}

// Contains reports whether id is a workspace member.
func (g *Graph) Contains(id metadata.PackageID) bool {
	_, ok := g.crates[id]
	return ok
}

// Package returns the metadata of a workspace member.
func (g *Graph) Package(id metadata.PackageID) (*metadata.Package, bool) {
	n, ok := g.dag.GetNode(id.String())
	if !ok {
		return nil, false
	}
	p, ok := n.Data.(*metadata.Package)
	return p, ok
}

// Lookup resolves a member by package name.
func (g *Graph) Lookup(name string) (metadata.PackageID, bool) {
	id, ok := g.byName[name]
	return id, ok
}

// Deps returns the direct in-workspace normal dependencies of id.
func (g *Graph) Deps(id metadata.PackageID) []metadata.PackageID {
	return toIDs(g.dag.GetParents(id.String()))
}

// Dependents returns the members that directly depend on id.
func (g *Graph) Dependents(id metadata.PackageID) []metadata.PackageID {
	return toIDs(g.dag.GetChildren(id.String()))
}

// TransitiveDependents returns every member downstream of id, excluding id.
func (g *Graph) TransitiveDependents(id metadata.PackageID) []metadata.PackageID {
	var out []metadata.PackageID
	for _, s := range g.dag.GetAffectedNodes([]string{id.String()}) {
		if s != id.String() {
			out = append(out, metadata.PackageID(s))
		}
	}
	return out
}

// TransitiveDeps returns every member id depends on, directly or not.
func (g *Graph) TransitiveDeps(id metadata.PackageID) []metadata.PackageID {
	return toIDs(g.dag.GetUpstreamNodes(id.String()))
}

// Roots returns the members without workspace dependencies.
func (g *Graph) Roots() []metadata.PackageID {
	return toIDs(g.dag.GetRoots())
}

// Leaves returns the members no other member depends on.
func (g *Graph) Leaves() []metadata.PackageID {
	return toIDs(g.dag.GetLeaves())
}

// EdgeCount returns the number of dependency edges between members.
func (g *Graph) EdgeCount() int {
	return g.dag.EdgeCount()
}

// Levels groups members by dependency depth. Members of one level do not
// depend on each other and can be published in any order.
func (g *Graph) Levels() [][]metadata.PackageID {
	out := make([][]metadata.PackageID, len(g.levels))
	for i, level := range g.levels {
		out[i] = append([]metadata.PackageID(nil), level...)
	}
	return out
}

// Ranking returns the strategy used to derive Sorted.
func (g *Graph) Ranking() Ranking {
	return g.ranking
}

// Sorted returns the publish order derived at construction.
func (g *Graph) Sorted() []Ranked {
	out := make([]Ranked, len(g.sorted))
	copy(out, g.sorted)
	return out
}

func toIDs(ids []string) []metadata.PackageID {
	out := make([]metadata.PackageID, len(ids))
	for i, id := range ids {
		out[i] = metadata.PackageID(id)
	}
	return out
}

func sortedIDs(set map[metadata.PackageID]struct{}) []metadata.PackageID {
	out := make([]metadata.PackageID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
