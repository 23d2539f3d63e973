package workspace

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/easyrelease/internal/metadata"
)

// Ranking names a strategy for ordering crates for publication.
type Ranking string

const (
	// RankTopological orders by dependency depth. Every dependency is
	// ranked before all of its dependents.
	RankTopological Ranking = "topological"

	// RankWeighted orders by a dependency count unrolled to weightedDepth
	// levels. Kept for compatibility with checklists produced by earlier
	// releases; deeply nested workspaces can be misordered.
	RankWeighted Ranking = "weighted"
)

// weightedDepth is how many levels below a crate RankWeighted looks.
const weightedDepth = 3

// Rankings lists the supported strategies.
var Rankings = []Ranking{RankTopological, RankWeighted}

// ParseRanking converts a config or flag value into a Ranking.
func ParseRanking(s string) (Ranking, error) {
	r := Ranking(s)
	if s == "" {
		r = RankTopological
	}
	return r, r.Validate()
}

// Validate returns an error for unknown strategies.
func (r Ranking) Validate() error {
	switch r {
	case RankTopological, RankWeighted:
		return nil
	}
	return fmt.Errorf("unknown ranking %q (want one of %v)", string(r), Rankings)
}

// Ranked is one entry of the publish order.
type Ranked struct {
	ID     metadata.PackageID `json:"id"`
	Weight int                `json:"weight"`
}

// Rank derives the publish order of g. Ties are broken by the canonical id
// string, so the result is deterministic for a given graph.
func Rank(g *Graph, r Ranking) ([]Ranked, error) {
	var weight func(metadata.PackageID) int

	switch r {
	case RankTopological:
		depths, err := g.dag.Depths()
		if err != nil {
			return nil, malformedFromDAG(err, "")
		}
		weight = func(id metadata.PackageID) int { return depths[id.String()] }
	case RankWeighted:
		weight = func(id metadata.PackageID) int { return unrolledWeight(g, id, 0) }
	default:
		return nil, r.Validate()
	}

	out := make([]Ranked, 0, len(g.crates))
	for _, id := range g.Crates() {
		out = append(out, Ranked{ID: id, Weight: weight(id)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// unrolledWeight counts the direct dependencies of id plus, down to
// weightedDepth levels, the direct dependencies of each dependency.
// Shared dependencies are counted once per path.
func unrolledWeight(g *Graph, id metadata.PackageID, level int) int {
	deps := g.Deps(id)
	n := len(deps)
	if level >= weightedDepth {
		return n
	}
	for _, dep := range deps {
		n += unrolledWeight(g, dep, level+1)
	}
	return n
}
