// Package dag provides directed acyclic graph operations for package dependencies.
// Edges point from a dependency to its dependent, so walking "down" the graph
// visits everything that has to be republished after a change.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (package id)
	ID string
	// Data holds arbitrary node data
	Data any
}

// CycleError is returned when an operation requires an acyclic graph.
type CycleError struct {
	// Path lists the nodes of the cycle, starting and ending on the same node.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Graph represents a directed graph of dependencies.
type Graph struct {
	nodes    map[string]*Node
	children map[string]map[string]struct{} // dependency -> dependents
	parents  map[string]map[string]struct{} // dependent -> dependencies
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string]map[string]struct{}),
		parents:  make(map[string]map[string]struct{}),
	}
}

// AddNode adds a node to the graph, replacing its data if it already exists.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.children[id] = make(map[string]struct{})
	g.parents[id] = make(map[string]struct{})
}

// AddEdge records that child depends on parent. Duplicate edges are ignored.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return &CycleError{Path: []string{parentID, parentID}}
	}

	g.children[parentID][childID] = struct{}{}
	g.parents[childID][parentID] = struct{}{}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the sorted dependencies of a node.
func (g *Graph) GetParents(id string) []string {
	return sortedKeys(g.parents[id])
}

// GetChildren returns the sorted dependents of a node.
func (g *Graph) GetChildren(id string) []string {
	return sortedKeys(g.children[id])
}

// NodeIDs returns every node id in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.children {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
// Nodes are visited in sorted order so the reported path is stable.
func (g *Graph) HasCycle() (bool, []string) {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = onStack
		stack = append(stack, id)

		for _, childID := range g.GetChildren(id) {
			switch state[childID] {
			case unvisited:
				if dfs(childID) {
					return true
				}
			case onStack:
				start := slices.Index(stack, childID)
				cyclePath = append(slices.Clone(stack[start:]), childID)
				return true
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.NodeIDs() {
		if state[id] == unvisited && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns nodes in topological order (dependencies before dependents).
// It uses Kahn's algorithm and always picks the smallest ready id, so the
// result is deterministic. Returns a *CycleError if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, &CycleError{Path: cyclePath}
	}

	indegree := make(map[string]int, len(g.nodes))
	var ready []string
	for id := range g.nodes {
		indegree[id] = len(g.parents[id])
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[id])

		for _, childID := range g.GetChildren(id) {
			indegree[childID]--
			if indegree[childID] == 0 {
				ready = insertSorted(ready, childID)
			}
		}
	}

	return result, nil
}

// GetExecutionLevels returns nodes grouped by depth.
// Level 0 contains nodes with no dependencies; a node at level N depends on
// at least one node at level N-1 and nothing at level N or deeper.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	depths, err := g.Depths()
	if err != nil {
		return nil, err
	}

	maxLevel := -1
	for _, d := range depths {
		maxLevel = max(maxLevel, d)
	}

	levels := make([][]string, maxLevel+1)
	for id, d := range depths {
		levels[d] = append(levels[d], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Depths returns the length of the longest dependency chain below each node.
func (g *Graph) Depths() (map[string]int, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	depths := make(map[string]int, len(sorted))
	for _, n := range sorted {
		d := 0
		for parentID := range g.parents[n.ID] {
			d = max(d, depths[parentID]+1)
		}
		depths[n.ID] = d
	}
	return depths, nil
}

// GetAffectedNodes returns the given nodes plus everything downstream of them.
func (g *Graph) GetAffectedNodes(changedIDs []string) []string {
	affected := make(map[string]struct{})

	var markAffected func(id string)
	markAffected = func(id string) {
		if _, seen := affected[id]; seen {
			return
		}
		affected[id] = struct{}{}
		for childID := range g.children[id] {
			markAffected(childID)
		}
	}

	for _, id := range changedIDs {
		if _, exists := g.nodes[id]; exists {
			markAffected(id)
		}
	}
	return sortedKeys(affected)
}

// GetUpstreamNodes returns all transitive dependencies of the given node.
func (g *Graph) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]struct{})

	var markUpstream func(nodeID string)
	markUpstream = func(nodeID string) {
		for parentID := range g.parents[nodeID] {
			if _, seen := upstream[parentID]; !seen {
				upstream[parentID] = struct{}{}
				markUpstream(parentID)
			}
		}
	}

	markUpstream(id)
	return sortedKeys(upstream)
}

// GetRoots returns nodes with no dependencies.
func (g *Graph) GetRoots() []string {
	var roots []string
	for _, id := range g.NodeIDs() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetLeaves returns nodes nothing depends on.
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for _, id := range g.NodeIDs() {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	return slices.Insert(ids, i, id)
}
