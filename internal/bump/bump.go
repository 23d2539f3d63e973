// Package bump rewrites a crate's version and the requirements its direct
// workspace dependents declare on it.
//
// Every manifest involved is read, edited and validated in memory first.
// Nothing touches disk until the whole plan has been staged, and the commit
// either replaces all files or restores the ones it already replaced.
package bump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/leapstack-labs/easyrelease/internal/checklist"
	"github.com/leapstack-labs/easyrelease/internal/manifest"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownPackage is returned for ids that are not workspace members.
var ErrUnknownPackage = errors.New("package is not a workspace member")

// Change is one staged manifest edit.
type Change struct {
	Package metadata.PackageID `json:"package" yaml:"package"`
	Name    string             `json:"name" yaml:"name"`
	Path    string             `json:"manifest_path" yaml:"manifest_path"`
	// Field is "package.version", "dependencies.<key>" or, for a
	// target-scoped declaration, "target.<spec>.dependencies.<key>".
	Field string `json:"field" yaml:"field"`
	Old   string `json:"old" yaml:"old"`
	New   string `json:"new" yaml:"new"`
}

// Plan describes a bump. Changes[0] is always the bumped package itself,
// followed by its dependents in id order. A dependent that declares the
// package in several tables contributes one change per declaration.
type Plan struct {
	Package    metadata.PackageID `json:"package" yaml:"package"`
	Name       string             `json:"name" yaml:"name"`
	Strategy   Strategy           `json:"strategy" yaml:"strategy"`
	OldVersion string             `json:"old_version" yaml:"old_version"`
	NewVersion string             `json:"new_version" yaml:"new_version"`
	Changes    []Change           `json:"changes" yaml:"changes"`
	// Republish names every member downstream of the package, direct or
	// not. They all have to be published again after the bumped package.
	Republish []string `json:"republish" yaml:"republish"`
	// Stale lists dev and build requirements on the package that the new
	// version no longer satisfies. They are reported, never rewritten.
	Stale []StaleRequirement `json:"stale,omitempty" yaml:"stale,omitempty"`
	// Written lists the manifests replaced on disk. Empty for previews.
	Written []string `json:"written,omitempty" yaml:"written,omitempty"`

	docs []*manifest.Document
}

// StaleRequirement is a dev or build dependency left behind by a bump.
type StaleRequirement struct {
	Name        string                  `json:"name" yaml:"name"`
	Kind        metadata.DependencyKind `json:"kind" yaml:"kind"`
	Requirement string                  `json:"requirement" yaml:"requirement"`
}

// Manifests returns the distinct manifest paths the plan touches, in
// change order.
func (p *Plan) Manifests() []string {
	var paths []string
	for _, c := range p.Changes {
		if !slices.Contains(paths, c.Path) {
			paths = append(paths, c.Path)
		}
	}
	return paths
}

// Propagator applies bumps against one workspace graph.
type Propagator struct {
	graph   *workspace.Graph
	logger  *slog.Logger
	locks   *lockSet
	retries uint64
	delay   time.Duration
	rename  func(oldpath, newpath string) error
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Propagator) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRetries sets how many times a failed rename is retried before the
// commit is rolled back, and the initial delay between attempts.
func WithRetries(n uint64, initialDelay time.Duration) Option {
	return func(p *Propagator) {
		p.retries = n
		if initialDelay > 0 {
			p.delay = initialDelay
		}
	}
}

// New returns a Propagator for g.
func New(g *workspace.Graph, opts ...Option) *Propagator {
	p := &Propagator{
		graph:   g,
		logger:  slog.New(slog.DiscardHandler),
		locks:   newLockSet(),
		retries: 3,
		delay:   20 * time.Millisecond,
		rename:  renameFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForGraph returns a Propagator bound to a rebuilt graph that shares the
// receiver's file locks and settings.
func (p *Propagator) ForGraph(g *workspace.Graph) *Propagator {
	cp := *p
	cp.graph = g
	return &cp
}

// Plan stages the bump of id without writing anything.
func (p *Propagator) Plan(ctx context.Context, id metadata.PackageID, strategy Strategy) (*Plan, error) {
	paths, err := p.paths(id)
	if err != nil {
		return nil, err
	}
	release := p.locks.acquire(paths)
	defer release()

	return p.stage(ctx, id, strategy)
}

// Apply bumps id with strategy and rewrites the requirement of every direct
// dependent to the caret form of the new version. The manifests involved
// stay locked from the first read until the commit finishes.
func (p *Propagator) Apply(ctx context.Context, id metadata.PackageID, strategy Strategy) (*Plan, error) {
	paths, err := p.paths(id)
	if err != nil {
		return nil, err
	}
	release := p.locks.acquire(paths)
	defer release()

	plan, err := p.stage(ctx, id, strategy)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	written, err := p.commit(plan.docs)
	if err != nil {
		p.logger.Warn("bump commit failed",
			slog.String("package", plan.Name),
			slog.String("error", err.Error()))
		return nil, err
	}
	plan.Written = written

	p.logger.Info("bumped package",
		slog.String("package", plan.Name),
		slog.String("from", plan.OldVersion),
		slog.String("to", plan.NewVersion),
		slog.Int("dependents", len(written)-1))
	return plan, nil
}

// paths returns every manifest a bump of id may touch.
func (p *Propagator) paths(id metadata.PackageID) ([]string, error) {
	pkg, ok := p.graph.Package(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	paths := []string{pkg.ManifestPath}
	for _, dep := range p.graph.Dependents(id) {
		dpkg, _ := p.graph.Package(dep)
		paths = append(paths, dpkg.ManifestPath)
	}
	return paths, nil
}

func (p *Propagator) stage(ctx context.Context, id metadata.PackageID, strategy Strategy) (*Plan, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	pkg, ok := p.graph.Package(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}

	doc, err := manifest.Read(pkg.ManifestPath)
	if err != nil {
		return nil, err
	}
	current, err := doc.PackageVersion()
	if err != nil {
		return nil, err
	}
	next, err := strategy.Next(current)
	if err != nil {
		return nil, fmt.Errorf("bump %s: %w", pkg.Name, err)
	}
	if err := doc.SetPackageVersion(next); err != nil {
		return nil, err
	}

	plan := &Plan{
		Package:    id,
		Name:       pkg.Name,
		Strategy:   strategy,
		OldVersion: current,
		NewVersion: next,
		Changes: []Change{{
			Package: id,
			Name:    pkg.Name,
			Path:    pkg.ManifestPath,
			Field:   "package.version",
			Old:     current,
			New:     next,
		}},
		docs: []*manifest.Document{doc},
	}

	dependents := p.graph.Dependents(id)
	changes := make([][]Change, len(dependents))
	docs := make([]*manifest.Document, len(dependents))
	req := Requirement(next)

	eg, egCtx := errgroup.WithContext(ctx)
	for i, depID := range dependents {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			dchanges, ddoc, err := p.stageDependent(depID, pkg.Name, req)
			if err != nil {
				return err
			}
			changes[i], docs[i] = dchanges, ddoc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, c := range changes {
		plan.Changes = append(plan.Changes, c...)
	}
	plan.Republish = []string{}
	for _, downstream := range p.graph.TransitiveDependents(id) {
		if dpkg, ok := p.graph.Package(downstream); ok {
			plan.Republish = append(plan.Republish, dpkg.Name)
		}
	}
	plan.Stale = p.staleRequirements(pkg.Name, next)
	for _, st := range plan.Stale {
		p.logger.Warn("requirement left stale",
			slog.String("package", st.Name),
			slog.String("kind", string(st.Kind)),
			slog.String("requirement", st.Requirement),
			slog.String("version", next))
	}
	plan.docs = append(plan.docs, docs...)

	p.logger.Debug("staged bump",
		slog.String("package", pkg.Name),
		slog.String("strategy", string(strategy)),
		slog.Int("files", len(plan.docs)))
	return plan, nil
}

// staleRequirements finds the versioned dev and build dependencies on name
// that do not accept version.
func (p *Propagator) staleRequirements(name, version string) []StaleRequirement {
	var out []StaleRequirement
	for _, id := range p.graph.Crates() {
		member, _ := p.graph.Package(id)
		for _, dep := range member.Dependencies {
			if dep.Name != name || dep.IsNormal() {
				continue
			}
			if checklist.StateOf(dep.Req, version) != checklist.DriftStale {
				continue
			}
			s := StaleRequirement{Name: member.Name, Kind: dep.Kind, Requirement: dep.Req}
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// stageDependent rewrites every requirement dependent declares on name.
func (p *Propagator) stageDependent(dependent metadata.PackageID, name, req string) ([]Change, *manifest.Document, error) {
	dpkg, _ := p.graph.Package(dependent)
	decls := dpkg.Declarations(name)
	if len(decls) == 0 {
		return nil, nil, fmt.Errorf("%s does not declare a dependency on %s", dpkg.Name, name)
	}

	doc, err := manifest.Read(dpkg.ManifestPath)
	if err != nil {
		return nil, nil, err
	}

	var changes []Change
	seen := make(map[string]bool, len(decls))
	for _, dep := range decls {
		table, key := manifest.Dependencies(dep.Target), dep.Key()
		field := table.String() + "." + key
		if seen[field] {
			continue
		}
		seen[field] = true

		old, err := doc.DependencyRequirement(table, key)
		if err != nil {
			return nil, nil, err
		}
		if err := doc.SetDependencyRequirement(table, key, req); err != nil {
			return nil, nil, err
		}
		changes = append(changes, Change{
			Package: dependent,
			Name:    dpkg.Name,
			Path:    dpkg.ManifestPath,
			Field:   field,
			Old:     old,
			New:     req,
		})
	}
	return changes, doc, nil
}
