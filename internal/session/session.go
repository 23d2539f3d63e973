// Package session tracks which workspace members have been released,
// ignored or are still pending during one release run.
//
// All mutations go through Session.Dispatch, which applies command values
// under a single lock. Publishing is asynchronous: a Release command only
// starts the invocation, and its completion is applied by the session
// itself before being reported on the Events channel. Nothing is persisted.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/publish"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
)

var (
	// ErrUnknownPackage is returned for commands naming a non-member.
	ErrUnknownPackage = errors.New("unknown package")
	// ErrTransition is returned when a command is not allowed in the package's current state.
	ErrTransition = errors.New("invalid state transition")
)

// State is the release state of one package.
type State string

const (
	StateUnreleased State = "unreleased"
	StateIgnored    State = "ignored"
	StateReleased   State = "released"
)

// Status is a point-in-time view of one package.
type Status struct {
	ID         metadata.PackageID `json:"id" yaml:"id"`
	Name       string             `json:"name" yaml:"name"`
	Version    string             `json:"version" yaml:"version"`
	Weight     int                `json:"weight" yaml:"weight"`
	State      State              `json:"state" yaml:"state"`
	Publishing bool               `json:"publishing" yaml:"publishing"`
	LastResult *publish.Result    `json:"last_result,omitempty" yaml:"last_result,omitempty"`
	LastBump   *bump.Plan         `json:"last_bump,omitempty" yaml:"last_bump,omitempty"`
	LastError  error              `json:"-" yaml:"-"`
}

// Publisher starts publish invocations. *publish.Invoker implements it.
type Publisher interface {
	Start(ctx context.Context, req publish.Request) (*publish.Invocation, error)
}

// Session is the release state of a workspace.
type Session struct {
	id     string
	logger *slog.Logger

	mu         sync.Mutex
	graph      *workspace.Graph
	states     map[metadata.PackageID]State
	publishing map[metadata.PackageID]bool
	results    map[metadata.PackageID]publish.Result
	bumps      map[metadata.PackageID]*bump.Plan
	errs       map[metadata.PackageID]error
	opts       publish.Options

	publisher Publisher
	bumper    *bump.Propagator

	events  chan Event
	pending sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithPublisher replaces the publish invoker.
func WithPublisher(p Publisher) Option {
	return func(s *Session) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithPropagator replaces the bump propagator.
func WithPropagator(p *bump.Propagator) Option {
	return func(s *Session) {
		if p != nil {
			s.bumper = p
		}
	}
}

// WithPublishOptions sets the initial publish toggles.
func WithPublishOptions(o publish.Options) Option {
	return func(s *Session) { s.opts = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// New starts a session over g. Publish-restricted members start ignored,
// every other member starts unreleased.
func New(g *workspace.Graph, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		logger:     slog.New(slog.DiscardHandler),
		graph:      g,
		states:     make(map[metadata.PackageID]State, g.Len()),
		publishing: make(map[metadata.PackageID]bool),
		results:    make(map[metadata.PackageID]publish.Result),
		bumps:      make(map[metadata.PackageID]*bump.Plan),
		errs:       make(map[metadata.PackageID]error),
		opts:       publish.DefaultOptions(),
		events:     make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = publish.NewInvoker(publish.WithLogger(s.logger))
	}
	if s.bumper == nil {
		s.bumper = bump.New(g, bump.WithLogger(s.logger))
	}
	s.logger = s.logger.With(slog.String("session", s.id))

	for _, id := range g.Crates() {
		s.states[id] = initialState(g, id)
	}
	s.logger.Debug("session started", slog.Int("packages", len(s.states)))
	return s
}

func initialState(g *workspace.Graph, id metadata.PackageID) State {
	if pkg, ok := g.Package(id); ok && pkg.PublishRestricted() {
		return StateIgnored
	}
	return StateUnreleased
}

// ID returns the unique id of this session.
func (s *Session) ID() string { return s.id }

// Events delivers outcomes. Events are dropped when the buffer is full;
// Status always reflects the applied state.
func (s *Session) Events() <-chan Event { return s.events }

// Graph returns the graph the session currently works on.
func (s *Session) Graph() *workspace.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Options returns the current publish toggles.
func (s *Session) Options() publish.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Dispatch applies cmd. Release returns once the invocation has started;
// Bump returns after the manifests have been rewritten. A rejected command
// leaves the state unchanged.
//
// The context passed with a Release governs the publish process, so it
// must outlive the invocation.
func (s *Session) Dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Ignore:
		return s.ignore(c.ID)
	case Release:
		return s.release(ctx, c.ID)
	case Bump:
		return s.bump(ctx, c.ID, c.Strategy)
	case SetAllowDirty:
		s.setOptions(func(o *publish.Options) { o.AllowDirty = c.Value })
		return nil
	case SetDryRun:
		s.setOptions(func(o *publish.Options) { o.DryRun = c.Value })
		return nil
	default:
		return fmt.Errorf("unsupported command %T", cmd)
	}
}

func (s *Session) ignore(id metadata.PackageID) error {
	s.mu.Lock()
	state, ok := s.states[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	switch {
	case state == StateIgnored:
		s.mu.Unlock()
		return nil
	case state == StateReleased:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is already released", ErrTransition, s.name(id))
	case s.publishing[id]:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is being published", ErrTransition, s.name(id))
	}
	s.states[id] = StateIgnored
	name := s.name(id)
	s.mu.Unlock()

	s.logger.Info("package ignored", slog.String("package", name))
	s.emit(Event{Kind: EventIgnored, Package: id, Name: name})
	return nil
}

func (s *Session) release(ctx context.Context, id metadata.PackageID) error {
	s.mu.Lock()
	state, ok := s.states[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	switch {
	case state == StateReleased:
		s.mu.Unlock()
		return nil
	case state == StateIgnored:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is ignored", ErrTransition, s.name(id))
	case s.publishing[id]:
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", s.name(id), publish.ErrInFlight)
	}

	pkg, _ := s.graph.Package(id)
	req := publish.Request{
		Package:      id,
		Name:         pkg.Name,
		ManifestPath: pkg.ManifestPath,
		Options:      s.opts,
	}
	inv, err := s.publisher.Start(ctx, req)
	if err != nil {
		s.errs[id] = err
		s.mu.Unlock()
		return err
	}
	s.publishing[id] = true
	delete(s.errs, id)
	s.pending.Add(1)
	s.mu.Unlock()

	s.emit(Event{Kind: EventReleaseStarted, Package: id, Name: req.Name, Options: req.Options})
	go s.await(inv)
	return nil
}

// await applies the outcome of inv once it finishes.
func (s *Session) await(inv *publish.Invocation) {
	defer s.pending.Done()
	<-inv.Done()
	res := inv.Result()

	s.mu.Lock()
	id := s.resolve(inv.Request.Package, inv.Request.Name)
	delete(s.publishing, id)
	s.results[id] = res

	ev := Event{Package: id, Name: res.Name, Result: &res, Options: res.Options}
	switch {
	case !res.OK():
		s.errs[id] = res.Err
		ev.Kind = EventReleaseFailed
		ev.Err = res.Err
	case res.Options.DryRun:
		ev.Kind = EventDryRunPassed
	default:
		if s.states[id] == StateUnreleased {
			s.states[id] = StateReleased
		}
		ev.Kind = EventReleased
	}
	s.mu.Unlock()

	s.logger.Info("release finished", slog.String("package", res.Name), slog.String("outcome", string(ev.Kind)))
	s.emit(ev)
}

func (s *Session) bump(ctx context.Context, id metadata.PackageID, strategy bump.Strategy) error {
	if strategy == "" {
		strategy = bump.StrategyMinor
	}

	s.mu.Lock()
	if _, ok := s.states[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	name := s.name(id)
	bumper := s.bumper
	s.mu.Unlock()

	plan, err := bumper.Apply(ctx, id, strategy)

	s.mu.Lock()
	if err != nil {
		s.errs[id] = err
	} else {
		s.bumps[id] = plan
		delete(s.errs, id)
	}
	s.mu.Unlock()

	if err != nil {
		s.emit(Event{Kind: EventBumpFailed, Package: id, Name: name, Err: err})
		return err
	}
	s.emit(Event{Kind: EventBumped, Package: id, Name: name, Plan: plan})
	return nil
}

func (s *Session) setOptions(change func(*publish.Options)) {
	s.mu.Lock()
	change(&s.opts)
	opts := s.opts
	s.mu.Unlock()

	s.logger.Debug("publish options changed",
		slog.Bool("allow_dirty", opts.AllowDirty),
		slog.Bool("dry_run", opts.DryRun))
	s.emit(Event{Kind: EventOptionsChanged, Options: opts})
}

// Status returns the state of one package.
func (s *Session) Status(id metadata.PackageID) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return Status{}, false
	}
	return s.status(id, 0), true
}

// Statuses returns every package in publish order.
func (s *Session) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := s.graph.Sorted()
	out := make([]Status, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, s.status(r.ID, r.Weight))
	}
	return out
}

func (s *Session) status(id metadata.PackageID, weight int) Status {
	st := Status{
		ID:         id,
		Weight:     weight,
		State:      s.states[id],
		Publishing: s.publishing[id],
		LastBump:   s.bumps[id],
		LastError:  s.errs[id],
	}
	if pkg, ok := s.graph.Package(id); ok {
		st.Name = pkg.Name
		st.Version = pkg.Version
	}
	if res, ok := s.results[id]; ok {
		st.LastResult = &res
	}
	return st
}

// InState returns the ids currently in state, sorted.
func (s *Session) InState(state State) []metadata.PackageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []metadata.PackageID
	for id, st := range s.states {
		if st == state {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reload rebuilds the graph from snap. Packages keep their state; a
// package whose id changed (its version was bumped) is matched by name.
// New members get their initial state.
func (s *Session) Reload(snap *metadata.Snapshot) error {
	s.mu.Lock()
	ranking := s.graph.Ranking()
	s.mu.Unlock()

	g, err := workspace.Build(snap, workspace.WithRanking(ranking), workspace.WithLogger(s.logger))
	if err != nil {
		s.emit(Event{Kind: EventWorkspaceBroken, Err: err})
		return err
	}

	s.mu.Lock()
	old := s.graph
	states := make(map[metadata.PackageID]State, g.Len())
	publishing := make(map[metadata.PackageID]bool)
	results := make(map[metadata.PackageID]publish.Result)
	bumps := make(map[metadata.PackageID]*bump.Plan)
	errs := make(map[metadata.PackageID]error)

	for _, id := range g.Crates() {
		prev := id
		if _, ok := s.states[id]; !ok {
			pkg, _ := g.Package(id)
			prevID, found := old.Lookup(pkg.Name)
			if !found {
				states[id] = initialState(g, id)
				continue
			}
			prev = prevID
		}
		states[id] = s.states[prev]
		if s.publishing[prev] {
			publishing[id] = true
		}
		if res, ok := s.results[prev]; ok {
			results[id] = res
		}
		if plan, ok := s.bumps[prev]; ok {
			bumps[id] = plan
		}
		if e, ok := s.errs[prev]; ok {
			errs[id] = e
		}
	}

	s.graph = g
	s.states, s.publishing, s.results, s.bumps, s.errs = states, publishing, results, bumps, errs
	s.bumper = s.bumper.ForGraph(g)
	s.mu.Unlock()

	s.logger.Info("workspace reloaded", slog.Int("packages", g.Len()))
	s.emit(Event{Kind: EventReloaded})
	return nil
}

// Wait blocks until every started publish has been applied or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve maps an id captured before a Reload to the current graph.
// Callers must hold s.mu.
func (s *Session) resolve(id metadata.PackageID, name string) metadata.PackageID {
	if _, ok := s.states[id]; ok {
		return id
	}
	if cur, ok := s.graph.Lookup(name); ok {
		return cur
	}
	return id
}

// name returns the package name for id. Callers must hold s.mu.
func (s *Session) name(id metadata.PackageID) string {
	if pkg, ok := s.graph.Package(id); ok {
		return pkg.Name
	}
	return id.String()
}

func (s *Session) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event dropped, buffer full", slog.String("kind", string(ev.Kind)))
	}
}
