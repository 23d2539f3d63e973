// Package publish runs `cargo publish` for workspace members.
//
// Invocations are asynchronous. At most one invocation per package can be
// in flight; different packages publish in parallel.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/easyrelease/internal/metadata"
)

var (
	// ErrInFlight is returned by Start while the package already has a running invocation.
	ErrInFlight = errors.New("a publish invocation is already running for this package")
	// ErrInvocation matches every *InvocationError.
	ErrInvocation = errors.New("publish invocation failed")
)

// Options are the toggles passed to every invocation.
type Options struct {
	AllowDirty bool `json:"allow_dirty" yaml:"allow_dirty"`
	DryRun     bool `json:"dry_run" yaml:"dry_run"`
}

// DefaultOptions returns dry-run on, allow-dirty off.
func DefaultOptions() Options {
	return Options{DryRun: true}
}

// Args returns the cargo arguments for publishing the manifest at path.
func Args(manifestPath string, opts Options) []string {
	args := []string{"publish", "--manifest-path", manifestPath}
	if opts.AllowDirty {
		args = append(args, "--allow-dirty")
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	return args
}

// Request identifies what to publish.
type Request struct {
	Package      metadata.PackageID
	Name         string
	ManifestPath string
	Options      Options
}

// Result is the outcome of a finished invocation.
type Result struct {
	Package  metadata.PackageID `json:"package" yaml:"package"`
	Name     string             `json:"name" yaml:"name"`
	Options  Options            `json:"options" yaml:"options"`
	ExitCode int                `json:"exit_code" yaml:"exit_code"`
	Stdout   string             `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	Stderr   string             `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Duration time.Duration      `json:"duration" yaml:"duration"`
	// Err is nil on success and an *InvocationError otherwise.
	Err error `json:"-" yaml:"-"`
}

// OK reports whether the command exited successfully.
func (r Result) OK() bool { return r.Err == nil }

// InvocationError describes a failed or unstartable invocation.
type InvocationError struct {
	Package  metadata.PackageID
	Name     string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	msg := fmt.Sprintf("cargo publish %s", e.Name)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *InvocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvocation}
	}
	return []error{ErrInvocation, e.Err}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Invoker starts publish invocations.
type Invoker struct {
	cargo  string
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[metadata.PackageID]*Invocation
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithCargo sets the cargo binary. Defaults to "cargo" on PATH.
func WithCargo(cargo string) Option {
	return func(i *Invoker) {
		if cargo != "" {
			i.cargo = cargo
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(i *Invoker) {
		if r != nil {
			i.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewInvoker creates an Invoker.
func NewInvoker(opts ...Option) *Invoker {
	i := &Invoker{
		cargo:    "cargo",
		runner:   ExecRunner{},
		logger:   slog.New(slog.DiscardHandler),
		inflight: make(map[metadata.PackageID]*Invocation),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InFlight reports whether id has a running invocation.
func (i *Invoker) InFlight(id metadata.PackageID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.inflight[id]
	return ok
}

// Start launches cargo publish in the background. Cancelling ctx kills the process.
func (i *Invoker) Start(ctx context.Context, req Request) (*Invocation, error) {
	i.mu.Lock()
	if _, busy := i.inflight[req.Package]; busy {
		i.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", req.Name, ErrInFlight)
	}
	inv := &Invocation{Request: req, done: make(chan struct{})}
	i.inflight[req.Package] = inv
	i.mu.Unlock()

	args := Args(req.ManifestPath, req.Options)
	i.logger.Info("starting publish",
		slog.String("package", req.Name),
		slog.String("command", i.cargo+" "+strings.Join(args, " ")))

	go func() {
		start := time.Now()
		out, err := i.runner.Run(ctx, i.cargo, args)
		res := Result{
			Package:  req.Package,
			Name:     req.Name,
			Options:  req.Options,
			ExitCode: out.ExitCode,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Duration: time.Since(start),
		}
		if err != nil || out.ExitCode != 0 {
			res.Err = &InvocationError{
				Package:  req.Package,
				Name:     req.Name,
				ExitCode: out.ExitCode,
				Stdout:   out.Stdout,
				Stderr:   out.Stderr,
				Err:      err,
			}
		}

		i.mu.Lock()
		delete(i.inflight, req.Package)
		i.mu.Unlock()

		if res.Err != nil {
			i.logger.Warn("publish failed", slog.String("package", req.Name), slog.String("error", res.Err.Error()))
		} else {
			i.logger.Info("publish finished",
				slog.String("package", req.Name),
				slog.Bool("dry_run", req.Options.DryRun),
				slog.Duration("duration", res.Duration))
		}

		inv.result = res
		close(inv.done)
	}()

	return inv, nil
}

// Invocation is a running or finished publish.
type Invocation struct {
	Request Request

	done   chan struct{}
	result Result
}

// Done is closed when the process has exited.
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (inv *Invocation) Result() Result {
	return inv.result
}

// Wait blocks until the invocation finishes or ctx is done.
func (inv *Invocation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-inv.done:
		return inv.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
