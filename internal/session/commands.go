package session

import (
	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
)

// Command is a request to change session state. Commands are plain values
// consumed by Session.Dispatch.
type Command interface {
	command()
}

// Ignore moves an unreleased package to the ignored set.
type Ignore struct {
	ID metadata.PackageID
}

// Release starts publishing a package with the session's publish options.
type Release struct {
	ID metadata.PackageID
}

// Bump rewrites the version of a package and the requirements of its dependents.
type Bump struct {
	ID       metadata.PackageID
	Strategy bump.Strategy
}

// SetAllowDirty toggles --allow-dirty for later releases.
type SetAllowDirty struct {
	Value bool
}

// SetDryRun toggles --dry-run for later releases.
type SetDryRun struct {
	Value bool
}

func (Ignore) command()        {}
func (Release) command()       {}
func (Bump) command()          {}
func (SetAllowDirty) command() {}
func (SetDryRun) command()     {}
