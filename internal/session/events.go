package session

import (
	"time"

	"github.com/leapstack-labs/easyrelease/internal/bump"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/publish"
)

// EventKind identifies what happened.
type EventKind string

const (
	EventIgnored         EventKind = "ignored"
	EventReleaseStarted  EventKind = "release-started"
	EventReleased        EventKind = "released"
	EventDryRunPassed    EventKind = "dry-run-passed"
	EventReleaseFailed   EventKind = "release-failed"
	EventBumped          EventKind = "bumped"
	EventBumpFailed      EventKind = "bump-failed"
	EventOptionsChanged  EventKind = "options-changed"
	EventReloaded        EventKind = "reloaded"
	EventWorkspaceBroken EventKind = "workspace-broken"
)

// Event reports the outcome of a command or of an asynchronous publish.
type Event struct {
	Kind    EventKind
	Package metadata.PackageID
	Name    string
	Plan    *bump.Plan
	Result  *publish.Result
	Options publish.Options
	Err     error
	At      time.Time
}
