package workspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/easyrelease/internal/metadata"
)

// ErrMalformedWorkspace is the sentinel wrapped by every construction failure.
var ErrMalformedWorkspace = errors.New("malformed workspace")

// MalformedWorkspaceError describes why a snapshot could not be turned into a graph.
type MalformedWorkspaceError struct {
	Reason  string
	Package metadata.PackageID
	// Cycle is set when the failure is a dependency cycle.
	Cycle []metadata.PackageID
}

func (e *MalformedWorkspaceError) Error() string {
	var b strings.Builder
	b.WriteString("malformed workspace: ")
	b.WriteString(e.Reason)
	if e.Package != "" {
		fmt.Fprintf(&b, " (%s)", e.Package)
	}
	if len(e.Cycle) > 0 {
		parts := make([]string, len(e.Cycle))
		for i, id := range e.Cycle {
			parts[i] = id.String()
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, " -> "))
	}
	return b.String()
}

func (e *MalformedWorkspaceError) Unwrap() error {
	return ErrMalformedWorkspace
}
