package manifest

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. Every *Error matches exactly one of them.
var (
	ErrRead  = errors.New("manifest read error")
	ErrParse = errors.New("manifest parse error")
	ErrWrite = errors.New("manifest write error")
)

// ErrWorkspaceInherited is wrapped when a value is declared with
// `workspace = true` and therefore lives in the root manifest.
var ErrWorkspaceInherited = errors.New("value is inherited from the workspace manifest")

// ErrorKind classifies manifest failures.
type ErrorKind int

const (
	ReadError ErrorKind = iota
	ParseError
	WriteError
)

func (k ErrorKind) String() string {
	switch k {
	case ReadError:
		return "read"
	case ParseError:
		return "parse"
	case WriteError:
		return "write"
	}
	return "unknown"
}

func (k ErrorKind) sentinel() error {
	switch k {
	case ReadError:
		return ErrRead
	case WriteError:
		return ErrWrite
	}
	return ErrParse
}

// Error is returned by every manifest operation that touches a file.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s manifest %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

func readErr(path string, err error) error {
	return &Error{Kind: ReadError, Path: path, Err: err}
}

func parseErr(path string, err error) error {
	return &Error{Kind: ParseError, Path: path, Err: err}
}

// WriteErr wraps a failure to persist path.
func WriteErr(path string, err error) error {
	return &Error{Kind: WriteError, Path: path, Err: err}
}
