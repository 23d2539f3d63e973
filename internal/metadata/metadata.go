// Package metadata loads the workspace description emitted by `cargo metadata`.
//
// A Snapshot is read once at startup and treated as frozen for the rest of the
// session. Nothing in this package writes to disk.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// FormatVersion is the only `cargo metadata --format-version` this package understands.
const FormatVersion = 1

// PackageID is cargo's opaque package identifier. Two ids are equal only if
// their full strings are equal; the package name alone is not an identity.
type PackageID string

// String returns the canonical form used for deterministic ordering.
func (id PackageID) String() string { return string(id) }

// DependencyKind distinguishes normal, dev and build dependencies.
type DependencyKind string

// Dependency kinds. Cargo encodes normal dependencies as a JSON null.
const (
	KindNormal DependencyKind = "normal"
	KindDev    DependencyKind = "dev"
	KindBuild  DependencyKind = "build"
)

// UnmarshalJSON maps cargo's null kind to KindNormal.
func (k *DependencyKind) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*k = KindNormal
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("dependency kind: %w", err)
	}
	switch DependencyKind(s) {
	case KindNormal, KindDev, KindBuild:
		*k = DependencyKind(s)
	case "":
		*k = KindNormal
	default:
		return fmt.Errorf("unknown dependency kind %q", s)
	}
	return nil
}

// Dependency is one entry of a package's declared dependencies.
type Dependency struct {
	Name     string         `json:"name"`
	Req      string         `json:"req"`
	Kind     DependencyKind `json:"kind"`
	Rename   string         `json:"rename,omitempty"`
	Source   string         `json:"source,omitempty"`
	Path     string         `json:"path,omitempty"`
	Optional bool           `json:"optional,omitempty"`
	Target   string         `json:"target,omitempty"`
}

// IsNormal reports whether the dependency is needed for ordinary builds.
func (d Dependency) IsNormal() bool {
	return d.Kind == "" || d.Kind == KindNormal
}

// Key returns the name the dependency is declared under in the manifest.
func (d Dependency) Key() string {
	if d.Rename != "" {
		return d.Rename
	}
	return d.Name
}

// Package is one package of the snapshot.
type Package struct {
	ID           PackageID    `json:"id"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	ManifestPath string       `json:"manifest_path"`
	Dependencies []Dependency `json:"dependencies"`
	Keywords     []string     `json:"keywords"`
	Categories   []string     `json:"categories"`
	Authors      []string     `json:"authors"`
	License      string       `json:"license,omitempty"`
	LicenseFile  string       `json:"license_file,omitempty"`
	Description  string       `json:"description,omitempty"`
	Edition      string       `json:"edition,omitempty"`
	Repository   string       `json:"repository,omitempty"`
	Homepage     string       `json:"homepage,omitempty"`
	Readme       string       `json:"readme,omitempty"`
	Source       string       `json:"source,omitempty"`

	// Publish is nil when the manifest has no `publish` key. A non-nil empty
	// list means the package must never be published.
	Publish *[]string `json:"publish"`
}

// PublishRestricted reports whether the manifest says `publish = false`.
func (p *Package) PublishRestricted() bool {
	return p.Publish != nil && len(*p.Publish) == 0
}

// PURL renders the package as a package-url, e.g. pkg:cargo/serde@1.0.0.
func (p *Package) PURL() string {
	return packageurl.NewPackageURL(packageurl.TypeCargo, "", p.Name, p.Version, nil, "").ToString()
}

// Dependency returns the first normal dependency on the named package.
func (p *Package) Dependency(name string) (Dependency, bool) {
	for _, d := range p.Dependencies {
		if d.Name == name && d.IsNormal() {
			return d, true
		}
	}
	return Dependency{}, false
}

// Declarations returns every normal dependency on the named package. A
// package may declare the same dependency once at the top level and again
// under one or more [target.<spec>] tables.
func (p *Package) Declarations(name string) []Dependency {
	var out []Dependency
	for _, d := range p.Dependencies {
		if d.Name == name && d.IsNormal() {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot is the decoded output of `cargo metadata`.
type Snapshot struct {
	Packages         []*Package  `json:"packages"`
	WorkspaceMembers []PackageID `json:"workspace_members"`
	WorkspaceRoot    string      `json:"workspace_root"`
	TargetDirectory  string      `json:"target_directory"`
	Version          int         `json:"version"`
}

// Package finds a package by id.
func (s *Snapshot) Package(id PackageID) (*Package, bool) {
	for _, p := range s.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// WorkspacePackages returns the member packages in workspace_members order.
// Members missing from the package list are skipped.
func (s *Snapshot) WorkspacePackages() []*Package {
	out := make([]*Package, 0, len(s.WorkspaceMembers))
	for _, id := range s.WorkspaceMembers {
		if p, ok := s.Package(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// Decode reads a snapshot from JSON.
func Decode(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode cargo metadata: %w", err)
	}
	if snap.Version != 0 && snap.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported cargo metadata format version %d", snap.Version)
	}
	return &snap, nil
}

// Load reads a snapshot previously captured with `cargo metadata > file`.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Exec runs `cargo metadata` and decodes its output. An empty manifestPath
// lets cargo discover the workspace from the current directory.
func Exec(ctx context.Context, cargo, manifestPath string) (*Snapshot, error) {
	if cargo == "" {
		cargo = "cargo"
	}
	args := []string{"metadata", "--format-version", fmt.Sprint(FormatVersion), "--no-deps"}
	if manifestPath != "" {
		args = append(args, "--manifest-path", manifestPath)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cargo, args...) //nolint:gosec // cargo binary comes from config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("cargo metadata failed: %w", err)
		}
		return nil, fmt.Errorf("cargo metadata failed: %w: %s", err, msg)
	}
	return Decode(&stdout)
}
