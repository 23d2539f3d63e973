package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/leapstack-labs/easyrelease/internal/metadata"
)

// Crate describes one workspace member of a test fixture.
type Crate struct {
	Name    string
	Version string
	Deps    []Dep
	// Publish mirrors the manifest `publish` key; use NeverPublish for `publish = false`.
	Publish     *[]string
	Keywords    []string
	Authors     []string
	License     string
	Description string
	Edition     string
	// Manifest, when set, is written verbatim instead of the generated manifest.
	Manifest string
}

// Dep is a dependency of a fixture crate.
type Dep struct {
	Name   string
	Req    string
	Kind   metadata.DependencyKind
	Rename string
	// Target scopes the dependency to a [target.<spec>] table, e.g. "cfg(unix)".
	Target string
	// External deps are registry deps and get no path.
	External bool
}

// NeverPublish returns the value cargo reports for `publish = false`.
func NeverPublish() *[]string {
	empty := []string{}
	return &empty
}

// Snapshot builds an in-memory snapshot rooted at root without touching disk.
func Snapshot(root string, crates ...Crate) *metadata.Snapshot {
	snap := &metadata.Snapshot{
		WorkspaceRoot: root,
		Version:       metadata.FormatVersion,
	}
	for _, c := range crates {
		version := c.Version
		if version == "" {
			version = "0.1.0"
		}
		id := PackageID(root, c.Name, version)
		pkg := &metadata.Package{
			ID:           id,
			Name:         c.Name,
			Version:      version,
			ManifestPath: filepath.Join(root, c.Name, "Cargo.toml"),
			Keywords:     c.Keywords,
			Authors:      c.Authors,
			License:      c.License,
			Description:  c.Description,
			Edition:      c.Edition,
			Publish:      c.Publish,
		}
		for _, d := range c.Deps {
			kind := d.Kind
			if kind == "" {
				kind = metadata.KindNormal
			}
			dep := metadata.Dependency{Name: d.Name, Req: d.Req, Kind: kind, Rename: d.Rename, Target: d.Target}
			if d.External {
				dep.Source = "registry+https://github.com/rust-lang/crates.io-index"
			} else {
				dep.Path = filepath.Join(root, d.Name)
			}
			if dep.Req == "" {
				dep.Req = "*"
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}
		snap.Packages = append(snap.Packages, pkg)
		snap.WorkspaceMembers = append(snap.WorkspaceMembers, id)
	}
	return snap
}

// PackageID returns the id cargo assigns to a path package.
func PackageID(root, name, version string) metadata.PackageID {
	return metadata.PackageID(fmt.Sprintf("path+file://%s#%s@%s", filepath.Join(root, name), name, version))
}

// WriteWorkspace writes a manifest for every crate under a temporary
// directory and returns the matching snapshot.
func WriteWorkspace(t testing.TB, crates ...Crate) *metadata.Snapshot {
	t.Helper()

	root := t.TempDir()
	for _, c := range crates {
		dir := filepath.Join(root, c.Name)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create crate directory %s: %v", dir, err)
		}
		content := c.Manifest
		if content == "" {
			content = RenderManifest(c)
		}
		if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write manifest for %s: %v", c.Name, err)
		}
	}
	return Snapshot(root, crates...)
}

// RenderManifest produces a Cargo.toml for a fixture crate.
func RenderManifest(c Crate) string {
	version := c.Version
	if version == "" {
		version = "0.1.0"
	}
	edition := c.Edition
	if edition == "" {
		edition = "2021"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[package]\nname = %q\nversion = %q\nedition = %q\n", c.Name, version, edition)
	if c.License != "" {
		fmt.Fprintf(&b, "license = %q\n", c.License)
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "description = %q\n", c.Description)
	}
	if c.Publish != nil && len(*c.Publish) == 0 {
		b.WriteString("publish = false\n")
	}

	targets := []string{""}
	for _, d := range c.Deps {
		if d.Target != "" && !slices.Contains(targets, d.Target) {
			targets = append(targets, d.Target)
		}
	}
	sections := []struct {
		header string
		kind   metadata.DependencyKind
	}{
		{"dependencies", metadata.KindNormal},
		{"dev-dependencies", metadata.KindDev},
		{"build-dependencies", metadata.KindBuild},
	}
	for _, target := range targets {
		for _, s := range sections {
			var lines []string
			for _, d := range c.Deps {
				kind := d.Kind
				if kind == "" {
					kind = metadata.KindNormal
				}
				if kind != s.kind || d.Target != target {
					continue
				}
				lines = append(lines, renderDep(d))
			}
			if len(lines) == 0 {
				continue
			}
			header := s.header
			if target != "" {
				header = "target.'" + target + "'." + s.header
			}
			fmt.Fprintf(&b, "\n[%s]\n%s\n", header, strings.Join(lines, "\n"))
		}
	}
	return b.String()
}

func renderDep(d Dep) string {
	key := d.Name
	if d.Rename != "" {
		key = d.Rename
	}
	if d.External {
		return fmt.Sprintf("%s = %q", key, d.Req)
	}
	parts := []string{fmt.Sprintf("path = %q", "../"+d.Name)}
	if d.Req != "" {
		parts = append(parts, fmt.Sprintf("version = %q", d.Req))
	}
	if d.Rename != "" {
		parts = append(parts, fmt.Sprintf("package = %q", d.Name))
	}
	return fmt.Sprintf("%s = { %s }", key, strings.Join(parts, ", "))
}

// WriteMetadata writes snap as `cargo metadata` JSON into the workspace
// root and returns the file path.
func WriteMetadata(t testing.TB, snap *metadata.Snapshot) string {
	t.Helper()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		t.Fatalf("failed to encode metadata: %v", err)
	}
	path := filepath.Join(snap.WorkspaceRoot, "metadata.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}
	return path
}
