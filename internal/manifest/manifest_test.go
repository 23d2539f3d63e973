package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appManifest = `# The application crate.
[package]
name = "app"
version = "1.2.3"   # bumped by release tooling
edition = "2021"
keywords = [
    "cli",
    "release",
]
description = """
Ships [crates] in order.
version = "not a key"
"""

[features]
default = ["std"]

[dependencies]
serde = { version = "1", features = ["derive"] }
core = { path = "../core", version = "^1.2.0" } # workspace crate

[dev-dependencies]
core = { path = "../core", version = "^1.2.0" }

[target.'cfg(unix)'.dependencies]
core = "1.0"
`

func mustParse(t *testing.T, content string) *Document {
	t.Helper()
	d, err := Parse("Cargo.toml", []byte(content))
	require.NoError(t, err)
	return d
}

func TestDocument_Read(t *testing.T) {
	d := mustParse(t, appManifest)

	assert.Equal(t, "app", d.PackageName())

	v, err := d.PackageVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	req, err := d.DependencyRequirement(Dependencies(""), "core")
	require.NoError(t, err)
	assert.Equal(t, "^1.2.0", req)

	req, err = d.DependencyRequirement(Dependencies(""), "serde")
	require.NoError(t, err)
	assert.Equal(t, "1", req)

	assert.False(t, d.Modified())
}

func TestDocument_SetPackageVersion_PreservesEverythingElse(t *testing.T) {
	d := mustParse(t, appManifest)

	require.NoError(t, d.SetPackageVersion("1.3.0"))

	want := strings.Replace(appManifest, `version = "1.2.3"   # bumped`, `version = "1.3.0"   # bumped`, 1)
	assert.Equal(t, want, string(d.Bytes()))
	assert.Equal(t, appManifest, string(d.Original()))
	assert.True(t, d.Modified())
}

func TestDocument_SetDependencyRequirement_OnlyNormalSection(t *testing.T) {
	d := mustParse(t, appManifest)

	require.NoError(t, d.SetDependencyRequirement(Dependencies(""), "core", "^1.3.0"))

	want := strings.Replace(appManifest,
		`core = { path = "../core", version = "^1.2.0" } # workspace crate`,
		`core = { path = "../core", version = "^1.3.0" } # workspace crate`, 1)
	assert.Equal(t, want, string(d.Bytes()))
}

func TestDocument_SetDependencyRequirement_Forms(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
	}{
		{
			name:   "plain string",
			before: "[package]\nname = \"b\"\nversion = \"0.1.0\"\n\n[dependencies]\na = \"1.2.0\"\n",
			after:  "[package]\nname = \"b\"\nversion = \"0.1.0\"\n\n[dependencies]\na = \"^1.3.0\"\n",
		},
		{
			name:   "literal string",
			before: "[dependencies]\na = '1.2.0'\n",
			after:  "[dependencies]\na = '^1.3.0'\n",
		},
		{
			name:   "inline table without version",
			before: "[dependencies]\na = { path = \"../a\" }\n",
			after:  "[dependencies]\na = { version = \"^1.3.0\", path = \"../a\" }\n",
		},
		{
			name:   "empty inline table",
			before: "[dependencies]\na = {}\n",
			after:  "[dependencies]\na = { version = \"^1.3.0\" }\n",
		},
		{
			name:   "sub-table",
			before: "[dependencies.a]\npath = \"../a\"\nversion = \"1.2\" # pinned\n",
			after:  "[dependencies.a]\npath = \"../a\"\nversion = \"^1.3.0\" # pinned\n",
		},
		{
			name:   "sub-table without version",
			before: "[dependencies.a]\npath = \"../a\"\n",
			after:  "[dependencies.a]\nversion = \"^1.3.0\"\npath = \"../a\"\n",
		},
		{
			name:   "dotted key",
			before: "[dependencies]\na.path = \"../a\"\na.version = \"1.2\"\n",
			after:  "[dependencies]\na.path = \"../a\"\na.version = \"^1.3.0\"\n",
		},
		{
			name:   "quoted key",
			before: "[dependencies]\n\"a\" = { version = \"1.2\", path = \"../a\" }\n",
			after:  "[dependencies]\n\"a\" = { version = \"^1.3.0\", path = \"../a\" }\n",
		},
		{
			name:   "dotted key without version",
			before: "[dependencies]\n  a.path = \"../a\"\n",
			after:  "[dependencies]\n  a.version = \"^1.3.0\"\n  a.path = \"../a\"\n",
		},
		{
			name:   "inline table with multi-line array",
			before: "[dependencies]\na = { path = \"../a\", features = [\n  \"x\",\n], version = \"^1.2.0\" }\n",
			after:  "[dependencies]\na = { path = \"../a\", features = [\n  \"x\",\n], version = \"^1.3.0\" }\n",
		},
		{
			name:   "unrelated table first",
			before: "[target]\n\n[dependencies]\na = { version = \"1.2\", optional = true }\n",
			after:  "[target]\n\n[dependencies]\na = { version = \"^1.3.0\", optional = true }\n",
		},
		{
			name:   "header with trailing comment",
			before: "[dependencies.a] # workspace crate\npath = \"../a\"\n",
			after:  "[dependencies.a] # workspace crate\nversion = \"^1.3.0\"\npath = \"../a\"\n",
		},
		{
			name:   "no trailing newline",
			before: "[dependencies.a]\npath = \"../a\"",
			after:  "[dependencies.a]\nversion = \"^1.3.0\"\npath = \"../a\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustParse(t, tt.before)
			require.NoError(t, d.SetDependencyRequirement(Dependencies(""), "a", "^1.3.0"))
			assert.Equal(t, tt.after, string(d.Bytes()))

			req, err := d.DependencyRequirement(Dependencies(""), "a")
			require.NoError(t, err)
			assert.Equal(t, "^1.3.0", req)
		})
	}
}

func TestDocument_SetDependencyRequirement_TargetTable(t *testing.T) {
	d := mustParse(t, appManifest)
	unix := Dependencies("cfg(unix)")

	req, err := d.DependencyRequirement(unix, "core")
	require.NoError(t, err)
	assert.Equal(t, "1.0", req)

	require.NoError(t, d.SetDependencyRequirement(unix, "core", "^1.3.0"))

	want := strings.Replace(appManifest,
		"[target.'cfg(unix)'.dependencies]\ncore = \"1.0\"",
		"[target.'cfg(unix)'.dependencies]\ncore = \"^1.3.0\"", 1)
	assert.Equal(t, want, string(d.Bytes()))

	req, err = d.DependencyRequirement(Dependencies(""), "core")
	require.NoError(t, err)
	assert.Equal(t, "^1.2.0", req, "top-level table untouched")
}

func TestDocument_SetDependencyRequirement_TargetForms(t *testing.T) {
	tests := []struct {
		name   string
		target string
		before string
		after  string
	}{
		{
			name:   "target triple sub-table",
			target: "x86_64-pc-windows-gnu",
			before: "[target.x86_64-pc-windows-gnu.dependencies.a]\npath = \"../a\"\n",
			after:  "[target.x86_64-pc-windows-gnu.dependencies.a]\nversion = \"^1.3.0\"\npath = \"../a\"\n",
		},
		{
			name:   "dotted keys under target table",
			target: "cfg(windows)",
			before: "[target.\"cfg(windows)\"]\ndependencies.a = { path = \"../a\", version = \"1\" }\n",
			after:  "[target.\"cfg(windows)\"]\ndependencies.a = { path = \"../a\", version = \"^1.3.0\" }\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustParse(t, tt.before)
			require.NoError(t, d.SetDependencyRequirement(Dependencies(tt.target), "a", "^1.3.0"))
			assert.Equal(t, tt.after, string(d.Bytes()))
		})
	}
}

func TestDocument_InsertKeepsLineEndings(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
	}{
		{
			name:   "sub-table",
			before: "[dependencies.a]\r\npath = \"../a\"\r\n",
			after:  "[dependencies.a]\r\nversion = \"^1.3.0\"\r\npath = \"../a\"\r\n",
		},
		{
			name:   "dotted key",
			before: "[dependencies]\r\na.path = \"../a\"\r\n",
			after:  "[dependencies]\r\na.version = \"^1.3.0\"\r\na.path = \"../a\"\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustParse(t, tt.before)
			require.NoError(t, d.SetDependencyRequirement(Dependencies(""), "a", "^1.3.0"))
			assert.Equal(t, tt.after, string(d.Bytes()))
		})
	}
}

func TestDocument_SetPackageVersion_MultiLineString(t *testing.T) {
	d := mustParse(t, "[package]\nname = \"b\"\nversion = \"\"\"0.1.0\"\"\"\n")

	require.NoError(t, d.SetPackageVersion("0.2.0"))
	assert.Equal(t, "[package]\nname = \"b\"\nversion = \"0.2.0\"\n", string(d.Bytes()))
}

func TestTable_String(t *testing.T) {
	assert.Equal(t, "dependencies", Dependencies("").String())
	assert.Equal(t, "target.'cfg(unix)'.dependencies", Dependencies("cfg(unix)").String())
	assert.Equal(t, "target.wasm32-unknown-unknown.dependencies", Dependencies("wasm32-unknown-unknown").String())
	assert.Equal(t, "target.x.dev-dependencies", Table{Name: "dev-dependencies", Target: "x"}.String())
}

func TestDocument_WorkspaceInherited(t *testing.T) {
	d := mustParse(t, "[package]\nname = \"b\"\nversion.workspace = true\n\n[dependencies]\na = { workspace = true }\n")

	_, err := d.PackageVersion()
	assert.ErrorIs(t, err, ErrParse)
	assert.ErrorIs(t, err, ErrWorkspaceInherited)

	err = d.SetPackageVersion("1.0.0")
	assert.ErrorIs(t, err, ErrWorkspaceInherited)

	err = d.SetDependencyRequirement(Dependencies(""), "a", "^1.0.0")
	assert.ErrorIs(t, err, ErrWorkspaceInherited)
	assert.False(t, d.Modified())
}

func TestDocument_MissingDependency(t *testing.T) {
	d := mustParse(t, "[package]\nname = \"b\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = \"1\"\n")

	err := d.SetDependencyRequirement(Dependencies(""), "a", "^1.0.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)

	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, ParseError, mErr.Kind)
	assert.Equal(t, "Cargo.toml", mErr.Path)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("bad.toml", []byte("[package\nname = "))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
	assert.False(t, errors.Is(err, ErrRead))
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte(appManifest), 0o600))

	d, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, path, d.Path())

	_, err = Read(filepath.Join(dir, "missing", "Cargo.toml"))
	assert.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
