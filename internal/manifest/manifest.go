// Package manifest reads and edits Cargo.toml files without reformatting them.
//
// Edits replace only the bytes of the value being changed; comments, key
// order, whitespace and every other value are preserved exactly. Value
// positions come from the go-toml parser, and after each edit the document
// is re-parsed to make sure the new value reads back as written.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

// Table names a dependency table: [dependencies], [dev-dependencies] or
// [build-dependencies], optionally scoped to a [target.<spec>] table.
type Table struct {
	Name   string
	Target string
}

// Dependencies returns the normal dependency table for target; an empty
// target is the top-level [dependencies] table.
func Dependencies(target string) Table {
	return Table{Name: "dependencies", Target: target}
}

func (t Table) path() []string {
	if t.Target == "" {
		return []string{t.Name}
	}
	return []string{"target", t.Target, t.Name}
}

// String renders the table the way it is written in a header.
func (t Table) String() string {
	if t.Target == "" {
		return t.Name
	}
	return "target." + quoteKey(t.Target) + "." + t.Name
}

// Document is an in-memory Cargo.toml.
type Document struct {
	path string
	orig string
	src  string
	data map[string]any
}

// Read loads and parses the manifest at path.
func Read(path string) (*Document, error) {
	b, err := os.ReadFile(path) //nolint:gosec // manifest paths come from cargo metadata
	if err != nil {
		return nil, readErr(path, err)
	}
	return Parse(path, b)
}

// Parse parses manifest content; path is only used in error messages.
func Parse(path string, content []byte) (*Document, error) {
	d := &Document{path: path, orig: string(content), src: string(content)}
	if err := d.decode(); err != nil {
		return nil, parseErr(path, err)
	}
	return d, nil
}

func (d *Document) decode() error {
	var m map[string]any
	if err := toml.Unmarshal([]byte(d.src), &m); err != nil {
		return err
	}
	d.data = m
	return nil
}

// Path returns the file the document was read from.
func (d *Document) Path() string { return d.path }

// Bytes returns the current, possibly edited, content.
func (d *Document) Bytes() []byte { return []byte(d.src) }

// Original returns the content as it was read.
func (d *Document) Original() []byte { return []byte(d.orig) }

// Modified reports whether any edit has been applied.
func (d *Document) Modified() bool { return d.src != d.orig }

// PackageName returns package.name, or "" if absent.
func (d *Document) PackageName() string {
	pkg, _ := d.data["package"].(map[string]any)
	name, _ := pkg["name"].(string)
	return name
}

// PackageVersion returns package.version.
func (d *Document) PackageVersion() (string, error) {
	pkg, ok := d.data["package"].(map[string]any)
	if !ok {
		return "", parseErr(d.path, errors.New("no [package] table"))
	}
	switch v := pkg["version"].(type) {
	case string:
		return v, nil
	case map[string]any:
		return "", parseErr(d.path, fmt.Errorf("package.version: %w", ErrWorkspaceInherited))
	case nil:
		return "", parseErr(d.path, errors.New("package.version is missing"))
	default:
		return "", parseErr(d.path, fmt.Errorf("package.version has unexpected type %T", v))
	}
}

// DependencyRequirement returns the version requirement of the entry
// declared under key in table t. A path-only dependency yields "".
func (d *Document) DependencyRequirement(t Table, key string) (string, error) {
	deps, ok := tableAt(d.data, t.path())
	if !ok {
		return "", parseErr(d.path, fmt.Errorf("no [%s] table", t))
	}
	switch v := deps[key].(type) {
	case string:
		return v, nil
	case map[string]any:
		if ws, _ := v["workspace"].(bool); ws {
			return "", parseErr(d.path, fmt.Errorf("%s.%s: %w", t, key, ErrWorkspaceInherited))
		}
		req, _ := v["version"].(string)
		return req, nil
	case nil:
		return "", parseErr(d.path, fmt.Errorf("dependency %q is not declared in [%s]", key, t))
	default:
		return "", parseErr(d.path, fmt.Errorf("%s.%s has unexpected type %T", t, key, v))
	}
}

func tableAt(data map[string]any, path []string) (map[string]any, bool) {
	m := data
	for _, k := range path {
		next, ok := m[k].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	return m, true
}

// SetPackageVersion rewrites package.version.
func (d *Document) SetPackageVersion(version string) error {
	if _, err := d.PackageVersion(); err != nil {
		return err
	}
	entries, err := d.locate()
	if err != nil {
		return err
	}
	v, ok := lookup(entries, []string{"package", "version"})
	if !ok || v.kind != unstable.String {
		return parseErr(d.path, errors.New("package.version is not a plain string"))
	}
	return d.replaceString(v.span, version, d.PackageVersion)
}

// SetDependencyRequirement rewrites the version requirement of the entry
// declared under key in table t. Plain strings, inline tables, sub-tables
// and dotted keys are supported. A missing version on a path dependency is
// inserted.
func (d *Document) SetDependencyRequirement(t Table, key, req string) error {
	if _, err := d.DependencyRequirement(t, key); err != nil {
		return err
	}
	readBack := func() (string, error) { return d.DependencyRequirement(t, key) }

	entries, err := d.locate()
	if err != nil {
		return err
	}
	dep := append(t.path(), key)
	version := append(dep[:len(dep):len(dep)], "version")

	if v, ok := lookup(entries, version); ok {
		if v.kind != unstable.String {
			return parseErr(d.path, fmt.Errorf("%s.%s.version is not a string", t, key))
		}
		return d.replaceString(v.span, req, readBack)
	}

	if v, ok := lookup(entries, dep); ok {
		switch v.kind {
		case unstable.String:
			return d.replaceString(v.span, req, readBack)
		case unstable.InlineTable:
			return d.insertInline(v, req, readBack)
		}
		return parseErr(d.path, fmt.Errorf("%s.%s has an unsupported value", t, key))
	}

	eol := lineEnding(d.src)
	line := `version = "` + req + `"`
	if h, ok := header(entries, dep); ok {
		at := h.keys[len(h.keys)-1].end
		if i := strings.IndexByte(d.src[at:], '\n'); i >= 0 {
			at += i + 1
			return d.apply(d.src[:at]+line+eol+d.src[at:], req, readBack)
		}
		return d.apply(d.src+eol+line, req, readBack)
	}

	if e, ok := dottedUnder(entries, dep); ok {
		// Repeat the entry's own key prefix, e.g. `a.` for `a.path = ".."`.
		below := len(dep) - len(e.table)
		start := e.keys[0].start
		prefix := d.src[start:e.keys[below].start]
		lineStart := strings.LastIndexByte(d.src[:start], '\n') + 1
		if strings.TrimLeft(d.src[lineStart:start], " \t") != "" {
			return parseErr(d.path, fmt.Errorf("%s.%s has no editable version", t, key))
		}
		indent := d.src[lineStart:start]
		return d.apply(d.src[:lineStart]+indent+prefix+line+eol+d.src[lineStart:], req, readBack)
	}

	return parseErr(d.path, fmt.Errorf("%s.%s has no editable version", t, key))
}

// insertInline adds a version field to an inline table that has none.
func (d *Document) insertInline(v value, req string, readBack func() (string, error)) error {
	field := `version = "` + req + `"`
	if len(v.fields) > 0 {
		first := v.fields[0].keys[0].start
		return d.apply(d.src[:first]+field+", "+d.src[first:], req, readBack)
	}
	open := v.span.start
	closing := open + 1 + len(d.src[open+1:]) - len(strings.TrimLeft(d.src[open+1:], " \t"))
	if closing >= len(d.src) || d.src[closing] != '}' {
		return parseErr(d.path, fmt.Errorf("cannot find the end of the inline table at offset %d", open))
	}
	return d.apply(d.src[:open]+"{ "+field+" }"+d.src[closing+1:], req, readBack)
}

func (d *Document) locate() ([]entry, error) {
	entries, err := locate([]byte(d.src))
	if err != nil {
		return nil, parseErr(d.path, err)
	}
	return entries, nil
}

// replaceString swaps the string literal at s for value. Single-line
// literals keep their quote style; multi-line ones become basic strings.
func (d *Document) replaceString(s span, value string, readBack func() (string, error)) error {
	q := d.src[s.start : s.start+1]
	if lit := d.src[s.start:s.end]; strings.HasPrefix(lit, `"""`) || strings.HasPrefix(lit, `'''`) {
		q = `"`
	}
	return d.apply(d.src[:s.start]+q+value+q+d.src[s.end:], value, readBack)
}

// apply installs edited if it parses and readBack returns want; otherwise
// the document is left unchanged.
func (d *Document) apply(edited, want string, readBack func() (string, error)) error {
	prevSrc, prevData := d.src, d.data
	d.src = edited
	if err := d.decode(); err != nil {
		d.src, d.data = prevSrc, prevData
		return parseErr(d.path, fmt.Errorf("edit produced invalid TOML: %w", err))
	}
	got, err := readBack()
	if err != nil || got != want {
		d.src, d.data = prevSrc, prevData
		if err != nil {
			return err
		}
		return parseErr(d.path, fmt.Errorf("edit did not take effect: read back %q, want %q", got, want))
	}
	return nil
}
