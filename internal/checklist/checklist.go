// Package checklist evaluates whether workspace members are ready to be
// published: required metadata, dependencies that cannot leave the
// workspace, and requirements that lag behind the version of the crate
// they point at.
package checklist

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/github/go-spdx/v2/spdxexp"
	"github.com/leapstack-labs/easyrelease/internal/metadata"
	"github.com/leapstack-labs/easyrelease/internal/workspace"
)

// Status is the result of a single check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check names.
const (
	CheckKeywords     = "keywords"
	CheckAuthors      = "authors"
	CheckEdition      = "edition"
	CheckLicense      = "license"
	CheckDescription  = "description"
	CheckPublish      = "publish"
	CheckLocalDeps    = "local-deps"
	CheckRequirements = "requirements"
)

// Check is one line of a package checklist.
type Check struct {
	Name   string `json:"name" yaml:"name"`
	Status Status `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DriftState classifies an in-workspace dependency requirement.
type DriftState string

const (
	// DriftOK means the requirement accepts the dependency's current version.
	DriftOK DriftState = "ok"
	// DriftStale means the requirement does not accept the current version.
	DriftStale DriftState = "stale"
	// DriftUnversioned means the dependency has no version requirement and
	// can only be resolved through its path.
	DriftUnversioned DriftState = "unversioned"
)

// Drift compares one dependency requirement with the dependency's version.
type Drift struct {
	Dependency  string                  `json:"dependency" yaml:"dependency"`
	Kind        metadata.DependencyKind `json:"kind" yaml:"kind"`
	Requirement string                  `json:"requirement" yaml:"requirement"`
	Version     string                  `json:"version" yaml:"version"`
	State       DriftState              `json:"state" yaml:"state"`
}

// Report is the checklist of one package.
type Report struct {
	Package   metadata.PackageID `json:"package" yaml:"package"`
	Name      string             `json:"name" yaml:"name"`
	Version   string             `json:"version" yaml:"version"`
	PURL      string             `json:"purl" yaml:"purl"`
	Checks    []Check            `json:"checks" yaml:"checks"`
	LocalDeps []string           `json:"local_deps,omitempty" yaml:"local_deps,omitempty"`
	Drift     []Drift            `json:"drift,omitempty" yaml:"drift,omitempty"`
}

// Ready reports whether no check failed.
func (r Report) Ready() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return false
		}
	}
	return true
}

// Check returns the named check.
func (r Report) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// Evaluate builds the checklist of a workspace member.
func Evaluate(g *workspace.Graph, id metadata.PackageID) (Report, error) {
	pkg, ok := g.Package(id)
	if !ok {
		return Report{}, fmt.Errorf("package %s is not a workspace member", id)
	}

	r := Report{
		Package: id,
		Name:    pkg.Name,
		Version: pkg.Version,
		PURL:    pkg.PURL(),
	}
	r.LocalDeps = LocalDeps(pkg)
	r.Drift = RequirementDrift(g, id)

	r.Checks = []Check{
		listCheck(CheckKeywords, pkg.Keywords, StatusWarn),
		listCheck(CheckAuthors, pkg.Authors, StatusWarn),
		editionCheck(pkg.Edition),
		licenseCheck(pkg),
		descriptionCheck(pkg.Description),
		publishCheck(pkg),
		localDepsCheck(r.LocalDeps),
		driftCheck(r.Drift),
	}
	return r, nil
}

// EvaluateAll returns the checklist of every member in publish order.
func EvaluateAll(g *workspace.Graph) ([]Report, error) {
	sorted := g.Sorted()
	out := make([]Report, 0, len(sorted))
	for _, ranked := range sorted {
		r, err := Evaluate(g, ranked.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// LocalDeps returns the dependencies that prevent pkg from being published:
// git dependencies, and normal path dependencies without a version requirement.
func LocalDeps(pkg *metadata.Package) []string {
	var out []string
	for _, d := range pkg.Dependencies {
		if strings.HasPrefix(d.Source, "git+") {
			out = append(out, d.Name)
			continue
		}
		if d.Path != "" && d.IsNormal() && unversioned(d.Req) {
			out = append(out, d.Name)
		}
	}
	return out
}

// RequirementDrift compares each in-workspace dependency requirement of id
// with the current version of the dependency. Dev and build dependencies
// are included when they carry a version requirement; path-only ones are
// left out since cargo strips them from the published manifest.
func RequirementDrift(g *workspace.Graph, id metadata.PackageID) []Drift {
	pkg, ok := g.Package(id)
	if !ok {
		return nil
	}

	var out []Drift
	for _, depID := range g.Deps(id) {
		depPkg, _ := g.Package(depID)
		dep, ok := pkg.Dependency(depPkg.Name)
		if !ok {
			continue
		}
		out = append(out, Drift{
			Dependency:  depPkg.Name,
			Kind:        metadata.KindNormal,
			Requirement: dep.Req,
			Version:     depPkg.Version,
			State:       StateOf(dep.Req, depPkg.Version),
		})
	}

	seen := make(map[string]struct{})
	for _, dep := range pkg.Dependencies {
		if dep.IsNormal() || unversioned(dep.Req) {
			continue
		}
		depID, ok := g.Lookup(dep.Name)
		if !ok {
			continue
		}
		key := string(dep.Kind) + "/" + dep.Name
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		depPkg, _ := g.Package(depID)
		out = append(out, Drift{
			Dependency:  depPkg.Name,
			Kind:        dep.Kind,
			Requirement: dep.Req,
			Version:     depPkg.Version,
			State:       StateOf(dep.Req, depPkg.Version),
		})
	}
	return out
}

// StateOf classifies req against version using cargo's reading of bare
// versions.
func StateOf(req, version string) DriftState {
	if unversioned(req) {
		return DriftUnversioned
	}
	c, err := semver.NewConstraint(cargoConstraint(req))
	if err != nil {
		return DriftStale
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return DriftStale
	}
	if c.Check(v) {
		return DriftOK
	}
	return DriftStale
}

// cargoConstraint rewrites bare versions to caret form; cargo reads "1.2"
// as "^1.2" while semver treats it as an exact match.
func cargoConstraint(req string) string {
	parts := strings.Split(req, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p[0] >= '0' && p[0] <= '9' {
			p = "^" + p
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

func unversioned(req string) bool {
	req = strings.TrimSpace(req)
	return req == "" || req == "*"
}

func listCheck(name string, values []string, missing Status) Check {
	if len(values) == 0 {
		return Check{Name: name, Status: missing, Detail: "missing " + name}
	}
	return Check{Name: name, Status: StatusOK, Detail: strings.Join(values, ", ")}
}

func editionCheck(edition string) Check {
	if edition == "" {
		return Check{Name: CheckEdition, Status: StatusWarn, Detail: "no edition, cargo assumes 2015"}
	}
	return Check{Name: CheckEdition, Status: StatusOK, Detail: "edition " + edition}
}

func licenseCheck(pkg *metadata.Package) Check {
	switch {
	case pkg.License != "":
		if valid, invalid := spdxexp.ValidateLicenses([]string{pkg.License}); !valid {
			return Check{Name: CheckLicense, Status: StatusFail,
				Detail: fmt.Sprintf("%s is not a valid SPDX expression (%s)", pkg.License, strings.Join(invalid, ", "))}
		}
		return Check{Name: CheckLicense, Status: StatusOK, Detail: pkg.License}
	case pkg.LicenseFile != "":
		return Check{Name: CheckLicense, Status: StatusOK, Detail: "license file " + pkg.LicenseFile}
	}
	return Check{Name: CheckLicense, Status: StatusFail, Detail: "missing license"}
}

func descriptionCheck(description string) Check {
	if strings.TrimSpace(description) == "" {
		return Check{Name: CheckDescription, Status: StatusFail, Detail: "missing description"}
	}
	return Check{Name: CheckDescription, Status: StatusOK, Detail: description}
}

func publishCheck(pkg *metadata.Package) Check {
	switch {
	case pkg.PublishRestricted():
		return Check{Name: CheckPublish, Status: StatusWarn, Detail: "publish = false"}
	case pkg.Publish != nil:
		return Check{Name: CheckPublish, Status: StatusOK, Detail: "registries: " + strings.Join(*pkg.Publish, ", ")}
	}
	return Check{Name: CheckPublish, Status: StatusOK}
}

func localDepsCheck(local []string) Check {
	if len(local) > 0 {
		return Check{Name: CheckLocalDeps, Status: StatusFail, Detail: "unpublishable dependencies: " + strings.Join(local, ", ")}
	}
	return Check{Name: CheckLocalDeps, Status: StatusOK}
}

func driftCheck(drift []Drift) Check {
	var stale []string
	for _, d := range drift {
		if d.State != DriftStale {
			continue
		}
		if d.Kind == metadata.KindDev || d.Kind == metadata.KindBuild {
			stale = append(stale, fmt.Sprintf("%s %s (now %s, %s)", d.Dependency, d.Requirement, d.Version, d.Kind))
			continue
		}
		stale = append(stale, fmt.Sprintf("%s %s (now %s)", d.Dependency, d.Requirement, d.Version))
	}
	if len(stale) > 0 {
		return Check{Name: CheckRequirements, Status: StatusWarn, Detail: "stale requirements: " + strings.Join(stale, "; ")}
	}
	return Check{Name: CheckRequirements, Status: StatusOK}
}
