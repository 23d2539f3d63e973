package bump

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Strategy selects how a version is incremented.
type Strategy string

// Supported strategies.
const (
	// StrategyMinor increments the minor component and resets patch.
	StrategyMinor Strategy = "minor"
	// StrategyMinorKeepPatch increments the minor component and keeps patch as is.
	StrategyMinorKeepPatch Strategy = "minor-keep-patch"
	StrategyPatch          Strategy = "patch"
	StrategyMajor          Strategy = "major"
)

// Strategies lists every supported strategy.
func Strategies() []Strategy {
	return []Strategy{StrategyMinor, StrategyMinorKeepPatch, StrategyPatch, StrategyMajor}
}

// ParseStrategy converts a name to a Strategy. The empty string selects StrategyMinor.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategyMinor, nil
	}
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

// Validate returns an error for unknown strategies.
func (s Strategy) Validate() error {
	for _, known := range Strategies() {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown bump strategy %q (valid: minor, minor-keep-patch, patch, major)", string(s))
}

// Next returns the version following current. Pre-release and build metadata are dropped.
func (s Strategy) Next(current string) (string, error) {
	v, err := semver.StrictNewVersion(current)
	if err != nil {
		return "", fmt.Errorf("invalid version %q: %w", current, err)
	}

	var next semver.Version
	switch s {
	case StrategyMinor, "":
		next = v.IncMinor()
	case StrategyMinorKeepPatch:
		next = *semver.New(v.Major(), v.Minor()+1, v.Patch(), "", "")
	case StrategyPatch:
		next = *semver.New(v.Major(), v.Minor(), v.Patch()+1, "", "")
	case StrategyMajor:
		next = v.IncMajor()
	default:
		return "", s.Validate()
	}
	return next.String(), nil
}

// Requirement returns the caret requirement dependents are rewritten to.
func Requirement(version string) string {
	return "^" + version
}
