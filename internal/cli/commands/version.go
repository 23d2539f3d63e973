package commands

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// ResolveBuildInfo fills the commit and build date the linker left as
// "unknown" from the VCS stamp of the Go build, when there is one.
func ResolveBuildInfo(version, commit, date string) BuildInfo {
	info := BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return info.withSettings(bi.Settings)
}

func (b BuildInfo) withSettings(settings []debug.BuildSetting) BuildInfo {
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" || b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "unknown" || b.BuildDate == "" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && b.Commit != "unknown" && b.Commit != "" {
		b.Commit += "-dirty"
	}
	return b
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display easyrelease version information: release, commit, build date,
Go toolchain and platform. Honours --output json and yaml.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := NewCommandContext(cmd, "").Renderer
			if ok, err := r.Structured(info); ok {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "easyrelease v%s\n", info.Version)
			_, _ = fmt.Fprintln(out, "Publish order, version bumps and releases for Cargo workspaces")
			_, _ = fmt.Fprintf(out, "  commit:   %s\n", info.Commit)
			_, _ = fmt.Fprintf(out, "  built:    %s\n", info.BuildDate)
			_, _ = fmt.Fprintf(out, "  go:       %s %s\n", info.GoVersion, info.Platform)
			return nil
		},
	}
}
