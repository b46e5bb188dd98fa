// Package version reports build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/smazurov/framerec/internal/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"v0.3.0"`
	GitCommit string `json:"git_commit" example:"3f2c1ab"`
	BuildDate string `json:"build_date" example:"2026-01-02T15:04:05Z"`
	GoVersion string `json:"go_version" example:"go1.24.0"`
	Platform  string `json:"platform" example:"linux/amd64"`
}

// Get returns version and build information. When GitCommit was not set
// by ldflags, the VCS revision stamped by the Go toolchain is used.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.GitCommit == "unknown" {
		if rev := vcsRevision(); rev != "" {
			info.GitCommit = rev
		}
	}
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}

// String returns a one-line description for --version output.
func (i Info) String() string {
	return fmt.Sprintf("framerec %s (%s, built %s, %s %s)", i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}

// String returns the application version.
func String() string {
	return Version
}
