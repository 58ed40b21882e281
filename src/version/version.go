// Package version reports the lintrack release and the build it came from
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// set at link time, e.g.
//
//	go build -ldflags "-X github.com/will-rowe/lintrack/src/version.Commit=$(git rev-parse --short HEAD) -X github.com/will-rowe/lintrack/src/version.BuildDate=$(date -u +%F)"
var (
	Version   = "0.3.0-dev"
	Commit    = ""
	BuildDate = ""
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"buildDate,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information, falling back to the VCS revision the
// go tool embeds when no commit was set at link time
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.Commit = shorten(setting.Value)
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = setting.Value
				}
			}
		}
	}
	return info
}

func shorten(revision string) string {
	if len(revision) > 12 {
		return revision[:12]
	}
	return revision
}

// String formats the information for --version and run summaries
func (info Info) String() string {
	s := info.Version
	if info.Commit != "" {
		s += " (" + info.Commit
		if info.BuildDate != "" {
			s += ", " + info.BuildDate
		}
		s += ")"
	}
	return fmt.Sprintf("%s %s", s, info.GoVersion)
}
