package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Set at link time:
//
//	-X github.com/scriptducks/hashes-gui/internal/buildinfo.Version=v1.2.0
//	-X github.com/scriptducks/hashes-gui/internal/buildinfo.Commit=abcdef
//	-X github.com/scriptducks/hashes-gui/internal/buildinfo.Date=2026-01-18
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Current falls back to the VCS stamp of the binary when no ldflags were given.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if info.Commit != "" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			}
		}
	}
	return info
}

// UserAgent identifies the client in outgoing requests.
func UserAgent() string {
	return "hashes-gui/" + Version
}
