package config

import "runtime/debug"

// Linker-injected build metadata of the recorder binary itself, for example:
//
//	go build -ldflags "-X buildrecorder/internal/config.version=1.2.3 \
//	    -X buildrecorder/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X buildrecorder/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

const shortCommitLen = 12

// NewBuildInfo constructs a BuildInfo from the linker-injected global variables.
// Values left at their defaults are filled from the module and VCS stamps the
// Go toolchain embeds (go install, or go build inside a checkout).
func NewBuildInfo() BuildInfo {
	return newBuildInfo(debug.ReadBuildInfo)
}

func newBuildInfo(read func() (*debug.BuildInfo, bool)) BuildInfo {
	info := BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}

	bi, ok := read()
	if !ok || bi == nil {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" && s.Value != "" {
				info.Commit = s.Value[:min(len(s.Value), shortCommitLen)]
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}
