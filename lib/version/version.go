// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// BuildInfo is the structured form of the build metadata, as printed
// by "propscan version --json".
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build metadata of the running binary. Values not
// injected with -ldflags fall back to the VCS stamp the go tool embeds,
// when there is one.
func Current() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		applyVCSSettings(&info, build.Settings)
	}
	return info
}

func applyVCSSettings(info *BuildInfo, settings []debug.BuildSetting) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && setting.Value != "" {
				info.Commit = setting.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && setting.Value != "" {
				info.BuildTime = setting.Value
			}
		case "vcs.modified":
			if setting.Value == "true" {
				info.Dirty = true
			}
		}
	}
}

// Info returns the one-line version string used by --version.
func Info() string {
	info := Current()
	dirty := ""
	if info.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", info.Version, info.Commit, dirty, info.BuildTime)
}

// Full returns Info plus the Go version and platform.
func Full() string {
	info := Current()
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s", Info(), info.GoVersion, info.Platform)
}

// Short returns just the version number.
func Short() string {
	return Version
}
