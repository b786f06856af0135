// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestApplyVCSSettings(t *testing.T) {
	tests := []struct {
		name     string
		start    BuildInfo
		settings []debug.BuildSetting
		want     BuildInfo
	}{
		{
			name:  "fills unknown values",
			start: BuildInfo{Commit: "unknown", BuildTime: "unknown"},
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
				{Key: "vcs.modified", Value: "true"},
			},
			want: BuildInfo{Commit: "0123456789ab", BuildTime: "2026-01-02T03:04:05Z", Dirty: true},
		},
		{
			name:  "ldflags win",
			start: BuildInfo{Commit: "abc1234", BuildTime: "yesterday"},
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "ffffffffffff"},
				{Key: "vcs.time", Value: "today"},
				{Key: "vcs.modified", Value: "false"},
			},
			want: BuildInfo{Commit: "abc1234", BuildTime: "yesterday"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			info := test.start
			applyVCSSettings(&info, test.settings)
			if info != test.want {
				t.Errorf("got %+v, want %+v", info, test.want)
			}
		})
	}
}

func TestInfoContainsVersion(t *testing.T) {
	if !strings.HasPrefix(Info(), Version+" (") {
		t.Errorf("Info() = %q, want prefix %q", Info(), Version+" (")
	}
	if !strings.Contains(Full(), "Go: ") {
		t.Errorf("Full() = %q, missing Go version", Full())
	}
	if Short() != Version {
		t.Errorf("Short() = %q, want %q", Short(), Version)
	}
}
