// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Version information, set by -ldflags at build time.
var (
	ReleaseVersion = "None"
	BuildTS        = "None"
	GitHash        = "None"
	GitBranch      = "None"
	GoVersion      = "None"
)

// Info is the build information of the binary.
type Info struct {
	ReleaseVersion string `json:"release-version"`
	GitHash        string `json:"git-hash"`
	GitBranch      string `json:"git-branch"`
	BuildTS        string `json:"utc-build-time"`
	GoVersion      string `json:"go-version"`
}

// GetInfo returns the build information. The go version falls back to the
// running toolchain when it was not set at build time.
func GetInfo() Info {
	goVersion := GoVersion
	if goVersion == "None" {
		goVersion = runtime.Version()
	}
	return Info{
		ReleaseVersion: ReleaseVersion,
		GitHash:        GitHash,
		GitBranch:      GitBranch,
		BuildTS:        BuildTS,
		GoVersion:      goVersion,
	}
}

// String formats the information one field per line.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release Version: %s\n", i.ReleaseVersion)
	fmt.Fprintf(&b, "Git Commit Hash: %s\n", i.GitHash)
	fmt.Fprintf(&b, "Git Branch: %s\n", i.GitBranch)
	fmt.Fprintf(&b, "UTC Build Time: %s\n", i.BuildTS)
	fmt.Fprintf(&b, "Go Version: %s\n", i.GoVersion)
	return b.String()
}

// ReleaseSemver returns a valid Semantic Versions or an empty if the
// ReleaseVersion is not set at compile time.
func ReleaseSemver() string {
	v, err := semver.NewVersion(removeVAndHash(ReleaseVersion))
	if err != nil {
		return ""
	}
	return v.String()
}

// LogVersionInfo logs the build information of component.
func LogVersionInfo(component string) {
	info := GetInfo()
	log.Info("Welcome to serviceless",
		zap.String("component", component),
		zap.String("release-version", info.ReleaseVersion),
		zap.String("git-hash", info.GitHash),
		zap.String("git-branch", info.GitBranch),
		zap.String("utc-build-time", info.BuildTS),
		zap.String("go-version", info.GoVersion),
	)
}

// GetRawInfo returns basic version information string.
func GetRawInfo() string {
	return GetInfo().String()
}
