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
	"regexp"
	"strings"

	"github.com/coreos/go-semver/semver"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
)

var (
	// minServerVersion is the version of the minimal compatible server.
	minServerVersion = semver.New("0.1.0")
	// Compatible versions are in [minServerVersion, maxServerVersion)
	maxServerVersion = semver.New("1.0.0")
)

var versionHash = regexp.MustCompile("-[0-9]+-g[0-9a-f]{7,}(-dev)?")

func removeVAndHash(v string) string {
	if v == "" {
		return v
	}
	v = versionHash.ReplaceAllLiteralString(v, "")
	v = strings.TrimSuffix(v, "-dirty")
	return strings.TrimPrefix(v, "v")
}

// CheckServerVersion checks that a client of this build can talk to a server
// reporting serverVersion. A server built without a release version is
// always accepted.
func CheckServerVersion(serverVersion string) error {
	if serverVersion == "" || serverVersion == "None" {
		return nil
	}
	ver, err := semver.NewVersion(removeVAndHash(serverVersion))
	if err != nil {
		return cerrors.ErrVersionIncompatible.GenWithStackByArgs(
			"invalid server version " + serverVersion)
	}
	// strip the pre-release so that 0.1.0-alpha counts as 0.1.0
	ver.PreRelease = ""
	if ver.LessThan(*minServerVersion) {
		return cerrors.ErrVersionIncompatible.GenWithStackByArgs(
			"server version " + serverVersion + " is older than " + minServerVersion.String())
	}
	if !ver.LessThan(*maxServerVersion) {
		return cerrors.ErrVersionIncompatible.GenWithStackByArgs(
			"server version " + serverVersion + " is not older than " + maxServerVersion.String())
	}
	return nil
}
