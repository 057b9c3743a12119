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

package logutil

import (
	"regexp"
)

var (
	jwtSecretPatterns = `((jwt-secret|JWTSecret)\s*[:=]\s*"?)([^"\s]*)("?)`
	jwtSecretRegexp   = regexp.MustCompile(jwtSecretPatterns)

	bearerPatterns = `(Bearer )([A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]*)`
	bearerRegexp   = regexp.MustCompile(bearerPatterns)

	// to match PEM format, ref: https://en.wikipedia.org/wiki/Privacy-Enhanced_Mail
	pemPatterns = `-{5}BEGIN( [A-Z]+)+-{5}(.|\n)*?-{5}END( [A-Z]+)+-{5}`
	pemRegexp   = regexp.MustCompile(pemPatterns)

	// HideSensitive is used to replace sensitive information with `******` in log.
	HideSensitive = func(input string) string {
		output := jwtSecretRegexp.ReplaceAllString(input, "$1******$4")
		output = bearerRegexp.ReplaceAllString(output, "$1******")
		output = pemRegexp.ReplaceAllString(output, "******")
		return output
	}
)
