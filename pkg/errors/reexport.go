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

package errors

import (
	stdErrors "errors"

	perrors "github.com/pingcap/errors"
)

// Re-export helpers of github.com/pingcap/errors so callers only need to
// import this package.
var (
	New       = perrors.New
	Errorf    = perrors.Errorf
	Trace     = perrors.Trace
	Annotate  = perrors.Annotate
	Annotatef = perrors.Annotatef
	Cause     = perrors.Cause
	Is        = stdErrors.Is
	As        = stdErrors.As
)
