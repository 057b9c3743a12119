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
	"context"

	"github.com/pingcap/errors"
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error.
// If given `err` is nil, returns a nil error, which is a different behavior
// against `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByCause(args...)
}

// unRetryableErrors is the set of errors that a caller should never retry.
var unRetryableErrors = []*errors.Error{
	ErrServiceStopped,
	ErrServicePaused,
	ErrRPCUnauthorized,
	ErrRPCMethodNotFound,
	ErrRPCWrongRequestFormat,
	ErrInvalidConfig,
}

// IsRetryableError check the error is safe or worth to retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch errors.Cause(err) {
	case context.Canceled, context.DeadlineExceeded:
		return false
	}
	for _, e := range unRetryableErrors {
		if e.Equal(err) {
			return false
		}
	}
	return true
}

// IsTransportError reports whether err happened before any response was
// received from a remote peer. Equal stops at the root cause, so errors built
// by WrapError are matched by ID through Is.
func IsTransportError(err error) bool {
	return ErrRPCTransport.Equal(err) || Is(err, ErrRPCTransport)
}

// RFCCode returns the rfc code of err, or an empty string when err is not a
// normalized error.
func RFCCode(err error) errors.RFCErrorCode {
	if err == nil {
		return ""
	}
	if terr, ok := errors.Cause(err).(*errors.Error); ok {
		return terr.RFCCode()
	}
	return ""
}
