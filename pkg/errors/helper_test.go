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
	"fmt"
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

type codeError struct {
	code int
}

func (e *codeError) Error() string { return fmt.Sprintf("code %d", e.code) }

func TestIsAs(t *testing.T) {
	t.Parallel()

	sentinel := New("sentinel")
	wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", sentinel))
	require.True(t, Is(wrapped, sentinel))
	require.False(t, Is(wrapped, context.Canceled))
	require.True(t, Is(fmt.Errorf("call: %w", context.Canceled), context.Canceled))

	var ce *codeError
	require.True(t, As(fmt.Errorf("call: %w", &codeError{code: 7}), &ce))
	require.Equal(t, 7, ce.code)
	require.False(t, As(sentinel, &ce))
}

func TestWrapError(t *testing.T) {
	t.Parallel()

	require.Nil(t, WrapError(ErrRPCTransport, nil))
	cause := errors.New("connection refused")
	err := WrapError(ErrRPCTransport, cause)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, cause, Cause(err))
	// Equal compares the root cause, Is walks the chain by ID.
	require.False(t, ErrRPCTransport.Equal(err))
	require.True(t, Is(err, ErrRPCTransport))
	require.True(t, Is(err, cause))
	require.True(t, IsTransportError(err))
	require.False(t, IsTransportError(WrapError(ErrServeHTTP, cause)))
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	require.False(t, IsRetryableError(nil))
	require.False(t, IsRetryableError(context.Canceled))
	require.False(t, IsRetryableError(Trace(context.DeadlineExceeded)))
	require.False(t, IsRetryableError(ErrServiceStopped.GenWithStackByArgs()))
	require.True(t, IsRetryableError(ErrRPCTransport.GenWithStackByArgs("eof")))
	require.True(t, IsRetryableError(errors.New("unknown")))

	require.True(t, IsTransportError(ErrRPCTransport.GenWithStackByArgs("eof")))
	require.False(t, IsTransportError(ErrServiceStopped.GenWithStackByArgs()))
}

func TestRFCCode(t *testing.T) {
	t.Parallel()

	require.Equal(t, errors.RFCErrorCode(""), RFCCode(nil))
	require.Equal(t, errors.RFCErrorCode(""), RFCCode(errors.New("plain")))
	require.Equal(t, errors.RFCErrorCode("SL:ErrServiceStopped"),
		RFCCode(ErrServiceStopped.GenWithStackByArgs()))
}
