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

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap/errors"
	serrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDoShouldRetryAtMostSpecifiedTimes(t *testing.T) {
	t.Parallel()

	var callCount int
	f := func() error {
		callCount++
		return errors.New("test")
	}

	err := Do(context.Background(), f, WithMaxTries(3), WithBackoffBaseDelay(time.Millisecond))
	require.Regexp(t, ".*SL:ErrReachMaxTry.*", err)
	require.True(t, serrors.ErrReachMaxTry.Equal(err))
	require.Equal(t, 3, callCount)
}

func TestDoShouldStopOnSuccess(t *testing.T) {
	t.Parallel()

	var callCount int
	f := func() error {
		callCount++
		if callCount == 2 {
			return nil
		}
		return errors.New("test")
	}

	err := Do(context.Background(), f, WithMaxTries(3), WithBackoffBaseDelay(time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 2, callCount)
}

func TestIsRetryableErr(t *testing.T) {
	t.Parallel()

	var callCount int
	f := func() error {
		callCount++
		return serrors.ErrServiceStopped.GenWithStackByArgs()
	}

	err := Do(context.Background(), f, WithMaxTries(5), WithIsRetryableErr(serrors.IsRetryableError))
	require.True(t, serrors.ErrServiceStopped.Equal(err))
	require.Equal(t, 1, callCount)
}

func TestTotalRetryDuration(t *testing.T) {
	t.Parallel()

	var callCount int
	start := time.Now()
	err := Do(context.Background(), func() error {
		callCount++
		return errors.New("test")
	}, WithInfiniteTries(),
		WithTotalRetryDuration(50*time.Millisecond),
		WithBackoffBaseDelay(5*time.Millisecond),
		WithBackoffMaxDelay(10*time.Millisecond))
	require.True(t, serrors.ErrReachMaxTry.Equal(err), "%v", err)
	require.Greater(t, callCount, 1)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var callCount int
	err := Do(ctx, func() error {
		callCount++
		return nil
	})
	require.Equal(t, context.Canceled, errors.Cause(err))
	require.Equal(t, 0, callCount)

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = Do(ctx, func() error {
		return errors.New("test")
	}, WithInfiniteTries(), WithBackoffBaseDelay(10*time.Millisecond), WithBackoffMaxDelay(20*time.Millisecond))
	require.Equal(t, context.DeadlineExceeded, errors.Cause(err))
}

func TestGetBackoff(t *testing.T) {
	t.Parallel()

	base, limit := 10*time.Millisecond, 100*time.Millisecond
	for try := uint64(1); try < 80; try++ {
		backoff := getBackoff(base, limit, try)
		require.GreaterOrEqual(t, backoff, base)
		require.LessOrEqual(t, backoff, limit)
	}
	// the first try never waits longer than twice the base
	require.LessOrEqual(t, getBackoff(base, limit, 1), 2*base)
	// a limit below the base is raised to the base
	require.Equal(t, base, getBackoff(base, time.Millisecond, 3))
}
