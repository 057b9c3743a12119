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

package step

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/leakutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

// countdown steps n times, fails every other step, then exits.
type countdown struct {
	n      int
	steps  atomic.Int64
	failed atomic.Int64
	exit   error
}

func (c *countdown) Step(context.Context) error {
	s := c.steps.Inc()
	if int(s) >= c.n {
		return Exit(c.exit)
	}
	if s%2 == 0 {
		c.failed.Inc()
		return errors.New("transient failure")
	}
	return nil
}

// blocker blocks until its context is done.
type blocker struct {
	steps atomic.Int64
}

func (b *blocker) Step(ctx context.Context) error {
	b.steps.Inc()
	<-ctx.Done()
	return ctx.Err()
}

func TestGroupRunsUntilExit(t *testing.T) {
	t.Parallel()

	a := &countdown{n: 10}
	boom := errors.New("boom")
	b := &countdown{n: 5, exit: boom}
	g := NewGroup(a, b)
	require.Len(t, g.Services(), 2)
	require.NoError(t, g.Start(context.Background()))

	err := g.Wait()
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	require.True(t, IsExit(errs[0]))
	require.True(t, cerrors.ErrStepServiceExit.Equal(errs[0]), "%v", errs[0])
	require.True(t, IsExit(errs[1]))
	require.ErrorIs(t, errs[1], boom)

	require.Equal(t, int64(10), a.steps.Load())
	require.Equal(t, int64(4), a.failed.Load())
	require.Equal(t, int64(5), b.steps.Load())
}

func TestGroupStop(t *testing.T) {
	t.Parallel()

	b := &blocker{}
	g := NewGroup(b)
	require.NoError(t, g.Start(context.Background()))
	require.Eventually(t, func() bool {
		return b.steps.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	g.Stop()
	require.NoError(t, g.Wait())
	require.Equal(t, int64(1), b.steps.Load())
}

func TestGroupParentCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	g := NewGroup(&blocker{}, &blocker{})
	require.NoError(t, g.Start(ctx))
	cancel()
	require.NoError(t, g.Wait())
}

func TestGroupStartTwice(t *testing.T) {
	t.Parallel()

	g := NewGroup(&countdown{n: 1})
	require.NoError(t, g.Wait())
	require.NoError(t, g.Start(context.Background()))
	err := g.Start(context.Background())
	require.True(t, cerrors.ErrStepGroupStarted.Equal(err), "%v", err)
	require.True(t, IsExit(g.Wait()))
}

func TestGroupRateLimit(t *testing.T) {
	t.Parallel()

	c := &countdown{n: 6}
	g := NewGroup(c).WithRateLimit(rate.Every(20*time.Millisecond), 1)
	start := time.Now()
	require.NoError(t, g.Start(context.Background()))
	require.True(t, IsExit(g.Wait()))
	// The first step uses the burst, the other five wait for a token.
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestExit(t *testing.T) {
	t.Parallel()

	require.False(t, IsExit(nil))
	require.False(t, IsExit(errors.New("plain")))
	err := fmt.Errorf("wrapped: %w", Exit(errors.New("done")))
	require.True(t, IsExit(err))
	require.Equal(t, "done", Exit(errors.New("done")).Error())
}

func TestGroupErrorBackoff(t *testing.T) {
	t.Parallel()

	// fails on steps 2, 4 and 6, then exits on step 7
	c := &countdown{n: 7}
	mockClock := clock.NewMock()
	g := NewGroup(c).WithClock(mockClock).WithErrorBackoff(time.Second, time.Second)
	require.NoError(t, g.Start(context.Background()))
	require.Eventually(t, func() bool { return c.failed.Load() == 1 },
		5*time.Second, 10*time.Millisecond)
	// the loop is parked until the clock moves
	require.Never(t, func() bool { return c.steps.Load() > 2 },
		50*time.Millisecond, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	var err error
	require.Eventually(t, func() bool {
		mockClock.Add(time.Second)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, IsExit(err))
	require.Equal(t, int64(3), c.failed.Load())
	require.Equal(t, int64(7), c.steps.Load())
}

func TestGroupErrorBackoffStop(t *testing.T) {
	t.Parallel()

	c := &countdown{n: 1 << 30}
	g := NewGroup(c).WithClock(clock.NewMock()).WithErrorBackoff(time.Second, time.Second)
	require.NoError(t, g.Start(context.Background()))
	require.Eventually(t, func() bool { return c.failed.Load() == 1 },
		5*time.Second, 10*time.Millisecond)
	// a stop interrupts the backoff
	g.Stop()
	require.NoError(t, g.Wait())
	require.Equal(t, int64(1), c.failed.Load())
}
