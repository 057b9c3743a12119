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

package actor

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/leakutil"
	"github.com/pingcap/serviceless/pkg/oneshot"
	"github.com/pingcap/serviceless/pkg/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

type counter struct {
	value    int
	inflight atomic.Int32
	overlaps atomic.Int32

	started atomic.Bool
	stopped atomic.Bool
	// seenBeforeStart counts messages handled before Started ran.
	seenBeforeStart int
	// block, if set, is waited on by blockingIncr.
	block chan struct{}
}

func (c *counter) Started(_ context.Context, _ *Context[*counter]) {
	c.started.Store(true)
}

func (c *counter) Stopped(_ context.Context, _ *Context[*counter]) {
	c.stopped.Store(true)
}

func (c *counter) enter() {
	if !c.started.Load() {
		c.seenBeforeStart++
	}
	if c.inflight.Inc() > 1 {
		c.overlaps.Inc()
	}
}

func (c *counter) leave() {
	c.inflight.Dec()
}

type U8 uint8

func (m U8) Handle(_ context.Context, svc *counter, _ *Context[*counter]) uint8 {
	svc.enter()
	defer svc.leave()
	return uint8(m) + 2
}

type incr struct {
	delta int
}

func (m incr) Handle(_ context.Context, svc *counter, _ *Context[*counter]) int {
	svc.enter()
	defer svc.leave()
	v := svc.value
	runtime.Gosched()
	svc.value = v + m.delta
	return svc.value
}

type blockingIncr struct{}

func (blockingIncr) Handle(_ context.Context, svc *counter, _ *Context[*counter]) int {
	<-svc.block
	svc.value++
	return svc.value
}

type pause struct{}

func (pause) Handle(_ context.Context, _ *counter, rt *Context[*counter]) struct{} {
	rt.Pause()
	return struct{}{}
}

type resume struct{}

func (resume) Handle(_ context.Context, _ *counter, rt *Context[*counter]) bool {
	rt.Resume()
	return rt.IsPaused()
}

// chain sends n incr messages to its own service.
type chain struct {
	n int
}

func (m chain) Handle(_ context.Context, _ *counter, rt *Context[*counter]) int {
	addr := rt.Addr()
	defer addr.Close()
	for i := 0; i < m.n; i++ {
		if err := Send[*counter, int](addr, incr{delta: 1}); err != nil {
			return i
		}
	}
	return m.n
}

type stopSelf struct{}

func (stopSelf) Handle(_ context.Context, _ *counter, rt *Context[*counter]) State {
	rt.Stop()
	return rt.State()
}

type value struct{}

func (value) Handle(_ context.Context, svc *counter, _ *Context[*counter]) int {
	return svc.value
}

func waitDone(t *testing.T, done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		require.FailNow(t, "service is not stopped in time")
	}
}

func requireRunning(t *testing.T, done <-chan struct{}) {
	select {
	case <-done:
		require.FailNow(t, "service is stopped unexpectedly")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallReturnsResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &counter{}
	ids := uuid.NewMock()
	ids.Push("mailbox-u8")
	rt := NewContext[*counter](WithName("u8"), WithIDGenerator(ids))
	require.Equal(t, StateNotStarted, rt.State())
	require.Equal(t, "u8", rt.Name())
	require.Equal(t, ID("mailbox-u8"), rt.ID())

	addr := rt.Run(ctx, svc)
	require.Equal(t, rt.ID(), addr.ID())
	require.Equal(t, "u8", addr.Name())
	require.False(t, addr.IsStop())

	r, err := Call[*counter, uint8](ctx, addr, U8(8))
	require.NoError(t, err)
	require.Equal(t, uint8(10), r)
	require.Equal(t, StateRunning, rt.State())

	addr.Close()
	waitDone(t, rt.Done())
	require.Equal(t, StateStopped, rt.State())
	require.True(t, svc.started.Load())
	require.True(t, svc.stopped.Load())
	require.NoError(t, rt.Wait(ctx))
}

func TestSendAfterClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := NewContext[*counter]()
	addr := rt.Run(ctx, &counter{})
	defer addr.Close()

	addr.CloseService()
	require.True(t, addr.IsStop())

	err := Send[*counter, int](addr, incr{delta: 1})
	require.True(t, cerrors.ErrServiceStopped.Equal(err), "%v", err)
	_, err = Call[*counter, uint8](ctx, addr, U8(1))
	require.True(t, cerrors.ErrServiceStopped.Equal(err), "%v", err)

	waitDone(t, rt.Done())

	// Addresses minted after the mailbox is closed are stopped as well.
	addr.Close()
	late := rt.Addr()
	require.True(t, late.IsStop())
	require.Equal(t, 0, late.Pending())
	err = Send[*counter, int](late, incr{delta: 1})
	require.True(t, cerrors.ErrServiceStopped.Equal(err), "%v", err)
	late.Close()
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &counter{}
	rt := NewContext[*counter]()
	addr := rt.Run(ctx, svc)

	const n = 64
	const perCaller = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(a *ServiceAddress[*counter]) {
			defer wg.Done()
			defer a.Close()
			for j := 0; j < perCaller; j++ {
				_, err := Call[*counter, int](ctx, a, incr{delta: 1})
				require.NoError(t, err)
			}
		}(addr.Clone())
	}
	wg.Wait()

	v, err := Call[*counter, int](ctx, addr, value{})
	require.NoError(t, err)
	require.Equal(t, n*perCaller, v)
	require.Equal(t, int32(0), svc.overlaps.Load())

	addr.Close()
	waitDone(t, rt.Done())
}

func TestLastAddressClosesMailbox(t *testing.T) {
	t.Parallel()

	rt := NewContext[*counter]()
	addr := rt.Run(context.Background(), &counter{})

	clones := make([]*ServiceAddress[*counter], 0, 5)
	for i := 0; i < 5; i++ {
		clones = append(clones, addr.Clone())
	}
	// Close the mailbox's own sender and 4 of the 5 clones.
	addr.Close()
	addr.Close()
	for _, c := range clones[:4] {
		c.Close()
	}
	require.True(t, addr.IsStop())
	require.False(t, clones[4].IsStop())
	requireRunning(t, rt.Done())

	clones[4].Close()
	waitDone(t, rt.Done())
	require.Equal(t, StateStopped, rt.State())
}

func TestEnqueuedMessagesAreDrained(t *testing.T) {
	t.Parallel()

	svc := &counter{}
	rt := NewContext[*counter]()
	// Messages sent before the service starts wait in the mailbox.
	early := rt.Addr()
	for i := 0; i < 10; i++ {
		require.NoError(t, Send[*counter, int](early, incr{delta: 1}))
	}
	require.Equal(t, 10, early.Pending())

	addr := rt.Run(context.Background(), svc)
	for i := 0; i < 90; i++ {
		require.NoError(t, Send[*counter, int](addr, incr{delta: 1}))
	}
	addr.CloseService()
	require.True(t, rt.IsStopping())
	early.Close()
	addr.Close()

	waitDone(t, rt.Done())
	require.Equal(t, 100, svc.value)
	require.Equal(t, 0, svc.seenBeforeStart)
	require.True(t, svc.stopped.Load())
}

func TestPauseSuppressesResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &counter{}
	rt := NewContext[*counter]()
	addr := rt.Run(ctx, svc)

	_, err := Call[*counter, struct{}](ctx, addr, pause{})
	require.True(t, cerrors.ErrServicePaused.Equal(err), "%v", err)
	require.True(t, rt.IsPaused())

	// The handler still runs while the service is paused.
	_, err = Call[*counter, int](ctx, addr, incr{delta: 5})
	require.True(t, cerrors.ErrServicePaused.Equal(err), "%v", err)
	require.NoError(t, Send[*counter, int](addr, incr{delta: 1}))

	paused, err := Call[*counter, bool](ctx, addr, resume{})
	require.NoError(t, err)
	require.False(t, paused)

	v, err := Call[*counter, int](ctx, addr, value{})
	require.NoError(t, err)
	require.Equal(t, 6, v)

	addr.Close()
	waitDone(t, rt.Done())
}

func TestCallerGivesUp(t *testing.T) {
	t.Parallel()

	svc := &counter{block: make(chan struct{})}
	rt := NewContext[*counter]()
	addr := rt.Run(context.Background(), svc)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Call[*counter, int](ctx, addr, blockingIncr{})
	require.Equal(t, context.DeadlineExceeded, errors.Cause(err))

	// The abandoned handler still completes.
	close(svc.block)
	v, err := Call[*counter, int](context.Background(), addr, value{})
	require.NoError(t, err)
	require.Equal(t, 1, v)

	addr.Close()
	waitDone(t, rt.Done())
}

func TestHandlerSendsToItself(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &counter{}
	rt := NewContext[*counter]()
	addr := rt.Run(ctx, svc)

	sent, err := Call[*counter, int](ctx, addr, chain{n: 10})
	require.NoError(t, err)
	require.Equal(t, 10, sent)

	addr.Close()
	waitDone(t, rt.Done())
	require.Equal(t, 10, svc.value)
}

func TestStopFromHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := NewContext[*counter]()
	addr := rt.Run(ctx, &counter{})
	defer addr.Close()

	st, err := Call[*counter, State](ctx, addr, stopSelf{})
	require.NoError(t, err)
	require.Equal(t, StateRunning, st)
	require.True(t, addr.IsStop())
	waitDone(t, rt.Done())
}

func TestCancelRunContextStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	svc := &counter{}
	rt := NewContext[*counter]()
	addr := rt.Run(ctx, svc)
	defer addr.Close()

	require.NoError(t, Send[*counter, int](addr, incr{delta: 1}))
	cancel()
	waitDone(t, rt.Done())
	require.True(t, addr.IsStop())
	require.Equal(t, StateStopped, rt.State())
	require.True(t, svc.stopped.Load())
}

func TestWaitContext(t *testing.T) {
	t.Parallel()

	rt := NewContext[*counter]()
	addr := rt.Run(context.Background(), &counter{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := rt.Wait(ctx)
	require.Equal(t, context.DeadlineExceeded, errors.Cause(err))

	addr.Close()
	require.NoError(t, rt.Wait(context.Background()))
}

func TestRunTwicePanics(t *testing.T) {
	t.Parallel()

	rt := NewContext[*counter]()
	addr := rt.Run(context.Background(), &counter{})
	require.Panics(t, func() {
		rt.Run(context.Background(), &counter{})
	})
	addr.Close()
	waitDone(t, rt.Done())
}

func TestStartShorthand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	addr := Start[*counter](ctx, &counter{}, WithName("short"))
	r, err := Call[*counter, uint8](ctx, addr, U8(1))
	require.NoError(t, err)
	require.Equal(t, uint8(3), r)
	require.Equal(t, "short", addr.Name())
	addr.Close()
	waitDone(t, addr.Done())
}

func TestEnvelope(t *testing.T) {
	t.Parallel()

	tx, rx := oneshot.New[int]()
	env := NewEnvelope[*counter, int](incr{delta: 3}, tx)
	require.Equal(t, incr{delta: 3}, env.Message())
	require.True(t, env.ExpectsResult())

	err := env.Complete(func(out any) error {
		*(out.(*int)) = 42
		return nil
	})
	require.NoError(t, err)
	require.Nil(t, env.Message())
	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)

	// A decode error cancels the caller.
	tx, rx = oneshot.New[int]()
	env = NewEnvelope[*counter, int](incr{delta: 3}, tx)
	err = env.Complete(func(out any) error {
		return errors.New("bad payload")
	})
	require.ErrorContains(t, err, "bad payload")
	_, err = rx.Recv(context.Background())
	require.ErrorIs(t, err, oneshot.ErrCanceled)

	// Fire-and-forget envelopes have nothing to complete.
	env = NewEnvelope[*counter, int](incr{delta: 3}, nil)
	require.False(t, env.ExpectsResult())
	require.NoError(t, env.Complete(func(out any) error {
		return errors.New("never called")
	}))
}

func TestEnvelopeDispatchOnce(t *testing.T) {
	t.Parallel()

	svc := &counter{}
	tx, rx := oneshot.New[int]()
	env := NewEnvelope[*counter, int](incr{delta: 2}, tx)
	env.Dispatch(context.Background(), svc, nil)
	env.Dispatch(context.Background(), svc, nil)
	require.Equal(t, 2, svc.value)
	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)

	tx, rx = oneshot.New[int]()
	env = NewEnvelope[*counter, int](incr{delta: 2}, tx)
	env.Cancel()
	env.Dispatch(context.Background(), svc, nil)
	require.Equal(t, 2, svc.value)
	_, err = rx.Recv(context.Background())
	require.ErrorIs(t, err, oneshot.ErrCanceled)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "not-started", StateNotStarted.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "draining", StateDraining.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "unknown", State(42).String())
}
