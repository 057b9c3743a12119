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

package chann

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/leakutil"
	"github.com/pingcap/serviceless/pkg/queue"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestStateEncoding(t *testing.T) {
	t.Parallel()

	st := decodeState(initState)
	require.True(t, st.isOpen)
	require.Equal(t, uint64(0), st.numMessages)

	st = state{isOpen: true, numMessages: 42}
	require.Equal(t, st, decodeState(encodeState(st)))
	st = state{isOpen: false, numMessages: MaxCapacity}
	require.Equal(t, st, decodeState(encodeState(st)))
	require.False(t, st.isClosed())
	require.True(t, state{}.isClosed())
}

func TestSendRecv(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, rx := NewUnbounded[int]()
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.Send(i))
	}
	require.Equal(t, 3, tx.Len())
	require.Equal(t, 3, rx.Len())
	require.True(t, tx.IsConnectedTo(rx))

	for i := 0; i < 3; i++ {
		v, err := rx.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, rx.Len())

	tx.Close()
	_, err := rx.Recv(ctx)
	require.ErrorIs(t, err, ErrEndOfStream)
	require.True(t, rx.IsTerminated())
}

func TestTryRecv(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[string]()
	_, err := rx.TryRecv()
	require.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, tx.Send("hello"))
	v, err := rx.TryRecv()
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	tx.Close()
	_, err = rx.TryRecv()
	require.ErrorIs(t, err, ErrEndOfStream)
}

func TestLastSenderClosesChannel(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	senders := []*Sender[int]{tx}
	for i := 0; i < 5; i++ {
		senders = append(senders, tx.Clone())
	}
	for _, s := range senders {
		require.True(t, s.SameReceiver(tx))
	}

	// Close 5 of the 6 handles, the original one included.
	for _, s := range senders[:5] {
		s.Close()
		require.False(t, rx.IsClosed())
	}
	// Closing a handle twice has no effect on the count.
	senders[0].Close()
	require.False(t, rx.IsClosed())
	require.True(t, senders[0].IsClosed())

	last := senders[5]
	require.False(t, last.IsClosed())
	require.NoError(t, last.Send(7))
	last.Close()
	require.True(t, rx.IsClosed())

	// Buffered message is still delivered before end of stream.
	v, err := rx.TryRecv()
	require.NoError(t, err)
	require.Equal(t, 7, v)
	_, err = rx.TryRecv()
	require.ErrorIs(t, err, ErrEndOfStream)

	_, ok := rx.NewSender()
	require.False(t, ok)
}

func TestReceiverClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, rx := NewUnbounded[int]()
	defer tx.Close()
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.Send(i))
	}
	rx.Close()
	require.True(t, tx.IsClosed())
	require.ErrorIs(t, tx.Send(100), ErrDisconnected)

	for i := 0; i < 3; i++ {
		v, err := rx.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := rx.Recv(ctx)
	require.ErrorIs(t, err, ErrEndOfStream)
}

func TestRecvWaitsForSend(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, rx := NewUnbounded[int]()
	defer tx.Close()

	result := make(chan int)
	go func() {
		v, err := rx.Recv(ctx)
		if err != nil {
			v = -1
		}
		result <- v
	}()

	select {
	case v := <-result:
		t.Fatalf("must block, got %d", v)
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, tx.Send(1))
	require.Equal(t, 1, <-result)
}

func TestRecvWokenByClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, rx := NewUnbounded[int]()
	errCh := make(chan error)
	go func() {
		_, err := rx.Recv(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	tx.Close()
	require.ErrorIs(t, <-errCh, ErrEndOfStream)
}

func TestRecvContextCanceled(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	defer tx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rx.Recv(ctx)
	require.Equal(t, context.Canceled, errors.Cause(err))

	// The receiver is still usable.
	require.NoError(t, tx.Send(3))
	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestConcurrentProducers(t *testing.T) {
	t.Parallel()

	const (
		producers   = 8
		perProducer = 1250
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, rx := NewUnbounded[int]()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		s := tx.Clone()
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			defer s.Close()
			for i := 0; i < perProducer; i++ {
				if err := s.Send(p*perProducer + i); err != nil {
					panic(err)
				}
			}
		}(p)
	}
	tx.Close()

	seen := make(map[int]struct{}, producers*perProducer)
	last := make([]int, producers)
	for p := range last {
		last[p] = -1
	}
	for {
		v, err := rx.Recv(ctx)
		if err == ErrEndOfStream {
			break
		}
		require.NoError(t, err)
		_, dup := seen[v]
		require.False(t, dup, "duplicated value %d", v)
		seen[v] = struct{}{}

		p, seq := v/perProducer, v%perProducer
		require.Greater(t, seq, last[p])
		last[p] = seq
	}
	wg.Wait()
	require.Len(t, seen, producers*perProducer)
}

func TestCloseAndDrain(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	defer tx.Close()
	for i := 0; i < 10; i++ {
		require.NoError(t, tx.Send(i))
	}
	sum := 0
	n := rx.CloseAndDrain(func(v int) { sum += v })
	require.Equal(t, 10, n)
	require.Equal(t, 45, sum)
	require.True(t, rx.IsTerminated())
	require.ErrorIs(t, tx.Send(1), ErrDisconnected)
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	s, ok := rx.NewSender()
	require.True(t, ok)
	tx.Close()
	require.False(t, rx.IsClosed())

	require.NoError(t, s.Send(1))
	s.Close()
	require.True(t, rx.IsClosed())

	dead := s.Clone()
	require.True(t, dead.IsClosed())
	require.ErrorIs(t, dead.Send(1), ErrDisconnected)
	dead.Close()
}

func TestConcurrentReceivePanics(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	defer tx.Close()
	rx.consuming.Store(true)
	require.Panics(t, func() {
		_, _ = rx.TryRecv()
	})
}

func TestSenderLimitPanics(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	tx.inner.numSenders.Store(MaxSenders)
	require.Panics(t, func() { tx.Clone() })
	require.Panics(t, func() { _, _ = rx.NewSender() })

	// One below the limit a handle can still be minted.
	tx.inner.numSenders.Store(MaxSenders - 1)
	extra := tx.Clone()
	require.Equal(t, MaxSenders, tx.inner.numSenders.Load())

	tx.inner.numSenders.Store(2)
	extra.Close()
	tx.Close()
	require.True(t, rx.IsClosed())
	rx.Close()
}

func TestMessageLimitPanics(t *testing.T) {
	t.Parallel()

	tx, rx := NewUnbounded[int]()
	tx.inner.state.Store(openMask | MaxCapacity)
	require.Panics(t, func() { _ = tx.Send(1) })
	_, res := rx.inner.queue.Pop()
	require.Equal(t, queue.Empty, res)

	// A closed channel reports disconnection before checking the limit.
	tx.inner.state.Store(MaxCapacity)
	require.ErrorIs(t, tx.Send(1), ErrDisconnected)

	tx.inner.state.Store(initState)
	tx.Close()
	rx.Close()
}
