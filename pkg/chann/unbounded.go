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
	"runtime"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/queue"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// The open flag is stored in the left-most bit of the state word, the rest
// of the word counts messages that are pushed but not yet received.
const (
	openMask  uint64 = 1 << 63
	initState        = openMask

	// MaxCapacity is the maximum number of messages a channel can track.
	MaxCapacity uint64 = ^openMask
	// MaxSenders is the maximum number of live sender handles.
	MaxSenders = MaxCapacity >> 1
)

var (
	// ErrDisconnected is returned by Send when the channel is closed.
	ErrDisconnected = cerrors.ErrChannelDisconnected.FastGenByArgs()
	// ErrEmpty is returned by TryRecv when the channel is open but empty.
	ErrEmpty = cerrors.ErrChannelEmpty.FastGenByArgs()
	// ErrEndOfStream is returned when the channel is closed and drained.
	ErrEndOfStream = cerrors.ErrChannelEndOfStream.FastGenByArgs()
)

type state struct {
	isOpen      bool
	numMessages uint64
}

func (s state) isClosed() bool {
	return !s.isOpen && s.numMessages == 0
}

func decodeState(num uint64) state {
	return state{
		isOpen:      num&openMask == openMask,
		numMessages: num & MaxCapacity,
	}
}

func encodeState(s state) uint64 {
	num := s.numMessages
	if s.isOpen {
		num |= openMask
	}
	return num
}

type inner[T any] struct {
	state      atomic.Uint64
	numSenders atomic.Uint64
	queue      *queue.Queue[T]
	// recvTask is the parked receiver's waker slot. A token left in the slot
	// survives until the receiver looks at it, so a wake that races with the
	// receiver going to sleep is never lost.
	recvTask chan struct{}
}

func (in *inner[T]) wake() {
	select {
	case in.recvTask <- struct{}{}:
	default:
	}
}

// setClosed clears the open flag and keeps the message count intact.
func (in *inner[T]) setClosed() {
	for {
		curr := in.state.Load()
		if curr&openMask == 0 {
			return
		}
		if in.state.CompareAndSwap(curr, curr&^openMask) {
			return
		}
	}
}

func (in *inner[T]) loadState() state {
	return decodeState(in.state.Load())
}

// NewUnbounded creates an unbounded MPSC channel. The channel is open and
// holds exactly one sender.
//
// A Send always succeeds as long as the channel is open. If the receiver
// falls behind, messages are buffered without limit.
func NewUnbounded[T any]() (*Sender[T], *Receiver[T]) {
	in := &inner[T]{
		queue:    queue.New[T](),
		recvTask: make(chan struct{}, 1),
	}
	in.state.Store(initState)
	in.numSenders.Store(1)
	return &Sender[T]{inner: in}, &Receiver[T]{inner: in}
}

// Sender is one handle of the sending half. Every handle returned by
// NewUnbounded, Clone or Receiver.NewSender must be closed exactly once.
type Sender[T any] struct {
	inner    *inner[T]
	released atomic.Bool
}

// Send pushes v to the channel and wakes the receiver.
func (s *Sender[T]) Send(v T) error {
	if s.released.Load() || !s.incNumMessages() {
		return ErrDisconnected
	}
	s.inner.queue.Push(v)
	s.inner.wake()
	return nil
}

// incNumMessages increments the number of queued messages, it returns false
// if the channel is closed.
func (s *Sender[T]) incNumMessages() bool {
	for {
		curr := s.inner.state.Load()
		st := decodeState(curr)
		if !st.isOpen {
			return false
		}
		if st.numMessages >= MaxCapacity {
			log.Panic("buffer space exhausted; sending this message would overflow the state",
				zap.Uint64("numMessages", st.numMessages))
		}
		st.numMessages++
		if s.inner.state.CompareAndSwap(curr, encodeState(st)) {
			return true
		}
	}
}

// Clone returns a new handle to the same channel. Cloning a closed handle
// returns a handle that is already closed.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.released.Load() {
		dead := &Sender[T]{inner: s.inner}
		dead.released.Store(true)
		return dead
	}
	for {
		curr := s.inner.numSenders.Load()
		if curr >= MaxSenders {
			log.Panic("cannot clone sender, too many outstanding senders",
				zap.Uint64("numSenders", curr))
		}
		if s.inner.numSenders.CompareAndSwap(curr, curr+1) {
			return &Sender[T]{inner: s.inner}
		}
	}
}

// Close releases this handle. Releasing the last handle closes the channel.
// Close is idempotent.
func (s *Sender[T]) Close() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	if s.inner.numSenders.Dec() == 0 {
		s.closeChannel()
	}
}

// CloseChannel closes the channel for every sender without releasing this
// handle. Buffered messages are still delivered.
func (s *Sender[T]) CloseChannel() {
	s.closeChannel()
}

func (s *Sender[T]) closeChannel() {
	s.inner.setClosed()
	s.inner.wake()
}

// IsClosed returns true if the channel no longer accepts messages, or if this
// handle has been released.
func (s *Sender[T]) IsClosed() bool {
	return s.released.Load() || !s.inner.loadState().isOpen
}

// Len returns the number of messages in the channel.
func (s *Sender[T]) Len() int {
	return int(s.inner.loadState().numMessages)
}

// SameReceiver returns whether both senders send to the same receiver.
func (s *Sender[T]) SameReceiver(other *Sender[T]) bool {
	return other != nil && s.inner == other.inner
}

// IsConnectedTo returns whether the sender sends to r.
func (s *Sender[T]) IsConnectedTo(r *Receiver[T]) bool {
	return r != nil && s.inner == r.inner
}

// noCopy may be embedded into structs which must not be copied after the
// first use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Receiver is the receiving half of the channel. There is exactly one
// Receiver per channel and it must be used by one goroutine at a time.
type Receiver[T any] struct {
	_ noCopy

	inner      *inner[T]
	consuming  atomic.Bool
	terminated atomic.Bool
}

type pollResult int

const (
	pollReady pollResult = iota
	pollPending
	pollClosed
)

// acquire guards the single consumer invariant of the underlying queue.
func (r *Receiver[T]) acquire() {
	if !r.consuming.CompareAndSwap(false, true) {
		log.Panic("concurrent receive on a single consumer channel")
	}
}

func (r *Receiver[T]) release() {
	r.consuming.Store(false)
}

func (r *Receiver[T]) nextMessage() (T, pollResult) {
	var zero T
	if r.terminated.Load() {
		return zero, pollClosed
	}
	if v, ok := r.inner.queue.PopSpin(); ok {
		// The open bit is the highest one, it is unaffected by the
		// decrement since the count is at least 1 here.
		r.inner.state.Dec()
		return v, pollReady
	}
	if r.inner.loadState().isClosed() {
		r.terminated.Store(true)
		return zero, pollClosed
	}
	// Either the channel is open, or a sender has counted a message but has
	// not pushed it yet. Both cases will wake the receiver.
	return zero, pollPending
}

// Recv waits for a message. It returns ErrEndOfStream once the channel is
// closed and every buffered message has been received.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	r.acquire()
	defer r.release()
	for {
		v, res := r.nextMessage()
		switch res {
		case pollReady:
			return v, nil
		case pollClosed:
			return v, ErrEndOfStream
		}
		select {
		case <-ctx.Done():
			return v, errors.Trace(ctx.Err())
		case <-r.inner.recvTask:
		}
	}
}

// TryRecv receives a message without waiting. It returns ErrEmpty when the
// channel is open but has nothing to receive and ErrEndOfStream when it is
// closed and drained.
func (r *Receiver[T]) TryRecv() (T, error) {
	r.acquire()
	defer r.release()
	v, res := r.nextMessage()
	switch res {
	case pollReady:
		return v, nil
	case pollClosed:
		return v, ErrEndOfStream
	default:
		return v, ErrEmpty
	}
}

// Close closes the channel, preventing any further message from being sent.
// Messages already in the channel can still be received. Close may be called
// from any goroutine, a parked Recv is woken up.
func (r *Receiver[T]) Close() {
	r.inner.setClosed()
	r.inner.wake()
}

// CloseAndDrain closes the channel and drains every pending message, passing
// it to discard (which may be nil). It returns the number of drained messages.
func (r *Receiver[T]) CloseAndDrain(discard func(T)) int {
	r.Close()
	r.acquire()
	defer r.release()
	n := 0
	for {
		v, res := r.nextMessage()
		switch res {
		case pollReady:
			n++
			if discard != nil {
				discard(v)
			}
		case pollClosed:
			return n
		default:
			// A sender has counted its message but not pushed it yet, there
			// is no goroutine to wake us so spin until it shows up.
			runtime.Gosched()
		}
	}
}

// NewSender mints a sender handle while at least one sender is alive. It
// returns false if every sender has been released.
func (r *Receiver[T]) NewSender() (*Sender[T], bool) {
	for {
		curr := r.inner.numSenders.Load()
		if curr == 0 {
			return nil, false
		}
		if curr >= MaxSenders {
			log.Panic("cannot clone sender, too many outstanding senders",
				zap.Uint64("numSenders", curr))
		}
		if r.inner.numSenders.CompareAndSwap(curr, curr+1) {
			return &Sender[T]{inner: r.inner}, true
		}
	}
}

// Len returns the number of buffered messages.
func (r *Receiver[T]) Len() int {
	return int(r.inner.loadState().numMessages)
}

// IsClosed returns true if the channel does not accept messages anymore.
func (r *Receiver[T]) IsClosed() bool {
	return !r.inner.loadState().isOpen
}

// IsTerminated returns true once the receiver has observed end of stream.
func (r *Receiver[T]) IsTerminated() bool {
	return r.terminated.Load()
}
