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

// Package oneshot provides a single value handoff between one producer and
// one consumer. It is used to deliver the result of a request back to the
// caller that is waiting for it.
package oneshot

import (
	"context"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"go.uber.org/atomic"
)

var (
	// ErrCanceled is returned by Recv when the sender has been canceled
	// without sending a value.
	ErrCanceled = cerrors.ErrCompletionCanceled.FastGenByArgs()
	// ErrAlreadyCompleted is returned by Send when the sender has already
	// been triggered or canceled.
	ErrAlreadyCompleted = cerrors.ErrCompletionAlreadySent.FastGenByArgs()
	// ErrReceiverClosed is returned by Send when nobody waits for the value.
	ErrReceiverClosed = cerrors.ErrCompletionReceiverClosed.FastGenByArgs()
)

const (
	statePending int32 = iota
	stateSent
	stateCanceled
)

type shared[T any] struct {
	// ch holds at most one value, it is closed on cancel.
	ch       chan T
	state    atomic.Int32
	rxClosed atomic.Bool
}

// New creates a completion channel.
func New[T any]() (*Sender[T], *Receiver[T]) {
	s := &shared[T]{ch: make(chan T, 1)}
	return &Sender[T]{shared: s}, &Receiver[T]{shared: s}
}

// Sender is the producing half. It can be triggered at most once.
type Sender[T any] struct {
	shared *shared[T]
}

// Send delivers v. It never blocks.
func (s *Sender[T]) Send(v T) error {
	if !s.shared.state.CompareAndSwap(statePending, stateSent) {
		return ErrAlreadyCompleted
	}
	if s.shared.rxClosed.Load() {
		return ErrReceiverClosed
	}
	s.shared.ch <- v
	return nil
}

// Cancel drops the sender without a value, the receiver resolves to
// ErrCanceled. It is a no-op if a value has been sent.
func (s *Sender[T]) Cancel() {
	if s.shared.state.CompareAndSwap(statePending, stateCanceled) {
		close(s.shared.ch)
	}
}

// IsCanceled returns true if the receiver is gone.
func (s *Sender[T]) IsCanceled() bool {
	return s.shared.rxClosed.Load()
}

// IsCompleted returns true if Send or Cancel has been called.
func (s *Sender[T]) IsCompleted() bool {
	return s.shared.state.Load() != statePending
}

// Receiver is the consuming half.
type Receiver[T any] struct {
	shared *shared[T]
	taken  atomic.Bool
}

// Recv waits for the value.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if r.taken.Load() {
		return zero, ErrCanceled
	}
	select {
	case v, ok := <-r.shared.ch:
		if !ok {
			return zero, ErrCanceled
		}
		r.taken.Store(true)
		return v, nil
	case <-ctx.Done():
		return zero, errors.Trace(ctx.Err())
	}
}

// TryRecv returns the value if it has been sent. The second return value is
// false if the value is not available yet.
func (r *Receiver[T]) TryRecv() (T, bool, error) {
	var zero T
	if r.taken.Load() {
		return zero, false, ErrCanceled
	}
	select {
	case v, ok := <-r.shared.ch:
		if !ok {
			return zero, false, ErrCanceled
		}
		r.taken.Store(true)
		return v, true, nil
	default:
		return zero, false, nil
	}
}

// Close abandons the handoff. A later Send returns ErrReceiverClosed.
func (r *Receiver[T]) Close() {
	r.shared.rxClosed.Store(true)
}
