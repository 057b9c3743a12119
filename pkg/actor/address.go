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

	"github.com/pingcap/serviceless/pkg/chann"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/oneshot"
)

// ServiceAddress is the full address of an in-process service, it accepts
// every message the service handles. Each address holds one sender of the
// mailbox and must be closed when it is no longer used.
type ServiceAddress[S any] struct {
	tx   *chann.Sender[Envelope[S]]
	id   ID
	name string
	done <-chan struct{}
}

var _ Addr[struct{}] = (*ServiceAddress[struct{}])(nil)

func newServiceAddress[S any](tx *chann.Sender[Envelope[S]], c *Context[S]) *ServiceAddress[S] {
	return &ServiceAddress[S]{tx: tx, id: c.id, name: c.name, done: c.done}
}

// ID returns the id of the target mailbox.
func (a *ServiceAddress[S]) ID() ID {
	return a.id
}

// Name returns the name of the target service.
func (a *ServiceAddress[S]) Name() string {
	return a.name
}

// IsStop returns true if the mailbox is closed or the address is closed.
func (a *ServiceAddress[S]) IsStop() bool {
	return a.tx == nil || a.tx.IsClosed()
}

// Post implements Addr.
func (a *ServiceAddress[S]) Post(_ context.Context, env Envelope[S]) error {
	if a.tx == nil {
		env.Cancel()
		return cerrors.ErrServiceStopped.GenWithStackByArgs()
	}
	if err := a.tx.Send(env); err != nil {
		env.Cancel()
		return cerrors.ErrServiceStopped.GenWithStackByArgs()
	}
	return nil
}

// Clone returns another address of the same mailbox.
func (a *ServiceAddress[S]) Clone() *ServiceAddress[S] {
	cloned := *a
	if a.tx != nil {
		cloned.tx = a.tx.Clone()
	}
	return &cloned
}

// Close releases the address. The mailbox stops after its last address is
// closed. Close is idempotent.
func (a *ServiceAddress[S]) Close() {
	if a.tx != nil {
		a.tx.Close()
	}
}

// CloseService closes the mailbox for every address. Envelopes that have
// been accepted are still dispatched.
func (a *ServiceAddress[S]) CloseService() {
	if a.tx != nil {
		a.tx.CloseChannel()
	}
}

// Pending returns the number of envelopes waiting in the mailbox.
func (a *ServiceAddress[S]) Pending() int {
	if a.tx == nil {
		return 0
	}
	return a.tx.Len()
}

// Done returns a channel that is closed once the target service has stopped.
func (a *ServiceAddress[S]) Done() <-chan struct{} {
	return a.done
}

// Send enqueues msg without waiting for its result. It returns
// ErrServiceStopped if the service does not accept messages anymore.
func Send[S any, R any](addr Addr[S], msg Message[S, R]) error {
	return addr.Post(context.Background(), NewEnvelope[S, R](msg, nil))
}

// Call sends msg and waits for its result. It returns ErrServiceStopped if
// the message can not be delivered and ErrServicePaused if the service
// handled it but did not deliver the result. If ctx is done first, the
// message is still handled and its result is dropped.
func Call[S any, R any](ctx context.Context, addr Addr[S], msg Message[S, R]) (R, error) {
	tx, rx := oneshot.New[R]()
	if err := addr.Post(ctx, NewEnvelope[S, R](msg, tx)); err != nil {
		var zero R
		return zero, err
	}
	return recvResult(ctx, rx)
}

func recvResult[R any](ctx context.Context, rx *oneshot.Receiver[R]) (R, error) {
	r, err := rx.Recv(ctx)
	if err != nil {
		rx.Close()
		if err == oneshot.ErrCanceled {
			return r, cerrors.ErrServicePaused.GenWithStackByArgs()
		}
		return r, err
	}
	return r, nil
}
