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

	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/chann"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/oneshot"
	"go.uber.org/zap"
)

// Address is a narrowed address that only accepts messages of type M. It is
// backed by a relay goroutine that forwards to a full address, so a holder
// can not submit any other message to the service.
type Address[M any, R any] struct {
	tx *chann.Sender[*payload[M, R]]
}

// Narrow returns an address that accepts M only. The relay exits when ctx is
// done, when the target service stops, or when every narrowed address is
// closed. After that the narrowed address reports stopped.
func Narrow[M Message[S, R], S any, R any](
	ctx context.Context, addr *ServiceAddress[S],
) *Address[M, R] {
	tx, rx := chann.NewUnbounded[*payload[M, R]]()
	if addr.IsStop() {
		tx.Close()
		rx.CloseAndDrain(nil)
		return &Address[M, R]{tx: tx}
	}
	go relay[M, S, R](ctx, addr.Clone(), rx)
	return &Address[M, R]{tx: tx}
}

func relay[M Message[S, R], S any, R any](
	ctx context.Context, target *ServiceAddress[S], rx *chann.Receiver[*payload[M, R]],
) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-target.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	defer target.Close()
	defer func() {
		n := rx.CloseAndDrain(func(p *payload[M, R]) { p.cancel() })
		log.Debug("relay exits",
			zap.String("service", target.Name()), zap.Int("dropped", n))
	}()

	for {
		p, err := rx.Recv(ctx)
		if err != nil {
			return
		}
		failpoint.Inject("RelayForwardDelay", nil)
		if err := target.Post(ctx, &messageEnvelope[M, S, R]{payload: p}); err != nil {
			return
		}
	}
}

// IsStop returns true if the relay has exited or the address is closed.
func (a *Address[M, R]) IsStop() bool {
	return a.tx.IsClosed()
}

// Send enqueues msg without waiting for its result.
func (a *Address[M, R]) Send(msg M) error {
	if err := a.tx.Send(&payload[M, R]{msg: msg}); err != nil {
		return cerrors.ErrServiceStopped.GenWithStackByArgs()
	}
	return nil
}

// Call sends msg and waits for its result, see Call.
func (a *Address[M, R]) Call(ctx context.Context, msg M) (R, error) {
	tx, rx := oneshot.New[R]()
	if err := a.tx.Send(&payload[M, R]{msg: msg, result: tx}); err != nil {
		var zero R
		return zero, cerrors.ErrServiceStopped.GenWithStackByArgs()
	}
	return recvResult(ctx, rx)
}

// Clone returns another narrowed address sharing the same relay.
func (a *Address[M, R]) Clone() *Address[M, R] {
	return &Address[M, R]{tx: a.tx.Clone()}
}

// Close releases the address. The relay exits after the last narrowed
// address is closed.
func (a *Address[M, R]) Close() {
	a.tx.Close()
}
