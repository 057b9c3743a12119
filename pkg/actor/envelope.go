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

	"github.com/pingcap/errors"
	"github.com/pingcap/serviceless/pkg/oneshot"
	"go.uber.org/zap"
)

// Envelope erases the message and result types of a request so that all
// requests to a service can travel through one mailbox.
type Envelope[S any] interface {
	// Dispatch handles the message against svc and delivers its result.
	// The message is taken, a second Dispatch is a no-op.
	Dispatch(ctx context.Context, svc S, rt *Context[S])
	// Cancel drops an envelope that is never going to be dispatched. A
	// caller waiting for its result resolves canceled.
	Cancel()

	// Message returns the wrapped message, or nil once it has been taken.
	Message() any
	// ExpectsResult returns true if a caller waits for the result.
	ExpectsResult() bool
	// Complete resolves the envelope with a result produced elsewhere.
	// decode receives a pointer to a zero result and fills it.
	Complete(decode func(out any) error) error
}

type payload[M any, R any] struct {
	msg    M
	result *oneshot.Sender[R]
	taken  bool
}

func (p *payload[M, R]) cancel() {
	p.taken = true
	if p.result != nil {
		p.result.Cancel()
	}
}

// messageEnvelope wraps a payload without copying it, a narrowed address
// relays its payloads to the target mailbox this way.
type messageEnvelope[M Message[S, R], S any, R any] struct {
	*payload[M, R]
}

var _ Envelope[struct{}] = (*messageEnvelope[Message[struct{}, int], struct{}, int])(nil)

// NewEnvelope wraps msg. result may be nil for fire-and-forget messages.
func NewEnvelope[S any, R any](msg Message[S, R], result *oneshot.Sender[R]) Envelope[S] {
	return &messageEnvelope[Message[S, R], S, R]{
		payload: &payload[Message[S, R], R]{msg: msg, result: result},
	}
}

func (e *messageEnvelope[M, S, R]) Dispatch(ctx context.Context, svc S, rt *Context[S]) {
	if e.taken {
		return
	}
	e.taken = true
	r := e.msg.Handle(ctx, svc, rt)
	e.deliver(rt, r)
}

func (e *messageEnvelope[M, S, R]) deliver(rt *Context[S], r R) {
	if e.result == nil {
		return
	}
	if rt != nil && rt.IsPaused() {
		rt.logger.Warn("service is paused, discard result",
			zap.String("message", typeName(e.msg)))
		discardedResults.WithLabelValues(rt.name).Inc()
		e.result.Cancel()
		return
	}
	if err := e.result.Send(r); err != nil && rt != nil {
		// The caller has gone away.
		rt.logger.Debug("result is not received",
			zap.String("message", typeName(e.msg)), zap.Error(err))
	}
}

func (e *messageEnvelope[M, S, R]) Cancel() {
	e.cancel()
}

func (e *messageEnvelope[M, S, R]) Message() any {
	if e.taken {
		return nil
	}
	return e.msg
}

func (e *messageEnvelope[M, S, R]) ExpectsResult() bool {
	return e.result != nil
}

func (e *messageEnvelope[M, S, R]) Complete(decode func(out any) error) error {
	e.taken = true
	if e.result == nil {
		return nil
	}
	var out R
	if err := decode(&out); err != nil {
		e.result.Cancel()
		return errors.Trace(err)
	}
	if err := e.result.Send(out); err != nil && err != oneshot.ErrReceiverClosed {
		return errors.Trace(err)
	}
	return nil
}
