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
	"fmt"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/chann"
	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/logutil"
	"github.com/pingcap/serviceless/pkg/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type options struct {
	name   string
	logger *zap.Logger
	clock  clock.Clock
	ids    uuid.Generator
}

// Option configures a Context.
type Option func(*options)

// WithName names the service in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger of the service.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock used to time dispatches.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDGenerator sets the generator of the mailbox id.
func WithIDGenerator(gen uuid.Generator) Option {
	return func(o *options) {
		o.ids = gen
	}
}

// Context is the mailbox of a service and its runtime. A service sees it in
// every handler and lifecycle hook.
type Context[S any] struct {
	id     ID
	name   string
	logger *zap.Logger
	clock  clock.Clock

	// tx is the mailbox's own sender, Run hands it to the first address.
	tx *chann.Sender[Envelope[S]]
	rx *chann.Receiver[Envelope[S]]

	state  atomic.Int32
	paused atomic.Bool
	done   chan struct{}
}

// NewContext creates a mailbox that is not started yet. Messages sent to
// its address before Run are dispatched once the service starts.
func NewContext[S any](opts ...Option) *Context[S] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.name == "" {
		o.name = typeName(*new(S))
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.ids == nil {
		o.ids = uuid.NewGenerator()
	}
	id := ID(o.ids.NewString())
	if o.logger == nil {
		o.logger = logutil.NewLogger4Service(o.name, string(id))
	}
	tx, rx := chann.NewUnbounded[Envelope[S]]()
	return &Context[S]{
		id:     id,
		name:   o.name,
		logger: o.logger,
		clock:  o.clock,
		tx:     tx,
		rx:     rx,
		done:   make(chan struct{}),
	}
}

// Start is a shorthand of NewContext(opts...).Run(ctx, svc).
func Start[S any](ctx context.Context, svc S, opts ...Option) *ServiceAddress[S] {
	return NewContext[S](opts...).Run(ctx, svc)
}

// ID returns the mailbox id.
func (c *Context[S]) ID() ID {
	return c.id
}

// Name returns the service name.
func (c *Context[S]) Name() string {
	return c.name
}

// Logger returns the logger of the service.
func (c *Context[S]) Logger() *zap.Logger {
	return c.logger
}

// State returns the lifecycle state of the mailbox.
func (c *Context[S]) State() State {
	return State(c.state.Load())
}

// Addr returns a new address of the mailbox. The address must be closed by
// its owner, the mailbox stops once every address is closed. Once that has
// happened Addr returns an address that is already stopped.
func (c *Context[S]) Addr() *ServiceAddress[S] {
	tx, ok := c.rx.NewSender()
	if !ok {
		return &ServiceAddress[S]{id: c.id, name: c.name, done: c.done}
	}
	return newServiceAddress(tx, c)
}

// Run attaches svc to the mailbox and spawns the dispatch loop. The returned
// address owns the mailbox's own sender. Canceling ctx stops the service
// like Stop does. Run panics if the mailbox has been started already.
func (c *Context[S]) Run(ctx context.Context, svc S) *ServiceAddress[S] {
	if !c.state.CompareAndSwap(int32(StateNotStarted), int32(StateRunning)) {
		log.Panic("mailbox is started twice",
			zap.Error(cerrors.ErrServiceAlreadyStarted.GenWithStackByArgs(c.name)))
	}
	addr := newServiceAddress(c.tx, c)
	c.tx = nil
	go c.run(ctx, svc)
	return addr
}

func (c *Context[S]) run(ctx context.Context, svc S) {
	defer close(c.done)
	runningServices.WithLabelValues(c.name).Inc()
	defer runningServices.WithLabelValues(c.name).Dec()

	if starter, ok := any(svc).(Starter[S]); ok {
		starter.Started(ctx, c)
	}
	c.logger.Info("service started")

	recvCtx := ctx
	for {
		env, err := c.rx.Recv(recvCtx)
		if err != nil {
			if recvCtx.Err() != nil {
				// Canceling ctx is an explicit stop, what has been sent
				// so far is still dispatched.
				c.Stop()
				recvCtx = context.Background()
				continue
			}
			break
		}
		if c.rx.IsClosed() {
			c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
		}
		mailboxPending.WithLabelValues(c.name).Set(float64(c.rx.Len()))

		failpoint.Inject("ServiceDispatchDelay", func() {
			time.Sleep(10 * time.Millisecond)
		})
		start := c.clock.Mono()
		env.Dispatch(ctx, svc, c)
		dispatchDuration.WithLabelValues(c.name).
			Observe(c.clock.Mono().Sub(start).Seconds())
	}
	c.state.Store(int32(StateDraining))
	mailboxPending.WithLabelValues(c.name).Set(0)

	if stopper, ok := any(svc).(Stopper[S]); ok {
		stopper.Stopped(ctx, c)
	}
	c.state.Store(int32(StateStopped))
	c.logger.Info("service stopped")
}

// Stop closes the mailbox. Envelopes that have been accepted are still
// dispatched before the service stops.
func (c *Context[S]) Stop() {
	c.rx.Close()
}

// IsStopping returns true if the mailbox no longer accepts envelopes.
func (c *Context[S]) IsStopping() bool {
	return c.rx.IsClosed()
}

// Pause suppresses the delivery of results. Messages are still consumed and
// handled, callers waiting for a result get ErrServicePaused.
func (c *Context[S]) Pause() {
	c.paused.Store(true)
}

// Resume resumes the delivery of results.
func (c *Context[S]) Resume() {
	c.paused.Store(false)
}

// IsPaused returns true if the service is paused.
func (c *Context[S]) IsPaused() bool {
	return c.paused.Load()
}

// Done returns a channel that is closed once the service has stopped.
func (c *Context[S]) Done() <-chan struct{} {
	return c.done
}

// Wait waits for the service to stop.
func (c *Context[S]) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
