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
	"time"

	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/retry"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Service is a component that makes progress one step at a time. A Group
// calls Step in a loop until the group is stopped or Step returns an error
// built by Exit. Any other error is logged and the loop goes on.
type Service interface {
	Step(ctx context.Context) error
}

// ExitError breaks the step loop of the service returning it.
type ExitError struct {
	Err error
}

// Exit wraps err so that the step loop returning it exits. A nil err exits
// with ErrStepServiceExit.
func Exit(err error) error {
	if err == nil {
		err = cerrors.ErrStepServiceExit.GenWithStackByArgs()
	}
	return &ExitError{Err: err}
}

// IsExit returns true if err, or any error it wraps, is an ExitError.
func IsExit(err error) bool {
	var exit *ExitError
	return cerrors.As(err, &exit)
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Cause lets errors.Cause see the error passed to Exit.
func (e *ExitError) Cause() error {
	return e.Err
}

// Group runs a fixed set of step services, each on its own goroutine.
type Group struct {
	services []Service

	limit rate.Limit
	burst int
	clock clock.Clock
	// newErrorRetry is nil when failed steps are retried at once.
	newErrorRetry func() *retry.ErrorRetry

	started atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
	eg      errgroup.Group
	errs    []error
}

// NewGroup creates a group of services. The group owns them until Wait
// returns.
func NewGroup(services ...Service) *Group {
	return &Group{
		services: services,
		limit:    rate.Inf,
		clock:    clock.New(),
	}
}

// WithRateLimit bounds how often each service steps. It must be called
// before Start.
func (g *Group) WithRateLimit(limit rate.Limit, burst int) *Group {
	g.limit = limit
	g.burst = burst
	return g
}

// WithClock replaces the clock that times the error backoff. It must be
// called before Start.
func (g *Group) WithClock(clk clock.Clock) *Group {
	g.clock = clk
	return g
}

// WithErrorBackoff makes a service wait before stepping again after a
// failed step. The delay grows from base up to max while the service keeps
// failing. It must be called before Start.
func (g *Group) WithErrorBackoff(base, max time.Duration) *Group {
	g.newErrorRetry = func() *retry.ErrorRetry {
		return retry.NewErrorRetry(0, time.Minute, base, max).WithClock(g.clock)
	}
	return g
}

// Services returns the services of the group.
func (g *Group) Services() []Service {
	return g.services
}

// Start spawns a step loop for every service and returns immediately. A
// group can only be started once.
func (g *Group) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return cerrors.ErrStepGroupStarted.GenWithStackByArgs()
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.running.Store(true)
	g.errs = make([]error, len(g.services))
	for i, svc := range g.services {
		i, svc := i, svc
		limiter := rate.NewLimiter(g.limit, g.burst)
		g.eg.Go(func() error {
			g.errs[i] = g.loop(ctx, i, svc, limiter)
			return nil
		})
	}
	return nil
}

func (g *Group) loop(ctx context.Context, index int, svc Service, limiter *rate.Limiter) error {
	logger := log.L().With(
		zap.Int("index", index), zap.String("service", fmt.Sprintf("%T", svc)))
	var errRetry *retry.ErrorRetry
	if g.newErrorRetry != nil {
		errRetry = g.newErrorRetry()
	}
	for g.running.Load() {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		err := svc.Step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("step service failed", zap.Error(err))
		if IsExit(err) {
			return err
		}
		if errRetry == nil {
			continue
		}
		backoff, rerr := errRetry.GetRetryBackoff(err)
		if rerr != nil {
			return rerr
		}
		select {
		case <-ctx.Done():
			return nil
		case <-g.clock.After(backoff):
		}
	}
	return nil
}

// Stop asks every loop to exit after its current step. The context passed
// to Step is canceled.
func (g *Group) Stop() {
	g.running.Store(false)
	if g.cancel != nil {
		g.cancel()
	}
}

// Wait blocks until every loop has exited and returns the exit errors of all
// services combined.
func (g *Group) Wait() error {
	if !g.started.Load() {
		return nil
	}
	_ = g.eg.Wait()
	g.cancel()
	return multierr.Combine(g.errs...)
}
