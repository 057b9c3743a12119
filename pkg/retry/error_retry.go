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

package retry

import (
	"time"

	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
)

const (
	defaultErrorMaxRetryDuration = 30 * time.Minute
	defaultErrorResetInterval    = 10 * time.Minute
	defaultErrorBackoffBase      = time.Second
	defaultErrorBackoffMax       = 30 * time.Second
)

// ErrorRetry computes the delay before retrying a long running job that
// keeps failing. Errors spaced more than the reset interval apart start a
// new retry round. It is not safe for concurrent use.
type ErrorRetry struct {
	// maxRetryDuration is zero when the job is retried forever.
	maxRetryDuration time.Duration
	resetInterval    time.Duration
	backoffBase      time.Duration
	backoffMax       time.Duration
	clock            clock.Clock

	firstRetryTime     time.Time
	lastErrorRetryTime time.Time
	retries            uint64
}

// NewDefaultErrorRetry creates an ErrorRetry that gives up after 30 minutes.
func NewDefaultErrorRetry() *ErrorRetry {
	return NewErrorRetry(defaultErrorMaxRetryDuration, defaultErrorResetInterval,
		defaultErrorBackoffBase, defaultErrorBackoffMax)
}

// NewErrorRetry creates an ErrorRetry.
func NewErrorRetry(
	maxRetryDuration, resetInterval, backoffBase, backoffMax time.Duration,
) *ErrorRetry {
	return &ErrorRetry{
		maxRetryDuration: maxRetryDuration,
		resetInterval:    resetInterval,
		backoffBase:      backoffBase,
		backoffMax:       backoffMax,
		clock:            clock.New(),
	}
}

// WithClock replaces the clock used to measure the retry round.
func (r *ErrorRetry) WithClock(clk clock.Clock) *ErrorRetry {
	r.clock = clk
	return r
}

// GetRetryBackoff returns how long to wait before retrying after err. It
// returns an error once the job has been failing longer than the max retry
// duration.
func (r *ErrorRetry) GetRetryBackoff(err error) (time.Duration, error) {
	now := r.clock.Now()
	if r.firstRetryTime.IsZero() || now.Sub(r.lastErrorRetryTime) > r.resetInterval {
		r.firstRetryTime = now
		r.retries = 0
	}
	if r.maxRetryDuration > 0 && now.Sub(r.firstRetryTime) > r.maxRetryDuration {
		return 0, cerrors.ErrReachMaxTry.GenWithStackByArgs(r.maxRetryDuration.String(), err.Error())
	}
	r.lastErrorRetryTime = now
	r.retries++
	return getBackoff(r.backoffBase, r.backoffMax, r.retries), nil
}
