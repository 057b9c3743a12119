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
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"go.uber.org/zap"
)

// Operation is the action need to retry
type Operation func() error

// Do runs operation until it succeeds, returns an error that is not
// retryable, or runs out of tries. By default it tries three times.
func Do(ctx context.Context, operation Operation, opts ...Option) error {
	o := newRetryOptions()
	for _, opt := range opts {
		opt(o)
	}
	return run(ctx, operation, o)
}

func run(ctx context.Context, op Operation, o *retryOptions) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}

	var t *time.Timer
	start := time.Now()
	for try := uint64(1); ; try++ {
		err := op()
		if err == nil {
			return nil
		}
		if !o.isRetryable(err) {
			return err
		}
		if o.maxTries > 0 && try >= o.maxTries {
			return cerrors.ErrReachMaxTry.GenWithStackByArgs(
				strconv.FormatUint(o.maxTries, 10), err.Error())
		}
		if o.totalRetryDuration > 0 && time.Since(start) >= o.totalRetryDuration {
			return cerrors.ErrReachMaxTry.GenWithStackByArgs(
				o.totalRetryDuration.String(), err.Error())
		}

		backoff := getBackoff(o.backoffBase, o.backoffCap, try)
		log.Debug("retry operation",
			zap.Uint64("try", try), zap.Duration("backoff", backoff), zap.Error(err))
		if t == nil {
			t = time.NewTimer(backoff)
			defer t.Stop()
		} else {
			t.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-t.C:
		}
	}
}

// getBackoff returns a jittered delay in [base, limit] that grows with try.
// See https://www.awsarchitectureblog.com/2015/03/backoff.html
func getBackoff(base, limit time.Duration, try uint64) time.Duration {
	if limit < base {
		limit = base
	}
	ceil := limit
	if try < 32 && base<<try > 0 && base<<try < limit {
		ceil = base << try
	}
	if ceil <= base {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(ceil-base)+1))
}
