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

package server

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/serviceless/pkg/actor"
	"github.com/pingcap/serviceless/pkg/clock"
	cerrors "github.com/pingcap/serviceless/pkg/errors"
	"github.com/pingcap/serviceless/pkg/kvservice"
	"github.com/pingcap/serviceless/pkg/step"
	"go.uber.org/zap"
)

// statsReporter periodically asks the kv store for its stats and exports
// them. It exits once the store is stopped.
type statsReporter struct {
	addr     actor.Addr[*kvservice.Store]
	interval time.Duration
	clock    clock.Clock
}

var _ step.Service = (*statsReporter)(nil)

func (r *statsReporter) Step(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-r.clock.After(r.interval):
	}
	stats, err := actor.Call[*kvservice.Store, kvservice.StatsResult](
		ctx, r.addr, kvservice.Stats{})
	if err != nil {
		if cerrors.ErrServiceStopped.Equal(err) {
			return step.Exit(err)
		}
		return err
	}
	kvKeysGauge.Set(float64(stats.Keys))
	kvOpsGauge.WithLabelValues("put").Set(float64(stats.Puts))
	kvOpsGauge.WithLabelValues("get").Set(float64(stats.Gets))
	kvOpsGauge.WithLabelValues("delete").Set(float64(stats.Deletes))
	kvOpsGauge.WithLabelValues("incr").Set(float64(stats.Incrs))
	log.Info("kv store stats", zap.Any("stats", stats))
	return nil
}
