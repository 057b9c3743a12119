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

package kvservice

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/pingcap/serviceless/pkg/actor"
	"go.uber.org/zap"
)

// Store is an in-memory key value store. It is owned by its mailbox and
// only touched by message handlers.
type Store struct {
	data  map[string]string
	stats StatsResult
}

var (
	_ actor.Starter[*Store] = (*Store)(nil)
	_ actor.Stopper[*Store] = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Started implements actor.Starter.
func (s *Store) Started(_ context.Context, rt *actor.Context[*Store]) {
	rt.Logger().Info("kv store started", zap.Int("keys", len(s.data)))
}

// Stopped implements actor.Stopper.
func (s *Store) Stopped(_ context.Context, rt *actor.Context[*Store]) {
	rt.Logger().Info("kv store stopped",
		zap.Int("keys", len(s.data)), zap.Any("stats", s.stats))
}

// Put sets Key to Value and returns the previous value.
type Put struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Method implements rpc.Method.
func (Put) Method() string { return "kv_put" }

// Handle implements actor.Message.
func (m Put) Handle(_ context.Context, s *Store, _ *actor.Context[*Store]) GetResult {
	prev, ok := s.data[m.Key]
	s.data[m.Key] = m.Value
	s.stats.Puts++
	return GetResult{Value: prev, Found: ok}
}

// Get reads Key.
type Get struct {
	Key string `json:"key"`
}

// GetResult is the value of a key, Found is false if the key is absent.
type GetResult struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// Method implements rpc.Method.
func (Get) Method() string { return "kv_get" }

// Handle implements actor.Message.
func (m Get) Handle(_ context.Context, s *Store, _ *actor.Context[*Store]) GetResult {
	v, ok := s.data[m.Key]
	s.stats.Gets++
	return GetResult{Value: v, Found: ok}
}

// Delete removes Key and reports whether it existed.
type Delete struct {
	Key string `json:"key"`
}

// Method implements rpc.Method.
func (Delete) Method() string { return "kv_delete" }

// Handle implements actor.Message.
func (m Delete) Handle(_ context.Context, s *Store, _ *actor.Context[*Store]) bool {
	_, ok := s.data[m.Key]
	delete(s.data, m.Key)
	s.stats.Deletes++
	return ok
}

// Incr adds Delta to the integer stored at Key, a missing key counts as 0.
type Incr struct {
	Key   string `json:"key"`
	Delta int64  `json:"delta"`
}

// IncrResult is the new value, or the reason the value was left untouched.
type IncrResult struct {
	Value int64  `json:"value"`
	Error string `json:"error,omitempty"`
}

// Method implements rpc.Method.
func (Incr) Method() string { return "kv_incr" }

// Handle implements actor.Message.
func (m Incr) Handle(_ context.Context, s *Store, rt *actor.Context[*Store]) IncrResult {
	s.stats.Incrs++
	var cur int64
	if v, ok := s.data[m.Key]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			rt.Logger().Debug("incr a non integer value",
				zap.String("key", m.Key), zap.Error(err))
			return IncrResult{Error: "value of " + m.Key + " is not an integer"}
		}
		cur = n
	}
	if (m.Delta > 0 && cur > math.MaxInt64-m.Delta) ||
		(m.Delta < 0 && cur < math.MinInt64-m.Delta) {
		return IncrResult{Value: cur, Error: "incr of " + m.Key + " overflows int64"}
	}
	cur += m.Delta
	s.data[m.Key] = strconv.FormatInt(cur, 10)
	return IncrResult{Value: cur}
}

// Keys lists all keys in ascending order.
type Keys struct{}

// Method implements rpc.Method.
func (Keys) Method() string { return "kv_keys" }

// Handle implements actor.Message.
func (Keys) Handle(_ context.Context, s *Store, _ *actor.Context[*Store]) []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats reports the number of keys and of handled writes and reads.
type Stats struct{}

// StatsResult is the result of Stats.
type StatsResult struct {
	Keys    int    `json:"keys"`
	Puts    uint64 `json:"puts"`
	Gets    uint64 `json:"gets"`
	Deletes uint64 `json:"deletes"`
	Incrs   uint64 `json:"incrs"`
}

// Method implements rpc.Method.
func (Stats) Method() string { return "kv_stats" }

// Handle implements actor.Message.
func (Stats) Handle(_ context.Context, s *Store, _ *actor.Context[*Store]) StatsResult {
	r := s.stats
	r.Keys = len(s.data)
	return r
}

// Pause pauses or resumes result delivery of the store. The result of a
// pausing request is itself suppressed.
type Pause struct {
	Paused bool `json:"paused"`
}

// Method implements rpc.Method.
func (Pause) Method() string { return "kv_pause" }

// Handle implements actor.Message.
func (m Pause) Handle(_ context.Context, _ *Store, rt *actor.Context[*Store]) bool {
	if m.Paused {
		rt.Pause()
	} else {
		rt.Resume()
	}
	return rt.IsPaused()
}
