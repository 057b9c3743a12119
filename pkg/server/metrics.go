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
	"github.com/pingcap/serviceless/pkg/actor"
	"github.com/pingcap/serviceless/pkg/rpc"
	"github.com/pingcap/serviceless/pkg/rpc/grpcbridge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	kvKeysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "serviceless",
		Subsystem: "kv",
		Name:      "keys",
		Help:      "number of keys in the kv store, as last reported",
	})
	kvOpsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "serviceless",
		Subsystem: "kv",
		Name:      "operations",
		Help:      "number of operations handled by the kv store, as last reported",
	}, []string{"op"})
)

// newRegistry returns a registry with the metrics of every component of the
// server.
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(kvKeysGauge)
	registry.MustRegister(kvOpsGauge)
	actor.InitMetrics(registry)
	rpc.InitMetrics(registry)
	grpcbridge.InitMetrics(registry)
	return registry
}
