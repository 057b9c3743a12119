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

package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serviceless",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests.",
		}, []string{"side", "method", "code"})
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "serviceless",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Bucketed histogram of JSON-RPC request duration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18), // 100us ~ 13s
		}, []string{"side", "method"})
)

const (
	sideClient = "client"
	sideServer = "server"
	// batchMethod labels batched requests on the client side.
	batchMethod = "batch"
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(requestCounter)
	registry.MustRegister(requestDuration)
}
