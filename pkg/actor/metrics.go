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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runningServices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "serviceless",
			Subsystem: "actor",
			Name:      "running_services",
			Help:      "The number of services whose dispatch loop is running.",
		}, []string{"name"})
	mailboxPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "serviceless",
			Subsystem: "actor",
			Name:      "mailbox_pending",
			Help:      "The number of envelopes waiting in a mailbox.",
		}, []string{"name"})
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "serviceless",
			Subsystem: "actor",
			Name:      "dispatch_duration_seconds",
			Help:      "Bucketed histogram of the time spent handling one message.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20), // 10us ~ 5s
		}, []string{"name"})
	discardedResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "serviceless",
			Subsystem: "actor",
			Name:      "discarded_results_total",
			Help:      "Total number of results dropped because the service was paused.",
		}, []string{"name"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(runningServices)
	registry.MustRegister(mailboxPending)
	registry.MustRegister(dispatchDuration)
	registry.MustRegister(discardedResults)
}
