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
package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	firingsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dpn",
			Subsystem: "scheduler",
			Name:      "firings_total",
			Help:      "The total number of actor firings of a scheduler.",
		}, []string{"scheduler"})
	idleCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dpn",
			Subsystem: "scheduler",
			Name:      "idle_total",
			Help:      "The number of times a scheduler ran out of schedulable actors.",
		}, []string{"scheduler"})
	handoverCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dpn",
			Subsystem: "scheduler",
			Name:      "handovers_total",
			Help:      "The number of actors pushed to a waiting list.",
		}, []string{"scheduler", "topology"})
	ownedActorsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dpn",
			Subsystem: "scheduler",
			Name:      "owned_actors",
			Help:      "The number of actors owned by a scheduler.",
		}, []string{"scheduler"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(firingsCounter)
	registry.MustRegister(idleCounter)
	registry.MustRegister(handoverCounter)
	registry.MustRegister(ownedActorsGauge)
}
