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

package fifo

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tokensWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dpn",
			Subsystem: "fifo",
			Name:      "tokens_written_total",
			Help:      "The total number of tokens committed to channels.",
		}, []string{"backend"})
	tokensRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dpn",
			Subsystem: "fifo",
			Name:      "tokens_read_total",
			Help:      "The total number of tokens released by channel readers.",
		}, []string{"backend"})
	socketBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dpn",
			Subsystem: "fifo",
			Name:      "socket_bytes_total",
			Help:      "The total number of bytes transferred by socket channels.",
		}, []string{"direction"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(tokensWritten)
	registry.MustRegister(tokensRead)
	registry.MustRegister(socketBytes)
}
