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

package network

import (
	"math"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/dustin/go-humanize"
	"github.com/pingcap/dataflow/pkg/config"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const (
	memoryMax uint64 = math.MaxUint64
	// maxBufferRatio is the share of the memory limit the channel buffers
	// may take before a warning is logged.
	maxBufferRatio = 0.5
)

// memoryLimit returns the memory limit of the process from its cgroup, or
// the memory of the host when no limit is set.
func memoryLimit() (uint64, error) {
	limit, err := memlimit.FromCgroup()
	if err != nil || limit == memoryMax {
		log.Debug("no cgroup memory limit", zap.Error(err))
		stat, err := mem.VirtualMemory()
		if err != nil {
			return 0, errors.Trace(err)
		}
		limit = stat.Total
	}
	return limit, nil
}

// bufferBytes returns the memory taken by the channel buffers of cfg. A
// memory output port has one ring whatever its number of readers.
func bufferBytes(cfg *config.NetworkConfig) uint64 {
	type port struct {
		actor string
		port  int
	}
	seen := make(map[port]struct{})
	var total uint64
	for _, conn := range cfg.Connections {
		size := uint64(conn.Size) * uint64(conn.TokenSize)
		if conn.Transport == config.TransportMemory {
			key := port{actor: conn.Src, port: conn.SrcPort}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		total += size
	}
	return total
}

// checkMemory logs a warning when the channel buffers take too much of the
// memory limit.
func checkMemory(cfg *config.NetworkConfig) {
	buffers := bufferBytes(cfg)
	limit, err := memoryLimit()
	if err != nil {
		log.Warn("fail to get the memory limit", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("buffers", humanize.IBytes(buffers)),
		zap.String("memory-limit", humanize.IBytes(limit)),
	}
	if float64(buffers) > float64(limit)*maxBufferRatio {
		log.Warn("channel buffers take more than half of the memory limit", fields...)
		return
	}
	log.Info("channel buffers allocated", fields...)
}
