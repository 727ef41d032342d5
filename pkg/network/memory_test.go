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
	"testing"

	"github.com/pingcap/dataflow/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestBufferBytes(t *testing.T) {
	t.Parallel()

	cfg := &config.NetworkConfig{
		Connections: []*config.ConnectionConfig{
			// one ring of 64KiB read by two actors
			{Src: "src", Dst: "a", Size: 16, TokenSize: 4096, Transport: config.TransportMemory},
			{Src: "src", Dst: "b", Size: 16, TokenSize: 4096, Transport: config.TransportMemory},
			{Src: "a", Dst: "c", Size: 8, TokenSize: 2, Transport: config.TransportMemory},
			{Src: "remote", Dst: "c", Size: 10, TokenSize: 100, Transport: config.TransportSocket},
		},
	}
	require.EqualValues(t, 64<<10+16+1000, bufferBytes(cfg))
}

func TestMemoryLimit(t *testing.T) {
	t.Parallel()

	limit, err := memoryLimit()
	require.NoError(t, err)
	require.Greater(t, limit, uint64(0))
}
