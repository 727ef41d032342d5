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
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/fifo"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// pipeline is a source feeding a sink through a ring channel. The source
// writes total tokens, total < 0 means forever. The sink checks their order
// and stops the process once it received total tokens.
type pipeline struct {
	graph    *actor.Graph
	ch       *fifo.Ring
	produced uint32
	consumed atomic.Uint32
	outOfSeq atomic.Bool
}

func newPipeline(t *testing.T, total int) *pipeline {
	ch, err := fifo.NewRing(16, 4, 1)
	require.NoError(t, err)
	p := &pipeline{graph: actor.NewGraph(), ch: ch}

	src, err := p.graph.AddActor("source", 0, 1, func(actor.Context) actor.FiringResult {
		n := 0
		for (total < 0 || int(p.produced) < total) && ch.HasRoom(1) {
			binary.LittleEndian.PutUint32(ch.Write(1), p.produced)
			if err := ch.WriteEnd(1); err != nil {
				panic(err)
			}
			p.produced++
			n++
		}
		if n == 0 {
			return actor.FiringResult{Reason: actor.ReasonOther}
		}
		return actor.FiringResult{NumFirings: n, Reason: actor.ReasonFull, Ports: 0x1}
	})
	require.NoError(t, err)
	sink, err := p.graph.AddActor("sink", 1, 0, func(ctx actor.Context) actor.FiringResult {
		n := 0
		for {
			avail, err := ch.NumTokens(0)
			if err != nil {
				panic(err)
			}
			if avail == 0 {
				break
			}
			if binary.LittleEndian.Uint32(ch.Read(0, 1)) != p.consumed.Load() {
				p.outOfSeq.Store(true)
			}
			if err := ch.ReadEnd(0, 1); err != nil {
				panic(err)
			}
			n++
			if p.consumed.Inc() == uint32(total) {
				ctx.Stop()
				return actor.FiringResult{NumFirings: n, Reason: actor.ReasonOther}
			}
		}
		return actor.FiringResult{NumFirings: n, Reason: actor.ReasonEmpty, Ports: 0x1}
	})
	require.NoError(t, err)
	require.NoError(t, p.graph.Connect(src.ID, 0, sink.ID, 0))
	require.NoError(t, p.graph.Validate())
	return p
}

func twoUnits() *mapper.Mapping {
	return &mapper.Mapping{
		ThreadNb: 2,
		Units: []mapper.Unit{
			{ID: 0, ActorCount: 1, Actors: []actor.ID{0}},
			{ID: 1, ActorCount: 1, Actors: []actor.ID{1}},
		},
	}
}

func oneUnit() *mapper.Mapping {
	return &mapper.Mapping{
		ThreadNb: 1,
		Units:    []mapper.Unit{{ID: 0, ActorCount: 2, Actors: []actor.ID{0, 1}}},
	}
}

func TestClusterRun(t *testing.T) {
	t.Parallel()

	const total = 5000
	cases := []struct {
		name    string
		cfg     Config
		mapping *mapper.Mapping
	}{
		{"ddd-ring", Config{Policy: PolicyDDD, Topology: TopologyRing}, twoUnits()},
		{"ddd-mesh", Config{Policy: PolicyDDD, Topology: TopologyMesh}, twoUnits()},
		{"ddd-single", Config{Policy: PolicyDDD, Topology: TopologyRing}, oneUnit()},
		{"rr-ring", Config{Policy: PolicyRoundRobin, Topology: TopologyRing}, twoUnits()},
		{"ddd-pinned", Config{Policy: PolicyDDD, Topology: TopologyMesh, PinCPU: true}, twoUnits()},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newPipeline(t, total)
			tc.cfg.IdleTimeout = time.Millisecond
			c, err := NewCluster(p.graph, tc.mapping, tc.cfg)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			require.NoError(t, c.Run(ctx))
			require.True(t, c.Stopped())
			require.Equal(t, uint32(total), p.consumed.Load())
			require.False(t, p.outOfSeq.Load())

			var firings int64
			for _, snap := range c.Snapshot() {
				firings += snap.Firings
			}
			require.GreaterOrEqual(t, firings, int64(2*total))
		})
	}
}

func TestClusterRemap(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, -1)
	c, err := NewCluster(p.graph, oneUnit(), Config{
		Policy:      PolicyDDD,
		Topology:    TopologyRing,
		IdleTimeout: time.Millisecond,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, c.Start(ctx))
	err = c.Start(ctx)
	require.True(t, cerror.ErrSchedulerRunning.Equal(err), err)
	require.Eventually(t, func() bool { return p.consumed.Load() > 1000 },
		10*time.Second, 5*time.Millisecond)
	require.Len(t, c.Snapshot(), 1)

	require.NoError(t, c.Remap(ctx, twoUnits(), false))
	require.Equal(t, 1, p.graph.Actor(1).Owner())
	snaps := c.Snapshot()
	require.Len(t, snaps, 2)
	require.Equal(t, "mesh", snaps[1].Topology)
	require.Equal(t, []string{"sink"}, snaps[1].Actors)

	before := p.consumed.Load()
	require.Eventually(t, func() bool { return p.consumed.Load() > before+1000 },
		10*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Remap(ctx, oneUnit(), true))
	require.Len(t, c.Snapshot(), 1)
	require.Equal(t, 0, p.graph.Actor(1).Owner())

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
	require.False(t, c.Stopped())
	require.False(t, p.outOfSeq.Load())
	require.Same(t, c.Mapping(), c.Mapping())
}

func TestClusterRunWithRemaps(t *testing.T) {
	t.Parallel()

	const total = 200000
	p := newPipeline(t, total)
	c, err := NewCluster(p.graph, oneUnit(), Config{
		Policy:      PolicyDDD,
		Topology:    TopologyMesh,
		IdleTimeout: time.Millisecond,
	})
	require.NoError(t, err)

	remaps := make(chan *mapper.Mapping)
	errCh := make(chan error, 1)
	go func() { errCh <- c.RunWithRemaps(context.Background(), remaps) }()

	var (
		runErr   error
		finished bool
	)
remap:
	for _, m := range []*mapper.Mapping{twoUnits(), oneUnit(), twoUnits()} {
		select {
		case remaps <- m:
		case runErr = <-errCh:
			// the sink may receive every token before all remaps are sent
			finished = true
			break remap
		}
	}
	if !finished {
		runErr = <-errCh
	}
	require.NoError(t, runErr)
	require.True(t, c.Stopped())
	require.EqualValues(t, total, p.consumed.Load())
	require.False(t, p.outOfSeq.Load())
	for _, s := range c.Snapshot() {
		require.Equal(t, "mesh", s.Topology)
	}
}

func TestClusterInvalidMapping(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, 1)
	_, err := NewCluster(p.graph, &mapper.Mapping{
		ThreadNb: 1,
		Units:    []mapper.Unit{{ID: 0, ActorCount: 1, Actors: []actor.ID{0}}},
	}, Config{})
	require.True(t, cerror.ErrInvalidMapping.Equal(err), err)
}

func TestClusterCanceled(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, -1)
	c, err := NewCluster(p.graph, twoUnits(), Config{Policy: PolicyDDD, IdleTimeout: time.Millisecond})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, c.Run(ctx))
	require.False(t, c.Stopped())
}
