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
	"testing"

	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestWaitingList(t *testing.T) {
	t.Parallel()

	ready := make(chan struct{}, 1)
	w := NewWaitingList(3, ready)
	require.Equal(t, 3, w.Cap())
	_, ok := w.Pop()
	require.False(t, ok)

	require.NoError(t, w.Push(1))
	require.NoError(t, w.Push(2))
	require.NoError(t, w.Push(3))
	require.Equal(t, 3, w.Len())
	err := w.Push(4)
	require.True(t, cerror.ErrCapacityExceeded.Equal(err), err)
	require.Equal(t, 20, cerror.ExitCode(err))

	select {
	case <-ready:
	default:
		t.Fatal("consumer is not signaled")
	}

	for _, expected := range []actor.ID{1, 2, 3} {
		id, ok := w.Pop()
		require.True(t, ok)
		require.Equal(t, expected, id)
	}
	_, ok = w.Pop()
	require.False(t, ok)

	// the slots are reused
	require.NoError(t, w.Push(5))
	id, ok := w.Pop()
	require.True(t, ok)
	require.Equal(t, actor.ID(5), id)
}

func TestWaitingListZeroCapacity(t *testing.T) {
	t.Parallel()

	w := NewWaitingList(0, nil)
	require.True(t, cerror.ErrCapacityExceeded.Equal(w.Push(1)))
	_, ok := w.Pop()
	require.False(t, ok)
}

func TestSchedulableList(t *testing.T) {
	t.Parallel()

	l := newSchedulableList(2)
	require.NoError(t, l.push(7))
	require.NoError(t, l.push(8))
	require.True(t, cerror.ErrCapacityExceeded.Equal(l.push(9)))
	require.Equal(t, 2, l.len())

	id, ok := l.pop()
	require.True(t, ok)
	require.Equal(t, actor.ID(7), id)
	require.NoError(t, l.push(9))
	id, _ = l.pop()
	require.Equal(t, actor.ID(8), id)
	id, _ = l.pop()
	require.Equal(t, actor.ID(9), id)
	_, ok = l.pop()
	require.False(t, ok)
}

func TestSyncLinks(t *testing.T) {
	t.Parallel()

	stopped := 0
	s := NewSync(3, 4, func() { stopped++ })
	require.Equal(t, 3, s.SchedulersNb())
	require.Same(t, s.RingLink(2), s.RingLink(-1))
	require.Nil(t, s.Mesh(1, 1))
	require.NotNil(t, s.Mesh(1, 0))

	// a push on the link from 0 wakes scheduler 1 up
	require.NoError(t, s.RingLink(0).Push(1))
	select {
	case <-s.wakeup(1):
	default:
		t.Fatal("scheduler 1 is not signaled")
	}
	require.NoError(t, s.Mesh(2, 0).Push(1))
	select {
	case <-s.wakeup(2):
	default:
		t.Fatal("scheduler 2 is not signaled")
	}

	require.False(t, s.Stopped())
	s.Stop()
	s.Stop()
	require.True(t, s.Stopped())
	require.Equal(t, 1, stopped)

	s.Resize(1)
	require.Equal(t, 1, s.SchedulersNb())
	require.Same(t, s.RingLink(0), s.RingLink(1))
}

func TestParse(t *testing.T) {
	t.Parallel()

	for name, expected := range map[string]Policy{"ddd": PolicyDDD, "RR": PolicyRoundRobin, "round-robin": PolicyRoundRobin} {
		p, err := ParsePolicy(name)
		require.NoError(t, err)
		require.Equal(t, expected, p)
	}
	_, err := ParsePolicy("fifo")
	require.True(t, cerror.ErrInvalidConfig.Equal(err))

	for name, expected := range map[string]Topology{"ring": TopologyRing, "Mesh": TopologyMesh} {
		topo, err := ParseTopology(name)
		require.NoError(t, err)
		require.Equal(t, expected, topo)
	}
	_, err = ParseTopology("star")
	require.True(t, cerror.ErrInvalidConfig.Equal(err))
	require.Equal(t, "round-robin", PolicyRoundRobin.String())
	require.Equal(t, "mesh", TopologyMesh.String())
}
