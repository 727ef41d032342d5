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
	"go.uber.org/atomic"
)

// Sync is shared by the schedulers of a process. It owns the waiting lists
// of both topologies and the cooperative stop flag.
type Sync struct {
	capacity int
	wakeups  []chan struct{}
	// ring[k] links scheduler k to scheduler k+1.
	ring []*WaitingList
	// mesh[dst][src] carries actors from src to dst.
	mesh [][]*WaitingList

	stopped atomic.Bool
	onStop  func()
}

// NewSync creates the waiting lists of schedulersNb schedulers. Every list
// holds up to capacity actors. onStop, if not nil, is called the first time
// an actor asks to stop.
func NewSync(schedulersNb, capacity int, onStop func()) *Sync {
	s := &Sync{capacity: capacity, onStop: onStop}
	s.Resize(schedulersNb)
	return s
}

// Resize recreates the waiting lists for schedulersNb schedulers. Pending
// handovers are dropped. It must not be called while schedulers run.
func (s *Sync) Resize(schedulersNb int) {
	if schedulersNb < 1 {
		schedulersNb = 1
	}
	s.wakeups = make([]chan struct{}, schedulersNb)
	for i := range s.wakeups {
		s.wakeups[i] = make(chan struct{}, 1)
	}
	s.ring = make([]*WaitingList, schedulersNb)
	for k := range s.ring {
		s.ring[k] = NewWaitingList(s.capacity, s.wakeups[(k+1)%schedulersNb])
	}
	s.mesh = make([][]*WaitingList, schedulersNb)
	for dst := range s.mesh {
		s.mesh[dst] = make([]*WaitingList, schedulersNb)
		for src := range s.mesh[dst] {
			if src != dst {
				s.mesh[dst][src] = NewWaitingList(s.capacity, s.wakeups[dst])
			}
		}
	}
}

// SchedulersNb returns the number of schedulers.
func (s *Sync) SchedulersNb() int {
	return len(s.wakeups)
}

// RingLink returns the list from scheduler from to its successor.
func (s *Sync) RingLink(from int) *WaitingList {
	n := len(s.ring)
	return s.ring[((from%n)+n)%n]
}

// Mesh returns the list carrying actors from src to dst.
func (s *Sync) Mesh(dst, src int) *WaitingList {
	return s.mesh[dst][src]
}

func (s *Sync) wakeup(id int) chan struct{} {
	return s.wakeups[id]
}

// Stop asks every scheduler to stop.
func (s *Sync) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	for _, ch := range s.wakeups {
		notify(ch)
	}
	if s.onStop != nil {
		s.onStop()
	}
}

// Stopped returns true once Stop is called.
func (s *Sync) Stopped() bool {
	return s.stopped.Load()
}
