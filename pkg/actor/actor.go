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
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// ID is the index of an actor in its graph.
type ID int

const (
	// NoActor stands for an unconnected port.
	NoActor ID = -1
	// ExternalActor stands for an input port fed from another process.
	ExternalActor ID = -2
)

// Reason tells why an actor stopped firing.
type Reason int

const (
	// ReasonOther means the actor stopped for a reason of its own.
	ReasonOther Reason = iota
	// ReasonFull means an output channel has no room left.
	ReasonFull
	// ReasonEmpty means an input channel has not enough tokens.
	ReasonEmpty
)

func (r Reason) String() string {
	switch r {
	case ReasonFull:
		return "full"
	case ReasonEmpty:
		return "empty"
	default:
		return "other"
	}
}

// PortMask selects ports of an actor. Bit i selects port i, the zero mask
// selects every port.
type PortMask uint32

// AllPorts selects every port.
const AllPorts PortMask = 0

// Has returns true if the port is selected by the mask.
func (m PortMask) Has(port int) bool {
	return m == AllPorts || m&(1<<uint(port)) != 0
}

// FiringResult is what an actor returns after a run of firings.
type FiringResult struct {
	// NumFirings is the number of times the actor fired, it may be zero.
	NumFirings int
	Reason     Reason
	// Ports is a bitmask of output ports when Reason is ReasonFull, and of
	// input ports when Reason is ReasonEmpty.
	Ports PortMask
}

// Context is passed to an actor when it is fired.
type Context interface {
	context.Context
	// Stop asks every scheduler of the process to stop once the current
	// firings return.
	Stop()
	// Actor returns the actor being fired.
	Actor() *Actor
}

// FireFunc fires an actor as many times as its channels allow.
type FireFunc func(ctx Context) FiringResult

type state = int32

const (
	stateIdle state = iota
	// stateListed means the actor is in the schedulable list of its owner.
	stateListed
	// stateWaiting means the actor is in a waiting list on its way to its
	// owner.
	stateWaiting
)

// Actor is an actor of a graph.
type Actor struct {
	ID   ID
	Name string
	Fire FireFunc

	// Predecessors has one entry per input port, NoActor if the port is
	// not connected, ExternalActor if it is fed from another process.
	Predecessors []ID
	// Successors has one list per output port.
	Successors [][]ID

	state   atomic.Int32
	owner   atomic.Int32
	mapping atomic.Int32

	firings atomic.Int64
	busy    atomic.Duration

	firingCounter prometheus.Counter
	busyCounter   prometheus.Counter
}

func newActor(id ID, name string, inputs, outputs int, fire FireFunc) *Actor {
	a := &Actor{
		ID:            id,
		Name:          name,
		Fire:          fire,
		Predecessors:  make([]ID, inputs),
		Successors:    make([][]ID, outputs),
		firingCounter: actorFirings.WithLabelValues(name),
		busyCounter:   actorBusySeconds.WithLabelValues(name),
	}
	for i := range a.Predecessors {
		a.Predecessors[i] = NoActor
	}
	return a
}

func (a *Actor) String() string {
	return fmt.Sprintf("%s(%d)", a.Name, a.ID)
}

// NumInputs returns the number of input ports.
func (a *Actor) NumInputs() int { return len(a.Predecessors) }

// NumOutputs returns the number of output ports.
func (a *Actor) NumOutputs() int { return len(a.Successors) }

// Owner returns the id of the scheduler the actor belongs to.
func (a *Actor) Owner() int { return int(a.owner.Load()) }

// Mapping returns the processing unit the actor is mapped on.
func (a *Actor) Mapping() int { return int(a.mapping.Load()) }

// InList returns true if the actor is in a schedulable list.
func (a *Actor) InList() bool { return a.state.Load() == stateListed }

// InWaiting returns true if the actor is in a waiting list.
func (a *Actor) InWaiting() bool { return a.state.Load() == stateWaiting }

// TryList marks an idle actor as listed. It returns false if the actor is
// already listed or waiting, in which case it must not be enqueued again.
func (a *Actor) TryList() bool {
	return a.state.CompareAndSwap(stateIdle, stateListed)
}

// TryWait marks an idle actor as waiting.
func (a *Actor) TryWait() bool {
	return a.state.CompareAndSwap(stateIdle, stateWaiting)
}

// ListFromWaiting moves a waiting actor to the listed state, once it
// reached the schedulable list of its owner.
func (a *Actor) ListFromWaiting() bool {
	return a.state.CompareAndSwap(stateWaiting, stateListed)
}

// Unlist marks the actor idle again, after it left the schedulable list.
func (a *Actor) Unlist() {
	a.state.Store(stateIdle)
}

// RecordFiring accounts a run of n firings that took d.
func (a *Actor) RecordFiring(n int, d time.Duration) {
	if n <= 0 {
		return
	}
	a.firings.Add(int64(n))
	a.busy.Add(d)
	a.firingCounter.Add(float64(n))
	a.busyCounter.Add(d.Seconds())
}

// Stats is the firing profile of an actor.
type Stats struct {
	Firings int64         `json:"firings"`
	Busy    time.Duration `json:"busy"`
}

// Stats returns the firing profile of the actor.
func (a *Actor) Stats() Stats {
	return Stats{Firings: a.firings.Load(), Busy: a.busy.Load()}
}

type fireContext struct {
	context.Context
	actor *Actor
	stop  func()
}

// NewContext returns the Context an actor is fired with. stop is called
// when the actor asks the process to stop.
func NewContext(ctx context.Context, a *Actor, stop func()) Context {
	return &fireContext{Context: ctx, actor: a, stop: stop}
}

func (c *fireContext) Stop() {
	if c.stop != nil {
		c.stop()
	}
}

func (c *fireContext) Actor() *Actor { return c.actor }
