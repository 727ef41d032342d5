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
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	cerror "github.com/pingcap/dataflow/pkg/errors"
)

// Policy selects the next actor to fire.
type Policy int

const (
	// PolicyRoundRobin fires the owned actors in a fixed cyclic order.
	PolicyRoundRobin Policy = iota
	// PolicyDDD fires the actors enqueued by the data and demand of their
	// neighbours.
	PolicyDDD
)

func (p Policy) String() string {
	if p == PolicyRoundRobin {
		return "round-robin"
	}
	return "ddd"
}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "round-robin", "rr":
		return PolicyRoundRobin, nil
	case "ddd":
		return PolicyDDD, nil
	}
	return 0, cerror.ErrInvalidConfig.GenWithStackByArgs("unknown scheduling policy " + s)
}

// Topology is the way schedulers hand actors over to each other.
type Topology int

const (
	// TopologyRing links each scheduler to the next one. Actors travel hop
	// by hop until they reach their owner.
	TopologyRing Topology = iota
	// TopologyMesh gives every scheduler a waiting list per peer.
	TopologyMesh
)

func (t Topology) String() string {
	if t == TopologyRing {
		return "ring"
	}
	return "mesh"
}

// ParseTopology parses a topology name.
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(s) {
	case "ring":
		return TopologyRing, nil
	case "mesh":
		return TopologyMesh, nil
	}
	return 0, cerror.ErrInvalidConfig.GenWithStackByArgs("unknown scheduler topology " + s)
}

const defaultIdleTimeout = 10 * time.Millisecond

type options struct {
	policy      Policy
	topology    Topology
	idleTimeout time.Duration
	clock       clock.Clock
	runID       string
}

func defaultOptions() options {
	return options{
		policy:      PolicyDDD,
		topology:    TopologyRing,
		idleTimeout: defaultIdleTimeout,
		clock:       clock.New(),
	}
}

// Option configures a Scheduler.
type Option func(*options)

// WithPolicy sets the scheduling policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithTopology sets the topology of the waiting lists.
func WithTopology(t Topology) Option {
	return func(o *options) { o.topology = t }
}

// WithIdleTimeout sets how long an idle scheduler waits for a handover
// before it sweeps its actors.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithClock sets the clock used for idle waits and firing time.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRunID sets the run id attached to the logs of the scheduler.
func WithRunID(runID string) Option {
	return func(o *options) { o.runID = runID }
}
