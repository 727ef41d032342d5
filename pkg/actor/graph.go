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
	"fmt"

	cerror "github.com/pingcap/dataflow/pkg/errors"
)

// Edge is a connection from an output port to an input port.
type Edge struct {
	Src     ID  `json:"src"`
	SrcPort int `json:"src-port"`
	Dst     ID  `json:"dst"`
	DstPort int `json:"dst-port"`
}

// Graph owns the actors of a network. Actors are indexed by their ID.
//
// A Graph is built by a single goroutine and is read-only once schedulers
// run on it, except for the scheduling state of its actors.
type Graph struct {
	actors []*Actor
	byName map[string]ID
	edges  []Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]ID)}
}

// AddActor adds an actor with the given number of ports.
func (g *Graph) AddActor(name string, inputs, outputs int, fire FireFunc) (*Actor, error) {
	if name == "" {
		return nil, cerror.ErrInvalidGraph.GenWithStackByArgs("actor without name")
	}
	if _, ok := g.byName[name]; ok {
		return nil, cerror.ErrInvalidGraph.GenWithStackByArgs(
			fmt.Sprintf("duplicated actor %s", name))
	}
	if inputs < 0 || outputs < 0 || inputs > 32 || outputs > 32 {
		return nil, cerror.ErrInvalidGraph.GenWithStackByArgs(
			fmt.Sprintf("actor %s has %d inputs and %d outputs", name, inputs, outputs))
	}
	if fire == nil {
		return nil, cerror.ErrInvalidGraph.GenWithStackByArgs(
			fmt.Sprintf("actor %s has no fire function", name))
	}
	a := newActor(ID(len(g.actors)), name, inputs, outputs, fire)
	g.actors = append(g.actors, a)
	g.byName[name] = a.ID
	return a, nil
}

// Connect connects the output port srcPort of src to the input port
// dstPort of dst. An output port may feed several actors, an input port is
// fed by exactly one.
func (g *Graph) Connect(src ID, srcPort int, dst ID, dstPort int) error {
	s, err := g.Get(src)
	if err != nil {
		return err
	}
	d, err := g.Get(dst)
	if err != nil {
		return err
	}
	if srcPort < 0 || srcPort >= s.NumOutputs() {
		return cerror.ErrInvalidGraph.GenWithStackByArgs(
			fmt.Sprintf("actor %s has no output port %d", s.Name, srcPort))
	}
	if dstPort < 0 || dstPort >= d.NumInputs() {
		return cerror.ErrInvalidGraph.GenWithStackByArgs(
			fmt.Sprintf("actor %s has no input port %d", d.Name, dstPort))
	}
	if d.Predecessors[dstPort] != NoActor {
		return cerror.ErrPortAlreadyConnected.GenWithStackByArgs(dstPort, d.Name)
	}
	d.Predecessors[dstPort] = src
	s.Successors[srcPort] = append(s.Successors[srcPort], dst)
	g.edges = append(g.edges, Edge{Src: src, SrcPort: srcPort, Dst: dst, DstPort: dstPort})
	return nil
}

// ConnectExternal marks the input port dstPort of dst as fed from another
// process.
func (g *Graph) ConnectExternal(dst ID, dstPort int) error {
	d, err := g.Get(dst)
	if err != nil {
		return err
	}
	if dstPort < 0 || dstPort >= d.NumInputs() {
		return cerror.ErrInvalidGraph.GenWithStackByArgs(
			fmt.Sprintf("actor %s has no input port %d", d.Name, dstPort))
	}
	if d.Predecessors[dstPort] != NoActor {
		return cerror.ErrPortAlreadyConnected.GenWithStackByArgs(dstPort, d.Name)
	}
	d.Predecessors[dstPort] = ExternalActor
	return nil
}

// Get returns the actor with the given id.
func (g *Graph) Get(id ID) (*Actor, error) {
	if id < 0 || int(id) >= len(g.actors) {
		return nil, cerror.ErrActorNotFound.GenWithStackByArgs(id)
	}
	return g.actors[id], nil
}

// Lookup returns the actor with the given name.
func (g *Graph) Lookup(name string) (*Actor, bool) {
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return g.actors[id], true
}

// Actor returns the actor with the given id. It panics if the id is not in
// the graph.
func (g *Graph) Actor(id ID) *Actor {
	return g.actors[id]
}

// Actors returns all actors ordered by ID.
func (g *Graph) Actors() []*Actor {
	return g.actors
}

// Len returns the number of actors.
func (g *Graph) Len() int {
	return len(g.actors)
}

// Edges returns all connections in creation order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Validate checks that every input port is connected.
func (g *Graph) Validate() error {
	if len(g.actors) == 0 {
		return cerror.ErrInvalidGraph.GenWithStackByArgs("no actor")
	}
	for _, a := range g.actors {
		for port, pred := range a.Predecessors {
			if pred == NoActor {
				return cerror.ErrInvalidGraph.GenWithStackByArgs(
					fmt.Sprintf("input port %d of actor %s is not connected", port, a.Name))
			}
		}
	}
	return nil
}

// Assign sets the scheduler and the processing unit of an actor. It must
// not be called while schedulers run on the graph.
func (g *Graph) Assign(id ID, owner, unit int) error {
	a, err := g.Get(id)
	if err != nil {
		return err
	}
	a.owner.Store(int32(owner))
	a.mapping.Store(int32(unit))
	return nil
}
