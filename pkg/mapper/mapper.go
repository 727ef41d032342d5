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
// Package mapper partitions the actors of a graph onto processing units.
package mapper

import (
	"fmt"
	"math"
	"time"

	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/dataflow/pkg/config"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Unit is a processing unit and the actors mapped on it.
type Unit struct {
	ID         int        `json:"id"`
	ActorCount int        `json:"actor-count"`
	Actors     []actor.ID `json:"actors"`
}

// Mapping is a partition of the actors of a graph. The scheduler i runs the
// actors of Units[i].
type Mapping struct {
	ThreadNb int    `json:"thread-nb"`
	Units    []Unit `json:"units"`
}

// Mapper computes a mapping.
type Mapper interface {
	// Map partitions the actors of g onto at most units processing units.
	Map(g *actor.Graph, units int) (*Mapping, error)
}

// New returns the mapper of the configured strategy.
func New(cfg *config.MapperConfig) (Mapper, error) {
	switch cfg.Strategy {
	case config.StrategyGreedy, "":
		return Greedy{}, nil
	case config.StrategyGenetic:
		return &Genetic{
			Seed:         cfg.Seed,
			Population:   cfg.Population,
			Generations:  cfg.Generations,
			MutationRate: cfg.MutationRate,
			EdgeWeight:   cfg.EdgeWeight,
		}, nil
	case config.StrategyStatic:
		return Static{Units: cfg.Units}, nil
	}
	return nil, cerror.ErrUnknownMappingStrategy.GenWithStackByArgs(cfg.Strategy)
}

// MapActors maps the actors of g with the configured strategy and checks
// the result.
func MapActors(g *actor.Graph, cfg *config.MapperConfig, units int) (*Mapping, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	mapping, err := m.Map(g, units)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := mapping.Validate(g, units); err != nil {
		return nil, errors.Trace(err)
	}
	log.Info("actors mapped",
		zap.String("strategy", cfg.Strategy),
		zap.Int("actors", g.Len()),
		zap.Int("units", mapping.ThreadNb),
		zap.Float64("skewness", Skewness(mapping.Loads(Weights(g)))))
	return mapping, nil
}

// Validate checks that every actor of g is in exactly one unit, and that
// there are at most maxUnits units.
func (m *Mapping) Validate(g *actor.Graph, maxUnits int) error {
	if m.ThreadNb != len(m.Units) {
		return cerror.ErrInvalidMapping.GenWithStackByArgs(
			fmt.Sprintf("thread number %d with %d units", m.ThreadNb, len(m.Units)))
	}
	if maxUnits > 0 && m.ThreadNb > maxUnits {
		return cerror.ErrInvalidMapping.GenWithStackByArgs(
			fmt.Sprintf("%d units exceed the maximum %d", m.ThreadNb, maxUnits))
	}
	seen := make([]bool, g.Len())
	for _, u := range m.Units {
		if u.ActorCount != len(u.Actors) {
			return cerror.ErrInvalidMapping.GenWithStackByArgs(
				fmt.Sprintf("unit %d counts %d actors but has %d", u.ID, u.ActorCount, len(u.Actors)))
		}
		for _, id := range u.Actors {
			if id < 0 || int(id) >= len(seen) {
				return cerror.ErrInvalidMapping.GenWithStackByArgs(
					fmt.Sprintf("unit %d has unknown actor %d", u.ID, id))
			}
			if seen[id] {
				return cerror.ErrInvalidMapping.GenWithStackByArgs(
					fmt.Sprintf("actor %s is mapped twice", g.Actor(id).Name))
			}
			seen[id] = true
		}
	}
	for id, ok := range seen {
		if !ok {
			return cerror.ErrInvalidMapping.GenWithStackByArgs(
				fmt.Sprintf("actor %s is not mapped", g.Actor(actor.ID(id)).Name))
		}
	}
	return nil
}

// Apply assigns every actor to the scheduler and the processing unit of its
// unit.
func (m *Mapping) Apply(g *actor.Graph) error {
	for i, u := range m.Units {
		for _, id := range u.Actors {
			if err := g.Assign(id, i, u.ID); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}

// Loads returns the total weight of each unit.
func (m *Mapping) Loads(weights []float64) []float64 {
	loads := make([]float64, len(m.Units))
	for i, u := range m.Units {
		for _, id := range u.Actors {
			loads[i] += weights[id]
		}
	}
	return loads
}

// UnitView is a unit with the names of its actors.
type UnitView struct {
	ID     int      `json:"id"`
	Actors []string `json:"actors"`
}

// Describe returns the units with actor names instead of ids.
func (m *Mapping) Describe(g *actor.Graph) []UnitView {
	views := make([]UnitView, 0, len(m.Units))
	for _, u := range m.Units {
		v := UnitView{ID: u.ID, Actors: make([]string, 0, len(u.Actors))}
		for _, id := range u.Actors {
			v.Actors = append(v.Actors, g.Actor(id).Name)
		}
		views = append(views, v)
	}
	return views
}

// Weights returns the weight of every actor: its busy time in microseconds
// when it has been profiled, 1 otherwise.
func Weights(g *actor.Graph) []float64 {
	weights := make([]float64, g.Len())
	for i, a := range g.Actors() {
		weights[i] = 1
		if busy := a.Stats().Busy; busy > 0 {
			weights[i] = math.Max(1, float64(busy)/float64(time.Microsecond))
		}
	}
	return weights
}

// Skewness returns the standard deviation of the loads divided by their
// mean.
func Skewness(loads []float64) float64 {
	if len(loads) == 0 {
		return 0
	}
	var total float64
	for _, l := range loads {
		total += l
	}
	mean := total / float64(len(loads))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, l := range loads {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(loads))
	return math.Sqrt(variance) / mean
}

// crossEdges returns the number of edges between actors of different units.
func crossEdges(g *actor.Graph, assignment []int) int {
	cross := 0
	for _, e := range g.Edges() {
		if assignment[e.Src] != assignment[e.Dst] {
			cross++
		}
	}
	return cross
}

// fromAssignment builds a mapping from the unit of every actor. Empty units
// are dropped.
func fromAssignment(assignment []int, units int) *Mapping {
	byUnit := make([][]actor.ID, units)
	for id, u := range assignment {
		byUnit[u] = append(byUnit[u], actor.ID(id))
	}
	m := &Mapping{}
	for u, actors := range byUnit {
		if len(actors) == 0 {
			continue
		}
		m.Units = append(m.Units, Unit{ID: u, ActorCount: len(actors), Actors: actors})
	}
	m.ThreadNb = len(m.Units)
	return m
}

func unitCount(g *actor.Graph, units int) (int, error) {
	if g.Len() == 0 {
		return 0, cerror.ErrInvalidMapping.GenWithStackByArgs("no actor to map")
	}
	if units <= 0 {
		return 0, cerror.ErrInvalidMapping.GenWithStackByArgs(
			fmt.Sprintf("%d processing units", units))
	}
	if units > g.Len() {
		units = g.Len()
	}
	return units, nil
}
