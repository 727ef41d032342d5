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
package mapper

import (
	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
)

const tournamentSize = 3

// Genetic searches a mapping with a genetic algorithm. The cost of a
// mapping is the load of its busiest unit relative to the mean load, plus
// EdgeWeight for every edge between two units. The search is deterministic
// for a given Seed.
type Genetic struct {
	Seed         int64
	Population   int
	Generations  int
	MutationRate float64
	EdgeWeight   float64
}

type individual struct {
	assignment []int
	cost       float64
}

// Map implements Mapper.
func (m *Genetic) Map(g *actor.Graph, units int) (*Mapping, error) {
	units, err := unitCount(g, units)
	if err != nil {
		return nil, err
	}
	weights := Weights(g)
	population := m.Population
	if population < 2 {
		population = 2
	}
	rng := rand.New(rand.NewSource(uint64(m.Seed)))
	cost := func(assignment []int) float64 {
		return m.cost(g, weights, assignment, units)
	}

	// The greedy mapping seeds the population, so the result is never worse.
	pop := make([]individual, population)
	seed := greedyAssignment(weights, units)
	pop[0] = individual{assignment: seed, cost: cost(seed)}
	for i := 1; i < population; i++ {
		assignment := make([]int, len(weights))
		for j := range assignment {
			assignment[j] = rng.Intn(units)
		}
		pop[i] = individual{assignment: assignment, cost: cost(assignment)}
	}

	best := fittest(pop)
	for gen := 0; gen < m.Generations; gen++ {
		next := make([]individual, 0, population)
		next = append(next, best)
		for len(next) < population {
			a := tournament(rng, pop)
			b := tournament(rng, pop)
			child := make([]int, len(a.assignment))
			for j := range child {
				if rng.Intn(2) == 0 {
					child[j] = a.assignment[j]
				} else {
					child[j] = b.assignment[j]
				}
				if rng.Float64() < m.MutationRate {
					child[j] = rng.Intn(units)
				}
			}
			next = append(next, individual{assignment: child, cost: cost(child)})
		}
		pop = next
		best = fittest(pop)
	}
	log.Debug("genetic mapping done",
		zap.Int("generations", m.Generations),
		zap.Int("population", population),
		zap.Float64("cost", best.cost))
	return fromAssignment(best.assignment, units), nil
}

func (m *Genetic) cost(g *actor.Graph, weights []float64, assignment []int, units int) float64 {
	loads := make([]float64, units)
	var total float64
	for id, u := range assignment {
		loads[u] += weights[id]
		total += weights[id]
	}
	var busiest float64
	for _, l := range loads {
		if l > busiest {
			busiest = l
		}
	}
	mean := total / float64(units)
	return busiest/mean + m.EdgeWeight*float64(crossEdges(g, assignment))
}

func fittest(pop []individual) individual {
	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.cost < best.cost {
			best = ind
		}
	}
	return best
}

func tournament(rng *rand.Rand, pop []individual) individual {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < tournamentSize; i++ {
		if c := pop[rng.Intn(len(pop))]; c.cost < best.cost {
			best = c
		}
	}
	return best
}
