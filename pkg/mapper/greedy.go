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
	"golang.org/x/exp/slices"
)

// Greedy maps the heaviest actors first, each onto the least loaded unit.
type Greedy struct{}

// Map implements Mapper.
func (Greedy) Map(g *actor.Graph, units int) (*Mapping, error) {
	units, err := unitCount(g, units)
	if err != nil {
		return nil, err
	}
	return fromAssignment(greedyAssignment(Weights(g), units), units), nil
}

func greedyAssignment(weights []float64, units int) []int {
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case weights[a] > weights[b]:
			return -1
		case weights[a] < weights[b]:
			return 1
		}
		return 0
	})

	loads := make([]float64, units)
	assignment := make([]int, len(weights))
	for _, id := range order {
		idle := 0
		for u := 1; u < units; u++ {
			if loads[u] < loads[idle] {
				idle = u
			}
		}
		assignment[id] = idle
		loads[idle] += weights[id]
	}
	return assignment
}
