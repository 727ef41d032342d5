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
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/dataflow/pkg/config"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/stretchr/testify/require"
)

func nopFire(actor.Context) actor.FiringResult { return actor.FiringResult{} }

// newPipeline returns a chain of n actors, "a0" -> "a1" -> ...
func newPipeline(t *testing.T, n int) *actor.Graph {
	g := actor.NewGraph()
	for i := 0; i < n; i++ {
		inputs, outputs := 1, 1
		if i == 0 {
			inputs = 0
		}
		if i == n-1 {
			outputs = 0
		}
		_, err := g.AddActor(fmt.Sprintf("a%d", i), inputs, outputs, nopFire)
		require.NoError(t, err)
	}
	for i := 1; i < n; i++ {
		require.NoError(t, g.Connect(actor.ID(i-1), 0, actor.ID(i), 0))
	}
	return g
}

func TestPartitionContract(t *testing.T) {
	t.Parallel()

	mappers := map[string]Mapper{
		"greedy": Greedy{},
		"genetic": &Genetic{
			Seed: 7, Population: 16, Generations: 20, MutationRate: 0.1, EdgeWeight: 0.1,
		},
	}
	for name, m := range mappers {
		for _, actors := range []int{1, 2, 5, 17} {
			for _, units := range []int{1, 3, 8} {
				g := newPipeline(t, actors)
				mapping, err := m.Map(g, units)
				require.NoError(t, err, name)
				require.NoError(t, mapping.Validate(g, units), name)
				require.LessOrEqual(t, mapping.ThreadNb, units)
				total := 0
				for _, u := range mapping.Units {
					require.Equal(t, len(u.Actors), u.ActorCount)
					require.NotZero(t, u.ActorCount)
					total += u.ActorCount
				}
				require.Equal(t, actors, total)
			}
		}
	}
}

func TestGreedyBalances(t *testing.T) {
	t.Parallel()

	g := newPipeline(t, 6)
	mapping, err := Greedy{}.Map(g, 3)
	require.NoError(t, err)
	require.Equal(t, 3, mapping.ThreadNb)
	for _, u := range mapping.Units {
		require.Equal(t, 2, u.ActorCount)
	}
	require.Equal(t, 0.0, Skewness(mapping.Loads(Weights(g))))

	// profiled actors weigh their busy time
	g.Actor(0).RecordFiring(1, 4*time.Millisecond)
	mapping, err = Greedy{}.Map(g, 2)
	require.NoError(t, err)
	require.Equal(t, []actor.ID{0}, mapping.Units[0].Actors)
	require.Equal(t, 5, mapping.Units[1].ActorCount)
}

func TestGeneticDeterministic(t *testing.T) {
	t.Parallel()

	g := newPipeline(t, 12)
	m := &Genetic{Seed: 42, Population: 24, Generations: 30, MutationRate: 0.05, EdgeWeight: 0.5}
	first, err := m.Map(g, 4)
	require.NoError(t, err)
	second, err := m.Map(g, 4)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("mapping mismatch (-first +second):\n%s", diff)
	}

	// the search never does worse than its greedy seed
	weights := Weights(g)
	greedy, err := Greedy{}.Map(g, 4)
	require.NoError(t, err)
	costOf := func(mp *Mapping) float64 {
		assignment := make([]int, g.Len())
		for _, u := range mp.Units {
			for _, id := range u.Actors {
				assignment[id] = u.ID
			}
		}
		return m.cost(g, weights, assignment, 4)
	}
	require.LessOrEqual(t, costOf(first), costOf(greedy))
}

func TestGeneticKeepsChainTogether(t *testing.T) {
	t.Parallel()

	// A heavy edge weight makes a single unit the cheapest mapping.
	g := newPipeline(t, 4)
	m := &Genetic{Seed: 1, Population: 16, Generations: 40, MutationRate: 0.1, EdgeWeight: 10}
	mapping, err := m.Map(g, 2)
	require.NoError(t, err)
	require.Equal(t, 1, mapping.ThreadNb)
	require.Equal(t, []actor.ID{0, 1, 2, 3}, mapping.Units[0].Actors)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	g := newPipeline(t, 3)
	mapping, err := Static{Units: [][]string{{"a2", "a0"}, {"a1"}}}.Map(g, 2)
	require.NoError(t, err)
	expected := &Mapping{
		ThreadNb: 2,
		Units: []Unit{
			{ID: 0, ActorCount: 2, Actors: []actor.ID{2, 0}},
			{ID: 1, ActorCount: 1, Actors: []actor.ID{1}},
		},
	}
	if diff := cmp.Diff(expected, mapping); diff != "" {
		t.Fatalf("mapping mismatch (-expected +actual):\n%s", diff)
	}
	require.Equal(t, []UnitView{
		{ID: 0, Actors: []string{"a2", "a0"}},
		{ID: 1, Actors: []string{"a1"}},
	}, mapping.Describe(g))

	require.NoError(t, mapping.Apply(g))
	require.Equal(t, 0, g.Actor(2).Owner())
	require.Equal(t, 1, g.Actor(1).Owner())
	require.Equal(t, 1, g.Actor(1).Mapping())

	_, err = Static{Units: [][]string{{"a0"}, {"a1"}, {"a2"}}}.Map(g, 2)
	require.True(t, cerror.ErrInvalidMapping.Equal(err), err)
	_, err = Static{Units: [][]string{{"a0", "zz"}}}.Map(g, 2)
	require.True(t, cerror.ErrInvalidMapping.Equal(err), err)

	// a0 is mapped twice and a1 is missing
	mapping, err = Static{Units: [][]string{{"a0", "a2"}, {"a0"}}}.Map(g, 2)
	require.NoError(t, err)
	require.True(t, cerror.ErrInvalidMapping.Equal(mapping.Validate(g, 2)))
	mapping, err = Static{Units: [][]string{{"a0", "a2"}}}.Map(g, 2)
	require.NoError(t, err)
	require.True(t, cerror.ErrInvalidMapping.Equal(mapping.Validate(g, 2)))
}

func TestMapActors(t *testing.T) {
	t.Parallel()

	g := newPipeline(t, 5)
	cfg := config.GetDefaultConfig().Mapper
	cfg.Strategy = config.StrategyGenetic
	mapping, err := MapActors(g, cfg, 2)
	require.NoError(t, err)
	require.NoError(t, mapping.Validate(g, 2))

	_, err = MapActors(g, &config.MapperConfig{Strategy: "random"}, 2)
	require.True(t, cerror.ErrUnknownMappingStrategy.Equal(err), err)
	_, err = MapActors(g, cfg, 0)
	require.True(t, cerror.ErrInvalidMapping.Equal(err), err)
	_, err = MapActors(actor.NewGraph(), cfg, 2)
	require.True(t, cerror.ErrInvalidMapping.Equal(err), err)
}

func TestSkewness(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, Skewness(nil))
	require.Equal(t, 0.0, Skewness([]float64{0, 0}))
	require.Equal(t, "96.36%", fmt.Sprintf("%.2f%%", Skewness([]float64{2, 11, 1})*100))
}
