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

	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
)

// Static maps actors as listed by name, one list per unit.
type Static struct {
	Units [][]string
}

// Map implements Mapper.
func (s Static) Map(g *actor.Graph, units int) (*Mapping, error) {
	if len(s.Units) > units {
		return nil, cerror.ErrInvalidMapping.GenWithStackByArgs(
			fmt.Sprintf("%d static units exceed the maximum %d", len(s.Units), units))
	}
	m := &Mapping{}
	for u, names := range s.Units {
		unit := Unit{ID: u, Actors: make([]actor.ID, 0, len(names))}
		for _, name := range names {
			a, ok := g.Lookup(name)
			if !ok {
				return nil, cerror.ErrInvalidMapping.GenWithStackByArgs(
					fmt.Sprintf("unit %d references unknown actor %s", u, name))
			}
			unit.Actors = append(unit.Actors, a.ID)
		}
		unit.ActorCount = len(unit.Actors)
		m.Units = append(m.Units, unit)
	}
	m.ThreadNb = len(m.Units)
	return m, nil
}
