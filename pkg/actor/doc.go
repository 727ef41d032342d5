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
// Package actor provides the actors of a dataflow process network and the
// graph that connects them.
//
// An actor fires when its input channels hold enough tokens and its output
// channels have enough room. After a run of firings it reports why it
// stopped, and the scheduler uses the reason to decide which neighbours are
// worth firing next.
//
// The following diagram shows how a demand and data driven scheduler
// reacts to a firing result.
//
//	,---------.        ,-----.        ,-----------.        ,-----------.
//	|Scheduler|        |Actor|        |Successors |        |Predecessor|
//	`----+----'        `--+--'        `-----+-----'        `-----+-----'
//	     |    Fire(ctx)   |                 |                    |
//	     |--------------->|                 |                    |
//	     |                |                 |                    |
//	     | {n, full, 0x1} |                 |                    |
//	     |<---------------|                 |                    |
//	     |                |                 |                    |
//	     |  TryList() on the successors of output port 0         |
//	     |--------------------------------->|                    |
//	     |                |                 |                    |
//	     |    Fire(ctx)   |                 |                    |
//	     |--------------->|                 |                    |
//	     |                |                 |                    |
//	     | {n, empty, 0}  |                 |                    |
//	     |<---------------|                 |                    |
//	     |                |                 |                    |
//	     |  TryList() on the predecessors of every input port    |
//	     |------------------------------------------------------>|
//	,----+----.        ,--+--.        ,-----+-----.        ,-----+-----.
//	|Scheduler|        |Actor|        |Successors |        |Predecessor|
//	`---------'        `-----'        `-----------'        `-----------'
//
// Actors are kept in a Graph and refer to each other by ID, so a graph can
// be remapped onto processing units without touching the actors.
package actor
