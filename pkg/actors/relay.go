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

package actors

import (
	"github.com/pingcap/dataflow/pkg/actor"
)

// Relay copies the tokens of its input port to each of its output ports.
type Relay struct {
	ports
}

// NewRelay creates a relay with the given number of output ports.
func NewRelay(outputs int) *Relay {
	return &Relay{ports: newPorts(1, outputs)}
}

// Fire moves as many tokens as both sides allow. Once its input is
// drained, the relay ends the streams of its outputs.
func (r *Relay) Fire(ctx actor.Context) actor.FiringResult {
	if r.Finished() {
		return actor.FiringResult{Reason: actor.ReasonOther}
	}
	in := r.inputs[0]
	n := 0
	for ctx.Err() == nil {
		avail, err := in.Ch.NumTokens(in.Reader)
		if drained(in, avail, err) {
			r.finish(ctx)
			return actor.FiringResult{NumFirings: n, Reason: actor.ReasonFull, Ports: actor.AllPorts}
		}
		if err != nil {
			return r.fail(ctx, err)
		}
		if avail == 0 {
			return actor.FiringResult{NumFirings: n, Reason: actor.ReasonEmpty, Ports: 1}
		}
		k, full := r.room(avail)
		if k == 0 {
			return actor.FiringResult{NumFirings: n, Reason: actor.ReasonFull, Ports: full}
		}
		tokens := in.Ch.Read(in.Reader, k)
		for _, out := range r.outputs {
			if err := out.Write(tokens, k); err != nil {
				return r.fail(ctx, err)
			}
		}
		if err := in.Ch.ReadEnd(in.Reader, k); err != nil {
			return r.fail(ctx, err)
		}
		n += k
	}
	return actor.FiringResult{NumFirings: n, Reason: actor.ReasonOther}
}

// room returns how many of the n tokens fit in every output port, and the
// ports without room for a single token.
func (r *Relay) room(n int) (int, actor.PortMask) {
	var full actor.PortMask
	for i, out := range r.outputs {
		if !out.HasRoom(1) {
			full |= 1 << uint(i)
			continue
		}
		for n > 1 && !out.HasRoom(n) {
			n--
		}
	}
	if full != 0 {
		return 0, full
	}
	return n, 0
}

// Close does nothing, the channels are owned by the network.
func (r *Relay) Close() error {
	return nil
}
