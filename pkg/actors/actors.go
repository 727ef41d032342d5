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
// Package actors provides the actors a network can be built from without
// writing code: a file source, a file sink and a relay.
package actors

import (
	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/dataflow/pkg/config"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/fifo"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Input is an input port: a channel and the reader id of the port.
type Input struct {
	Ch     fifo.Channel
	Reader int
}

// Output is an output port: every channel fed by the port. A token written
// to the port is written to every channel.
type Output []fifo.Channel

// HasRoom returns true if every channel of the port has room for n tokens.
func (o Output) HasRoom(n int) bool {
	for _, ch := range o {
		if !ch.HasRoom(n) {
			return false
		}
	}
	return true
}

// Write writes n tokens to every channel of the port.
func (o Output) Write(tokens []byte, n int) error {
	for _, ch := range o {
		copy(ch.Write(n), tokens)
		if err := ch.WriteEnd(n); err != nil {
			return err
		}
	}
	return nil
}

// Actor is an actor body with its ports.
type Actor interface {
	// Fire implements actor.FireFunc.
	Fire(ctx actor.Context) actor.FiringResult
	// NumPorts returns the number of input and output ports.
	NumPorts() (inputs, outputs int)
	SetInput(port int, in Input)
	SetOutput(port int, out Output)
	// SetOnFinish sets the function called once the actor has handled its
	// whole stream. Without one, the actor stops the process when it
	// finishes.
	SetOnFinish(fn func(ctx actor.Context))
	// Finished returns true once the actor has handled its whole stream.
	Finished() bool
	// Err returns the error that stopped the actor, if any.
	Err() error
	Close() error
}

// New creates the actor described by cfg.
func New(cfg *config.ActorConfig) (Actor, error) {
	switch cfg.Kind {
	case config.KindSource:
		return NewSource(cfg.Path, cfg.Loop, cfg.Rate)
	case config.KindSink:
		return NewSink(cfg.Path)
	case config.KindRelay:
		return NewRelay(cfg.Outputs), nil
	}
	return nil, cerror.ErrUnknownActorKind.GenWithStackByArgs(cfg.Kind)
}

// NumPorts returns the number of input and output ports of the actor
// described by cfg.
func NumPorts(cfg *config.ActorConfig) (inputs, outputs int, err error) {
	switch cfg.Kind {
	case config.KindSource:
		return 0, 1, nil
	case config.KindSink:
		return 1, 0, nil
	case config.KindRelay:
		return 1, cfg.Outputs, nil
	}
	return 0, 0, cerror.ErrUnknownActorKind.GenWithStackByArgs(cfg.Kind)
}

type ports struct {
	inputs   []Input
	outputs  []Output
	err      atomic.Error
	onFinish func(ctx actor.Context)
	finished atomic.Bool
}

func newPorts(inputs, outputs int) ports {
	return ports{inputs: make([]Input, inputs), outputs: make([]Output, outputs)}
}

func (p *ports) NumPorts() (int, int) {
	return len(p.inputs), len(p.outputs)
}

func (p *ports) SetInput(port int, in Input) {
	p.inputs[port] = in
}

func (p *ports) SetOutput(port int, out Output) {
	p.outputs[port] = out
}

func (p *ports) SetOnFinish(fn func(ctx actor.Context)) {
	p.onFinish = fn
}

func (p *ports) Finished() bool {
	return p.finished.Load()
}

func (p *ports) Err() error {
	return p.err.Load()
}

// finish ends the stream of every output channel and reports the actor as
// finished. It only has an effect the first time it is called.
func (p *ports) finish(ctx actor.Context) {
	if !p.finished.CompareAndSwap(false, true) {
		return
	}
	for _, out := range p.outputs {
		for _, ch := range out {
			if err := ch.CloseWrite(); err != nil {
				log.Warn("end the stream of a channel failed",
					zap.String("actor", ctx.Actor().Name), zap.Error(err))
			}
		}
	}
	if p.onFinish != nil {
		p.onFinish(ctx)
		return
	}
	ctx.Stop()
}

// fail records err and asks the process to stop.
func (p *ports) fail(ctx actor.Context, err error) actor.FiringResult {
	p.err.Store(errors.Annotatef(err, "actor %s", ctx.Actor().Name))
	ctx.Stop()
	return actor.FiringResult{Reason: actor.ReasonOther}
}

// drained returns true if the stream of the input port is over, given what
// NumTokens returned.
func drained(in Input, avail int, err error) bool {
	if err != nil {
		return cerror.Is(err, cerror.ErrSocketConnectionLost)
	}
	return avail == 0 && in.Ch.Drained(in.Reader)
}

// tokenSize returns the token size of the first channel of an output port.
func tokenSize(out Output) int {
	if len(out) == 0 {
		return 0
	}
	return out[0].TokenSize()
}
