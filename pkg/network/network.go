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

// Package network builds the actor graph of a process from its
// configuration and owns the channels that connect the actors.
package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/dataflow/pkg/actors"
	"github.com/pingcap/dataflow/pkg/config"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/fifo"
	"github.com/pingcap/dataflow/pkg/logutil"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Network is the actor graph of a process with the actor bodies and the
// channels behind it.
type Network struct {
	graph    *actor.Graph
	actors   []actors.Actor
	channels []fifo.Channel
}

type portKey struct {
	actor actor.ID
	port  int
}

// Build creates the actors and channels described by cfg. Socket channels
// are established concurrently, Build returns once every peer is connected.
func Build(ctx context.Context, cfg *config.NetworkConfig, socketCfg *config.SocketConfig) (_ *Network, err error) {
	logger := logutil.FromContext(ctx)
	n := &Network{graph: actor.NewGraph()}
	defer func() {
		if err != nil {
			if cerr := n.Close(); cerr != nil {
				logger.Warn("close network failed", zap.Error(cerr))
			}
		}
	}()

	for _, ac := range cfg.Actors {
		body, err := actors.New(ac)
		if err != nil {
			return nil, errors.Trace(err)
		}
		n.actors = append(n.actors, body)
		inputs, outputs := body.NumPorts()
		if _, err := n.graph.AddActor(ac.Name, inputs, outputs, body.Fire); err != nil {
			return nil, errors.Trace(err)
		}
	}

	checkMemory(cfg)
	outputs := make(map[portKey]actors.Output)
	if err := n.buildMemory(cfg.Connections, outputs); err != nil {
		return nil, err
	}
	if err := n.buildSockets(ctx, cfg.Connections, socketCfg, outputs); err != nil {
		return nil, err
	}
	for key, out := range outputs {
		n.actors[key.actor].SetOutput(key.port, out)
	}
	if err := n.checkPorts(outputs); err != nil {
		return nil, err
	}
	if err := n.graph.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	n.stopWhenFinished(logger)
	logger.Info("network built",
		zap.Int("actors", n.graph.Len()), zap.Int("channels", len(n.channels)))
	return n, nil
}

// stopWhenFinished stops the process once every actor of the network has
// finished its stream.
func (n *Network) stopWhenFinished(logger *zap.Logger) {
	remaining := atomic.NewInt32(int32(len(n.actors)))
	for _, body := range n.actors {
		body.SetOnFinish(func(ctx actor.Context) {
			left := remaining.Dec()
			logger.Debug("actor finished",
				zap.String("actor", ctx.Actor().Name), zap.Int32("remaining", left))
			if left == 0 {
				logger.Info("every actor finished, stop the process")
				ctx.Stop()
			}
		})
	}
}

// Topology returns the actor graph described by cfg without creating the
// actors or their channels. The actors of the graph do nothing when fired.
func Topology(cfg *config.NetworkConfig) (*actor.Graph, error) {
	g := actor.NewGraph()
	for _, ac := range cfg.Actors {
		inputs, outputs, err := actors.NumPorts(ac)
		if err != nil {
			return nil, err
		}
		if _, err := g.AddActor(ac.Name, inputs, outputs, nopFire); err != nil {
			return nil, errors.Trace(err)
		}
	}
	for _, conn := range cfg.Connections {
		src, srcLocal := g.Lookup(conn.Src)
		dst, dstLocal := g.Lookup(conn.Dst)
		var err error
		switch {
		case srcLocal && dstLocal:
			err = g.Connect(src.ID, conn.SrcPort, dst.ID, conn.DstPort)
		case dstLocal:
			err = g.ConnectExternal(dst.ID, conn.DstPort)
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return g, nil
}

func nopFire(actor.Context) actor.FiringResult {
	return actor.FiringResult{Reason: actor.ReasonOther}
}

// buildMemory creates one ring per memory output port, read by every
// connection leaving that port.
func (n *Network) buildMemory(conns []*config.ConnectionConfig, outputs map[portKey]actors.Output) error {
	groups := make(map[portKey][]*config.ConnectionConfig)
	var order []portKey
	for _, conn := range conns {
		if conn.Transport != config.TransportMemory {
			continue
		}
		src, err := n.lookup(conn.Src)
		if err != nil {
			return err
		}
		key := portKey{actor: src.ID, port: conn.SrcPort}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], conn)
	}

	for _, key := range order {
		group := groups[key]
		first := group[0]
		for _, conn := range group[1:] {
			if conn.Size != first.Size || conn.TokenSize != first.TokenSize {
				return cerror.ErrInvalidGraph.GenWithStackByArgs(
					fmt.Sprintf("connections %s and %s share an output port with different sizes", first, conn))
			}
		}
		ring, err := fifo.NewRing(first.Size, int(first.TokenSize), len(group))
		if err != nil {
			return errors.Trace(err)
		}
		n.channels = append(n.channels, ring)
		outputs[key] = append(outputs[key], ring)

		for reader, conn := range group {
			dst, err := n.lookup(conn.Dst)
			if err != nil {
				return err
			}
			if err := n.graph.Connect(key.actor, key.port, dst.ID, conn.DstPort); err != nil {
				return errors.Trace(err)
			}
			n.actors[dst.ID].SetInput(conn.DstPort, actors.Input{Ch: ring, Reader: reader})
		}
	}
	return nil
}

// buildSockets establishes every socket connection. The local end of a
// connection is either its source or its destination.
func (n *Network) buildSockets(
	ctx context.Context, conns []*config.ConnectionConfig,
	socketCfg *config.SocketConfig, outputs map[portKey]actors.Output,
) error {
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, conn := range conns {
		if conn.Transport != config.TransportSocket {
			continue
		}
		conn := conn
		local, isSrc := n.graph.Lookup(conn.Src)
		port := conn.SrcPort
		if !isSrc {
			var ok bool
			local, ok = n.graph.Lookup(conn.Dst)
			if !ok {
				return cerror.ErrActorNotFound.GenWithStackByArgs(conn.Dst)
			}
			port = conn.DstPort
			if err := n.graph.ConnectExternal(local.ID, port); err != nil {
				return errors.Trace(err)
			}
		} else if port < 0 || port >= local.NumOutputs() {
			return cerror.ErrInvalidGraph.GenWithStackByArgs(
				fmt.Sprintf("output port %d of actor %s does not exist", port, local.Name))
		}

		eg.Go(func() error {
			start := time.Now()
			sock, err := fifo.DialSocket(egCtx, conn.Size, int(conn.TokenSize), fifo.SocketConfig{
				Server:         conn.Server,
				Host:           conn.Host,
				Port:           conn.Port,
				IPv6:           conn.IPv6,
				ConnectTimeout: socketCfg.ConnectTimeout.Duration(),
				RetryInterval:  socketCfg.RetryInterval.Duration(),
				PollTimeout:    socketCfg.PollTimeout.Duration(),
				LowWaterMark:   socketCfg.LowWaterMark,
			})
			if err != nil {
				return err
			}
			logutil.FromContext(ctx).Info("socket channel established",
				zap.Stringer("connection", conn),
				zap.Stringer("local", sock.LocalAddr()),
				zap.Stringer("remote", sock.RemoteAddr()),
				zap.Duration("duration", time.Since(start)))

			mu.Lock()
			defer mu.Unlock()
			n.channels = append(n.channels, sock)
			if isSrc {
				key := portKey{actor: local.ID, port: port}
				outputs[key] = append(outputs[key], sock)
			} else {
				n.actors[local.ID].SetInput(port, actors.Input{Ch: sock})
			}
			return nil
		})
	}
	return eg.Wait()
}

// checkPorts verifies that every output port feeds at least one channel and
// that the channels of a port carry tokens of the same size.
func (n *Network) checkPorts(outputs map[portKey]actors.Output) error {
	for _, a := range n.graph.Actors() {
		for port := 0; port < a.NumOutputs(); port++ {
			out := outputs[portKey{actor: a.ID, port: port}]
			if len(out) == 0 {
				return cerror.ErrInvalidGraph.GenWithStackByArgs(
					fmt.Sprintf("output port %d of actor %s is not connected", port, a.Name))
			}
			for _, ch := range out[1:] {
				if ch.TokenSize() != out[0].TokenSize() {
					return cerror.ErrInvalidGraph.GenWithStackByArgs(
						fmt.Sprintf("output port %d of actor %s mixes token sizes", port, a.Name))
				}
			}
		}
	}
	return nil
}

func (n *Network) lookup(name string) (*actor.Actor, error) {
	a, ok := n.graph.Lookup(name)
	if !ok {
		return nil, cerror.ErrActorNotFound.GenWithStackByArgs(name)
	}
	return a, nil
}

// Graph returns the actor graph.
func (n *Network) Graph() *actor.Graph {
	return n.graph
}

// Actor returns the body of the named actor.
func (n *Network) Actor(name string) (actors.Actor, bool) {
	a, ok := n.graph.Lookup(name)
	if !ok {
		return nil, false
	}
	return n.actors[a.ID], true
}

// Err returns the errors that stopped actors.
func (n *Network) Err() error {
	var err error
	for _, a := range n.actors {
		err = multierr.Append(err, a.Err())
	}
	return err
}

// Close closes every actor and channel.
func (n *Network) Close() error {
	var err error
	for _, a := range n.actors {
		err = multierr.Append(err, a.Close())
	}
	for _, ch := range n.channels {
		err = multierr.Append(err, ch.Close())
	}
	n.actors, n.channels = nil, nil
	return err
}
