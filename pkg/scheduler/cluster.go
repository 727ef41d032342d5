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
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/logutil"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures a Cluster.
type Config struct {
	Policy   Policy
	Topology Topology
	// Capacity bounds the waiting and schedulable lists, it defaults to the
	// number of actors.
	Capacity    int
	IdleTimeout time.Duration
	// PinCPU binds every scheduler to the logical CPU of its processing
	// unit.
	PinCPU bool
	RunID  string
	Clock  clock.Clock
}

// Cluster runs one scheduler per processing unit of a mapping, each on its
// own goroutine.
type Cluster struct {
	cfg   Config
	graph *actor.Graph

	mu         sync.Mutex
	sync       *Sync
	mapping    *mapper.Mapping
	schedulers []*Scheduler
	run        *clusterRun
}

type clusterRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewCluster creates the schedulers of the mapping. Actors are assigned to
// the schedulers of their unit.
func NewCluster(graph *actor.Graph, mapping *mapper.Mapping, cfg Config) (*Cluster, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = graph.Len()
	}
	c := &Cluster{
		cfg:   cfg,
		graph: graph,
		sync:  NewSync(mapping.ThreadNb, cfg.Capacity, nil),
	}
	if err := c.build(mapping); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

func (c *Cluster) options() []Option {
	opts := []Option{
		WithPolicy(c.cfg.Policy),
		WithTopology(c.cfg.Topology),
		WithIdleTimeout(c.cfg.IdleTimeout),
		WithRunID(c.cfg.RunID),
	}
	if c.cfg.Clock != nil {
		opts = append(opts, WithClock(c.cfg.Clock))
	}
	return opts
}

// build assigns the actors and (re)initializes the schedulers. It must be
// called with mu held and no scheduler running.
func (c *Cluster) build(mapping *mapper.Mapping) error {
	if err := mapping.Validate(c.graph, 0); err != nil {
		return errors.Trace(err)
	}
	if err := mapping.Apply(c.graph); err != nil {
		return errors.Trace(err)
	}
	n := mapping.ThreadNb
	c.sync.Resize(n)
	useRing := c.cfg.Topology == TopologyRing
	schedulers := make([]*Scheduler, n)
	for i, unit := range mapping.Units {
		if i < len(c.schedulers) {
			if err := c.schedulers[i].Reinit(unit.Actors, useRing, n); err != nil {
				return errors.Trace(err)
			}
			schedulers[i] = c.schedulers[i]
			continue
		}
		s, err := New(i, c.graph, unit.Actors, nil, nil, n, c.sync, c.options()...)
		if err != nil {
			return errors.Trace(err)
		}
		schedulers[i] = s
	}
	for i := n; i < len(c.schedulers); i++ {
		c.schedulers[i].ownedGauge.Set(0)
	}
	c.schedulers = schedulers
	c.mapping = mapping
	return nil
}

// Start runs the schedulers in the background.
func (c *Cluster) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return cerror.ErrSchedulerRunning.GenWithStackByArgs("start")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.sync.onStop = cancel
	r := &clusterRun{cancel: cancel, done: make(chan struct{})}
	errg, ctx := errgroup.WithContext(ctx)
	for i, s := range c.schedulers {
		s, unit := s, c.mapping.Units[i].ID
		errg.Go(func() error {
			return c.runScheduler(ctx, s, unit)
		})
	}
	go func() {
		defer close(r.done)
		r.err = errg.Wait()
		cancel()
	}()
	c.run = r
	logutil.FromContext(ctx).Info("cluster started",
		zap.Int("schedulers", len(c.schedulers)),
		zap.Stringer("policy", c.cfg.Policy),
		zap.Stringer("topology", c.cfg.Topology))
	return nil
}

func (c *Cluster) runScheduler(ctx context.Context, s *Scheduler, unit int) error {
	if c.cfg.PinCPU {
		// The thread stays locked, it is terminated with the goroutine so
		// its affinity does not leak to other goroutines.
		runtime.LockOSThread()
		if err := pinToCPU(unit); err != nil {
			log.Warn("fail to pin scheduler to cpu",
				zap.Int("scheduler-id", s.ID()), zap.Error(err))
		}
	}
	err := s.Run(ctx)
	if cerror.IsContextCanceledError(err) {
		return nil
	}
	return errors.Trace(err)
}

// Wait blocks until the schedulers exit, either because an actor asked to
// stop, ctx of Start is done, or a scheduler failed.
func (c *Cluster) Wait() error {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Run starts the schedulers and waits for them.
func (c *Cluster) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return errors.Trace(err)
	}
	err := c.Wait()
	c.mu.Lock()
	c.run = nil
	c.mu.Unlock()
	return err
}

// Stop stops the schedulers and waits for them to exit.
func (c *Cluster) Stop() error {
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	r.cancel()
	<-r.done
	return r.err
}

// Remap stops the schedulers, maps the actors again and restarts the
// schedulers with the given topology.
func (c *Cluster) Remap(ctx context.Context, mapping *mapper.Mapping, useRingTopology bool) error {
	if err := c.Stop(); err != nil {
		return errors.Trace(err)
	}
	if c.Stopped() {
		return cerror.ErrSchedulerStopped.GenWithStackByArgs(0)
	}

	c.mu.Lock()
	if useRingTopology {
		c.cfg.Topology = TopologyRing
	} else {
		c.cfg.Topology = TopologyMesh
	}
	err := c.build(mapping)
	c.mu.Unlock()
	if err != nil {
		return errors.Trace(err)
	}
	log.Info("cluster remapped",
		zap.Int("schedulers", mapping.ThreadNb),
		zap.Stringer("topology", c.cfg.Topology))
	return c.Start(ctx)
}

// RunWithRemaps runs the schedulers until they exit. Every mapping received
// from remaps replaces the current one, with the current topology.
func (c *Cluster) RunWithRemaps(ctx context.Context, remaps <-chan *mapper.Mapping) error {
	if err := c.Start(ctx); err != nil {
		return errors.Trace(err)
	}
	for {
		c.mu.Lock()
		r := c.run
		useRing := c.cfg.Topology == TopologyRing
		c.mu.Unlock()

		select {
		case <-r.done:
			c.mu.Lock()
			if c.run == r {
				c.run = nil
			}
			c.mu.Unlock()
			return r.err
		case mapping := <-remaps:
			err := c.Remap(ctx, mapping, useRing)
			if cerror.Is(err, cerror.ErrSchedulerStopped) {
				return nil
			}
			if err != nil {
				return errors.Trace(err)
			}
		}
	}
}

// Stopped returns true if an actor asked the process to stop.
func (c *Cluster) Stopped() bool {
	return c.sync.Stopped()
}

// Mapping returns the current mapping.
func (c *Cluster) Mapping() *mapper.Mapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mapping
}

// Snapshot returns a view of every scheduler.
func (c *Cluster) Snapshot() []Snapshot {
	c.mu.Lock()
	schedulers := c.schedulers
	c.mu.Unlock()
	snapshots := make([]Snapshot, 0, len(schedulers))
	for _, s := range schedulers {
		snapshots = append(snapshots, s.Snapshot())
	}
	return snapshots
}
