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
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pingcap/dataflow/pkg/actor"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/logutil"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Scheduler fires the actors of one processing unit.
//
// A Scheduler is driven by a single goroutine, see Run and Step. It hands
// the actors it wants fired but does not own over to their owner through
// waiting lists.
type Scheduler struct {
	id           int
	schedulersNb int
	graph        *actor.Graph
	sync         *Sync
	opts         options
	logger       *zap.Logger

	// mu guards owned and the topology against Snapshot.
	mu    sync.RWMutex
	owned []actor.ID

	rrNext      int
	schedulable *schedulableList
	ringIn      *WaitingList
	ringOut     *WaitingList
	// meshIn[src] carries actors from scheduler src.
	meshIn []*WaitingList

	wakeup  chan struct{}
	idleLog rate.Sometimes

	firings atomic.Int64
	idles   atomic.Int64
	sweeps  atomic.Int64

	firingCounter   prometheus.Counter
	idleCounter     prometheus.Counter
	handoverCounter prometheus.Counter
	ownedGauge      prometheus.Gauge
}

// New creates the scheduler id of schedulersNb schedulers, owning the given
// actors. ringIn and ringOut are the links of the ring topology, the links
// of sc are used if they are nil.
func New(
	id int,
	graph *actor.Graph,
	owned []actor.ID,
	ringIn, ringOut *WaitingList,
	schedulersNb int,
	sc *Sync,
	opts ...Option,
) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	label := strconv.Itoa(id)
	s := &Scheduler{
		id:              id,
		graph:           graph,
		sync:            sc,
		opts:            o,
		idleLog:         rate.Sometimes{Interval: 10 * time.Second},
		firingCounter:   firingsCounter.WithLabelValues(label),
		idleCounter:     idleCounter.WithLabelValues(label),
		handoverCounter: handoverCounter.WithLabelValues(label, o.topology.String()),
		ownedGauge:      ownedActorsGauge.WithLabelValues(label),
	}
	if o.runID != "" {
		s.logger = logutil.NewLogger4Scheduler(o.runID, id)
	} else {
		s.logger = log.L().With(zap.Int("scheduler-id", id))
	}
	if err := s.reset(owned, ringIn, ringOut, schedulersNb); err != nil {
		return nil, err
	}
	return s, nil
}

// Reinit replaces the owned actors and the topology of the scheduler. It
// must not be called while the scheduler runs.
func (s *Scheduler) Reinit(owned []actor.ID, useRingTopology bool, schedulersNb int) error {
	s.mu.Lock()
	if useRingTopology {
		s.opts.topology = TopologyRing
	} else {
		s.opts.topology = TopologyMesh
	}
	s.mu.Unlock()
	s.handoverCounter = handoverCounter.WithLabelValues(strconv.Itoa(s.id), s.opts.topology.String())
	return s.reset(owned, nil, nil, schedulersNb)
}

func (s *Scheduler) reset(owned []actor.ID, ringIn, ringOut *WaitingList, schedulersNb int) error {
	if schedulersNb < 1 || s.id < 0 || s.id >= schedulersNb || s.sync.SchedulersNb() != schedulersNb {
		return cerror.ErrInvalidMapping.GenWithStackByArgs(
			fmt.Sprintf("scheduler %d of %d with %d waiting list sets",
				s.id, schedulersNb, s.sync.SchedulersNb()))
	}
	if len(owned) > s.sync.capacity {
		return cerror.ErrCapacityExceeded.GenWithStackByArgs("schedulable list", s.sync.capacity)
	}
	for _, id := range owned {
		a, err := s.graph.Get(id)
		if err != nil {
			return err
		}
		if a.Owner() != s.id {
			return cerror.ErrForeignActor.GenWithStackByArgs(a.Name, a.Owner(), s.id)
		}
	}

	if ringIn == nil {
		ringIn = s.sync.RingLink(s.id - 1)
	}
	if ringOut == nil {
		ringOut = s.sync.RingLink(s.id)
	}
	s.schedulersNb = schedulersNb
	s.ringIn, s.ringOut = ringIn, ringOut
	s.meshIn = make([]*WaitingList, schedulersNb)
	for src := range s.meshIn {
		if src != s.id {
			s.meshIn[src] = s.sync.Mesh(s.id, src)
		}
	}
	s.wakeup = s.sync.wakeup(s.id)
	s.rrNext = 0

	s.mu.Lock()
	s.owned = append([]actor.ID(nil), owned...)
	s.mu.Unlock()
	s.ownedGauge.Set(float64(len(owned)))

	// Every owned actor is schedulable once.
	s.schedulable = newSchedulableList(s.sync.capacity)
	for _, id := range owned {
		a := s.graph.Actor(id)
		a.Unlist()
		if s.opts.policy == PolicyDDD && a.TryList() {
			if err := s.schedulable.push(id); err != nil {
				return err
			}
		}
	}
	s.logger.Info("scheduler initialized",
		zap.Stringer("policy", s.opts.policy),
		zap.Stringer("topology", s.opts.topology),
		zap.Int("schedulers", schedulersNb),
		zap.Int("actors", len(owned)))
	return nil
}

// ID returns the id of the scheduler.
func (s *Scheduler) ID() int { return s.id }

// Owned returns the actors owned by the scheduler.
func (s *Scheduler) Owned() []actor.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]actor.ID(nil), s.owned...)
}

// Run fires actors until ctx is done or an actor asks to stop.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	s.logger.Info("scheduler started")
	defer func() {
		s.logger.Info("scheduler exited",
			zap.Int64("firings", s.firings.Load()),
			zap.Int64("idles", s.idles.Load()),
			logutil.ZapErrorFilter(err, context.Canceled))
	}()

	rrMiss := 0
	for {
		if s.sync.Stopped() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		default:
		}

		fired, err := s.Step(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if s.opts.policy == PolicyRoundRobin {
			// A whole cycle without firing makes the scheduler idle.
			if fired {
				rrMiss = 0
				continue
			}
			if rrMiss++; rrMiss < len(s.owned) {
				continue
			}
			rrMiss = 0
		} else if fired {
			continue
		}
		if err := s.idle(ctx); err != nil {
			return errors.Trace(err)
		}
	}
}

// Step runs one scheduling cycle: it drains the waiting lists, selects an
// actor, fires it and enqueues the neighbours its result points at. It
// returns false if no actor fired.
func (s *Scheduler) Step(ctx context.Context) (bool, error) {
	if s.opts.policy == PolicyRoundRobin {
		return s.stepRoundRobin(ctx), nil
	}
	return s.stepDDD(ctx)
}

func (s *Scheduler) stepRoundRobin(ctx context.Context) bool {
	if len(s.owned) == 0 {
		return false
	}
	a := s.graph.Actor(s.owned[s.rrNext])
	s.rrNext = (s.rrNext + 1) % len(s.owned)
	res := s.fire(ctx, a)
	return res.NumFirings > 0
}

func (s *Scheduler) stepDDD(ctx context.Context) (bool, error) {
	if err := s.drainWaiting(); err != nil {
		return false, err
	}
	id, ok := s.schedulable.pop()
	if !ok {
		return false, nil
	}
	a := s.graph.Actor(id)
	a.Unlist()
	res := s.fire(ctx, a)
	if err := s.reclassify(a, res); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Scheduler) fire(ctx context.Context, a *actor.Actor) actor.FiringResult {
	start := s.opts.clock.Now()
	res := a.Fire(actor.NewContext(ctx, a, s.sync.Stop))
	a.RecordFiring(res.NumFirings, s.opts.clock.Since(start))
	if res.NumFirings > 0 {
		s.firings.Add(int64(res.NumFirings))
		s.firingCounter.Add(float64(res.NumFirings))
	}
	return res
}

// reclassify enqueues the successors of the full output ports or the
// predecessors of the empty input ports.
func (s *Scheduler) reclassify(a *actor.Actor, res actor.FiringResult) error {
	switch res.Reason {
	case actor.ReasonFull:
		for port, succs := range a.Successors {
			if !res.Ports.Has(port) {
				continue
			}
			for _, id := range succs {
				if err := s.enqueue(id); err != nil {
					return err
				}
			}
		}
	case actor.ReasonEmpty:
		for port, pred := range a.Predecessors {
			if !res.Ports.Has(port) || pred < 0 {
				continue
			}
			if err := s.enqueue(pred); err != nil {
				return err
			}
		}
	}
	return nil
}

// enqueue makes an actor schedulable, locally or on its owner. An actor
// already listed or waiting is not enqueued twice.
func (s *Scheduler) enqueue(id actor.ID) error {
	a := s.graph.Actor(id)
	owner := a.Owner()
	if owner == s.id {
		if !a.TryList() {
			return nil
		}
		return s.schedulable.push(id)
	}
	if !a.TryWait() {
		return nil
	}
	s.handoverCounter.Inc()
	if s.opts.topology == TopologyRing {
		return s.ringOut.Push(id)
	}
	return s.sync.Mesh(owner, s.id).Push(id)
}

// drainWaiting moves the actors received from other schedulers to the
// schedulable list. With the ring topology, actors owned by another
// scheduler are forwarded to the next one.
func (s *Scheduler) drainWaiting() error {
	if s.schedulersNb == 1 {
		return nil
	}
	if s.opts.topology == TopologyRing {
		for n := s.ringIn.Len(); n > 0; n-- {
			id, ok := s.ringIn.Pop()
			if !ok {
				break
			}
			if err := s.receive(id, true); err != nil {
				return err
			}
		}
		return nil
	}
	for src, in := range s.meshIn {
		if src == s.id {
			continue
		}
		for n := in.Len(); n > 0; n-- {
			id, ok := in.Pop()
			if !ok {
				break
			}
			if err := s.receive(id, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) receive(id actor.ID, forward bool) error {
	a := s.graph.Actor(id)
	if a.Owner() != s.id {
		if !forward {
			return cerror.ErrForeignActor.GenWithStackByArgs(a.Name, a.Owner(), s.id)
		}
		return s.ringOut.Push(id)
	}
	if !a.ListFromWaiting() {
		log.Panic("unreachable, received actor is not waiting",
			zap.Int("scheduler-id", s.id),
			zap.Stringer("actor", a))
	}
	return s.schedulable.push(id)
}

// idle waits for a handover. When nothing arrives within the idle timeout,
// every owned actor not already schedulable is fired once, so that actors
// fed from outside the process are not starved.
func (s *Scheduler) idle(ctx context.Context) error {
	s.idles.Inc()
	s.idleCounter.Inc()
	s.idleLog.Do(func() {
		s.logger.Debug("scheduler is idle", zap.Int64("idles", s.idles.Load()))
	})

	timer := s.opts.clock.Timer(s.opts.idleTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-s.wakeup:
		return nil
	case <-timer.C:
	}
	return s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) error {
	s.sweeps.Inc()
	if s.opts.policy == PolicyRoundRobin {
		return nil
	}
	for _, id := range s.owned {
		if s.sync.Stopped() || ctx.Err() != nil {
			return nil
		}
		a := s.graph.Actor(id)
		if a.InList() {
			continue
		}
		res := s.fire(ctx, a)
		if err := s.reclassify(a, res); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is a point in time view of a scheduler.
type Snapshot struct {
	ID       int      `json:"id"`
	Policy   string   `json:"policy"`
	Topology string   `json:"topology"`
	Actors   []string `json:"actors"`
	Firings  int64    `json:"firings"`
	Idles    int64    `json:"idles"`
	Sweeps   int64    `json:"sweeps"`
}

// Snapshot returns a view of the scheduler. It is safe to call it while
// the scheduler runs.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	names := make([]string, 0, len(s.owned))
	for _, id := range s.owned {
		names = append(names, s.graph.Actor(id).Name)
	}
	topology := s.opts.topology
	s.mu.RUnlock()
	return Snapshot{
		ID:       s.id,
		Policy:   s.opts.policy.String(),
		Topology: topology.String(),
		Actors:   names,
		Firings:  s.firings.Load(),
		Idles:    s.idles.Load(),
		Sweeps:   s.sweeps.Load(),
	}
}
