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

package run

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/dataflow/pkg/cmd/util"
	"github.com/pingcap/dataflow/pkg/config"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/logutil"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/pingcap/dataflow/pkg/network"
	"github.com/pingcap/dataflow/pkg/scheduler"
	"github.com/pingcap/dataflow/pkg/status"
	"github.com/pingcap/dataflow/pkg/version"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// options defines flags for the `run` command.
type options struct {
	*util.ConfigOptions
	remapInterval time.Duration

	cfg *config.Config
}

// newOptions creates new options for the `run` command.
func newOptions() *options {
	return &options{ConfigOptions: util.NewConfigOptions()}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	o.ConfigOptions.AddFlags(cmd)
	cmd.Flags().DurationVar(&o.remapInterval, "remap-interval", 0,
		"map the actors again from their profile at this interval, 0 disables remapping")
}

// complete adapts from the command line args and config file to the data required.
func (o *options) complete(cmd *cobra.Command) error {
	cfg, err := o.ConfigOptions.Complete(cmd)
	if err != nil {
		return errors.Trace(err)
	}
	if o.remapInterval < 0 {
		o.remapInterval = 0
	}
	if o.remapInterval > 0 && cfg.Mapper.Strategy == config.StrategyStatic {
		util.Warn(cmd, "--remap-interval maps the actors with the genetic strategy, "+
			"the static mapping is only used at start")
	}
	if cfg.Scheduler.PinCPU && cfg.Scheduler.Workers > runtime.NumCPU() {
		util.Warn(cmd, "%d workers are pinned on %d logical CPUs, some CPUs are shared",
			cfg.Scheduler.Workers, runtime.NumCPU())
	}
	o.cfg = cfg
	return nil
}

// run builds the network of the process and runs it until an actor stops
// the process, a signal is received or a scheduler fails.
func (o *options) run(cmd *cobra.Command) error {
	cfg := o.cfg
	ctx, cancel := util.InitCmd(cmd, cfg.Log)
	defer cancel()

	runID := uuid.New().String()
	logger := log.L().With(zap.String("run-id", runID))
	ctx = logutil.NewContextWithLogger(ctx, logger)
	version.LogVersionInfo()
	logger.Info("dpn config", zap.Stringer("config", cfg))

	nw, err := network.Build(ctx, cfg.Network, cfg.Socket)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := nw.Close(); err != nil {
			logger.Warn("close network failed", zap.Error(err))
		}
	}()
	g := nw.Graph()

	mapping, err := mapper.MapActors(g, cfg.Mapper, cfg.Scheduler.Workers)
	if err != nil {
		return errors.Trace(err)
	}
	cluster, err := newCluster(g, mapping, cfg.Scheduler, runID)
	if err != nil {
		return errors.Trace(err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	runCtx, stopRun := context.WithCancel(egCtx)
	defer stopRun()
	auxCtx, stopAux := context.WithCancel(egCtx)
	defer stopAux()
	done := make(chan struct{})
	util.InitSignalHandling(auxCtx, func() <-chan struct{} {
		stopRun()
		return done
	}, cancel)

	remaps := make(chan *mapper.Mapping)
	eg.Go(func() error {
		defer stopAux()
		return cluster.RunWithRemaps(runCtx, remaps)
	})
	if cfg.Status.Addr != "" {
		srv := status.NewServer(g, cluster, status.NewRegistry(), runID)
		eg.Go(func() error {
			return srv.Run(auxCtx, cfg.Status.Addr)
		})
	}
	if o.remapInterval > 0 {
		eg.Go(func() error {
			remapLoop(auxCtx, g, cfg, o.remapInterval, remaps)
			return nil
		})
	}
	err = eg.Wait()
	close(done)

	if err = multierr.Append(err, nw.Err()); err != nil {
		if cerror.IsTransportError(err) {
			logger.Error("run dpn failed, transport error",
				logutil.ZapErrorFilter(err, context.Canceled))
		} else {
			logger.Error("run dpn failed", logutil.ZapErrorFilter(err, context.Canceled))
		}
		return err
	}
	logger.Info("dpn exits successfully", zap.Any("schedulers", cluster.Snapshot()))
	return nil
}

func newCluster(
	g *actor.Graph, mapping *mapper.Mapping, cfg *config.SchedulerConfig, runID string,
) (*scheduler.Cluster, error) {
	policy, err := scheduler.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, errors.Trace(err)
	}
	topology, err := scheduler.ParseTopology(cfg.Topology)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return scheduler.NewCluster(g, mapping, scheduler.Config{
		Policy:      policy,
		Topology:    topology,
		Capacity:    cfg.Capacity,
		IdleTimeout: cfg.IdleTimeout.Duration(),
		PinCPU:      cfg.PinCPU,
		RunID:       runID,
	})
}

// remapLoop maps the actors from their profile at every interval and sends
// the mappings to remaps.
func remapLoop(
	ctx context.Context, g *actor.Graph, cfg *config.Config,
	interval time.Duration, remaps chan<- *mapper.Mapping,
) {
	mapperCfg := *cfg.Mapper
	mapperCfg.Strategy = config.StrategyGenetic
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		mapping, err := mapper.MapActors(g, &mapperCfg, cfg.Scheduler.Workers)
		if err != nil {
			log.Warn("map actors from their profile failed", zap.Error(err))
			continue
		}
		select {
		case <-ctx.Done():
			return
		case remaps <- mapping:
		}
	}
}

// NewCmdRun creates the `run` command.
func NewCmdRun() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "run",
		Short: "Run the dataflow process network of this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}

	o.addFlags(command)

	return command
}
