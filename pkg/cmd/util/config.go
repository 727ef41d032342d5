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

package util

import (
	"time"

	"github.com/pingcap/dataflow/pkg/config"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ConfigOptions binds the flags that override the configuration file.
type ConfigOptions struct {
	configFilePath string
	cfg            *config.Config
}

// NewConfigOptions creates new ConfigOptions.
func NewConfigOptions() *ConfigOptions {
	return &ConfigOptions{cfg: config.GetDefaultConfig()}
}

// AddFlags receives a *cobra.Command reference and binds the config flags
// to it.
func (o *ConfigOptions) AddFlags(cmd *cobra.Command) {
	cfg := o.cfg
	cmd.Flags().StringVar(&o.configFilePath, "config", "", "Path of the configuration file")
	cmd.Flags().StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "log file path")
	cmd.Flags().StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (etc: debug|info|warn|error)")
	cmd.Flags().StringVar(&cfg.Scheduler.Policy, "policy", cfg.Scheduler.Policy, "scheduling policy (round-robin|ddd)")
	cmd.Flags().StringVar(&cfg.Scheduler.Topology, "topology", cfg.Scheduler.Topology, "topology of the schedulers (ring|mesh)")
	cmd.Flags().IntVar(&cfg.Scheduler.Workers, "workers", cfg.Scheduler.Workers, "maximum number of processing units, 0 means the number of logical CPUs")
	cmd.Flags().IntVar(&cfg.Scheduler.Capacity, "capacity", cfg.Scheduler.Capacity, "capacity of the scheduling lists, 0 means the number of actors")
	cmd.Flags().DurationVar((*time.Duration)(&cfg.Scheduler.IdleTimeout), "idle-timeout", cfg.Scheduler.IdleTimeout.Duration(), "idle wait of a scheduler before it fires its actors again")
	cmd.Flags().BoolVar(&cfg.Scheduler.PinCPU, "pin-cpu", cfg.Scheduler.PinCPU, "bind every processing unit to a logical CPU")
	cmd.Flags().StringVar(&cfg.Mapper.Strategy, "strategy", cfg.Mapper.Strategy, "mapping strategy (greedy|genetic|static)")
	cmd.Flags().Int64Var(&cfg.Mapper.Seed, "seed", cfg.Mapper.Seed, "seed of the genetic mapping")
	cmd.Flags().StringVar(&cfg.Status.Addr, "status-addr", cfg.Status.Addr, "listen address of the status server, empty to disable it")
}

// Complete loads the configuration file, applies the flags set on the
// command line and validates the result.
func (o *ConfigOptions) Complete(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.GetDefaultConfig()
	if len(o.configFilePath) > 0 {
		if err := StrictDecodeFile(o.configFilePath, "dpn", cfg); err != nil {
			return nil, cerror.WrapError(cerror.ErrInvalidConfig, err, o.configFilePath)
		}
	}

	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "log-file":
			cfg.Log.File = o.cfg.Log.File
		case "log-level":
			cfg.Log.Level = o.cfg.Log.Level
		case "policy":
			cfg.Scheduler.Policy = o.cfg.Scheduler.Policy
		case "topology":
			cfg.Scheduler.Topology = o.cfg.Scheduler.Topology
		case "workers":
			cfg.Scheduler.Workers = o.cfg.Scheduler.Workers
		case "capacity":
			cfg.Scheduler.Capacity = o.cfg.Scheduler.Capacity
		case "idle-timeout":
			cfg.Scheduler.IdleTimeout = o.cfg.Scheduler.IdleTimeout
		case "pin-cpu":
			cfg.Scheduler.PinCPU = o.cfg.Scheduler.PinCPU
		case "strategy":
			cfg.Mapper.Strategy = o.cfg.Mapper.Strategy
		case "seed":
			cfg.Mapper.Seed = o.cfg.Mapper.Seed
		case "status-addr":
			cfg.Status.Addr = o.cfg.Status.Addr
		default:
			// flags of the command itself
		}
	})

	if err := cfg.ValidateAndAdjust(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}
