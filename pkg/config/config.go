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
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/logutil"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
)

// Mapping strategies.
const (
	StrategyGreedy  = "greedy"
	StrategyGenetic = "genetic"
	StrategyStatic  = "static"
)

const (
	defaultStatusAddr  = "127.0.0.1:8300"
	defaultIdleTimeout = 10 * time.Millisecond
)

// Config is the configuration of a dpn process.
type Config struct {
	Log       *logutil.Config  `toml:"log" json:"log"`
	Scheduler *SchedulerConfig `toml:"scheduler" json:"scheduler"`
	Mapper    *MapperConfig    `toml:"mapper" json:"mapper"`
	Socket    *SocketConfig    `toml:"socket" json:"socket"`
	Status    *StatusConfig    `toml:"status" json:"status"`
	Network   *NetworkConfig   `toml:"network" json:"network"`
}

// SocketConfig is the default configuration of socket channels.
type SocketConfig struct {
	ConnectTimeout TomlDuration `toml:"connect-timeout" json:"connect-timeout"`
	RetryInterval  TomlDuration `toml:"retry-interval" json:"retry-interval"`
	PollTimeout    TomlDuration `toml:"poll-timeout" json:"poll-timeout"`
	LowWaterMark   int          `toml:"low-water-mark" json:"low-water-mark"`
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *SocketConfig) ValidateAndAdjust() error {
	if c.ConnectTimeout < 0 || c.PollTimeout < 0 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("socket timeouts must not be negative")
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = TomlDuration(100 * time.Millisecond)
	}
	if c.LowWaterMark <= 0 {
		c.LowWaterMark = 100
	}
	return nil
}

// StatusConfig is the configuration of the status server.
type StatusConfig struct {
	// Addr is the listen address, the status server is disabled if empty.
	Addr string `toml:"addr" json:"addr"`
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		Log: &logutil.Config{
			Level:          "info",
			FileMaxSize:    512,
			FileMaxDays:    7,
			FileMaxBackups: 0,
			Format:         "text",
		},
		Scheduler: &SchedulerConfig{
			Policy:      "ddd",
			Topology:    "ring",
			IdleTimeout: TomlDuration(defaultIdleTimeout),
		},
		Mapper: &MapperConfig{
			Strategy:     StrategyGreedy,
			Seed:         1,
			Population:   32,
			Generations:  64,
			MutationRate: 0.05,
			EdgeWeight:   0.1,
		},
		Socket: &SocketConfig{
			RetryInterval: TomlDuration(100 * time.Millisecond),
			PollTimeout:   TomlDuration(100 * time.Millisecond),
			LowWaterMark:  100,
		},
		Status:  &StatusConfig{Addr: defaultStatusAddr},
		Network: &NetworkConfig{},
	}
}

// ValidateAndAdjust validates and adjusts the configuration.
func (c *Config) ValidateAndAdjust() error {
	defaultCfg := GetDefaultConfig()
	if c.Log == nil {
		c.Log = defaultCfg.Log
	}
	if c.Scheduler == nil {
		c.Scheduler = defaultCfg.Scheduler
	}
	if c.Mapper == nil {
		c.Mapper = defaultCfg.Mapper
	}
	if c.Socket == nil {
		c.Socket = defaultCfg.Socket
	}
	if c.Status == nil {
		c.Status = defaultCfg.Status
	}
	if c.Network == nil {
		c.Network = defaultCfg.Network
	}
	c.Log.Adjust()
	for _, sub := range []interface{ ValidateAndAdjust() error }{
		c.Scheduler, c.Mapper, c.Socket, c.Network,
	} {
		if err := sub.ValidateAndAdjust(); err != nil {
			return errors.Trace(err)
		}
	}
	if c.Mapper.Strategy == StrategyStatic {
		if len(c.Mapper.Units) > c.Scheduler.Workers {
			c.Scheduler.Workers = len(c.Mapper.Units)
		}
		if err := c.Mapper.validateStatic(c.Network); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// String implements fmt.Stringer
func (c *Config) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		log.Error("fail to marshal config to json", zap.Error(err))
	}
	return string(data)
}

// SchedulerConfig is the configuration of the schedulers.
type SchedulerConfig struct {
	// Policy is "round-robin" or "ddd".
	Policy string `toml:"policy" json:"policy"`
	// Topology is "ring" or "mesh".
	Topology string `toml:"topology" json:"topology"`
	// Workers is the maximum number of processing units, defaults to the
	// number of logical CPUs.
	Workers int `toml:"workers" json:"workers"`
	// Capacity bounds the waiting and schedulable lists, defaults to the
	// number of actors.
	Capacity    int          `toml:"capacity" json:"capacity"`
	IdleTimeout TomlDuration `toml:"idle-timeout" json:"idle-timeout"`
	PinCPU      bool         `toml:"pin-cpu" json:"pin-cpu"`
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *SchedulerConfig) ValidateAndAdjust() error {
	c.Policy = strings.ToLower(c.Policy)
	switch c.Policy {
	case "round-robin", "rr", "ddd":
	default:
		return cerror.ErrInvalidConfig.GenWithStackByArgs(
			fmt.Sprintf("unknown scheduling policy %q", c.Policy))
	}
	c.Topology = strings.ToLower(c.Topology)
	if c.Topology != "ring" && c.Topology != "mesh" {
		return cerror.ErrInvalidConfig.GenWithStackByArgs(
			fmt.Sprintf("unknown scheduler topology %q", c.Topology))
	}
	if c.Workers < 0 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("workers must not be negative")
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers()
	}
	if c.Capacity < 0 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("capacity must not be negative")
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = TomlDuration(defaultIdleTimeout)
	}
	return nil
}

func defaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		log.Warn("fail to get the number of logical cpus, use 1 worker", zap.Error(err))
		return 1
	}
	return n
}

// MapperConfig is the configuration of the mapping of actors onto
// processing units.
type MapperConfig struct {
	Strategy     string  `toml:"strategy" json:"strategy"`
	Seed         int64   `toml:"seed" json:"seed"`
	Population   int     `toml:"population" json:"population"`
	Generations  int     `toml:"generations" json:"generations"`
	MutationRate float64 `toml:"mutation-rate" json:"mutation-rate"`
	EdgeWeight   float64 `toml:"edge-weight" json:"edge-weight"`
	// Units lists the actor names of each unit, for the static strategy.
	Units [][]string `toml:"units" json:"units,omitempty"`
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *MapperConfig) ValidateAndAdjust() error {
	c.Strategy = strings.ToLower(c.Strategy)
	switch c.Strategy {
	case StrategyGreedy, StrategyGenetic, StrategyStatic:
	default:
		return cerror.ErrUnknownMappingStrategy.GenWithStackByArgs(c.Strategy)
	}
	if c.Population <= 1 {
		c.Population = 32
	}
	if c.Generations <= 0 {
		c.Generations = 64
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("mutation-rate must be in [0, 1]")
	}
	if c.EdgeWeight < 0 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("edge-weight must not be negative")
	}
	if c.Strategy == StrategyStatic && len(c.Units) == 0 {
		return cerror.ErrInvalidConfig.GenWithStackByArgs("static mapping without units")
	}
	return nil
}

func (c *MapperConfig) validateStatic(network *NetworkConfig) error {
	if len(network.Actors) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(network.Actors))
	for _, a := range network.Actors {
		known[a.Name] = struct{}{}
	}
	for i, unit := range c.Units {
		for _, name := range unit {
			if _, ok := known[name]; !ok {
				return cerror.ErrInvalidConfig.GenWithStackByArgs(
					fmt.Sprintf("unit %d of the static mapping references unknown actor %s", i, name))
			}
		}
	}
	return nil
}
