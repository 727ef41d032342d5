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

package mapping

import (
	"github.com/pingcap/dataflow/pkg/cmd/util"
	"github.com/pingcap/dataflow/pkg/config"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/pingcap/dataflow/pkg/network"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

// options defines flags for the `mapping` command.
type options struct {
	*util.ConfigOptions

	cfg *config.Config
}

// newOptions creates new options for the `mapping` command.
func newOptions() *options {
	return &options{ConfigOptions: util.NewConfigOptions()}
}

// result is the mapping printed by the command.
type result struct {
	Strategy string            `json:"strategy"`
	ThreadNb int               `json:"thread_nb"`
	Units    []mapper.UnitView `json:"units"`
	Skewness float64           `json:"skewness"`
}

func (o *options) complete(cmd *cobra.Command) error {
	cfg, err := o.ConfigOptions.Complete(cmd)
	if err != nil {
		return errors.Trace(err)
	}
	o.cfg = cfg
	return nil
}

// run maps the actors of the configured network without running them.
// Every actor weighs the same, as no profile exists yet.
func (o *options) run(cmd *cobra.Command) error {
	g, err := network.Topology(o.cfg.Network)
	if err != nil {
		return errors.Trace(err)
	}
	m, err := mapper.New(o.cfg.Mapper)
	if err != nil {
		return errors.Trace(err)
	}
	mapping, err := m.Map(g, o.cfg.Scheduler.Workers)
	if err != nil {
		return errors.Trace(err)
	}
	if err := mapping.Validate(g, o.cfg.Scheduler.Workers); err != nil {
		return errors.Trace(err)
	}
	return util.JSONPrint(cmd, &result{
		Strategy: o.cfg.Mapper.Strategy,
		ThreadNb: mapping.ThreadNb,
		Units:    mapping.Describe(g),
		Skewness: mapper.Skewness(mapping.Loads(mapper.Weights(g))),
	})
}

// NewCmdMapping creates the `mapping` command.
func NewCmdMapping() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "mapping",
		Short: "Print the mapping of the configured actors onto processing units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}

	o.ConfigOptions.AddFlags(command)

	return command
}
