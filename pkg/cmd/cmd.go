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

// Package cmd is the command line interface of dpn.
package cmd

import (
	"os"

	"github.com/pingcap/dataflow/pkg/cmd/mapping"
	"github.com/pingcap/dataflow/pkg/cmd/run"
	"github.com/pingcap/dataflow/pkg/cmd/version"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/spf13/cobra"
)

// NewCmd creates the root command.
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dpn",
		Short: "A dataflow process network runtime",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
}

// AddCommands adds the subcommands of dpn to cmd.
func AddCommands(cmd *cobra.Command) {
	cmd.AddCommand(run.NewCmdRun())
	cmd.AddCommand(mapping.NewCmdMapping())
	cmd.AddCommand(version.NewCmdVersion())
}

// Run runs the root command and exits with the code of its error.
func Run() {
	cmd := NewCmd()
	cmd.SetOut(os.Stdout)
	AddCommands(cmd)
	err := cmd.Execute()
	os.Exit(cerror.ExitCode(err))
}
