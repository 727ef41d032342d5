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

package version

import (
	"github.com/pingcap/dataflow/pkg/cmd/util"
	"github.com/pingcap/dataflow/pkg/version"
	"github.com/spf13/cobra"
)

// options defines flags for the `version` command.
type options struct {
	json bool
}

// NewCmdVersion creates the `version` command.
func NewCmdVersion() *cobra.Command {
	o := &options{}
	command := &cobra.Command{
		Use:   "version",
		Short: "Output version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.json {
				return util.JSONPrint(cmd, version.GetInfo())
			}
			cmd.Print(version.GetRawInfo())
			return nil
		},
	}
	command.Flags().BoolVar(&o.json, "json", false, "Output the version information in JSON")
	return command
}
