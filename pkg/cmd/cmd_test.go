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

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/dataflow/pkg/mapper"
	"github.com/stretchr/testify/require"
)

const networkTOML = `
[[network.actor]]
name = "src"
kind = "source"
path = %q

[[network.actor]]
name = "relay"
kind = "relay"

[[network.actor]]
name = "sink"
kind = "sink"
path = %q

[[network.connection]]
src = "src"
dst = "relay"
size = 16
token-size = 4

[[network.connection]]
src = "relay"
dst = "sink"
size = 16
token-size = 4
`

func execute(t *testing.T, args ...string) (string, error) {
	cmd := NewCmd()
	AddCommands(cmd)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, input []byte) (configPath, outputPath string) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input")
	outputPath = filepath.Join(dir, "output")
	require.NoError(t, os.WriteFile(inputPath, input, 0o644))
	configPath = filepath.Join(dir, "dpn.toml")
	content := fmt.Sprintf(networkTOML, inputPath, outputPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath, outputPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "Release Version: ")

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"git_hash"`)
}

func TestMapping(t *testing.T) {
	configPath, _ := writeConfig(t, nil)
	out, err := execute(t, "mapping", "--config", configPath, "--workers", "2")
	require.NoError(t, err)

	var res struct {
		Strategy string            `json:"strategy"`
		ThreadNb int               `json:"thread_nb"`
		Units    []mapper.UnitView `json:"units"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "greedy", res.Strategy)
	require.Equal(t, 2, res.ThreadNb)
	names := 0
	for _, u := range res.Units {
		names += len(u.Actors)
	}
	require.Equal(t, 3, names)

	_, err = execute(t, "mapping", "--config", configPath, "--strategy", "random")
	require.True(t, cerror.ErrUnknownMappingStrategy.Equal(err), err)
}

func TestRun(t *testing.T) {
	input := bytes.Repeat([]byte("dpn!"), 4096)
	configPath, outputPath := writeConfig(t, input)

	for _, args := range [][]string{
		{"--policy", "ddd", "--topology", "ring"},
		{"--policy", "ddd", "--topology", "mesh", "--strategy", "genetic"},
		{"--policy", "rr"},
	} {
		args = append([]string{
			"run", "--config", configPath, "--workers", "2", "--status-addr", "",
			"--log-level", "warn", "--idle-timeout", "1ms",
		}, args...)
		_, err := execute(t, args...)
		require.NoError(t, err)
		require.Equal(t, 0, cerror.ExitCode(err))

		// the process stops once the sink drained the whole file
		output, err := os.ReadFile(outputPath)
		require.NoError(t, err)
		require.Equal(t, input, output, args)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "dpn.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[network]\nactors = 3\n"), 0o644))
	_, err := execute(t, "run", "--config", configPath)
	require.Error(t, err)
	require.Equal(t, 2, cerror.ExitCode(err))

	configPath, _ = writeConfig(t, nil)
	_, err = execute(t, "run", "--config", configPath, "--topology", "star")
	require.Equal(t, 2, cerror.ExitCode(err))
}
