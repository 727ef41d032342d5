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
//go:build linux

package scheduler

import (
	"runtime"

	cerror "github.com/pingcap/dataflow/pkg/errors"
	"golang.org/x/sys/unix"
)

// pinToCPU binds the calling OS thread to a logical CPU. The goroutine must
// be locked to its thread.
func pinToCPU(cpu int) error {
	cpu %= runtime.NumCPU()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return cerror.WrapError(cerror.ErrCPUAffinity, err, cpu)
	}
	return nil
}
