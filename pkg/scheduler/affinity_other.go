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
//go:build !linux

package scheduler

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

func pinToCPU(cpu int) error {
	log.Warn("cpu affinity is only supported on linux, ignore it", zap.Int("cpu", cpu))
	return nil
}
