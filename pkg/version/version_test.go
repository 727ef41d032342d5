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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveVAndHash(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, out string }{
		{"", ""},
		{"v1.2.0", "1.2.0"},
		{"v1.2.0-rc.1", "1.2.0-rc.1"},
		{"v1.2.0-12-g3f5a8c9", "1.2.0"},
		{"v1.2.0-12-g3f5a8c9-dirty", "1.2.0"},
		{"1.2.0-dirty", "1.2.0"},
	}
	for _, c := range cases {
		require.Equal(t, c.out, removeVAndHash(c.in), c.in)
	}
}

func TestReleaseSemver(t *testing.T) {
	old := ReleaseVersion
	defer func() { ReleaseVersion = old }()

	ReleaseVersion = "None"
	require.Empty(t, ReleaseSemver())
	require.Empty(t, GetInfo().Semver)
	ReleaseVersion = "v0.3.0-4-gabcdef01"
	require.Equal(t, "0.3.0", ReleaseSemver())
	require.Contains(t, GetRawInfo(), "Release Version: v0.3.0-4-gabcdef01")
	require.Equal(t, "v0.3.0-4-gabcdef01", GetInfo().Version)
	require.Equal(t, "0.3.0", GetInfo().Semver)
}
