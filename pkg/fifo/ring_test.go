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

package fifo

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"testing"

	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/stretchr/testify/require"
)

func writeTokens(t *testing.T, ch Channel, tokens ...byte) {
	require.True(t, ch.HasRoom(len(tokens)))
	copy(ch.Write(len(tokens)), tokens)
	require.NoError(t, ch.WriteEnd(len(tokens)))
}

func TestRingCapacityEight(t *testing.T) {
	t.Parallel()

	r, err := NewRing(8, 1, 1)
	require.NoError(t, err)
	writeTokens(t, r, 1, 2, 3)
	writeTokens(t, r, 4, 5)

	n, err := r.NumTokens(0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	dst := make([]byte, 4)
	r.ReadCopy(0, dst, 4)
	require.Equal(t, []byte{1, 2, 3, 4}, dst)
	require.NoError(t, r.ReadEnd(0, 4))

	require.Equal(t, 1, r.Fill(0))
	require.Equal(t, []byte{5}, r.Read(0, 1))
	require.NoError(t, r.ReadEnd(0, 1))
	require.Equal(t, 0, r.Fill(0))
}

func TestRingZeroCommitIsNoop(t *testing.T) {
	t.Parallel()

	r, err := NewRing(4, 2, 1)
	require.NoError(t, err)
	writeTokens(t, r, 1, 1, 2, 2)

	require.NoError(t, r.WriteEnd(0))
	require.NoError(t, r.ReadEnd(0, 0))
	require.Equal(t, 2, r.Fill(0))
	require.True(t, r.HasRoom(2))
	require.False(t, r.HasRoom(3))
	require.Equal(t, []byte{1, 1, 2, 2}, r.Read(0, 2))
}

func TestRingWrapAround(t *testing.T) {
	t.Parallel()

	r, err := NewRing(4, 2, 1)
	require.NoError(t, err)
	writeTokens(t, r, 1, 1, 2, 2, 3, 3)
	require.NoError(t, r.ReadEnd(0, 3))

	// The span of the next three tokens wraps the end of the buffer.
	writeTokens(t, r, 4, 4, 5, 5, 6, 6)
	require.Equal(t, 3, r.Fill(0))
	require.Equal(t, []byte{4, 4, 5, 5, 6, 6}, r.Read(0, 3))

	dst := make([]byte, 4)
	r.ReadCopy(0, dst, 2)
	require.Equal(t, []byte{4, 4, 5, 5}, dst)

	require.NoError(t, r.ReadEnd(0, 1))
	require.Equal(t, []byte{5, 5, 6, 6}, r.Read(0, 2))
}

func TestRingOverflowAndUnderflow(t *testing.T) {
	t.Parallel()

	r, err := NewRing(2, 1, 1)
	require.NoError(t, err)
	writeTokens(t, r, 1, 2)
	require.False(t, r.HasRoom(1))

	r.Write(1)
	err = r.WriteEnd(1)
	require.True(t, cerror.ErrFIFOOverflow.Equal(err), err)

	err = r.ReadEnd(0, 3)
	require.True(t, cerror.ErrFIFOUnderflow.Equal(err), err)
	require.Equal(t, 2, r.Fill(0))

	_, err = r.NumTokens(1)
	require.True(t, cerror.ErrFIFOInvalidArgs.Equal(err), err)
}

func TestRingInvalidArgs(t *testing.T) {
	t.Parallel()

	for _, args := range [][3]int{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}, {-1, 4, 1}} {
		_, err := NewRing(args[0], args[1], args[2])
		require.True(t, cerror.ErrFIFOInvalidArgs.Equal(err), args)
	}
}

func TestRingFanOut(t *testing.T) {
	t.Parallel()

	r, err := NewRing(4, 1, 2)
	require.NoError(t, err)
	writeTokens(t, r, 1, 2, 3)

	require.Equal(t, []byte{1, 2}, r.Read(0, 2))
	require.NoError(t, r.ReadEnd(0, 3))
	require.Equal(t, 0, r.Fill(0))

	// room follows the slowest reader
	require.Equal(t, 3, r.Fill(1))
	require.True(t, r.HasRoom(1))
	require.False(t, r.HasRoom(2))

	require.Equal(t, []byte{1, 2, 3}, r.Read(1, 3))
	require.NoError(t, r.ReadEnd(1, 3))
	require.True(t, r.HasRoom(4))
}

func TestRingFillInvariant(t *testing.T) {
	t.Parallel()

	const size = 7
	r, err := NewRing(size, 3, 1)
	require.NoError(t, err)
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		if rnd.Intn(2) == 0 {
			n := rnd.Intn(size + 1)
			if r.HasRoom(n) {
				r.Write(n)
				require.NoError(t, r.WriteEnd(n))
			}
		} else {
			avail, err := r.NumTokens(0)
			require.NoError(t, err)
			require.NoError(t, r.ReadEnd(0, rnd.Intn(avail+1)))
		}
		fill := r.Fill(0)
		require.GreaterOrEqual(t, fill, 0)
		require.LessOrEqual(t, fill, size)
	}
}

func TestRingConcurrentInterleaving(t *testing.T) {
	t.Parallel()

	const (
		total     = 20000
		tokenSize = 4
	)
	r, err := NewRing(13, tokenSize, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rnd := rand.New(rand.NewSource(2))
		next := uint32(0)
		for next < total {
			n := rnd.Intn(5) + 1
			if n > total-int(next) {
				n = total - int(next)
			}
			if !r.HasRoom(n) {
				continue
			}
			buf := r.Write(n)
			for i := 0; i < n; i++ {
				binary.LittleEndian.PutUint32(buf[i*tokenSize:], next)
				next++
			}
			if err := r.WriteEnd(n); err != nil {
				panic(err)
			}
		}
	}()

	rnd := rand.New(rand.NewSource(3))
	expected := uint32(0)
	for expected < total {
		avail, err := r.NumTokens(0)
		require.NoError(t, err)
		if avail == 0 {
			continue
		}
		n := rnd.Intn(avail) + 1
		buf := r.Read(0, n)
		for i := 0; i < n; i++ {
			require.Equal(t, expected, binary.LittleEndian.Uint32(buf[i*tokenSize:]))
			expected++
		}
		require.NoError(t, r.ReadEnd(0, n))
	}
	wg.Wait()
	require.Equal(t, 0, r.Fill(0))
}
