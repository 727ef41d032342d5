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
	"fmt"

	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

var _ Channel = (*Ring)(nil)

// Ring is an in-memory channel backed by a circular buffer.
//
// The write counter and the per-reader read counters increase monotonically,
// so the position of a token in the buffer is its counter modulo the size.
// Every reader sees every token. Room is computed against the slowest reader.
type Ring struct {
	size      int
	tokenSize int
	contents  []byte

	written atomic.Int64
	reads   []atomic.Int64
	closed  atomic.Bool

	// writeScratch holds the tokens of a Write whose span wraps the buffer.
	// They are copied into the ring by WriteEnd.
	writeScratch []byte
	scratchInUse bool
	readScratch  [][]byte

	writtenCounter prometheus.Counter
	readCounter    prometheus.Counter
}

// NewRing creates a ring channel of size tokens of tokenSize bytes read by
// numReaders readers.
func NewRing(size, tokenSize, numReaders int) (*Ring, error) {
	if size <= 0 || tokenSize <= 0 || numReaders <= 0 {
		return nil, cerror.ErrFIFOInvalidArgs.GenWithStackByArgs(
			fmt.Sprintf("size %d, token size %d, readers %d", size, tokenSize, numReaders))
	}
	return &Ring{
		size:           size,
		tokenSize:      tokenSize,
		contents:       make([]byte, size*tokenSize),
		reads:          make([]atomic.Int64, numReaders),
		readScratch:    make([][]byte, numReaders),
		writtenCounter: tokensWritten.WithLabelValues("memory"),
		readCounter:    tokensRead.WithLabelValues("memory"),
	}, nil
}

// TokenSize implements Channel.
func (r *Ring) TokenSize() int { return r.tokenSize }

// Size implements Channel.
func (r *Ring) Size() int { return r.size }

// NumReaders returns the number of readers of the ring.
func (r *Ring) NumReaders() int { return len(r.reads) }

func (r *Ring) slowestRead() int64 {
	slowest := r.reads[0].Load()
	for i := 1; i < len(r.reads); i++ {
		if v := r.reads[i].Load(); v < slowest {
			slowest = v
		}
	}
	return slowest
}

func (r *Ring) free() int {
	return r.size - int(r.written.Load()-r.slowestRead())
}

// HasRoom implements Channel.
func (r *Ring) HasRoom(n int) bool {
	return r.free() >= n
}

// Write implements Channel. The returned slice aliases the ring unless the
// span wraps the end of the buffer.
func (r *Ring) Write(n int) []byte {
	start := int(r.written.Load() % int64(r.size))
	if start+n <= r.size {
		r.scratchInUse = false
		return r.contents[start*r.tokenSize : (start+n)*r.tokenSize]
	}
	r.scratchInUse = true
	r.writeScratch = growBuffer(r.writeScratch, n*r.tokenSize)
	return r.writeScratch[:n*r.tokenSize]
}

// WriteEnd implements Channel.
func (r *Ring) WriteEnd(n int) error {
	if n == 0 {
		return nil
	}
	if r.closed.Load() {
		return cerror.ErrFIFOClosed.GenWithStackByArgs()
	}
	if free := r.free(); n < 0 || n > free {
		return cerror.ErrFIFOOverflow.GenWithStackByArgs(n, free)
	}
	written := r.written.Load()
	if r.scratchInUse {
		r.copyIn(int(written%int64(r.size)), r.writeScratch[:n*r.tokenSize])
		r.scratchInUse = false
	}
	// The store publishes the tokens to the readers.
	r.written.Store(written + int64(n))
	r.writtenCounter.Add(float64(n))
	return nil
}

// NumTokens implements Channel.
func (r *Ring) NumTokens(readerID int) (int, error) {
	if readerID < 0 || readerID >= len(r.reads) {
		return 0, cerror.ErrFIFOInvalidArgs.GenWithStackByArgs(
			fmt.Sprintf("reader %d of %d", readerID, len(r.reads)))
	}
	return r.Fill(readerID), nil
}

// Fill returns the number of tokens written and not yet released by the
// reader.
func (r *Ring) Fill(readerID int) int {
	return int(r.written.Load() - r.reads[readerID].Load())
}

// Read implements Channel. The returned slice aliases the ring unless the
// span wraps the end of the buffer.
func (r *Ring) Read(readerID, n int) []byte {
	start := int(r.reads[readerID].Load() % int64(r.size))
	if start+n <= r.size {
		return r.contents[start*r.tokenSize : (start+n)*r.tokenSize]
	}
	r.readScratch[readerID] = growBuffer(r.readScratch[readerID], n*r.tokenSize)
	buf := r.readScratch[readerID][:n*r.tokenSize]
	r.copyOut(start, buf)
	return buf
}

// ReadCopy implements Channel.
func (r *Ring) ReadCopy(readerID int, dst []byte, n int) {
	start := int(r.reads[readerID].Load() % int64(r.size))
	r.copyOut(start, dst[:n*r.tokenSize])
}

// ReadEnd implements Channel.
func (r *Ring) ReadEnd(readerID, n int) error {
	if n == 0 {
		return nil
	}
	if readerID < 0 || readerID >= len(r.reads) {
		return cerror.ErrFIFOInvalidArgs.GenWithStackByArgs(
			fmt.Sprintf("reader %d of %d", readerID, len(r.reads)))
	}
	read := r.reads[readerID].Load()
	if avail := int(r.written.Load() - read); n < 0 || n > avail {
		return cerror.ErrFIFOUnderflow.GenWithStackByArgs(readerID, n, avail)
	}
	r.reads[readerID].Store(read + int64(n))
	r.readCounter.Add(float64(n))
	return nil
}

// CloseWrite implements Channel.
func (r *Ring) CloseWrite() error {
	r.closed.Store(true)
	return nil
}

// Drained implements Channel.
func (r *Ring) Drained(readerID int) bool {
	// closed is loaded first, every token written before CloseWrite is then
	// counted by Fill.
	return r.closed.Load() && r.Fill(readerID) == 0
}

// Close implements Channel. Pending tokens stay readable.
func (r *Ring) Close() error {
	return r.CloseWrite()
}

// copyIn copies buf into the ring starting at token index start, wrapping
// around the end of the buffer.
func (r *Ring) copyIn(start int, buf []byte) {
	n := copy(r.contents[start*r.tokenSize:], buf)
	copy(r.contents, buf[n:])
}

// copyOut copies len(buf) bytes from the ring starting at token index start.
func (r *Ring) copyOut(start int, buf []byte) {
	n := copy(buf, r.contents[start*r.tokenSize:])
	copy(buf[n:], r.contents)
}

func growBuffer(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}
