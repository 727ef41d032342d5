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

package actors

import (
	"bufio"
	"io"
	"os"

	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Sink consumes the tokens of its input port and writes them to a file.
type Sink struct {
	ports
	w      *bufio.Writer
	c      io.Closer
	tokens atomic.Int64
}

// NewSink creates the file at path. An empty path discards the tokens.
func NewSink(path string) (*Sink, error) {
	if path == "" {
		return newSink(io.Discard, nil), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newSink(f, f), nil
}

func newSink(w io.Writer, c io.Closer) *Sink {
	return &Sink{ports: newPorts(1, 0), w: bufio.NewWriter(w), c: c}
}

// Fire consumes every available token. Once the input is drained, the
// sink flushes what it wrote and finishes.
func (s *Sink) Fire(ctx actor.Context) actor.FiringResult {
	if s.Finished() {
		return actor.FiringResult{Reason: actor.ReasonOther}
	}
	in := s.inputs[0]
	n := 0
	for {
		avail, err := in.Ch.NumTokens(in.Reader)
		if drained(in, avail, err) {
			if err := s.w.Flush(); err != nil {
				return s.fail(ctx, errors.Trace(err))
			}
			log.Info("sink input is drained",
				zap.String("actor", ctx.Actor().Name), zap.Int64("tokens", s.tokens.Load()))
			s.finish(ctx)
			return actor.FiringResult{NumFirings: n, Reason: actor.ReasonOther}
		}
		if err != nil {
			return s.fail(ctx, err)
		}
		if avail == 0 {
			break
		}
		if _, err := s.w.Write(in.Ch.Read(in.Reader, avail)); err != nil {
			return s.fail(ctx, errors.Trace(err))
		}
		if err := in.Ch.ReadEnd(in.Reader, avail); err != nil {
			return s.fail(ctx, err)
		}
		s.tokens.Add(int64(avail))
		n += avail
	}
	return actor.FiringResult{NumFirings: n, Reason: actor.ReasonEmpty, Ports: 1}
}

// Tokens returns the number of tokens consumed so far.
func (s *Sink) Tokens() int64 {
	return s.tokens.Load()
}

// Close flushes the written tokens and closes the file.
func (s *Sink) Close() error {
	err := s.w.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return errors.Trace(err)
}
