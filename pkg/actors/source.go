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
	stdErrors "errors"
	"io"
	"math"
	"os"

	"github.com/pingcap/dataflow/pkg/actor"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Source reads tokens from a file and writes them to its output port.
type Source struct {
	ports
	path string
	r    io.ReadSeeker
	c    io.Closer
	loop bool
	// limiter is nil when the source is not rate limited.
	limiter *rate.Limiter
	buf     []byte
}

// NewSource opens the file at path. A rate of zero means unlimited.
func NewSource(path string, loop bool, tokensPerSecond float64) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := newSource(f, loop, tokensPerSecond)
	s.path = path
	s.c = f
	return s, nil
}

func newSource(r io.ReadSeeker, loop bool, tokensPerSecond float64) *Source {
	s := &Source{ports: newPorts(0, 1), r: r, loop: loop}
	if tokensPerSecond > 0 {
		burst := int(math.Max(1, tokensPerSecond))
		s.limiter = rate.NewLimiter(rate.Limit(tokensPerSecond), burst)
	}
	return s
}

// Fire reads one token at a time until the output is full. At the end of
// the file the source rewinds if it loops, otherwise it ends the stream of
// its output and finishes.
func (s *Source) Fire(ctx actor.Context) actor.FiringResult {
	if s.Finished() {
		return actor.FiringResult{Reason: actor.ReasonOther}
	}
	out := s.outputs[0]
	size := tokenSize(out)
	if cap(s.buf) < size {
		s.buf = make([]byte, size)
	}
	token := s.buf[:size]

	n := 0
	rewound := false
	for out.HasRoom(1) {
		if ctx.Err() != nil {
			return actor.FiringResult{NumFirings: n, Reason: actor.ReasonOther}
		}
		if s.limiter != nil && !s.limiter.Allow() {
			return actor.FiringResult{NumFirings: n, Reason: actor.ReasonOther}
		}
		_, err := io.ReadFull(s.r, token)
		if stdErrors.Is(err, io.EOF) || stdErrors.Is(err, io.ErrUnexpectedEOF) {
			// A trailing partial token is dropped.
			if !s.loop || rewound {
				log.Info("source reaches end of file",
					zap.String("actor", ctx.Actor().Name),
					zap.String("path", s.path))
				s.finish(ctx)
				// The successors drain the end of the stream.
				return actor.FiringResult{NumFirings: n, Reason: actor.ReasonFull, Ports: 1}
			}
			if _, err := s.r.Seek(0, io.SeekStart); err != nil {
				return s.fail(ctx, errors.Trace(err))
			}
			// A file shorter than a token would rewind forever.
			rewound = true
			continue
		}
		if err != nil {
			return s.fail(ctx, errors.Trace(err))
		}
		rewound = false
		if err := out.Write(token, 1); err != nil {
			return s.fail(ctx, err)
		}
		n++
	}
	return actor.FiringResult{NumFirings: n, Reason: actor.ReasonFull, Ports: 1}
}

// Close closes the file.
func (s *Source) Close() error {
	if s.c == nil {
		return nil
	}
	return errors.Trace(s.c.Close())
}
