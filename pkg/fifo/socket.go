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
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	cerror "github.com/pingcap/dataflow/pkg/errors"
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// sentinelByte fills the buffer of a fresh socket channel.
	sentinelByte = 62

	defaultRetryInterval = 100 * time.Millisecond
	defaultLowWaterMark  = 100
	// busyPollTimeout bounds the readiness wait when whole tokens are
	// already buffered.
	busyPollTimeout = time.Millisecond
)

var _ Channel = (*Socket)(nil)

// SocketConfig describes one endpoint of a socket channel.
type SocketConfig struct {
	// Server endpoints listen and accept exactly one peer, client endpoints
	// connect to Host.
	Server bool
	Host   string
	Port   int
	IPv6   bool

	// ConnectTimeout bounds the connect loop of a client and the accept of
	// a server. Zero waits forever.
	ConnectTimeout time.Duration
	// RetryInterval is the pause between two connect attempts.
	RetryInterval time.Duration
	// PollTimeout bounds the readiness wait of NumTokens on an empty
	// buffer. Zero waits forever.
	PollTimeout time.Duration
	// LowWaterMark is the number of free slots required before NumTokens
	// receives more data.
	LowWaterMark int
}

func (c *SocketConfig) network() string {
	if c.IPv6 {
		return "tcp6"
	}
	return "tcp4"
}

func (c *SocketConfig) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Socket is a channel whose writer and reader live in different processes.
// Tokens are sent as raw bytes over a TCP connection, without framing.
//
// A Socket has a single reader, with id 0. The writer endpoint sends tokens
// synchronously in WriteEnd, the reader endpoint buffers received bytes in
// a local buffer of size tokens.
type Socket struct {
	cfg       SocketConfig
	size      int
	tokenSize int
	lowWater  int

	conn net.Conn
	// contents buffers received bytes, fill of them are valid. A trailing
	// partial token is kept until the rest of it arrives.
	contents []byte
	fill     int
	eof      bool
	// sendBuf holds the tokens handed out by Write.
	sendBuf []byte

	writtenCounter prometheus.Counter
	readCounter    prometheus.Counter
	sentBytes      prometheus.Counter
	recvBytes      prometheus.Counter
}

// DialSocket creates one endpoint of a socket channel and blocks until the
// connection with the peer is established.
func DialSocket(ctx context.Context, size, tokenSize int, cfg SocketConfig) (*Socket, error) {
	if size <= 0 || tokenSize <= 0 {
		return nil, cerror.ErrFIFOInvalidArgs.GenWithStackByArgs(
			fmt.Sprintf("size %d, token size %d", size, tokenSize))
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.LowWaterMark <= 0 {
		cfg.LowWaterMark = defaultLowWaterMark
	}
	s := &Socket{
		cfg:            cfg,
		size:           size,
		tokenSize:      tokenSize,
		lowWater:       lowWaterMark(cfg.LowWaterMark, size),
		contents:       make([]byte, size*tokenSize),
		writtenCounter: tokensWritten.WithLabelValues("socket"),
		readCounter:    tokensRead.WithLabelValues("socket"),
		sentBytes:      socketBytes.WithLabelValues("send"),
		recvBytes:      socketBytes.WithLabelValues("recv"),
	}
	for i := range s.contents {
		s.contents[i] = sentinelByte
	}

	var err error
	if cfg.Server {
		s.conn, err = accept(ctx, &cfg)
	} else {
		s.conn, err = connect(ctx, &cfg)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// isSocketCreateError returns true if err is raised by the socket system
// call, before any address is involved.
func isSocketCreateError(err error) bool {
	var sysErr *os.SyscallError
	return stdErrors.As(err, &sysErr) && sysErr.Syscall == "socket"
}

// lowWaterMark caps the configured mark so small buffers still receive
// before they are completely drained.
func lowWaterMark(mark, size int) int {
	if half := size / 2; mark > half {
		mark = half
	}
	if mark < 1 {
		mark = 1
	}
	return mark
}

func connect(ctx context.Context, cfg *SocketConfig) (net.Conn, error) {
	if _, err := net.DefaultResolver.LookupHost(ctx, cfg.Host); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		return nil, cerror.WrapError(cerror.ErrSocketUnknownHost, err, cfg.Host)
	}

	// A constant interval, bounded by the connect timeout.
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryInterval
	b.MaxInterval = cfg.RetryInterval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = cfg.ConnectTimeout
	b.Reset()

	var (
		dialer  net.Dialer
		conn    net.Conn
		address = cfg.address()
	)
	err := backoff.Retry(func() error {
		c, err := dialer.DialContext(ctx, cfg.network(), address)
		if isSocketCreateError(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Debug("connect to socket peer failed, retrying",
				zap.String("address", address), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if isSocketCreateError(err) {
		return nil, cerror.WrapError(cerror.ErrSocketCreate, err, cfg.network())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		return nil, cerror.ErrSocketConnectTimeout.GenWithStackByArgs(address, cfg.ConnectTimeout)
	}
	return conn, nil
}

func accept(ctx context.Context, cfg *SocketConfig) (net.Conn, error) {
	address := net.JoinHostPort("", strconv.Itoa(cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, cfg.network(), address)
	if err != nil {
		if isSocketCreateError(err) {
			return nil, cerror.WrapError(cerror.ErrSocketCreate, err, cfg.network())
		}
		var sysErr *os.SyscallError
		if stdErrors.As(err, &sysErr) && sysErr.Syscall == "listen" {
			return nil, cerror.WrapError(cerror.ErrSocketListen, err, address)
		}
		return nil, cerror.WrapError(cerror.ErrSocketBind, err, address)
	}
	// Only one peer is accepted, the listener is not needed afterwards.
	defer ln.Close()

	if cfg.ConnectTimeout > 0 {
		if tcpLn, ok := ln.(*net.TCPListener); ok {
			_ = tcpLn.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
		}
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Trace(ctx.Err())
		}
		var netErr net.Error
		if stdErrors.As(err, &netErr) && netErr.Timeout() {
			return nil, cerror.ErrSocketConnectTimeout.GenWithStackByArgs(address, cfg.ConnectTimeout)
		}
		return nil, cerror.WrapError(cerror.ErrSocketAccept, err, address)
	}
	return conn, nil
}

// TokenSize implements Channel.
func (s *Socket) TokenSize() int { return s.tokenSize }

// Size implements Channel.
func (s *Socket) Size() int { return s.size }

// LocalAddr returns the local address of the connection.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// RemoteAddr returns the address of the peer.
func (s *Socket) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// HasRoom implements Channel. Only the local buffer is considered, the
// buffer of the peer is not known.
func (s *Socket) HasRoom(n int) bool {
	return s.size-s.fill/s.tokenSize >= n
}

// Write implements Channel.
func (s *Socket) Write(n int) []byte {
	s.sendBuf = growBuffer(s.sendBuf, n*s.tokenSize)
	return s.sendBuf[:n*s.tokenSize]
}

// WriteEnd implements Channel. The n tokens are sent before it returns.
func (s *Socket) WriteEnd(n int) error {
	if n == 0 {
		return nil
	}
	failpoint.Inject("SocketSendFailed", func() {
		failpoint.Return(cerror.WrapError(cerror.ErrSocketSend, syscall.EPIPE))
	})
	data := s.sendBuf[:n*s.tokenSize]
	expected := len(data)
	failpoint.Inject("SocketShortWrite", func(val failpoint.Value) {
		data = data[:val.(int)]
	})
	written, err := s.conn.Write(data)
	s.sentBytes.Add(float64(written))
	if err != nil && written == 0 {
		return cerror.WrapError(cerror.ErrSocketSend, err)
	}
	if written < expected {
		return cerror.ErrSocketPartialWrite.GenWithStackByArgs(expected, written)
	}
	s.writtenCounter.Add(float64(n))
	return nil
}

// NumTokens implements Channel. When enough slots are free it waits for the
// connection to become readable and receives once.
func (s *Socket) NumTokens(readerID int) (int, error) {
	if readerID != 0 {
		return 0, cerror.ErrFIFOInvalidArgs.GenWithStackByArgs(
			fmt.Sprintf("reader %d of socket channel", readerID))
	}
	if !s.eof && len(s.contents)-s.fill >= s.lowWater*s.tokenSize {
		if err := s.receive(); err != nil {
			return s.fill / s.tokenSize, err
		}
	}
	tokens := s.fill / s.tokenSize
	if s.eof && tokens == 0 {
		return 0, cerror.ErrSocketConnectionLost.GenWithStackByArgs(s.conn.RemoteAddr())
	}
	return tokens, nil
}

func (s *Socket) receive() error {
	failpoint.Inject("SocketRecvFailed", func() {
		failpoint.Return(cerror.WrapError(cerror.ErrSocketRecv, syscall.ECONNRESET))
	})
	var deadline time.Time
	if s.fill >= s.tokenSize {
		deadline = time.Now().Add(busyPollTimeout)
	} else if s.cfg.PollTimeout > 0 {
		deadline = time.Now().Add(s.cfg.PollTimeout)
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return cerror.WrapError(cerror.ErrSocketRecv, err)
	}
	n, err := s.conn.Read(s.contents[s.fill:])
	s.fill += n
	s.recvBytes.Add(float64(n))
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, io.EOF) {
		log.Info("socket channel closed by peer",
			zap.Stringer("remote", s.conn.RemoteAddr()),
			zap.Int("bufferedBytes", s.fill))
		s.eof = true
		return nil
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return cerror.WrapError(cerror.ErrSocketRecv, err)
}

// Read implements Channel.
func (s *Socket) Read(_ int, n int) []byte {
	return s.contents[:n*s.tokenSize]
}

// ReadCopy implements Channel.
func (s *Socket) ReadCopy(_ int, dst []byte, n int) {
	copy(dst, s.contents[:n*s.tokenSize])
}

// ReadEnd implements Channel. The remaining bytes, a partial token
// included, are moved to the front of the buffer.
func (s *Socket) ReadEnd(readerID, n int) error {
	if n == 0 {
		return nil
	}
	if avail := s.fill / s.tokenSize; readerID != 0 || n < 0 || n > avail {
		return cerror.ErrFIFOUnderflow.GenWithStackByArgs(readerID, n, avail)
	}
	consumed := n * s.tokenSize
	copy(s.contents, s.contents[consumed:s.fill])
	s.fill -= consumed
	s.readCounter.Add(float64(n))
	return nil
}

// CloseWrite implements Channel. The peer receives the end of the stream
// once the tokens already sent are read.
func (s *Socket) CloseWrite() error {
	if tcpConn, ok := s.conn.(*net.TCPConn); ok {
		return errors.Trace(tcpConn.CloseWrite())
	}
	return nil
}

// Drained implements Channel. It is meaningful once NumTokens observed the
// end of the stream.
func (s *Socket) Drained(int) bool {
	return s.eof && s.fill < s.tokenSize
}

// Close implements Channel.
func (s *Socket) Close() error {
	return errors.Trace(s.conn.Close())
}
