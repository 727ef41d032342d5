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
package config

import (
	"fmt"
	"strings"

	cerror "github.com/pingcap/dataflow/pkg/errors"
)

// Actor kinds.
const (
	KindSource = "source"
	KindSink   = "sink"
	KindRelay  = "relay"
)

// Channel transports.
const (
	TransportMemory = "memory"
	TransportSocket = "socket"
)

// NetworkConfig describes the actors of a process and the channels that
// connect them.
type NetworkConfig struct {
	Actors      []*ActorConfig      `toml:"actor" json:"actors"`
	Connections []*ConnectionConfig `toml:"connection" json:"connections"`
}

// ActorConfig describes an actor.
type ActorConfig struct {
	Name string `toml:"name" json:"name"`
	Kind string `toml:"kind" json:"kind"`
	// Path is the file read by a source or written by a sink. A sink
	// without path discards its tokens.
	Path string `toml:"path" json:"path,omitempty"`
	// Loop makes a source rewind its file at EOF instead of stopping the
	// process.
	Loop bool `toml:"loop" json:"loop,omitempty"`
	// Rate limits a source to the given number of tokens per second.
	Rate float64 `toml:"rate" json:"rate,omitempty"`
	// Outputs is the number of output ports of a relay.
	Outputs int `toml:"outputs" json:"outputs,omitempty"`
}

// ConnectionConfig describes a channel from an output port to an input
// port. Exactly one end of a socket connection lives in this process.
type ConnectionConfig struct {
	Src       string   `toml:"src" json:"src"`
	SrcPort   int      `toml:"src-port" json:"src-port"`
	Dst       string   `toml:"dst" json:"dst"`
	DstPort   int      `toml:"dst-port" json:"dst-port"`
	Size      int      `toml:"size" json:"size"`
	TokenSize ByteSize `toml:"token-size" json:"token-size"`
	Transport string   `toml:"transport" json:"transport"`

	// Server makes this end listen for the peer.
	Server bool   `toml:"server" json:"server,omitempty"`
	Host   string `toml:"host" json:"host,omitempty"`
	Port   int    `toml:"port" json:"port,omitempty"`
	IPv6   bool   `toml:"ipv6" json:"ipv6,omitempty"`
}

func (c *ConnectionConfig) String() string {
	return fmt.Sprintf("%s:%d->%s:%d", c.Src, c.SrcPort, c.Dst, c.DstPort)
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *NetworkConfig) ValidateAndAdjust() error {
	names := make(map[string]struct{}, len(c.Actors))
	for _, a := range c.Actors {
		if a.Name == "" {
			return cerror.ErrInvalidConfig.GenWithStackByArgs("actor without name")
		}
		if _, ok := names[a.Name]; ok {
			return cerror.ErrInvalidConfig.GenWithStackByArgs("duplicated actor " + a.Name)
		}
		names[a.Name] = struct{}{}
		a.Kind = strings.ToLower(a.Kind)
		switch a.Kind {
		case KindSource, KindSink:
		case KindRelay:
			if a.Outputs <= 0 {
				a.Outputs = 1
			}
		default:
			return cerror.ErrUnknownActorKind.GenWithStackByArgs(a.Kind)
		}
		if a.Kind == KindSource && a.Path == "" {
			return cerror.ErrInvalidConfig.GenWithStackByArgs("source " + a.Name + " without path")
		}
		if a.Rate < 0 {
			return cerror.ErrInvalidConfig.GenWithStackByArgs("negative rate of actor " + a.Name)
		}
	}

	for _, conn := range c.Connections {
		if conn.Size <= 0 {
			return cerror.ErrInvalidConfig.GenWithStackByArgs(
				fmt.Sprintf("connection %s has size %d", conn, conn.Size))
		}
		if conn.TokenSize == 0 {
			conn.TokenSize = 1
		}
		if conn.Transport == "" {
			conn.Transport = TransportMemory
		}
		conn.Transport = strings.ToLower(conn.Transport)
		_, srcLocal := names[conn.Src]
		_, dstLocal := names[conn.Dst]
		switch conn.Transport {
		case TransportMemory:
			if !srcLocal || !dstLocal {
				return cerror.ErrInvalidConfig.GenWithStackByArgs(
					fmt.Sprintf("memory connection %s references an unknown actor", conn))
			}
		case TransportSocket:
			if srcLocal == dstLocal {
				return cerror.ErrInvalidConfig.GenWithStackByArgs(
					fmt.Sprintf("exactly one end of socket connection %s must be local", conn))
			}
			if conn.Port <= 0 || conn.Port > 65535 {
				return cerror.ErrInvalidConfig.GenWithStackByArgs(
					fmt.Sprintf("socket connection %s has port %d", conn, conn.Port))
			}
			if !conn.Server && conn.Host == "" {
				return cerror.ErrInvalidConfig.GenWithStackByArgs(
					fmt.Sprintf("client socket connection %s without host", conn))
			}
		default:
			return cerror.ErrInvalidConfig.GenWithStackByArgs(
				fmt.Sprintf("unknown transport %q of connection %s", conn.Transport, conn))
		}
	}
	return nil
}
