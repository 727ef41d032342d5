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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// socket transport related errors
	ErrSocketCreate = errors.Normalize(
		"create socket failed, network: %s",
		errors.RFCCodeText("DPN:ErrSocketCreate"),
	)
	ErrSocketUnknownHost = errors.Normalize(
		"unknown host %s",
		errors.RFCCodeText("DPN:ErrSocketUnknownHost"),
	)
	ErrSocketConnectTimeout = errors.Normalize(
		"connect to %s timed out after %s",
		errors.RFCCodeText("DPN:ErrSocketConnectTimeout"),
	)
	ErrSocketBind = errors.Normalize(
		"bind socket on %s failed",
		errors.RFCCodeText("DPN:ErrSocketBind"),
	)
	ErrSocketListen = errors.Normalize(
		"listen on %s failed",
		errors.RFCCodeText("DPN:ErrSocketListen"),
	)
	ErrSocketAccept = errors.Normalize(
		"accept on %s failed",
		errors.RFCCodeText("DPN:ErrSocketAccept"),
	)
	ErrSocketSend = errors.Normalize(
		"send to socket failed",
		errors.RFCCodeText("DPN:ErrSocketSend"),
	)
	ErrSocketPartialWrite = errors.Normalize(
		"partial write on socket, expected %d bytes, written %d bytes",
		errors.RFCCodeText("DPN:ErrSocketPartialWrite"),
	)
	ErrSocketRecv = errors.Normalize(
		"receive from socket failed",
		errors.RFCCodeText("DPN:ErrSocketRecv"),
	)
	ErrSocketConnectionLost = errors.Normalize(
		"socket connection to %s lost",
		errors.RFCCodeText("DPN:ErrSocketConnectionLost"),
	)

	// fifo related errors
	ErrFIFOInvalidArgs = errors.Normalize(
		"invalid fifo arguments: %s",
		errors.RFCCodeText("DPN:ErrFIFOInvalidArgs"),
	)
	ErrFIFOOverflow = errors.Normalize(
		"fifo overflow: commit %d tokens with %d free slots",
		errors.RFCCodeText("DPN:ErrFIFOOverflow"),
	)
	ErrFIFOUnderflow = errors.Normalize(
		"fifo underflow: reader %d releases %d tokens with %d available",
		errors.RFCCodeText("DPN:ErrFIFOUnderflow"),
	)
	ErrFIFOClosed = errors.Normalize(
		"fifo is closed",
		errors.RFCCodeText("DPN:ErrFIFOClosed"),
	)

	// actor graph related errors
	ErrInvalidGraph = errors.Normalize(
		"invalid actor graph: %s",
		errors.RFCCodeText("DPN:ErrInvalidGraph"),
	)
	ErrActorNotFound = errors.Normalize(
		"actor %v not found",
		errors.RFCCodeText("DPN:ErrActorNotFound"),
	)
	ErrPortAlreadyConnected = errors.Normalize(
		"input port %d of actor %s is already connected",
		errors.RFCCodeText("DPN:ErrPortAlreadyConnected"),
	)

	// scheduler related errors
	ErrCapacityExceeded = errors.Normalize(
		"%s capacity exceeded, capacity: %d",
		errors.RFCCodeText("DPN:ErrCapacityExceeded"),
	)
	ErrSchedulerStopped = errors.Normalize(
		"scheduler %d is stopped",
		errors.RFCCodeText("DPN:ErrSchedulerStopped"),
	)
	ErrSchedulerRunning = errors.Normalize(
		"cluster is running, stop it before %s",
		errors.RFCCodeText("DPN:ErrSchedulerRunning"),
	)
	ErrForeignActor = errors.Normalize(
		"actor %s is owned by scheduler %d, not by scheduler %d",
		errors.RFCCodeText("DPN:ErrForeignActor"),
	)
	ErrCPUAffinity = errors.Normalize(
		"set cpu affinity to core %d failed",
		errors.RFCCodeText("DPN:ErrCPUAffinity"),
	)

	// mapping related errors
	ErrInvalidMapping = errors.Normalize(
		"invalid mapping: %s",
		errors.RFCCodeText("DPN:ErrInvalidMapping"),
	)
	ErrUnknownMappingStrategy = errors.Normalize(
		"unknown mapping strategy %s",
		errors.RFCCodeText("DPN:ErrUnknownMappingStrategy"),
	)

	// config and command line related errors
	ErrInvalidConfig = errors.Normalize(
		"invalid config: %s",
		errors.RFCCodeText("DPN:ErrInvalidConfig"),
	)
	ErrUnknownActorKind = errors.Normalize(
		"unknown actor kind %s",
		errors.RFCCodeText("DPN:ErrUnknownActorKind"),
	)
	ErrServeHTTP = errors.Normalize(
		"serve http error",
		errors.RFCCodeText("DPN:ErrServeHTTP"),
	)
)
