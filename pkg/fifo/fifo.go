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

// Package fifo provides the bounded token channels that connect actors.
//
// Every channel carries fixed-size tokens and is accessed through the same
// four-phase protocol, whatever its backend:
//
//	if ch.HasRoom(n) {              n, _ := ch.NumTokens(reader)
//	    buf := ch.Write(n)          buf := ch.Read(reader, n)
//	    produce(buf)                consume(buf)
//	    _ = ch.WriteEnd(n)          _ = ch.ReadEnd(reader, n)
//	}
//
// A channel has exactly one writer and a fixed set of readers, each of them
// driven by one goroutine at a time. The writer ends the stream with
// CloseWrite, a reader has seen the whole stream once Drained is true.
package fifo

// Channel is a bounded FIFO of fixed-size tokens.
type Channel interface {
	// TokenSize returns the size of a token in bytes.
	TokenSize() int
	// Size returns the capacity of the channel in tokens.
	Size() int

	// HasRoom returns true iff at least n free slots exist.
	HasRoom(n int) bool
	// Write returns the storage for the next n tokens. The tokens become
	// visible to readers once WriteEnd is called. Callers must have checked
	// HasRoom before.
	Write(n int) []byte
	// WriteEnd commits the n tokens previously returned by Write.
	WriteEnd(n int) error

	// NumTokens returns the number of tokens available to the reader.
	NumTokens(readerID int) (int, error)
	// Read returns the first n tokens of the reader for in-place
	// consumption. The slice is valid until the next ReadEnd.
	Read(readerID, n int) []byte
	// ReadCopy copies the first n tokens of the reader into dst.
	ReadCopy(readerID int, dst []byte, n int)
	// ReadEnd discards the first n tokens of the reader.
	ReadEnd(readerID, n int) error

	// CloseWrite ends the stream. Tokens already written stay readable.
	CloseWrite() error
	// Drained returns true if the stream is ended and the reader consumed
	// every token of it.
	Drained(readerID int) bool

	// Close releases the resources held by the channel.
	Close() error
}
