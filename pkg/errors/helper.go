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
	"context"
	stdErrors "errors"

	"github.com/pingcap/errors"
	"go.uber.org/multierr"
)

// WrapError generates a new error based on given `*errors.Error`, wraps the err
// as cause error. args fill the message template of rfcError.
// If given `err` is nil, returns a nil error, which a the different behavior
// against `Wrap` function in pingcap/errors.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}

// RFCError returns the outermost normalized error in the chain of err, or
// nil if there is none. The cause wrapped by a normalized error is not
// inspected.
func RFCError(err error) *errors.Error {
	for err != nil {
		if rfcErr, ok := err.(*errors.Error); ok {
			return rfcErr
		}
		next := errors.Unwrap(err)
		if next == nil {
			next = stdErrors.Unwrap(err)
		}
		err = next
	}
	return nil
}

// Is returns true if the outermost normalized error in the chain of err is
// rfcError. Unlike rfcError.Equal, a kind wrapped as the cause of another
// normalized error, or a raw cause such as a net error, does not match.
func Is(err error, rfcError *errors.Error) bool {
	found := RFCError(err)
	return found != nil && found.ID() == rfcError.ID()
}

// transportErrors lists the errors raised by socket backed channels. Each one
// stands for a distinct failure site of the transport.
var transportErrors = []*errors.Error{
	ErrSocketCreate,
	ErrSocketUnknownHost,
	ErrSocketConnectTimeout,
	ErrSocketBind,
	ErrSocketListen,
	ErrSocketAccept,
	ErrSocketSend,
	ErrSocketPartialWrite,
	ErrSocketRecv,
	ErrSocketConnectionLost,
}

// IsTransportError returns true if the error is raised by a socket channel.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range multierr.Errors(err) {
		for _, kind := range transportErrors {
			if Is(e, kind) {
				return true
			}
		}
	}
	return false
}

// exitCodes maps an error kind to the exit code of the dpn process.
var exitCodes = []struct {
	err  *errors.Error
	code int
}{
	{ErrInvalidConfig, 2},
	{ErrSocketCreate, 3},
	{ErrSocketUnknownHost, 4},
	{ErrSocketConnectTimeout, 5},
	{ErrSocketBind, 9},
	{ErrSocketSend, 10},
	{ErrSocketListen, 11},
	{ErrSocketAccept, 12},
	{ErrSocketPartialWrite, 13},
	{ErrSocketRecv, 14},
	{ErrSocketConnectionLost, 15},
	{ErrCapacityExceeded, 20},
	{ErrInvalidGraph, 21},
	{ErrInvalidMapping, 22},
}

// ExitCode returns the process exit code for the error. A nil error and a
// canceled context exit with 0, unclassified errors exit with 1. For
// combined errors the first classified one decides.
func ExitCode(err error) int {
	code := 0
	for _, e := range multierr.Errors(err) {
		if IsContextCanceledError(e) {
			continue
		}
		if c := exitCode(e); c != 1 {
			return c
		}
		code = 1
	}
	return code
}

func exitCode(err error) int {
	for _, c := range exitCodes {
		if Is(err, c.err) {
			return c.code
		}
	}
	return 1
}

// IsContextCanceledError checks if an error is caused by context.Canceled.
func IsContextCanceledError(err error) bool {
	return stdErrors.Is(errors.Cause(err), context.Canceled)
}
