/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package util holds the error type, status messaging and logging setup
// shared across the simulator packages.
package util

import (
	"fmt"
	"runtime"
)

// ErrorKind distinguishes the three recoverable flash-operation failure
// modes from one another without resorting to string matching.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindOutOfBounds
	KindWrite
	KindSimulatedFail
)

// SimError is a recoverable error carrying a captured stack trace, in the
// same spirit as NewtError: cheap to construct, expensive enough (a stack
// walk) that it should only be built at the point of failure, not on every
// hot-path call.
type SimError struct {
	Parent     error
	Text       string
	Kind       ErrorKind
	StackTrace []byte
}

func (se *SimError) Error() string {
	return se.Text
}

func newSimError(kind ErrorKind, msg string) *SimError {
	err := &SimError{
		Text:       msg,
		Kind:       kind,
		StackTrace: make([]byte, 65536),
	}
	stackLen := runtime.Stack(err.StackTrace, true)
	err.StackTrace = err.StackTrace[:stackLen]
	return err
}

func NewSimError(msg string) *SimError {
	return newSimError(KindOther, msg)
}

func FmtSimError(format string, args ...interface{}) *SimError {
	return newSimError(KindOther, fmt.Sprintf(format, args...))
}

// OutOfBoundsError reports an offset or length outside the device, or an
// erase range not landing on sector boundaries.
func OutOfBoundsError(format string, args ...interface{}) *SimError {
	return newSimError(KindOutOfBounds, fmt.Sprintf(format, args...))
}

// WriteError reports an invalid write request.
func WriteError(format string, args ...interface{}) *SimError {
	return newSimError(KindWrite, fmt.Sprintf(format, args...))
}

// SimulatedFailError reports a write rejected by a bad-region dice roll.
func SimulatedFailError(format string, args ...interface{}) *SimError {
	return newSimError(KindSimulatedFail, fmt.Sprintf(format, args...))
}

func ChildSimError(parent error) *SimError {
	for {
		simErr, ok := parent.(*SimError)
		if !ok || simErr == nil || simErr.Parent == nil {
			break
		}
		parent = simErr.Parent
	}

	kind := KindOther
	if se, ok := parent.(*SimError); ok {
		kind = se.Kind
	}

	simErr := newSimError(kind, parent.Error())
	simErr.Parent = parent
	return simErr
}

// IsOutOfBounds reports whether err (or its root SimError) is an
// out-of-bounds failure, mirroring the Rust test suite's is_bounds() helper.
func IsOutOfBounds(err error) bool {
	se, ok := err.(*SimError)
	return ok && se.Kind == KindOutOfBounds
}

func IsSimulatedFail(err error) bool {
	se, ok := err.(*SimError)
	return ok && se.Kind == KindSimulatedFail
}
