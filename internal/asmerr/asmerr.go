// Copyright 2026 The asmtrace Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package asmerr defines the closed ErrorKind taxonomy shared by every
// fallible operation in the harness.
package asmerr

import "fmt"

// Kind is a closed enumeration of failure categories. Every fallible
// operation in the harness returns either a value of its success type or
// an error wrapping one of these kinds.
type Kind int

const (
	// Unknown is the zero value and should never be returned deliberately.
	Unknown Kind = iota

	// TimedOut indicates a run/run_until/AsmFunction call exceeded its
	// wall-clock budget.
	TimedOut

	// UnresolvedSymbol indicates a symbol lookup found no matching name.
	UnresolvedSymbol

	// UnexpectedReturn indicates a callee terminated the traced process
	// instead of returning to the re-entry point.
	UnexpectedReturn

	// BadArgument indicates argument marshaling failed (unsupported arity,
	// a string too large for scratch memory, etc).
	BadArgument

	// SyscallFailure indicates an underlying ptrace/wait4/mmap-injection
	// primitive failed.
	SyscallFailure
)

var kindNames = map[Kind]string{
	Unknown:          "UnknownError",
	TimedOut:         "TimedOut",
	UnresolvedSymbol: "UnresolvedSymbol",
	UnexpectedReturn: "UnexpectedReturn",
	BadArgument:      "BadArgument",
	SyscallFailure:   "SyscallFailure",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UnknownError"
}

// Error is the concrete error type returned by fallible harness operations.
// It always carries a Kind plus a human-readable context string, and may
// wrap an underlying cause (typically a syscall.Errno).
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

// Unwrap allows errors.Is/errors.As to see through to Cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no underlying cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Cause: cause}
}

// KindOf extracts the Kind carried by err, or Unknown if err is nil or does
// not carry one.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	if asErr, ok := err.(*Error); ok {
		return asErr.Kind
	}
	return Unknown
}
