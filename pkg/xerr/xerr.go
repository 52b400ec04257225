/*
Copyright 2024 The pgblock Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package xerr implements the error taxonomy from the backup/restore
// core's design: a small closed set of error Kinds (not Go types),
// each carrying a message and a stack trace back to the call site that
// raised it. Errors are built on github.com/cockroachdb/errors so that
// errors.Is/errors.As and stack-trace formatting work the way the rest
// of the pack's storage-engine code (_examples/darshanime-pebble) expects.
package xerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind is one of the error kinds named in the error-handling design.
type Kind string

const (
	KindFormat    Kind = "FormatError"
	KindChecksum  Kind = "ChecksumError"
	KindCrypto    Kind = "CryptoError"
	KindFileOpen  Kind = "FileOpenError"
	KindFileRead  Kind = "FileReadError"
	KindFileWrite Kind = "FileWriteError"
	KindFileInfo  Kind = "FileInfoError"
	KindMemory    Kind = "MemoryError"
	KindAssert    Kind = "AssertError"
	KindExecute   Kind = "ExecuteError"
)

// kinded is the sentinel type Of returns; wrapped.Is matches it by Kind,
// so errors.Is(err, Of(kind)) reports whether err carries that Kind.
type kinded struct {
	kind Kind
}

func (k *kinded) Error() string { return string(k.kind) }

// New creates an error of the given kind with a stack trace captured at
// the call site.
func New(kind Kind, msg string) error {
	return errors.WithStack(&wrapped{kind: kind, msg: msg})
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind and a stack trace to an existing error, the way
// the backup-file orchestrator wraps a storage failure without losing
// the original cause (errors.Cause still recovers it).
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&wrapped{kind: kind, msg: msg, cause: err})
}

type wrapped struct {
	kind  Kind
	msg   string
	cause error
}

func (w *wrapped) Error() string {
	if w.cause != nil {
		return fmt.Sprintf("%s: %s: %v", w.kind, w.msg, w.cause)
	}
	return fmt.Sprintf("%s: %s", w.kind, w.msg)
}

func (w *wrapped) Unwrap() error { return w.cause }

func (w *wrapped) Is(target error) bool {
	t, ok := target.(*kinded)
	return ok && t.kind == w.kind
}

// Of returns a sentinel value suitable for errors.Is(err, xerr.Of(kind)).
func Of(kind Kind) error { return &kinded{kind: kind} }

// KindOf extracts the Kind from an error produced by this package,
// walking the cause chain. The zero Kind is returned if err was not
// produced by New/Wrap.
func KindOf(err error) Kind {
	var w *wrapped
	if errors.As(err, &w) {
		return w.kind
	}
	return ""
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RaisedFrom prepends the "raised from <session>: " prefix the protocol
// session design requires when re-raising a peer's error (spec.md §7
// "User-visible failure").
func RaisedFrom(session string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("raised from %s: %w", session, err)
}
