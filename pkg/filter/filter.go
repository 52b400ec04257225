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

// Package filter defines the uniform streaming filter contract every
// byte of a backed-up or restored file passes through, and the
// concrete filters the core relies on (size, hash, compress/decompress,
// cipher-block, chunked-read, and the identity buffer filter). The
// block-incremental filter lives in pkg/blockincr since it is the
// largest and most subtle of the set; it still implements this
// package's Filter interface.
package filter

import "github.com/pgblock/core/pkg/stringid"

// Filter is the contract every concrete filter implements. A filter
// declares its capabilities by implementing the optional interfaces
// below (Transformer xor Sink, plus any of Doner, SameInputer,
// Resulter) — exactly one of Transformer/Sink per spec.md §4.2.
type Filter interface {
	// FilterType names the filter for result lookup and logging.
	FilterType() stringid.ID
}

// Transformer is implemented by filters that both consume input and
// produce output (the common case: size, hash, compress, cipher).
type Transformer interface {
	Filter
	// ProcessInOut consumes bytes from input and appends bytes to
	// output. input == nil signals end of stream (flush); the filter
	// must not block and must not assume it receives the rest of a
	// logical record in one call.
	ProcessInOut(input []byte, output *Buffer) error
}

// Sink is implemented by filters that consume input but produce no
// stream output of their own (reserved for filters whose only output
// is their Result(), none of which are needed by this spec's concrete
// filter set, but the interface exists so group.go's dispatch mirrors
// spec.md §4.2 exactly).
type Sink interface {
	Filter
	ProcessIn(input []byte) error
}

// Doner is implemented by filters that can become permanently
// exhausted independent of further input (so a group can short-circuit
// past them).
type Doner interface {
	Done() bool
}

// SameInputer is implemented by filters whose most recent process call
// may have left input unconsumed because their output buffer was full.
// Callers must drain output and recall with the identical input slice.
type SameInputer interface {
	InputSame() bool
}

// Resulter is implemented by filters that carry a typed result once
// they reach end of stream (size: total bytes; hash: digest;
// block-incremental: block map size). The returned bytes are a
// complete pack produced by pack.Writer.End.
type Resulter interface {
	Result() ([]byte, error)
}
