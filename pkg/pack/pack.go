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

// Package pack implements the self-describing typed binary format used
// for filter parameter/result packs, block map serialization, and every
// request/response crossing the protocol session boundary.
//
// A pack is a stream of fields inside an implicit top-level object.
// Each field carries an id that is a delta from the previous id in its
// container (objects and arrays both reset the id counter to 1 on
// entry and restore the outer counter on exit) so omitted/NULL fields
// cost nothing but a slightly larger delta on the next field actually
// written. There is no explicit NULL token — a NULL is just a gap in
// the id sequence, recovered by the reader's declared default value.
// End-of-container (and end-of-pack) is a single zero byte.
package pack

import (
	"time"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

// Type identifies the wire type of a field.
type Type uint8

const (
	typeInvalid Type = iota // 0 is reserved: a tag byte of 0x00 is the container terminator
	TypeU32
	TypeU64
	TypeI32
	TypeI64
	TypeBoolFalse
	TypeBoolTrue
	TypeMode
	TypeTime
	TypeBin
	TypeStr
	TypeStrID
	TypePtr
	TypeObj
	TypeArr
)

const typeBits = 4
const typeMask = uint64(1<<typeBits) - 1

func (t Type) String() string {
	switch t {
	case TypeU32:
		return "u32"
	case TypeU64:
		return "u64"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeBoolFalse, TypeBoolTrue:
		return "bool"
	case TypeMode:
		return "mode"
	case TypeTime:
		return "time"
	case TypeBin:
		return "bin"
	case TypeStr:
		return "str"
	case TypeStrID:
		return "strid"
	case TypePtr:
		return "ptr"
	case TypeObj:
		return "obj"
	case TypeArr:
		return "array"
	default:
		return "invalid"
	}
}

// containerKind distinguishes an object frame from an array frame so
// BeginObject/EndArray-style mismatches raise AssertError, matching
// spec.md §4.1 "Mismatched container begin/end fails with AssertError."
type containerKind uint8

const (
	kindTop containerKind = iota
	kindObj
	kindArr
)

type frame struct {
	// lastID is the id of the last field position considered, whether
	// or not that field was actually written (Skip advances it without
	// writing; it is what present()/putTag number fields against).
	lastID uint32
	// lastWrittenID is the id of the last field actually written to
	// the buffer, the base every new tag's id delta is computed from
	// (so a Skip()'d gap still costs only one delta on the next write,
	// never a hardcoded 1).
	lastWrittenID uint32
	kind          containerKind
}
