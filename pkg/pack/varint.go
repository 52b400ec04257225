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

package pack

import "github.com/pgblock/core/pkg/xerr"

// maxVarintBytes is the longest a base-128 varint may be before it is
// considered corrupt: 10 seven-bit groups cover a full uint64 (64/7
// rounds up to 10), the last of them without the continuation bit.
const maxVarintBytes = 10

// appendUvarint encodes v as an unsigned base-128 varint, least
// significant group first, with the continuation bit set on every byte
// but the last. This is the same scheme used for chunked-read part
// framing (spec.md §6 "part framing").
func appendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// appendVarint zig-zag encodes a signed value then varint-encodes it,
// so small negative numbers stay compact.
func appendVarint(buf []byte, v int64) []byte {
	uv := uint64(v) << 1
	if v < 0 {
		uv = ^uv
	}
	return appendUvarint(buf, uv)
}

// readUvarint decodes one varint from buf starting at offset, returning
// the value and the offset just past it.
func readUvarint(buf []byte, off int) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= maxVarintBytes {
			return 0, off, xerr.New(xerr.KindFormat, "unterminated varint-128 integer")
		}
		if off >= len(buf) {
			return 0, off, xerr.New(xerr.KindFormat, "buffer position is beyond buffer size")
		}
		b := buf[off]
		off++
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return v, off, nil
}

func readVarint(buf []byte, off int) (int64, int, error) {
	uv, off, err := readUvarint(buf, off)
	if err != nil {
		return 0, off, err
	}
	v := int64(uv >> 1)
	if uv&1 != 0 {
		v = ^v
	}
	return v, off, nil
}

// AppendUvarint is the exported form of the same base-128 varint
// encoding pack fields use, for callers that frame their own
// length-prefixed records outside of a pack object (super-block part
// framing, chunked-read).
func AppendUvarint(buf []byte, v uint64) []byte { return appendUvarint(buf, v) }

// ReadUvarint is the exported form of readUvarint.
func ReadUvarint(buf []byte, off int) (uint64, int, error) { return readUvarint(buf, off) }
