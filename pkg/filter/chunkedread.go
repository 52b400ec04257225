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

package filter

import (
	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

var typeChunkedRead = stringid.MustNew("chunk-read")

// ChunkedRead decodes a stream framed as a sequence of
// varint-length-prefixed chunks terminated by a zero-length chunk, the
// framing the wire protocol uses to carry file content whose length
// isn't known up front. Input bytes are the raw framed stream; output
// bytes are the reassembled, unframed content.
type ChunkedRead struct {
	carry      []byte
	chunkLeft  uint64
	haveLength bool
	done       bool
}

// NewChunkedRead returns a new chunk-framing decoder.
func NewChunkedRead() *ChunkedRead { return &ChunkedRead{} }

func (*ChunkedRead) FilterType() stringid.ID { return typeChunkedRead }

// Done reports whether the zero-length terminator chunk has been seen.
func (f *ChunkedRead) Done() bool { return f.done }

// ProcessInOut decodes as many complete chunks as are available,
// appending their payload bytes to output and retaining any partial
// chunk header or body for the next call.
func (f *ChunkedRead) ProcessInOut(input []byte, output *Buffer) error {
	if f.done {
		return nil
	}
	if input != nil {
		f.carry = append(f.carry, input...)
	}
	for {
		if !f.haveLength {
			n, off, err := readUvarintPublic(f.carry, 0)
			if err == errIncompleteVarint {
				return nil // incomplete header, wait for more input
			}
			if err != nil {
				return err
			}
			f.carry = f.carry[off:]
			f.chunkLeft = n
			f.haveLength = true
			if f.chunkLeft == 0 {
				f.done = true
				return nil
			}
		}
		if uint64(len(f.carry)) == 0 {
			return nil
		}
		take := f.chunkLeft
		if uint64(len(f.carry)) < take {
			take = uint64(len(f.carry))
		}
		n := output.Append(f.carry[:take])
		f.carry = f.carry[n:]
		f.chunkLeft -= uint64(n)
		if uint64(n) < take {
			return nil // output buffer full, resume next call
		}
		if f.chunkLeft == 0 {
			f.haveLength = false
		}
		if len(f.carry) == 0 {
			return nil
		}
	}
}

// InputSame reports whether the last call left bytes in carry because
// the output buffer filled before the current chunk was exhausted —
// the group must drain output and recall rather than advance input.
func (f *ChunkedRead) InputSame() bool {
	return !f.done && f.haveLength && f.chunkLeft > 0 && len(f.carry) > 0
}

var errIncompleteVarint = xerr.New(xerr.KindFormat, "incomplete varint header")

// readUvarintPublic reads a base-128 varint from buf at off, returning
// errIncompleteVarint (a sentinel distinct from the FormatError for an
// unterminated varint) when buf simply doesn't
// yet hold the whole header — the caller treats that as "need more
// input" rather than a malformed stream.
func readUvarintPublic(buf []byte, off int) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := off; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, xerr.New(xerr.KindFormat, "unterminated varint-128 integer")
		}
	}
	return 0, 0, errIncompleteVarint
}
