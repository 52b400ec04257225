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

import (
	"time"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

// Writer builds a pack one field at a time. The zero value is not
// usable; construct with NewWriter.
type Writer struct {
	buf   []byte
	stack []frame
}

// NewWriter returns a Writer ready to accept top-level fields.
func NewWriter() *Writer {
	return &Writer{stack: []frame{{kind: kindTop}}}
}

func (w *Writer) top() *frame { return &w.stack[len(w.stack)-1] }

// Skip advances the field id counter without writing anything,
// representing an explicit NULL/default omission for the next field.
func (w *Writer) Skip() {
	w.top().lastID++
}

// SkipN skips n consecutive field ids.
func (w *Writer) SkipN(n int) {
	w.top().lastID += uint32(n)
}

// putTag advances the current frame's field id by one (auto-increment;
// callers use Skip to open a gap) and appends the combined
// (idDelta<<4 | type) tag varint, where idDelta is measured from the
// last field actually written in this frame (not merely the last
// position considered), so a preceding Skip()/SkipN() gap is encoded
// in the delta rather than silently absorbed.
func (w *Writer) putTag(typ Type) {
	f := w.top()
	f.lastID++
	delta := uint64(f.lastID - f.lastWrittenID)
	tag := (delta << typeBits) | uint64(typ)
	w.buf = appendUvarint(w.buf, tag)
	f.lastWrittenID = f.lastID
}

// WriteU32 writes an unsigned 32-bit field.
func (w *Writer) WriteU32(v uint32) {
	w.putTag(TypeU32)
	w.buf = appendUvarint(w.buf, uint64(v))
}

// WriteU64 writes an unsigned 64-bit field.
func (w *Writer) WriteU64(v uint64) {
	w.putTag(TypeU64)
	w.buf = appendUvarint(w.buf, v)
}

// WriteI32 writes a signed 32-bit field.
func (w *Writer) WriteI32(v int32) {
	w.putTag(TypeI32)
	w.buf = appendVarint(w.buf, int64(v))
}

// WriteI64 writes a signed 64-bit field.
func (w *Writer) WriteI64(v int64) {
	w.putTag(TypeI64)
	w.buf = appendVarint(w.buf, v)
}

// WriteBool writes a boolean field. The value is folded into the type
// tag itself so a true/false field never needs a payload byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.putTag(TypeBoolTrue)
	} else {
		w.putTag(TypeBoolFalse)
	}
}

// WriteMode writes a POSIX file permission field.
func (w *Writer) WriteMode(v uint32) {
	w.putTag(TypeMode)
	w.buf = appendUvarint(w.buf, uint64(v))
}

// WriteTime writes a timestamp as signed seconds since epoch.
func (w *Writer) WriteTime(t time.Time) {
	w.putTag(TypeTime)
	w.buf = appendVarint(w.buf, t.Unix())
}

// WriteBin writes a length-prefixed binary blob.
func (w *Writer) WriteBin(b []byte) {
	w.putTag(TypeBin)
	w.buf = appendUvarint(w.buf, uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteStr writes a length-prefixed string.
func (w *Writer) WriteStr(s string) {
	w.putTag(TypeStr)
	w.buf = appendUvarint(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteStrID writes a packed string id (see pkg/stringid).
func (w *Writer) WriteStrID(id stringid.ID) {
	w.putTag(TypeStrID)
	w.buf = appendUvarint(w.buf, uint64(id))
}

// WritePtr writes a local-only opaque handle. Pointers only round-trip
// within the same process and must never be written across a protocol
// session boundary.
func (w *Writer) WritePtr(p uint64) {
	w.putTag(TypePtr)
	w.buf = appendUvarint(w.buf, p)
}

// BeginObject opens a nested object field; the id counter resets to 1
// inside it until the matching EndObject.
func (w *Writer) BeginObject() {
	w.putTag(TypeObj)
	w.stack = append(w.stack, frame{kind: kindObj})
}

// EndObject closes the container opened by the matching BeginObject,
// writing the terminator byte and restoring the outer id counter.
func (w *Writer) EndObject() error {
	return w.endContainer(kindObj)
}

// BeginArray opens a nested array field.
func (w *Writer) BeginArray() {
	w.putTag(TypeArr)
	w.stack = append(w.stack, frame{kind: kindArr})
}

// EndArray closes the container opened by the matching BeginArray.
func (w *Writer) EndArray() error {
	return w.endContainer(kindArr)
}

func (w *Writer) endContainer(kind containerKind) error {
	if len(w.stack) < 2 || w.top().kind != kind {
		return xerr.New(xerr.KindAssert, "pack: mismatched container begin/end")
	}
	w.buf = append(w.buf, 0)
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}

// End finalizes the top-level pack and returns its encoded bytes. The
// Writer must not be used afterward.
func (w *Writer) End() ([]byte, error) {
	if len(w.stack) != 1 || w.top().kind != kindTop {
		return nil, xerr.New(xerr.KindAssert, "pack: End called with open containers")
	}
	w.buf = append(w.buf, 0)
	return w.buf, nil
}
