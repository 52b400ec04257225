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
	"math"
	"time"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

const infiniteFieldID = math.MaxUint32

// pending caches the next undecoded tag so a Read call can decide
// whether the field at the expected id is present (and consume it) or
// missing (a gap, return the default without consuming anything).
type pending struct {
	valid      bool
	fieldID    uint32
	typ        Type
	payloadOff int // buffer offset where the payload begins
}

// Reader walks a pack field by field.
type Reader struct {
	buf   []byte
	off   int
	stack []frame
	pend  pending
}

// NewReader wraps buf for reading. buf must have been produced by
// Writer.End (or be a nested object/array's region read via BeginObject
// / BeginArray, which operate on the same Reader in place).
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, stack: []frame{{kind: kindTop}}}
}

func (r *Reader) top() *frame { return &r.stack[len(r.stack)-1] }

// fetch ensures r.pend describes the next tag without consuming it.
func (r *Reader) fetch() error {
	if r.pend.valid {
		return nil
	}
	if r.off >= len(r.buf) {
		return xerr.New(xerr.KindFormat, "buffer position is beyond buffer size")
	}
	if r.buf[r.off] == 0 {
		r.pend = pending{valid: true, fieldID: infiniteFieldID}
		return nil
	}
	tag, next, err := readUvarint(r.buf, r.off)
	if err != nil {
		return err
	}
	typ := Type(tag & typeMask)
	delta := tag >> typeBits
	if delta == 0 {
		return xerr.New(xerr.KindFormat, "pack: zero id delta outside terminator")
	}
	r.pend = pending{
		valid:      true,
		fieldID:    r.top().lastID + uint32(delta),
		typ:        typ,
		payloadOff: next,
	}
	return nil
}

// present reports whether the field at the current expected id was
// actually written (vs. a gap/default), and if so consumes its tag.
func (r *Reader) present(want Type) (bool, error) {
	if err := r.fetch(); err != nil {
		return false, err
	}
	expected := r.top().lastID + 1
	if r.pend.fieldID != expected {
		// Gap: this field was never written. Advance our own counter
		// so the NEXT read's expected id moves toward pend.fieldID,
		// but leave pend (and the buffer) untouched.
		r.top().lastID++
		return false, nil
	}
	if r.pend.typ != want {
		return false, xerr.Newf(xerr.KindFormat, "pack: expected field type %s but found %s", want, r.pend.typ)
	}
	r.top().lastID++
	r.off = r.pend.payloadOff
	r.pend = pending{}
	return true, nil
}

// ReadU32 reads a uint32 field, or def if the field is absent.
func (r *Reader) ReadU32(def uint32) (uint32, error) {
	ok, err := r.present(TypeU32)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readUvarint(r.buf, r.off)
	r.off = off
	return uint32(v), err
}

// ReadU64 reads a uint64 field, or def if the field is absent.
func (r *Reader) ReadU64(def uint64) (uint64, error) {
	ok, err := r.present(TypeU64)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readUvarint(r.buf, r.off)
	r.off = off
	return v, err
}

// ReadI32 reads an int32 field, or def if the field is absent.
func (r *Reader) ReadI32(def int32) (int32, error) {
	ok, err := r.present(TypeI32)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readVarint(r.buf, r.off)
	r.off = off
	return int32(v), err
}

// ReadI64 reads an int64 field, or def if the field is absent.
func (r *Reader) ReadI64(def int64) (int64, error) {
	ok, err := r.present(TypeI64)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readVarint(r.buf, r.off)
	r.off = off
	return v, err
}

// ReadBool reads a boolean field, or def if the field is absent. Unlike
// the other scalar types the value is carried by the tag itself, so
// both TypeBoolTrue and TypeBoolFalse count as "present".
func (r *Reader) ReadBool(def bool) (bool, error) {
	if err := r.fetch(); err != nil {
		return def, err
	}
	expected := r.top().lastID + 1
	if r.pend.fieldID != expected {
		r.top().lastID++
		return def, nil
	}
	var v bool
	switch r.pend.typ {
	case TypeBoolTrue:
		v = true
	case TypeBoolFalse:
		v = false
	default:
		return def, xerr.Newf(xerr.KindFormat, "pack: expected bool field but found %s", r.pend.typ)
	}
	r.top().lastID++
	r.off = r.pend.payloadOff
	r.pend = pending{}
	return v, nil
}

// ReadMode reads a POSIX mode field, or def if absent.
func (r *Reader) ReadMode(def uint32) (uint32, error) {
	ok, err := r.present(TypeMode)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readUvarint(r.buf, r.off)
	r.off = off
	return uint32(v), err
}

// ReadTime reads a timestamp field, or def if absent.
func (r *Reader) ReadTime(def time.Time) (time.Time, error) {
	ok, err := r.present(TypeTime)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readVarint(r.buf, r.off)
	r.off = off
	return time.Unix(v, 0).UTC(), err
}

// ReadBin reads a binary field, or def if absent.
func (r *Reader) ReadBin(def []byte) ([]byte, error) {
	ok, err := r.present(TypeBin)
	if err != nil || !ok {
		return def, err
	}
	return r.readLenPrefixed()
}

// ReadStr reads a string field, or def if absent.
func (r *Reader) ReadStr(def string) (string, error) {
	ok, err := r.present(TypeStr)
	if err != nil || !ok {
		return def, err
	}
	b, err := r.readLenPrefixed()
	return string(b), err
}

// ReadStrID reads a packed string id field, or def if absent.
func (r *Reader) ReadStrID(def stringid.ID) (stringid.ID, error) {
	ok, err := r.present(TypeStrID)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readUvarint(r.buf, r.off)
	r.off = off
	return stringid.ID(v), err
}

// ReadPtr reads a local-only opaque handle field, or def if absent.
func (r *Reader) ReadPtr(def uint64) (uint64, error) {
	ok, err := r.present(TypePtr)
	if err != nil || !ok {
		return def, err
	}
	v, off, err := readUvarint(r.buf, r.off)
	r.off = off
	return v, err
}

func (r *Reader) readLenPrefixed() ([]byte, error) {
	n, off, err := readUvarint(r.buf, r.off)
	if err != nil {
		return nil, err
	}
	end := off + int(n)
	if end > len(r.buf) {
		return nil, xerr.New(xerr.KindFormat, "buffer position is beyond buffer size")
	}
	r.off = end
	return r.buf[off:end], nil
}

// BeginObject enters a nested object field, failing with FormatError if
// the next field is not an object (a NULL/absent nested object is not
// representable — callers must arrange a non-NULL default upstream).
func (r *Reader) BeginObject() error {
	ok, err := r.present(TypeObj)
	if err != nil {
		return err
	}
	if !ok {
		return xerr.New(xerr.KindFormat, "pack: expected object field but found a gap")
	}
	r.stack = append(r.stack, frame{kind: kindObj})
	return nil
}

// BeginArray enters a nested array field.
func (r *Reader) BeginArray() error {
	ok, err := r.present(TypeArr)
	if err != nil {
		return err
	}
	if !ok {
		return xerr.New(xerr.KindFormat, "pack: expected array field but found a gap")
	}
	r.stack = append(r.stack, frame{kind: kindArr})
	return nil
}

// Next reports whether another array element follows, for use as the
// condition of a `for r.Next() { ... }` loop inside BeginArray/EndArray.
func (r *Reader) Next() bool {
	if err := r.fetch(); err != nil {
		return false
	}
	return r.pend.fieldID != infiniteFieldID
}

// EndObject closes the container opened by the matching BeginObject,
// discarding any trailing unread fields.
func (r *Reader) EndObject() error { return r.endContainer(kindObj) }

// EndArray closes the container opened by the matching BeginArray.
func (r *Reader) EndArray() error { return r.endContainer(kindArr) }

func (r *Reader) endContainer(kind containerKind) error {
	if len(r.stack) < 2 || r.top().kind != kind {
		return xerr.New(xerr.KindAssert, "pack: mismatched container begin/end")
	}
	if err := r.skipToTerminator(); err != nil {
		return err
	}
	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// End finalizes reading of the top-level pack, discarding any trailing
// unread fields.
func (r *Reader) End() error {
	if len(r.stack) != 1 || r.top().kind != kindTop {
		return xerr.New(xerr.KindAssert, "pack: End called with open containers")
	}
	return r.skipToTerminator()
}

// skipToTerminator discards fields up to and including the terminator
// of the current container, recursing into any nested containers along
// the way.
func (r *Reader) skipToTerminator() error {
	for {
		if err := r.fetch(); err != nil {
			return err
		}
		if r.pend.fieldID == infiniteFieldID {
			r.off++ // consume the 0x00 terminator byte
			r.pend = pending{}
			return nil
		}
		typ := r.pend.typ
		r.top().lastID = r.pend.fieldID
		r.off = r.pend.payloadOff
		r.pend = pending{}
		if err := r.skipValue(typ); err != nil {
			return err
		}
	}
}

// skipValue discards one field's payload, already past its tag.
func (r *Reader) skipValue(typ Type) error {
	switch typ {
	case TypeU32, TypeU64, TypeMode, TypeStrID, TypePtr:
		_, off, err := readUvarint(r.buf, r.off)
		r.off = off
		return err
	case TypeI32, TypeI64, TypeTime:
		_, off, err := readVarint(r.buf, r.off)
		r.off = off
		return err
	case TypeBoolTrue, TypeBoolFalse:
		return nil
	case TypeBin, TypeStr:
		_, err := r.readLenPrefixed()
		return err
	case TypeObj:
		r.stack = append(r.stack, frame{kind: kindObj})
		if err := r.skipToTerminator(); err != nil {
			return err
		}
		r.stack = r.stack[:len(r.stack)-1]
		return nil
	case TypeArr:
		r.stack = append(r.stack, frame{kind: kindArr})
		if err := r.skipToTerminator(); err != nil {
			return err
		}
		r.stack = r.stack[:len(r.stack)-1]
		return nil
	default:
		return xerr.Newf(xerr.KindFormat, "pack: cannot skip unknown field type %d", typ)
	}
}
