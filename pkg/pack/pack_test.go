package pack

import (
	"bytes"
	"testing"
	"time"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

// TestRoundTripScalarObject mirrors spec.md §8 scenario 5: id 1 u64=77,
// id 2 bool=false (written anyway), id 3 skipped, id 4 str="sample".
func TestRoundTripScalarObject(t *testing.T) {
	w := NewWriter()
	w.WriteU64(77)
	w.WriteBool(false)
	w.Skip()
	w.WriteStr("sample")
	buf, err := w.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	r := NewReader(buf)
	v1, err := r.ReadU64(0)
	if err != nil || v1 != 77 {
		t.Fatalf("ReadU64 = %v, %v", v1, err)
	}
	v2, err := r.ReadBool(true)
	if err != nil || v2 != false {
		t.Fatalf("ReadBool = %v, %v", v2, err)
	}
	v3, err := r.ReadI32(-1)
	if err != nil || v3 != -1 {
		t.Fatalf("ReadI32 (gap) = %v, %v", v3, err)
	}
	v4, err := r.ReadStr("")
	if err != nil || v4 != "sample" {
		t.Fatalf("ReadStr = %q, %v", v4, err)
	}
	if err := r.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 300, 1 << 20, 1<<63 - 1, ^uint64(0)}
	for _, v := range values {
		buf := appendUvarint(nil, v)
		got, off, err := readUvarint(buf, 0)
		if err != nil {
			t.Fatalf("readUvarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("readUvarint round trip: want %d got %d", v, got)
		}
		if off != len(buf) {
			t.Fatalf("readUvarint left %d trailing bytes", len(buf)-off)
		}
	}
}

func TestVarintUnterminated(t *testing.T) {
	buf := bytes.Repeat([]byte{0x80}, 11)
	_, _, err := readUvarint(buf, 0)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestVarintBufferOverrun(t *testing.T) {
	_, _, err := readUvarint([]byte{0x80, 0x80}, 0)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError on truncated varint, got %v", err)
	}
}

func TestNestedObjectAndArray(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1)
	w.BeginObject()
	w.WriteStr("inner")
	if err := w.EndObject(); err != nil {
		t.Fatalf("EndObject: %v", err)
	}
	w.BeginArray()
	for _, v := range []uint64{10, 20, 30} {
		w.WriteU64(v)
	}
	if err := w.EndArray(); err != nil {
		t.Fatalf("EndArray: %v", err)
	}
	w.WriteU32(2)
	buf, err := w.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	r := NewReader(buf)
	outer, err := r.ReadU32(0)
	if err != nil || outer != 1 {
		t.Fatalf("outer u32: %v %v", outer, err)
	}
	if err := r.BeginObject(); err != nil {
		t.Fatalf("BeginObject: %v", err)
	}
	inner, err := r.ReadStr("")
	if err != nil || inner != "inner" {
		t.Fatalf("inner str: %q %v", inner, err)
	}
	if err := r.EndObject(); err != nil {
		t.Fatalf("EndObject: %v", err)
	}
	if err := r.BeginArray(); err != nil {
		t.Fatalf("BeginArray: %v", err)
	}
	var got []uint64
	for r.Next() {
		v, err := r.ReadU64(0)
		if err != nil {
			t.Fatalf("array element: %v", err)
		}
		got = append(got, v)
	}
	if err := r.EndArray(); err != nil {
		t.Fatalf("EndArray: %v", err)
	}
	if len(got) != 3 || got[0] != 10 || got[1] != 20 || got[2] != 30 {
		t.Fatalf("array round trip = %v", got)
	}
	last, err := r.ReadU32(0)
	if err != nil || last != 2 {
		t.Fatalf("trailing u32: %v %v", last, err)
	}
	if err := r.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestEndSkipsUnreadTrailingFields(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1)
	w.WriteStr("unread")
	w.WriteBin([]byte{1, 2, 3})
	buf, err := w.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}

	r := NewReader(buf)
	if _, err := r.ReadU32(0); err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	// Deliberately do not read the remaining two fields.
	if err := r.End(); err != nil {
		t.Fatalf("End should skip unread trailing fields, got: %v", err)
	}
}

func TestMismatchedContainerEndIsAssertError(t *testing.T) {
	w := NewWriter()
	w.BeginObject()
	err := w.EndArray()
	if xerr.KindOf(err) != xerr.KindAssert {
		t.Fatalf("expected AssertError, got %v", err)
	}
}

func TestFieldTypeMismatchIsFormatError(t *testing.T) {
	w := NewWriter()
	w.WriteStr("x")
	buf, _ := w.End()

	r := NewReader(buf)
	_, err := r.ReadU64(0)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	w := NewWriter()
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.WriteTime(want)
	buf, _ := w.End()

	r := NewReader(buf)
	got, err := r.ReadTime(time.Time{})
	if err != nil || !got.Equal(want) {
		t.Fatalf("ReadTime = %v, %v", got, err)
	}
}

func TestStrIDRoundTrip(t *testing.T) {
	id := stringid.MustNew("backup")
	w := NewWriter()
	w.WriteStrID(id)
	buf, _ := w.End()

	r := NewReader(buf)
	got, err := r.ReadStrID(0)
	if err != nil || got != id {
		t.Fatalf("ReadStrID = %v, %v", got, err)
	}
	if got.Decode() != "backup" {
		t.Fatalf("Decode = %q", got.Decode())
	}
}
