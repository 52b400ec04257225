package blockmap

import (
	"bytes"
	"testing"

	"github.com/pgblock/core/pkg/xerr"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := &Map{
		BlockSize: 1 << 20,
		Entries: []Entry{
			{ReferenceID: 1, Offset: 0, Size: 100, Checksum: bytes.Repeat([]byte{0xAB}, 20)},
			{ReferenceID: 1, BundleID: 7, Offset: 100, Size: 50, Checksum: bytes.Repeat([]byte{0xCD}, 20)},
			{ReferenceID: 2, Offset: 0, Size: 75, Checksum: bytes.Repeat([]byte{0xEF}, 20)},
		},
	}
	packed, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(packed, m.BlockSize)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Entries) != len(m.Entries) {
		t.Fatalf("entry count = %d, want %d", len(got.Entries), len(m.Entries))
	}
	for i, e := range got.Entries {
		want := m.Entries[i]
		if e.ReferenceID != want.ReferenceID || e.BundleID != want.BundleID || e.Offset != want.Offset || e.Size != want.Size {
			t.Fatalf("entry %d = %+v, want %+v", i, e, want)
		}
		if !bytes.Equal(e.Checksum, want.Checksum) {
			t.Fatalf("entry %d checksum = %x, want %x", i, e.Checksum, want.Checksum)
		}
	}
}

func TestEncodeDecodeEmptyMap(t *testing.T) {
	m := &Map{BlockSize: 4096}
	packed, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(packed, 4096)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(got.Entries))
	}
}

func TestBlockCount(t *testing.T) {
	cases := []struct {
		size  int64
		block uint32
		want  int
	}{
		{0, 1024, 0},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{2048, 1024, 2},
	}
	for _, c := range cases {
		if got := BlockCount(c.size, c.block); got != c.want {
			t.Fatalf("BlockCount(%d,%d) = %d, want %d", c.size, c.block, got, c.want)
		}
	}
}

func TestValidateCompatibleRejectsMismatch(t *testing.T) {
	prior := &Map{BlockSize: 1024}
	err := ValidateCompatible(prior, 2048)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if err := ValidateCompatible(nil, 2048); err != nil {
		t.Fatalf("nil prior should always be compatible, got %v", err)
	}
	if err := ValidateCompatible(prior, 1024); err != nil {
		t.Fatalf("matching block size should be compatible, got %v", err)
	}
}
