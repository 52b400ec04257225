package blockincr

import (
	"bytes"
	"testing"

	"github.com/pgblock/core/pkg/blockmap"
	"github.com/pgblock/core/pkg/filter"
)

func runToCompletion(t *testing.T, f *Filter, data []byte) (streamOut []byte, m *blockmap.Map) {
	t.Helper()
	out := filter.NewBuffer(1 << 20)
	if err := f.ProcessInOut(data, out); err != nil {
		t.Fatalf("ProcessInOut(data): %v", err)
	}
	for !f.Done() {
		if err := f.ProcessInOut(nil, out); err != nil {
			t.Fatalf("ProcessInOut(flush): %v", err)
		}
	}
	return out.Bytes(), f.Map()
}

func TestFullBackupEmitsOneEntryPerBlock(t *testing.T) {
	const blockSize = 16
	f, err := New(blockSize, 20, 1<<20, 1, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := bytes.Repeat([]byte{0x41}, blockSize*3+5) // 3 full blocks + 1 short block
	stream, m := runToCompletion(t, f, data)
	if len(m.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(m.Entries))
	}
	for i, e := range m.Entries {
		if e.ReferenceID != 1 {
			t.Fatalf("entry %d reference id = %d, want 1", i, e.ReferenceID)
		}
		if len(e.Checksum) != 20 {
			t.Fatalf("entry %d checksum len = %d, want 20", i, len(e.Checksum))
		}
	}
	if len(stream) == 0 {
		t.Fatalf("expected non-empty framed super-block output")
	}
}

func TestZeroLengthInputEmitsEmptyMap(t *testing.T) {
	f, err := New(16, 20, 1<<20, 1, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, m := runToCompletion(t, f, nil)
	if len(m.Entries) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(m.Entries))
	}
}

func TestUnchangedBlocksReferencePriorEntriesWithoutNewBytes(t *testing.T) {
	const blockSize = 8
	data := bytes.Repeat([]byte{0x01}, blockSize*4)

	f1, err := New(blockSize, 20, 1<<20, 1, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, priorMap := runToCompletion(t, f1, data)

	f2, err := New(blockSize, 20, 1<<20, 2, priorMap, nil)
	if err != nil {
		t.Fatalf("New with prior: %v", err)
	}
	stream2, newMap := runToCompletion(t, f2, data)

	if len(newMap.Entries) != len(priorMap.Entries) {
		t.Fatalf("entry count changed: %d vs %d", len(newMap.Entries), len(priorMap.Entries))
	}
	for i, e := range newMap.Entries {
		if e.ReferenceID != priorMap.Entries[i].ReferenceID {
			t.Fatalf("entry %d: expected unchanged block to keep referencing reference id %d, got %d", i, priorMap.Entries[i].ReferenceID, e.ReferenceID)
		}
		if e.Offset != priorMap.Entries[i].Offset {
			t.Fatalf("entry %d: expected unchanged block to keep prior offset %d, got %d", i, priorMap.Entries[i].Offset, e.Offset)
		}
	}
	packed, err := blockmap.Encode(newMap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(stream2, packed) {
		t.Fatalf("expected only the block map and no new super-block bytes for an all-unchanged file, got %d bytes (map is %d)", len(stream2), len(packed))
	}
}

func TestChangedBlockGetsNewReferenceID(t *testing.T) {
	const blockSize = 8
	original := bytes.Repeat([]byte{0x01}, blockSize*2)

	f1, err := New(blockSize, 20, 1<<20, 1, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, priorMap := runToCompletion(t, f1, original)

	modified := append([]byte{}, original...)
	modified[0] = 0xFF // change the first block only

	f2, err := New(blockSize, 20, 1<<20, 2, priorMap, nil)
	if err != nil {
		t.Fatalf("New with prior: %v", err)
	}
	stream2, newMap := runToCompletion(t, f2, modified)

	if newMap.Entries[0].ReferenceID != 2 {
		t.Fatalf("changed block should reference new backup id 2, got %d", newMap.Entries[0].ReferenceID)
	}
	if newMap.Entries[1].ReferenceID != 1 {
		t.Fatalf("unchanged block should still reference prior backup id 1, got %d", newMap.Entries[1].ReferenceID)
	}
	packed, err := blockmap.Encode(newMap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(stream2) <= len(packed) {
		t.Fatalf("expected new super-block bytes for the changed block ahead of the %d-byte map, got %d bytes in all", len(packed), len(stream2))
	}
}

func TestRejectsMismatchedPriorBlockSize(t *testing.T) {
	prior := &blockmap.Map{BlockSize: 16}
	_, err := New(32, 20, 1<<20, 1, prior, nil)
	if err == nil {
		t.Fatalf("expected error for mismatched prior block size")
	}
}

func TestRejectsOutOfRangeChecksumSize(t *testing.T) {
	if _, err := New(16, 4, 1<<20, 1, nil, nil); err == nil {
		t.Fatalf("expected error for checksum size below 5")
	}
	if _, err := New(16, 21, 1<<20, 1, nil, nil); err == nil {
		t.Fatalf("expected error for checksum size above 20")
	}
}
