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

// Package blockdelta turns a block map and an optional destination
// checksum map into a minimal read plan, and iterates the physical
// bytes a plan's reads name back into destination-file writes.
package blockdelta

import (
	"bytes"
	"sort"

	"github.com/pgblock/core/pkg/blockmap"
	"github.com/pgblock/core/pkg/pack"
	"github.com/pgblock/core/pkg/xerr"
)

// SuperBlock is one physical super-block's contribution to a read: the
// logical block numbers it must yield, in ascending order, and the
// destination byte offset each one writes to.
type SuperBlock struct {
	Blocks      []uint32 // logical block numbers wanted from this super-block, ascending
	WriteOffset []int64  // destination file offset for each entry in Blocks, same order
}

// Read is one physical fetch: a contiguous run of bytes at
// (ReferenceID, BundleID, Offset, Size) containing one or more
// super-blocks to extract from.
type Read struct {
	ReferenceID uint32
	BundleID    uint64
	Offset      uint64
	Size        uint64
	SuperBlocks []SuperBlock
}

// Plan is the ordered list of reads needed to bring a destination file
// up to date with a block map.
type Plan struct {
	BlockSize uint32
	Reads     []Read
}

// needed is an internal record of one block this plan must fetch.
type needed struct {
	blockNo uint32
	entry   blockmap.Entry
}

// BuildPlan walks m once, comparing each entry's checksum to deltaMap
// (the destination's current per-block checksums, indexed the same
// way as m; nil or shorter than m means "nothing present yet"), and
// groups every block whose checksum differs (or is absent at the
// destination) into the fewest possible reads.
func BuildPlan(m *blockmap.Map, deltaMap [][]byte) *Plan {
	var want []needed
	for i, e := range m.Entries {
		if i < len(deltaMap) && bytes.Equal(deltaMap[i], e.Checksum) {
			continue
		}
		want = append(want, needed{blockNo: uint32(i), entry: e})
	}

	// Group by reference id, descending (the newest reference tends to
	// hold the most of what we want).
	byRef := make(map[uint32][]needed)
	var refIDs []uint32
	for _, n := range want {
		if _, ok := byRef[n.entry.ReferenceID]; !ok {
			refIDs = append(refIDs, n.entry.ReferenceID)
		}
		byRef[n.entry.ReferenceID] = append(byRef[n.entry.ReferenceID], n)
	}
	sort.Slice(refIDs, func(i, j int) bool { return refIDs[i] > refIDs[j] })

	plan := &Plan{BlockSize: m.BlockSize}
	for _, ref := range refIDs {
		group := byRef[ref]
		sort.Slice(group, func(i, j int) bool { return group[i].entry.Offset < group[j].entry.Offset })
		plan.Reads = append(plan.Reads, coalesce(ref, group, m.BlockSize)...)
	}
	return plan
}

// coalesce merges adjacent physical ranges sharing a reference and
// bundle into one Read, and merges entries sharing an offset (the same
// physical super-block, different logical blocks) into one SuperBlock.
// group is sorted by entry.Offset ascending on entry.
func coalesce(referenceID uint32, group []needed, blockSize uint32) []Read {
	var reads []Read
	var cur *Read
	var curOffset uint64 // physical offset of the super-block curSB describes
	var curSB *SuperBlock

	closeSuperBlock := func() {
		if curSB != nil {
			cur.SuperBlocks = append(cur.SuperBlocks, *curSB)
			curSB = nil
		}
	}
	closeRead := func() {
		closeSuperBlock()
		if cur != nil {
			reads = append(reads, *cur)
			cur = nil
		}
	}

	for _, n := range group {
		e := n.entry
		writeOffset := int64(n.blockNo) * int64(blockSize)

		switch {
		case cur != nil && cur.BundleID == e.BundleID && curOffset == e.Offset:
			// Same physical super-block as the previous entry.
		case cur != nil && cur.BundleID == e.BundleID && cur.Offset+cur.Size == e.Offset:
			// Touches the end of the current read: extend it with a new
			// super-block.
			closeSuperBlock()
			cur.Size += e.Size
			curOffset = e.Offset
			curSB = &SuperBlock{}
		default:
			// Starts a new read entirely.
			closeRead()
			cur = &Read{ReferenceID: referenceID, BundleID: e.BundleID, Offset: e.Offset, Size: e.Size}
			curOffset = e.Offset
			curSB = &SuperBlock{}
		}

		curSB.Blocks = append(curSB.Blocks, n.blockNo)
		curSB.WriteOffset = append(curSB.WriteOffset, writeOffset)
	}
	closeRead()
	return reads
}

// Write is one block's worth of destination bytes to apply.
type Write struct {
	Offset int64
	Bytes  []byte
}

// Iterator consumes a decoded (decrypt→decompress) physical stream for
// one Read's super-blocks, in plan order, and yields the writes to
// apply. It is restartable per Read but must not be reused across
// reads.
type Iterator struct {
	superBlocks []SuperBlock
	sbIndex     int
	blockIndex  int
	stream      []byte
	off         int
}

// NewIterator returns an iterator over one Read's super-blocks, to be
// fed the Read's fully decoded physical bytes via Feed.
func NewIterator(read Read) *Iterator {
	return &Iterator{superBlocks: read.SuperBlocks}
}

// Feed supplies the next chunk of decoded physical bytes (decrypted
// and decompressed, still part-framed).
func (it *Iterator) Feed(b []byte) { it.stream = append(it.stream, b...) }

// Next decodes the next part-framed block from the fed stream and
// returns the write to apply for it. It returns ok == false with a nil
// error both when every super-block in this read has been fully consumed
// and when the next part's payload has not been fully fed yet (Feed more
// bytes and call again). A part header that cannot be read from the fed
// bytes is returned as a FormatError.
func (it *Iterator) Next() (w Write, ok bool, err error) {
	for it.sbIndex < len(it.superBlocks) {
		sb := it.superBlocks[it.sbIndex]
		if it.blockIndex >= len(sb.Blocks) {
			// Skip any remaining parts in this physical super-block that
			// this plan didn't ask for (present but unwanted blocks),
			// up to and including its zero-length terminator.
			if err := it.skipToTerminator(); err != nil {
				return Write{}, false, err
			}
			it.sbIndex++
			it.blockIndex = 0
			continue
		}
		n, next, err := pack.ReadUvarint(it.stream, it.off)
		if err != nil {
			return Write{}, false, xerr.Wrap(xerr.KindFormat, err, "truncated super-block part header")
		}
		if next+int(n) > len(it.stream) {
			return Write{}, false, nil // wait for more bytes to be fed
		}
		payload := it.stream[next : next+int(n)]
		it.off = next + int(n)
		w = Write{Offset: sb.WriteOffset[it.blockIndex], Bytes: payload}
		it.blockIndex++
		return w, true, nil
	}
	return Write{}, false, nil
}

func (it *Iterator) skipToTerminator() error {
	for {
		n, next, err := pack.ReadUvarint(it.stream, it.off)
		if err != nil {
			return xerr.Wrap(xerr.KindFormat, err, "truncated super-block part header")
		}
		it.off = next + int(n)
		if n == 0 {
			return nil
		}
	}
}

// Done reports whether every super-block in this read has been fully
// consumed.
func (it *Iterator) Done() bool { return it.sbIndex >= len(it.superBlocks) }
