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

// Package blockincr implements the block-incremental filter: it
// segments a stream into fixed-size blocks, compares each block's
// checksum against a prior backup's block map, and re-stores only the
// blocks that changed, batched into super-blocks for fewer repository
// objects. It is the largest and most subtle filter in the set, so it
// lives in its own package even though it implements pkg/filter's
// Filter contract like any other.
package blockincr

import (
	"crypto/sha1"

	"github.com/pgblock/core/pkg/blockmap"
	"github.com/pgblock/core/pkg/filter"
	"github.com/pgblock/core/pkg/filter/group"
	"github.com/pgblock/core/pkg/pack"
	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

var typeBlockIncr = stringid.MustNew("block-inc")

// SuperBlockFilters builds the chained compression/encryption filters
// a super-block's bytes are wrapped through before being framed and
// written. Callers supply one that matches their repository's
// configured codec and cipher; a nil-returning builder means store
// super-blocks unwrapped.
type SuperBlockFilters func() []filter.Filter

// Filter is the block-incremental streaming filter. Construct with New
// and drive it like any filter.Transformer; it always declares a
// Resulter result of the final map's byte size.
type Filter struct {
	blockSize       uint32
	checksumSize    int
	superBlockSize  uint32
	referenceID     uint32
	priorMap        *blockmap.Map
	wrapFilters     SuperBlockFilters

	blockNo        uint32
	blockNoLast    uint32
	blockOffset    uint64
	blockBuf       []byte
	superBuf       []byte            // accumulates framed parts of the open super-block
	superBlocks    []uint32          // block numbers contained in the open super-block, in order
	blockChecksums map[uint32][]byte // per-block checksum, for blocks currently queued in superBuf
	outMap         blockmap.Map
	mapBytes       []byte
	mapSize        uint64
	finished       bool
}

// New returns a block-incremental filter. referenceID is the backup
// reference this invocation's newly-stored super-blocks will be
// attributed to; priorMap (nil for a full/first backup) must have been
// produced at the same blockSize.
func New(blockSize uint32, checksumSize int, superBlockSize uint32, referenceID uint32, priorMap *blockmap.Map, wrapFilters SuperBlockFilters) (*Filter, error) {
	if err := blockmap.ValidateCompatible(priorMap, blockSize); err != nil {
		return nil, err
	}
	if checksumSize < 5 || checksumSize > blockmap.ChecksumSize {
		return nil, xerr.Newf(xerr.KindAssert, "checksum size %d out of range [5,%d]", checksumSize, blockmap.ChecksumSize)
	}
	return &Filter{
		blockSize:      blockSize,
		checksumSize:   checksumSize,
		superBlockSize: superBlockSize,
		referenceID:    referenceID,
		priorMap:       priorMap,
		wrapFilters:    wrapFilters,
		outMap:         blockmap.Map{BlockSize: blockSize},
	}, nil
}

func (*Filter) FilterType() stringid.ID { return typeBlockIncr }

// Done reports whether the final block map has been fully emitted.
func (f *Filter) Done() bool { return f.finished && len(f.mapBytes) == 0 }

// InputSame reports whether a completed block map remains to be
// drained into the caller's output buffer.
func (f *Filter) InputSame() bool { return f.finished && len(f.mapBytes) > 0 }

// ProcessInOut accumulates input into blocks, deciding per block
// whether it changed and routing changed blocks into super-blocks.
// input == nil signals end of stream: any open block and super-block
// are closed and the final map is serialized to output.
func (f *Filter) ProcessInOut(input []byte, output *filter.Buffer) error {
	if f.finished {
		n := output.Append(f.mapBytes)
		f.mapBytes = f.mapBytes[n:]
		return nil
	}
	if input != nil {
		f.blockBuf = append(f.blockBuf, input...)
		for uint64(len(f.blockBuf)) >= uint64(f.blockSize) {
			if err := f.closeBlock(f.blockBuf[:f.blockSize], output); err != nil {
				return err
			}
			f.blockBuf = f.blockBuf[f.blockSize:]
		}
		return nil
	}
	// Flush: a short final block, if any, still counts.
	if len(f.blockBuf) > 0 {
		if err := f.closeBlock(f.blockBuf, output); err != nil {
			return err
		}
		f.blockBuf = nil
	}
	if err := f.closeSuperBlock(output); err != nil {
		return err
	}
	packed, err := blockmap.Encode(&f.outMap)
	if err != nil {
		return err
	}
	f.mapSize = uint64(len(packed))
	f.mapBytes = packed
	f.finished = true
	n := output.Append(f.mapBytes)
	f.mapBytes = f.mapBytes[n:]
	return nil
}

// closeBlock handles one complete (or short-final) block: checksum it,
// compare to the prior map, and either reference the unchanged prior
// entry or queue it for storage in the open super-block.
func (f *Filter) closeBlock(block []byte, output *filter.Buffer) error {
	sum := sha1.Sum(block)
	checksum := sum[:f.checksumSize]

	if prior := f.priorEntry(); prior != nil && bytesEqual(prior.Checksum, checksum) {
		if err := f.closeSuperBlock(output); err != nil {
			return err
		}
		f.outMap.Entries = append(f.outMap.Entries, *prior)
		f.blockNo++
		return nil
	}

	f.superBuf = appendFramedPart(f.superBuf, block)
	f.superBlocks = append(f.superBlocks, f.blockNo)
	if f.blockChecksums == nil {
		f.blockChecksums = make(map[uint32][]byte)
	}
	f.blockChecksums[f.blockNo] = append([]byte{}, checksum...)
	f.blockNoLast = f.blockNo
	f.blockNo++
	if uint32(len(f.superBuf)) >= f.superBlockSize {
		return f.closeSuperBlock(output)
	}
	return nil
}

func (f *Filter) priorEntry() *blockmap.Entry {
	if f.priorMap == nil || int(f.blockNo) >= len(f.priorMap.Entries) {
		return nil
	}
	return &f.priorMap.Entries[f.blockNo]
}

// closeSuperBlock appends a zero-length terminator part to whatever
// framed changed-block bytes have accumulated, wraps the terminated
// result through the configured compression/encryption filters, writes
// it to output, and records a map entry for every block it contains.
func (f *Filter) closeSuperBlock(output *filter.Buffer) error {
	if len(f.superBuf) == 0 {
		return nil
	}
	terminated := append(append([]byte{}, f.superBuf...), 0x00) // zero-length terminator part
	wrapped, err := f.wrap(terminated)
	if err != nil {
		return err
	}
	size := uint64(len(wrapped))
	output.Append(wrapped)

	for _, blockNo := range f.superBlocks {
		f.outMap.Entries = append(f.outMap.Entries, blockmap.Entry{
			ReferenceID: f.referenceID,
			Offset:      f.blockOffset,
			Size:        size,
			Checksum:    f.blockChecksums[blockNo],
		})
		delete(f.blockChecksums, blockNo)
	}

	f.blockOffset += size
	f.superBuf = nil
	f.superBlocks = nil
	return nil
}

// wrap chains the configured compression/encryption filters over a
// super-block's raw changed-block bytes using a throwaway group, since
// those filters share the same push-based contract as the main stream.
func (f *Filter) wrap(raw []byte) ([]byte, error) {
	if f.wrapFilters == nil {
		return raw, nil
	}
	filters := f.wrapFilters()
	if len(filters) == 0 {
		return raw, nil
	}
	g := group.New()
	for _, fl := range filters {
		g.Add(fl)
	}
	g.Open()
	out := filter.NewBuffer(len(raw)*2 + 4096)
	if err := g.Process(raw, out); err != nil {
		return nil, err
	}
	for !g.Done() {
		if err := g.Process(nil, out); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// Result packs the total emitted map size under field id 1 — the sole
// result this filter reports.
func (f *Filter) Result() ([]byte, error) {
	w := pack.NewWriter()
	w.WriteU64(f.mapSize)
	return w.End()
}

// Map returns the block map built by this invocation. Only valid once
// Done reports true.
func (f *Filter) Map() *blockmap.Map { return &f.outMap }

// appendFramedPart appends one super-block part: a varint length
// followed by the block's payload bytes. Parts appear in ascending
// block-number order, matching the order their block-map entries are
// appended in closeSuperBlock, so a reader pairs parts with entries
// positionally rather than needing an explicit block number per part.
func appendFramedPart(buf []byte, part []byte) []byte {
	buf = pack.AppendUvarint(buf, uint64(len(part)))
	return append(buf, part...)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
