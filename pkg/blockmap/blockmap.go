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

// Package blockmap holds the positional block-location records a
// block-incremental backup produces, and their pack-codec
// serialization.
package blockmap

import (
	"github.com/pgblock/core/pkg/pack"
	"github.com/pgblock/core/pkg/xerr"
)

// ChecksumSize is the maximum number of leading SHA-1 bytes a block
// map entry's checksum retains; callers may truncate further down to
// 5 bytes for small block sizes.
const ChecksumSize = 20

// Entry locates one logical block's bytes within the repository: the
// super-block that holds it (identified by the backup reference it
// belongs to, and optionally a bundle id within that reference), the
// byte offset of that super-block, its framed size, and the content
// checksum used to detect whether a future backup can reuse it.
//
// Entries are positional: the block number is implicit in an Entry's
// index within its enclosing Map.
type Entry struct {
	ReferenceID uint32
	BundleID    uint64 // 0 means "no bundle", encoded as an absent field
	Offset      uint64
	Size        uint64
	Checksum    []byte // leading bytes of the block's SHA-1, at most ChecksumSize, truncated by the producer
}

// Map is the ordered list of block entries for one file, with the
// block size it was produced at (needed to validate that a
// caller-supplied prior map is compatible, per spec).
type Map struct {
	BlockSize uint32
	Entries   []Entry
}

// BlockCount returns how many blocks a file of the given size is
// segmented into at this map's block size.
func BlockCount(fileSize int64, blockSize uint32) int {
	if fileSize <= 0 {
		return 0
	}
	n := fileSize / int64(blockSize)
	if fileSize%int64(blockSize) != 0 {
		n++
	}
	return int(n)
}

// Encode serializes the map as an array of objects, field order
// reference id, bundle id, offset, size, checksum.
func Encode(m *Map) ([]byte, error) {
	w := pack.NewWriter()
	w.BeginArray()
	for _, e := range m.Entries {
		w.BeginObject()
		w.WriteU32(e.ReferenceID)
		if e.BundleID == 0 {
			w.Skip()
		} else {
			w.WriteU64(e.BundleID)
		}
		w.WriteU64(e.Offset)
		w.WriteU64(e.Size)
		w.WriteBin(e.Checksum)
		if err := w.EndObject(); err != nil {
			return nil, err
		}
	}
	if err := w.EndArray(); err != nil {
		return nil, err
	}
	return w.End()
}

// Decode parses a map previously produced by Encode. blockSize is
// attached to the result since it is not itself part of the wire
// format (it travels alongside the map in the manifest).
func Decode(packed []byte, blockSize uint32) (*Map, error) {
	r := pack.NewReader(packed)
	if err := r.BeginArray(); err != nil {
		return nil, err
	}
	m := &Map{BlockSize: blockSize}
	for r.Next() {
		if err := r.BeginObject(); err != nil {
			return nil, err
		}
		var e Entry
		var err error
		if e.ReferenceID, err = r.ReadU32(0); err != nil {
			return nil, err
		}
		if e.BundleID, err = r.ReadU64(0); err != nil {
			return nil, err
		}
		if e.Offset, err = r.ReadU64(0); err != nil {
			return nil, err
		}
		if e.Size, err = r.ReadU64(0); err != nil {
			return nil, err
		}
		if e.Checksum, err = r.ReadBin(nil); err != nil {
			return nil, err
		}
		if err := r.EndObject(); err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, e)
	}
	if err := r.EndArray(); err != nil {
		return nil, err
	}
	if err := r.End(); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateCompatible returns a FormatError if prior was produced at a
// different block size than blockSize — the caller must never mix
// block sizes between a backup and the prior map it deltas against.
func ValidateCompatible(prior *Map, blockSize uint32) error {
	if prior == nil {
		return nil
	}
	if prior.BlockSize != blockSize {
		return xerr.Newf(xerr.KindFormat, "prior block map block size %d does not match current block size %d", prior.BlockSize, blockSize)
	}
	return nil
}
