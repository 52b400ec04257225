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
	"encoding/binary"

	"github.com/pgblock/core/pkg/pack"
	"github.com/pgblock/core/pkg/stringid"
)

var typePageChecksum = stringid.MustNew("page-check")

const (
	pageSize        = 8192
	pageHeaderLSNOff = 0
	pageChecksumOff  = 8 // pd_checksum, uint16, within the page header
)

// PageChecksum verifies PostgreSQL relation page checksums as data
// streams through, unchanged, and accumulates the list of 0-based page
// numbers whose stored checksum did not match the page's contents. A
// page whose LSN is zero (never written through the buffer manager) is
// not checked, matching the server's own page verification rule.
type PageChecksum struct {
	segmentStartPage uint32
	page             uint32
	carry            []byte
	invalid          []uint32
}

// NewPageChecksum returns a checksum-verifying identity filter starting
// at the given absolute page number (segmentStartPage lets a file that
// has been split across 1GB segments report page numbers relative to
// the whole relation).
func NewPageChecksum(segmentStartPage uint32) *PageChecksum {
	return &PageChecksum{segmentStartPage: segmentStartPage}
}

func (*PageChecksum) FilterType() stringid.ID { return typePageChecksum }

// ProcessInOut copies input to output unchanged, checking each complete
// 8KB page as it accumulates. A trailing partial page at end of stream
// (input == nil) is left unchecked, matching pgbackrest's handling of a
// truncated final page.
func (f *PageChecksum) ProcessInOut(input []byte, output *Buffer) error {
	if input == nil {
		return nil
	}
	output.Append(input)
	f.carry = append(f.carry, input...)
	for len(f.carry) >= pageSize {
		f.checkPage(f.carry[:pageSize])
		f.carry = f.carry[pageSize:]
		f.page++
	}
	return nil
}

func (f *PageChecksum) checkPage(page []byte) {
	lsn := binary.LittleEndian.Uint64(page[pageHeaderLSNOff:])
	if lsn == 0 {
		return
	}
	stored := binary.LittleEndian.Uint16(page[pageChecksumOff:])
	if computePageChecksum(page) != stored {
		f.invalid = append(f.invalid, f.segmentStartPage+f.page)
	}
}

// computePageChecksum computes a 16-bit FNV-style page checksum with the
// stored checksum field zeroed: the page's 4-byte words are split into
// 32 contiguous runs, each run is folded into its own lane in a single
// pass, and the lanes are XOR-combined with the page length. It is not
// bit-compatible with PostgreSQL's pg_checksum_page.
func computePageChecksum(page []byte) uint16 {
	var buf [pageSize]byte
	copy(buf[:], page)
	binary.LittleEndian.PutUint16(buf[pageChecksumOff:], 0)

	const (
		nSums   = 32
		fnvPrime = 16777619
	)
	var sums [nSums]uint32
	for i := range sums {
		sums[i] = uint32(0x5a827999) + uint32(i)*uint32(0x6ed9eba1)
	}
	words := len(buf) / 4
	perSum := words / nSums
	idx := 0
	for s := 0; s < nSums; s++ {
		for j := 0; j < perSum; j++ {
			w := binary.LittleEndian.Uint32(buf[idx*4:])
			sums[s] = (sums[s] ^ w) * fnvPrime
			idx++
		}
	}
	var result uint32
	for _, s := range sums {
		result ^= s
	}
	result ^= uint32(len(buf))
	return uint16(result^(result>>16)) ^ 0x00FF
}

// InvalidPages returns the absolute page numbers whose checksum did not
// verify, in ascending order.
func (f *PageChecksum) InvalidPages() []uint32 { return f.invalid }

// Result packs the list of invalid page numbers under field id 1.
func (f *PageChecksum) Result() ([]byte, error) {
	w := pack.NewWriter()
	w.BeginArray()
	for _, p := range f.invalid {
		w.WriteU32(p)
	}
	if err := w.EndArray(); err != nil {
		return nil, err
	}
	return w.End()
}

// PageChecksumResult decodes the invalid-page list from a PageChecksum
// filter's result pack.
func PageChecksumResult(packed []byte) ([]uint32, error) {
	r := pack.NewReader(packed)
	if err := r.BeginArray(); err != nil {
		return nil, err
	}
	var pages []uint32
	for r.Next() {
		v, err := r.ReadU32(0)
		if err != nil {
			return nil, err
		}
		pages = append(pages, v)
	}
	if err := r.EndArray(); err != nil {
		return nil, err
	}
	return pages, r.End()
}
