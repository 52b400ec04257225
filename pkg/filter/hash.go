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
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/pgblock/core/pkg/pack"
	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

var (
	typeHashSHA1   = stringid.MustNew("hash-sha1")
	typeHashSHA256 = stringid.MustNew("hash-256")
)

// Hash digests bytes as they pass through, unchanged, and reports the
// final digest as its result.
type Hash struct {
	typ stringid.ID
	h   hash.Hash
}

// NewHashSHA1 returns a digesting identity filter using SHA-1, the
// algorithm repository block maps key on.
func NewHashSHA1() *Hash {
	return &Hash{typ: typeHashSHA1, h: sha1.New()}
}

// NewHashSHA256 returns a digesting identity filter using SHA-256, used
// for the manifest-level whole-file checksum.
func NewHashSHA256() *Hash {
	return &Hash{typ: typeHashSHA256, h: sha256.New()}
}

func (f *Hash) FilterType() stringid.ID { return f.typ }

// ProcessInOut copies input to output unchanged, feeding it to the
// digest as it goes.
func (f *Hash) ProcessInOut(input []byte, output *Buffer) error {
	if input == nil {
		return nil
	}
	n := output.Append(input)
	if _, err := f.h.Write(input[:n]); err != nil {
		return xerr.Wrap(xerr.KindAssert, err, "hash write never fails")
	}
	return nil
}

// Sum returns the raw digest bytes computed so far.
func (f *Hash) Sum() []byte { return f.h.Sum(nil) }

// Result packs the digest under field id 1.
func (f *Hash) Result() ([]byte, error) {
	w := pack.NewWriter()
	w.WriteBin(f.h.Sum(nil))
	return w.End()
}

// HashResult decodes a digest from a Hash filter's result pack.
func HashResult(packed []byte) ([]byte, error) {
	r := pack.NewReader(packed)
	v, err := r.ReadBin(nil)
	if err != nil {
		return nil, err
	}
	return v, r.End()
}
