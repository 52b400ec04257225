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
	"github.com/pgblock/core/pkg/pack"
	"github.com/pgblock/core/pkg/stringid"
)

var typeSize = stringid.MustNew("size")

// Size counts bytes as they pass through, unchanged, and reports the
// total as its result.
type Size struct {
	total uint64
}

// NewSize returns a new byte-counting identity filter.
func NewSize() *Size { return &Size{} }

func (*Size) FilterType() stringid.ID { return typeSize }

// ProcessInOut copies input to output unchanged, counting bytes.
func (s *Size) ProcessInOut(input []byte, output *Buffer) error {
	if input == nil {
		return nil
	}
	s.total += uint64(output.Append(input))
	return nil
}

// Result packs the total byte count under field id 1.
func (s *Size) Result() ([]byte, error) {
	w := pack.NewWriter()
	w.WriteU64(s.total)
	return w.End()
}

// SizeResult decodes the total byte count from a Size filter's result
// pack.
func SizeResult(packed []byte) (uint64, error) {
	r := pack.NewReader(packed)
	v, err := r.ReadU64(0)
	if err != nil {
		return 0, err
	}
	return v, r.End()
}
