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

import "github.com/pgblock/core/pkg/stringid"

var typeBuffer = stringid.MustNew("buffer")

// Identity copies input to output unchanged and carries no result. A
// group appends one of these at the tail of a chain whose last
// declared filter is a Sink, so the chain still has something to hand
// bytes to on the output side.
type Identity struct{}

// NewIdentity returns a pass-through filter.
func NewIdentity() *Identity { return &Identity{} }

func (*Identity) FilterType() stringid.ID { return typeBuffer }

// ProcessInOut copies input to output unchanged.
func (*Identity) ProcessInOut(input []byte, output *Buffer) error {
	if input == nil {
		return nil
	}
	output.Append(input)
	return nil
}
