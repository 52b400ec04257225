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

// Package stringid packs short identifiers (command names, filter type
// tags, block map field names) into a uint64 so they can be used as cheap
// enum discriminators instead of allocating strings on every compare.
//
// Two alphabets are supported, the narrower one tried first:
//
//   - id5: 32 symbols (hyphen, digits, and the first 21 lowercase
//     letters), up to 12 characters packed 5 bits each.
//   - id6: 63 symbols (hyphen, digits, lower and upper case), up to 10
//     characters packed 6 bits each.
//
// The encoded uint64's top 4 bits record which alphabet was used and how
// many characters were packed, so Decode can recover the original string
// without an external dictionary.
package stringid

import "github.com/pgblock/core/pkg/xerr"

const (
	alphabet5 = "-0123456789abcdefghijklmnopqrstu"
	alphabet6 = "-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	maxLen5 = 12
	maxLen6 = 10

	bitsPerChar5 = 5
	bitsPerChar6 = 6

	// The header nibble occupies the top 4 bits of the 64-bit word: one
	// bit selects the alphabet, the remaining three encode the packed
	// character count (0..12, safely fits since maxLen5 < 16).
	headerShift = 60
	widthShift  = 56
	widthMask   = 0xF
	alphaBit6   = uint64(1) << 63
)

// ID is a packed short string.
type ID uint64

var (
	index5 [256]int8
	index6 [256]int8
)

func init() {
	for i := range index5 {
		index5[i] = -1
	}
	for i := range index6 {
		index6[i] = -1
	}
	for i, c := range []byte(alphabet5) {
		index5[c] = int8(i)
	}
	for i, c := range []byte(alphabet6) {
		index6[c] = int8(i)
	}
}

// New encodes s as a string id, choosing the narrowest alphabet that
// fits. It fails with a FormatError if s contains a character outside
// both alphabets or exceeds the maximum length for the alphabet it
// qualifies for.
func New(s string) (ID, error) {
	if len(s) == 0 {
		return 0, xerr.Newf(xerr.KindFormat, "string id must not be empty")
	}

	if fitsAlphabet(s, index5[:]) && len(s) <= maxLen5 {
		return encode(s, index5[:], bitsPerChar5, 0), nil
	}
	if fitsAlphabet(s, index6[:]) && len(s) <= maxLen6 {
		return encode(s, index6[:], bitsPerChar6, alphaBit6), nil
	}

	return 0, xerr.Newf(xerr.KindFormat, "string id %q does not fit the id5/id6 alphabets", s)
}

// MustNew is New but panics on error; used for compile-time-equivalent
// constant tables built from literals the caller controls.
func MustNew(s string) ID {
	id, err := New(s)
	if err != nil {
		panic(err)
	}
	return id
}

func fitsAlphabet(s string, idx []int8) bool {
	for i := 0; i < len(s); i++ {
		if idx[s[i]] < 0 {
			return false
		}
	}
	return true
}

func encode(s string, idx []int8, bits uint, alphaFlag uint64) ID {
	var v uint64
	for i := 0; i < len(s); i++ {
		v = (v << bits) | uint64(idx[s[i]])
	}
	// Left-align the packed payload below the header.
	v <<= uint(60 - bits*uint(len(s)))
	header := alphaFlag | (uint64(len(s)&widthMask) << widthShift)
	return ID(v | header)
}

// Decode recovers the original string.
func (id ID) Decode() string {
	if id == 0 {
		return ""
	}

	v := uint64(id)
	alphabet := alphabet5
	bits := uint(bitsPerChar5)
	if v&alphaBit6 != 0 {
		alphabet = alphabet6
		bits = bitsPerChar6
	}

	length := int((v >> widthShift) & widthMask)
	shift := uint(60 - bits*uint(length))
	payload := (v &^ (uint64(0xF) << widthShift) &^ alphaBit6) >> shift

	buf := make([]byte, length)
	mask := uint64(1<<bits) - 1
	for i := length - 1; i >= 0; i-- {
		buf[i] = alphabet[payload&mask]
		payload >>= bits
	}
	return string(buf)
}

// String implements fmt.Stringer via Decode so IDs log legibly.
func (id ID) String() string {
	return id.Decode()
}
