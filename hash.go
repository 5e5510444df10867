// Copyright 2021 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package omgmatch

// The two fixed hash functions below are part of the on-disk contract:
// fastGramHash positions bloom filter bits and hashUint32 positions
// hash table slots. They *must not* be changed, or existing index
// files start returning false negatives.

// fastGramHash mixes a packed 4-gram key. Murmur3 finalizer.
func fastGramHash(gram uint32) uint32 {
	gram ^= gram >> 16
	gram *= 0x85ebca6b
	gram ^= gram >> 13
	gram *= 0xc2b2ae35
	gram ^= gram >> 16
	return gram
}

// hashUint32 positions a gram key in the hash table.
func hashUint32(x uint32) uint32 {
	return (x ^ 0x9e3779b9) * 0x01000193
}

// packGram packs four consecutive haystack bytes big-endian into the
// 32-bit bucket key.
func packGram(p []byte) uint32 {
	return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
}

// nextPowerOfTwo rounds v up to a power of two. Bloom and hash table
// sizes are kept power-of-two so addressing is a mask, not a modulo.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}
