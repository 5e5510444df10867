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

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

func bloomViewOf(b *bloomFilter) bloomView {
	bits := make([]byte, len(b.bits)*8)
	for i, w := range b.bits {
		binary.LittleEndian.PutUint64(bits[i*8:], w)
	}
	return bloomView{bitSize: b.bitSize, bits: bits}
}

func TestBloomSizing(t *testing.T) {
	for _, tc := range []struct {
		request uint32
		want    uint32 // bits
	}{
		{1, 64},
		{64, 64},
		{65, 128},
		{512, 512},
		{8192 * 16, 8192 * 16},
	} {
		b := newBloomFilter(tc.request)
		if b.bitSize != tc.want {
			t.Errorf("newBloomFilter(%d): bitSize %d, want %d", tc.request, b.bitSize, tc.want)
		}
		if b.bitSize&(b.bitSize-1) != 0 {
			t.Errorf("newBloomFilter(%d): bitSize %d not a power of two", tc.request, b.bitSize)
		}
		if uint32(len(b.bits))*64 != b.bitSize {
			t.Errorf("newBloomFilter(%d): %d words for %d bits", tc.request, len(b.bits), b.bitSize)
		}
	}
}

func TestBloomNoFalseNegatives(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := newBloomFilter(initialHashCapacity * bloomBitsPerEntry)

	keys := make([]uint32, 5000)
	for i := range keys {
		keys[i] = rng.Uint32()
		b.add(keys[i])
	}

	view := bloomViewOf(b)
	for _, k := range keys {
		if !view.maybeHas(k) {
			t.Fatalf("maybeHas(%#x) = false for added key", k)
		}
	}
}

func TestBloomRejectsMost(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := newBloomFilter(initialHashCapacity * bloomBitsPerEntry)
	for i := 0; i < 1000; i++ {
		b.add(rng.Uint32())
	}

	view := bloomViewOf(b)
	falsePositives := 0
	const probes = 100000
	for i := 0; i < probes; i++ {
		if view.maybeHas(rng.Uint32()) {
			falsePositives++
		}
	}
	// 1000 keys in 128K bits should give a tiny FP rate; 5% is a
	// generous bound that still catches a broken hash.
	if falsePositives > probes/20 {
		t.Errorf("%d false positives out of %d probes", falsePositives, probes)
	}
}
