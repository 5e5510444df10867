// Copyright 2016 Google Inc. All rights reserved.
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

// Match post-processing. The canonical order is (descending length,
// ascending offset): an LSD radix sort over four bytes of ^len then
// eight bytes of offset yields it directly, with no signed
// comparisons. The filters run over the sorted sequence: each is a
// single keep-if predicate against the previously kept match.

const radixPasses = 4 + 8 // ^len (u32) then offset (u64), one byte per pass

// radixSortMatches sorts ms in place by (descending Len, ascending
// Offset).
func radixSortMatches(ms []Match) {
	n := len(ms)
	if n < 2 {
		return
	}

	tmp := make([]Match, n)
	keys := make([]byte, n)
	in, out := ms, tmp

	for pass := 0; pass < radixPasses; pass++ {
		var count [256]int

		for i := range in {
			var k byte
			if pass < 4 {
				k = byte(^in[i].Len >> (pass << 3))
			} else {
				k = byte(in[i].Offset >> ((pass - 4) << 3))
			}
			keys[i] = k
			count[k]++
		}

		sum := 0
		for b := 0; b < 256; b++ {
			count[b], sum = sum, sum+count[b]
		}

		for i := range in {
			out[count[keys[i]]] = in[i]
			count[keys[i]]++
		}

		in, out = out, in
	}
	// radixPasses is even, so the final pass landed back in ms.
}

type matchFilter func(prev, curr *Match) bool

// applyFilter keeps matches for which filter(prev kept, curr) is true.
func applyFilter(ms []Match, filter matchFilter) []Match {
	write := 0
	for i := range ms {
		if write == 0 || filter(&ms[write-1], &ms[i]) {
			ms[write] = ms[i]
			write++
		}
	}
	return ms[:write]
}

func filterDistinct(prev, curr *Match) bool {
	return curr.Offset != prev.Offset || curr.Len != prev.Len
}

func filterLongest(prev, curr *Match) bool {
	return curr.Offset != prev.Offset
}

func filterNoOverlap(prev, curr *Match) bool {
	return curr.Offset >= prev.Offset+uint64(prev.Len)
}

// finalizeMatches imposes the canonical total order and applies the
// requested filters.
func finalizeMatches(ms []Match, opts MatchOptions) []Match {
	radixSortMatches(ms)
	ms = applyFilter(ms, filterDistinct)
	if opts.LongestOnly {
		ms = applyFilter(ms, filterLongest)
	}
	if opts.NoOverlap {
		ms = applyFilter(ms, filterNoOverlap)
	}
	return ms
}
