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

// patternStore appends long pattern bodies to the output file and
// hands back their offsets relative to the store's start. Patterns are
// packed without padding; duplicates are rejected through an embedded
// dedup set so a bucket never holds the same bytes twice.
type patternStore struct {
	w     *indexWriter
	start uint64
	dedup *dedupSet
	stats *PatternStoreStats
}

func newPatternStore(w *indexWriter, stats *PatternStoreStats) *patternStore {
	*stats = PatternStoreStats{SmallestPatternLength: ^uint32(0)}
	return &patternStore{
		w:     w,
		start: w.off,
		dedup: newDedupSet(),
		stats: stats,
	}
}

// store writes pattern to the file and returns its store-relative
// offset. ok is false for a duplicate, which is counted and not
// written.
func (s *patternStore) store(pattern []byte) (offset uint64, ok bool) {
	if !s.dedup.add(pattern) {
		s.stats.DuplicatePatterns++
		return 0, false
	}

	offset = s.w.off - s.start
	s.w.Write(pattern)

	n := uint32(len(pattern))
	if n < s.stats.SmallestPatternLength {
		s.stats.SmallestPatternLength = n
	}
	if n > s.stats.LargestPatternLength {
		s.stats.LargestPatternLength = n
	}
	s.stats.StoredPatternCount++
	s.stats.TotalInputBytes += uint64(n)
	s.stats.TotalStoredBytes = offset + uint64(n)
	return offset, true
}
