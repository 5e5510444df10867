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

// Package omgmatch compiles large lists of literal byte patterns into a
// compact memory-mappable index and reports every occurrence of any
// pattern in a byte haystack. Compilation is a one-time cost; scanning
// is the hot path.
package omgmatch

import "errors"

// Version is the library version, reported by the CLI.
const Version = "1.0.0"

var (
	// ErrInvalidArgument is returned for nil buffers, zero-length
	// patterns, and out-of-range thread or chunk counts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCorruptIndex is returned when a compiled index fails
	// validation at load time.
	ErrCorruptIndex = errors.New("corrupt index")
)

// Match is a single occurrence of a pattern in the haystack.
// (Offset, Len) is the canonical identity; Bytes is a convenience
// slice into the original haystack.
type Match struct {
	Offset uint64
	Len    uint32
	Bytes  []byte
}

// MatchOptions selects post-processing and boundary filters for a scan.
// All fields are independent booleans; the zero value reports every
// raw occurrence.
type MatchOptions struct {
	// LongestOnly keeps only the longest match at each offset.
	LongestOnly bool
	// NoOverlap greedily keeps left-to-right, longest-first
	// non-overlapping matches.
	NoOverlap bool

	WordBoundary bool
	WordPrefix   bool
	WordSuffix   bool
	LineStart    bool
	LineEnd      bool
}

// Stats accumulates scan counters across Scan calls on a Matcher the
// stats are attached to.
type Stats struct {
	TotalHits        uint64
	TotalMisses      uint64
	TotalFiltered    uint64
	TotalAttempts    uint64
	TotalComparisons uint64
}

func (s *Stats) add(o Stats) {
	s.TotalHits += o.TotalHits
	s.TotalMisses += o.TotalMisses
	s.TotalFiltered += o.TotalFiltered
	s.TotalAttempts += o.TotalAttempts
	s.TotalComparisons += o.TotalComparisons
}

// PatternStoreStats describes the pattern stream seen during
// compilation. StoredPatternCount counts long (stored) patterns only;
// short patterns (length 1-4) are tracked in ShortPatternCount.
type PatternStoreStats struct {
	TotalInputBytes       uint64
	TotalStoredBytes      uint64
	StoredPatternCount    uint32
	ShortPatternCount     uint32
	DuplicatePatterns     uint32
	SmallestPatternLength uint32
	LargestPatternLength  uint32
}
