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
	"bytes"

	"github.com/cespare/xxhash/v2"
)

const (
	initialDedupCapacity = 8192
	dedupLoadFactor      = 0.9
)

// dedupSet is a content-addressed Robin-Hood set used to drop
// duplicate patterns during compilation. Entries key on
// (hash, length, bytes); the hash is in-memory only and never
// serialized.
type dedupSet struct {
	entries []dedupEntry
	used    uint32
}

type dedupEntry struct {
	hash uint64
	dist uint32
	buf  []byte // nil means empty slot; owned copy of the pattern
}

func newDedupSet() *dedupSet {
	return &dedupSet{entries: make([]dedupEntry, initialDedupCapacity)}
}

// add inserts buf and reports whether it was newly inserted.
func (s *dedupSet) add(buf []byte) bool {
	if float64(s.used+1)/float64(len(s.entries)) > dedupLoadFactor {
		s.resize()
	}

	h := xxhash.Sum64(buf)
	mask := uint32(len(s.entries) - 1)
	pos := uint32(h) & mask
	distance := uint32(0)

	entry := dedupEntry{hash: h}
	for {
		slot := &s.entries[pos]
		if slot.buf == nil {
			entry.buf = append([]byte(nil), buf...)
			entry.dist = distance
			*slot = entry
			s.used++
			return true
		}
		if slot.hash == h && len(slot.buf) == len(buf) && bytes.Equal(slot.buf, buf) {
			return false
		}
		if distance > slot.dist {
			if entry.buf == nil {
				entry.buf = append([]byte(nil), buf...)
			}
			entry.dist = distance
			entry, *slot = *slot, entry
			distance = entry.dist
		}
		distance++
		pos = (pos + 1) & mask
	}
}

func (s *dedupSet) resize() {
	oldEntries := s.entries
	s.entries = make([]dedupEntry, len(oldEntries)<<1)
	s.used = 0
	mask := uint32(len(s.entries) - 1)

	for i := range oldEntries {
		entry := oldEntries[i]
		if entry.buf == nil {
			continue
		}
		entry.dist = 0
		pos := uint32(entry.hash) & mask
		d := uint32(0)
		for s.entries[pos].buf != nil {
			if d > s.entries[pos].dist {
				entry, s.entries[pos] = s.entries[pos], entry
				d = entry.dist
			}
			d++
			pos = (pos + 1) & mask
			entry.dist = d
		}
		s.entries[pos] = entry
		s.used++
	}
}
