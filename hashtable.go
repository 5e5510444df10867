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

// Build-side hash table mapping 4-gram keys to buckets of pattern
// records. Open addressing with Robin-Hood displacement: on collision
// the entry with the smaller probe distance is bumped forward, which
// bounds worst-case probe lengths and keeps the read-side linear probe
// short. The read side (probeBucket) is a plain linear probe over the
// serialized index array; displacement only changes where an entry
// lives, not whether linear probing finds it.

package omgmatch

import "encoding/binary"

const (
	initialHashCapacity = 8192
	hashTableLoadFactor = 0.9
)

// patternRecord locates one stored pattern: a byte offset into the
// pattern store plus its length. Lengths are always >= 5 here.
type patternRecord struct {
	offset uint64
	length uint32
}

// hashEntry is one in-memory slot. A slot is empty iff it has no
// records. The record slice is owned by the entry and moves with it
// during displacement.
type hashEntry struct {
	key     uint32
	dist    uint32
	records []patternRecord
}

func (e *hashEntry) empty() bool { return len(e.records) == 0 }

type buildHashTable struct {
	size    uint32
	used    uint32
	entries []hashEntry
}

func newBuildHashTable(initialSize uint32) *buildHashTable {
	if initialSize == 0 {
		initialSize = initialHashCapacity
	}
	if initialSize&(initialSize-1) != 0 {
		initialSize = nextPowerOfTwo(initialSize)
	}
	return &buildHashTable{
		size:    initialSize,
		entries: make([]hashEntry, initialSize),
	}
}

// insert appends (offset, length) to the bucket for key, creating the
// bucket if needed. Resizes by doubling when load exceeds 0.9.
func (t *buildHashTable) insert(key uint32, offset uint64, length uint32) {
	if float64(t.used+1)/float64(t.size) > hashTableLoadFactor {
		t.resize()
	}

	mask := t.size - 1
	pos := hashUint32(key) & mask

	// Existing bucket for this key?
	for dist := uint32(0); dist < t.size; dist++ {
		entry := &t.entries[pos]
		if entry.empty() {
			break
		}
		if entry.key == key {
			entry.records = append(entry.records, patternRecord{offset, length})
			return
		}
		pos = (pos + 1) & mask
	}

	newEntry := hashEntry{
		key:     key,
		records: append(make([]patternRecord, 0, 4), patternRecord{offset, length}),
	}

	pos = hashUint32(key) & mask
	distance := uint32(0)
	for {
		entry := &t.entries[pos]
		if entry.empty() {
			*entry = newEntry
			t.used++
			return
		}
		if distance > entry.dist {
			newEntry, *entry = *entry, newEntry
			distance = newEntry.dist
		}
		distance++
		pos = (pos + 1) & mask
		newEntry.dist = distance
	}
}

func (t *buildHashTable) resize() {
	oldEntries := t.entries
	t.size <<= 1
	t.used = 0
	t.entries = make([]hashEntry, t.size)
	mask := t.size - 1

	for i := range oldEntries {
		if oldEntries[i].empty() {
			continue
		}
		entry := oldEntries[i]
		entry.dist = 0
		pos := hashUint32(entry.key) & mask
		d := uint32(0)
		for !t.entries[pos].empty() {
			if d > t.entries[pos].dist {
				entry, t.entries[pos] = t.entries[pos], entry
				d = entry.dist
			}
			d++
			pos = (pos + 1) & mask
			entry.dist = d
		}
		t.entries[pos] = entry
		t.used++
	}
}

// probeBucket is the read-side lookup: walk the serialized index array
// linearly from the key's home slot until the bucket whose stored key
// equals cand is found or an empty slot ends the probe. Returns the
// bucket's byte offset into the bucket data blob.
func probeBucket(idxArr, bucketData []byte, tableMask, cand uint32) (uint32, bool) {
	idx := hashUint32(cand) & tableMask
	for probe := uint32(0); probe <= tableMask; probe++ {
		slot := binary.LittleEndian.Uint32(idxArr[idx*4:])
		if slot == emptySlot {
			return 0, false
		}
		if binary.LittleEndian.Uint32(bucketData[slot:]) == cand {
			return slot, true
		}
		idx = (idx + 1) & tableMask
	}
	return 0, false
}
