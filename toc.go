// Copyright 2017 Google Inc. All rights reserved.
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
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
)

// IndexFormatVersion is a version number. It is increased every time the
// on-disk index format is changed.
const IndexFormatVersion = 1

// Section magics. The index file is, in order: header, pattern store,
// bloom section, hash section, optional short-matcher section. All
// integer fields are little-endian; gram keys are stored as the
// little-endian encoding of the big-endian byte packing.
const (
	headerMagic       = "0MGM4tCH"
	bloomMagic        = "0MG8L0oM"
	hashMagic         = "0MG*H4sH"
	shortMatcherMagic = "0MG5HOrT"

	magicSize = 8
)

// Header flag bits. Bit 0 is reserved.
const (
	FlagIgnoreCase        = 1 << 1
	FlagIgnorePunctuation = 1 << 2
	FlagElideWhitespace   = 1 << 3
)

// headerSize is the packed byte size of Header on disk.
const headerSize = 72

// patternRecordSize is the packed byte size of one pattern record in a
// hash bucket: offset u64, len u32, 4 bytes of padding.
const patternRecordSize = 16

// emptySlot marks an unused slot in the serialized bucket index array.
const emptySlot = 0xFFFFFFFF

// Header is the fixed 72-byte record at the start of a compiled index.
type Header struct {
	Version               uint32
	Flags                 uint32
	PatternStoreSize      uint64
	StoredPatternCount    uint32
	SmallestPatternLength uint32
	LargestPatternLength  uint32
	BloomFilterSize       uint32
	HashBucketsSize       uint32
	TableSize             uint32
	NumOccupiedBuckets    uint32
	MinBucketSize         uint32
	MaxBucketSize         uint32
	ShortMatcherSize      uint32
	LoadFactor            float32
	AvgBucketSize         float32
}

func (h *Header) marshal() []byte {
	buf := make([]byte, headerSize)
	copy(buf, headerMagic)
	le := binary.LittleEndian
	le.PutUint32(buf[8:], h.Version)
	le.PutUint32(buf[12:], h.Flags)
	le.PutUint64(buf[16:], h.PatternStoreSize)
	le.PutUint32(buf[24:], h.StoredPatternCount)
	le.PutUint32(buf[28:], h.SmallestPatternLength)
	le.PutUint32(buf[32:], h.LargestPatternLength)
	le.PutUint32(buf[36:], h.BloomFilterSize)
	le.PutUint32(buf[40:], h.HashBucketsSize)
	le.PutUint32(buf[44:], h.TableSize)
	le.PutUint32(buf[48:], h.NumOccupiedBuckets)
	le.PutUint32(buf[52:], h.MinBucketSize)
	le.PutUint32(buf[56:], h.MaxBucketSize)
	le.PutUint32(buf[60:], h.ShortMatcherSize)
	le.PutUint32(buf[64:], math.Float32bits(h.LoadFactor))
	le.PutUint32(buf[68:], math.Float32bits(h.AvgBucketSize))
	return buf
}

func (h *Header) unmarshal(buf []byte) error {
	if len(buf) < headerSize {
		return fmt.Errorf("header: %w: %d bytes, want %d", ErrCorruptIndex, len(buf), headerSize)
	}
	if string(buf[:magicSize]) != headerMagic {
		return fmt.Errorf("header: %w: bad magic %q", ErrCorruptIndex, buf[:magicSize])
	}
	le := binary.LittleEndian
	h.Version = le.Uint32(buf[8:])
	h.Flags = le.Uint32(buf[12:])
	h.PatternStoreSize = le.Uint64(buf[16:])
	h.StoredPatternCount = le.Uint32(buf[24:])
	h.SmallestPatternLength = le.Uint32(buf[28:])
	h.LargestPatternLength = le.Uint32(buf[32:])
	h.BloomFilterSize = le.Uint32(buf[36:])
	h.HashBucketsSize = le.Uint32(buf[40:])
	h.TableSize = le.Uint32(buf[44:])
	h.NumOccupiedBuckets = le.Uint32(buf[48:])
	h.MinBucketSize = le.Uint32(buf[52:])
	h.MaxBucketSize = le.Uint32(buf[56:])
	h.ShortMatcherSize = le.Uint32(buf[60:])
	h.LoadFactor = math.Float32frombits(le.Uint32(buf[64:]))
	h.AvgBucketSize = math.Float32frombits(le.Uint32(buf[68:]))
	if h.Version != IndexFormatVersion {
		return fmt.Errorf("header: %w: file is v%d, want v%d", ErrCorruptIndex, h.Version, IndexFormatVersion)
	}
	return nil
}

// WriteInfo emits a one-line human readable summary of the header.
func (h *Header) WriteInfo(w io.Writer) {
	ci := "no"
	if h.Flags&FlagIgnoreCase != 0 {
		ci = "yes"
	}
	fmt.Fprintf(w, "Header v%d stats: total_patterns=%s, smallest_pattern_length=%s, largest_pattern_length=%s,"+
		" case_insensitive_support=%s, string_store_size=%s, bloom_filter_size=%s, num_occupied_buckets=%s,"+
		" table_size=%s, min_bucket_size=%s, max_bucket_size=%s, load_factor=%.2f, avg_bucket_size=%.2f\n",
		h.Version,
		humanize.Comma(int64(h.StoredPatternCount)),
		humanize.Comma(int64(h.SmallestPatternLength)),
		humanize.Comma(int64(h.LargestPatternLength)),
		ci,
		humanize.Comma(int64(h.PatternStoreSize)),
		humanize.Comma(int64(h.BloomFilterSize)),
		humanize.Comma(int64(h.NumOccupiedBuckets)),
		humanize.Comma(int64(h.TableSize)),
		humanize.Comma(int64(h.MinBucketSize)),
		humanize.Comma(int64(h.MaxBucketSize)),
		h.LoadFactor, h.AvgBucketSize)
}
