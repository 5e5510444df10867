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

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

// bloomBitsPerEntry sizes the bloom filter relative to the hash table.
const bloomBitsPerEntry = 16

// Compiler streams patterns into a compiled index file. Create it with
// NewCompiler, feed AddPattern, then Close to finalise and write the
// remaining sections. The output is unusable until Close returns nil.
type Compiler struct {
	w         *indexWriter
	f         *os.File
	path      string
	flags     uint32
	table     *buildHashTable
	store     *patternStore
	short     *shortMatcherBuilder
	transform *transformTable
	stats     PatternStoreStats
	scratch   []byte
	closed    bool
}

// NewCompiler opens path for writing and reserves the header, which is
// back-patched with final sizes and statistics at Close.
func NewCompiler(path string, flags uint32) (*Compiler, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := newIndexWriter(f)
	w.Write(make([]byte, headerSize))

	c := &Compiler{
		w:     w,
		f:     f,
		path:  path,
		flags: flags & (FlagIgnoreCase | FlagIgnorePunctuation | FlagElideWhitespace),
		table: newBuildHashTable(0),
		short: newShortMatcherBuilder(),
	}
	c.store = newPatternStore(w, &c.stats)
	if c.flags != 0 {
		c.transform = newTransformTable(c.flags)
	}
	return c, nil
}

// AddPattern adds one literal pattern. The pattern is canonicalised
// first if the compiler was created with transform flags; a pattern
// that canonicalises to nothing is dropped. Duplicates (post
// transform) are counted and dropped.
func (c *Compiler) AddPattern(pattern []byte) error {
	if len(pattern) == 0 {
		return fmt.Errorf("add pattern: %w: empty pattern", ErrInvalidArgument)
	}
	if c.closed {
		return fmt.Errorf("add pattern: %w: compiler is closed", ErrInvalidArgument)
	}

	if c.transform != nil {
		c.scratch, _ = c.transform.apply(c.scratch[:0], pattern, nil)
		pattern = c.scratch
		if len(pattern) == 0 {
			return nil
		}
	}

	n := uint32(len(pattern))
	if n <= 4 {
		if !c.short.add(pattern) {
			c.stats.DuplicatePatterns++
			return nil
		}
		c.stats.ShortPatternCount++
		if n < c.stats.SmallestPatternLength {
			c.stats.SmallestPatternLength = n
		}
		if n > c.stats.LargestPatternLength {
			c.stats.LargestPatternLength = n
		}
		c.stats.TotalInputBytes += uint64(n)
		return nil
	}

	offset, ok := c.store.store(pattern)
	if !ok {
		return nil
	}
	c.table.insert(packGram(pattern), offset, n)
	return nil
}

// Stats returns the pattern store statistics accumulated so far.
func (c *Compiler) Stats() PatternStoreStats {
	return c.stats
}

// Close finalises the index: bloom filter, hash section with its
// back-patched bucket index array, optional short matcher section, and
// finally the header. The index array can only be filled once every
// bucket's offset is known and the header once every section size is
// known, hence the two write-at passes.
func (c *Compiler) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var hdr Header
	hdr.PatternStoreSize = c.w.off - headerSize

	bf := newBloomFilter(c.table.size * bloomBitsPerEntry)

	minBucket, maxBucket := ^uint32(0), uint32(0)
	for i := range c.table.entries {
		entry := &c.table.entries[i]
		if entry.empty() {
			continue
		}
		bf.add(entry.key)
		if n := uint32(len(entry.records)); n < minBucket {
			minBucket = n
		}
		if n := uint32(len(entry.records)); n > maxBucket {
			maxBucket = n
		}
		recs := entry.records
		sort.SliceStable(recs, func(a, b int) bool { return recs[a].length > recs[b].length })
	}
	if minBucket == ^uint32(0) {
		minBucket = 0
	}

	hdr.BloomFilterSize = bf.sizeBytes()
	hdr.NumOccupiedBuckets = c.table.used
	hdr.TableSize = c.table.size
	hdr.MinBucketSize = minBucket
	hdr.MaxBucketSize = maxBucket
	if c.table.size > 0 {
		hdr.LoadFactor = float32(c.table.used) / float32(c.table.size)
	}
	if c.table.used > 0 {
		hdr.AvgBucketSize = float32(c.stats.StoredPatternCount) / float32(c.table.used)
	}

	bf.write(c.w)

	// Hash section: magic, zero-filled index array, then the bucket
	// blob in slot order, recording each bucket's offset.
	c.w.Str(hashMagic)
	indexArrayStart := c.w.off
	indexArray := make([]byte, c.table.size*4)
	for i := range indexArray {
		indexArray[i] = 0xFF
	}
	c.w.Write(indexArray)

	bucketDataStart := c.w.off
	for i := range c.table.entries {
		entry := &c.table.entries[i]
		if entry.empty() {
			continue
		}
		binary.LittleEndian.PutUint32(indexArray[i*4:], uint32(c.w.off-bucketDataStart))
		c.w.U32(entry.key)
		c.w.U32(uint32(len(entry.records)))
		for _, rec := range entry.records {
			c.w.U64(rec.offset)
			c.w.U32(rec.length)
			c.w.U32(0)
		}
	}
	hdr.HashBucketsSize = uint32(c.w.off - bucketDataStart)

	c.w.writeAt(indexArrayStart, indexArray)

	if c.short.patternCount() > 0 {
		hdr.ShortMatcherSize = c.short.write(c.w)
	}

	hdr.Version = IndexFormatVersion
	hdr.Flags = c.flags
	hdr.StoredPatternCount = c.stats.StoredPatternCount
	hdr.SmallestPatternLength = c.stats.SmallestPatternLength
	hdr.LargestPatternLength = c.stats.LargestPatternLength
	c.w.writeAt(0, hdr.marshal())

	if err := c.w.flush(); err != nil {
		c.f.Close()
		return fmt.Errorf("finalise %s: %w", c.path, err)
	}
	if err := c.f.Close(); err != nil {
		return fmt.Errorf("finalise %s: %w", c.path, err)
	}
	metricCompileFinished.Inc()
	return nil
}

// CompilePatterns compiles a newline-separated pattern buffer into
// path. Trailing \r on a line is trimmed; empty lines are skipped.
func CompilePatterns(path string, patterns []byte, flags uint32) (PatternStoreStats, error) {
	if len(patterns) == 0 {
		return PatternStoreStats{}, fmt.Errorf("compile %s: %w: empty pattern buffer", path, ErrInvalidArgument)
	}

	c, err := NewCompiler(path, flags)
	if err != nil {
		return PatternStoreStats{}, err
	}

	rest := patterns
	for len(rest) > 0 {
		line := rest
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, rest = rest[:i], rest[i+1:]
		} else {
			rest = nil
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) == 0 {
			continue
		}
		if err := c.AddPattern(line); err != nil {
			c.Close()
			return c.Stats(), err
		}
	}

	stats := c.Stats()
	return stats, c.Close()
}

// CompilePatternsFile compiles a pattern file into path.
func CompilePatternsFile(path, patternsPath string, flags uint32) (PatternStoreStats, error) {
	data, closeMap, err := MapFile(patternsPath)
	if err != nil {
		return PatternStoreStats{}, err
	}
	defer closeMap()
	return CompilePatterns(path, data, flags)
}

// IsCompiled reports whether path starts with the compiled index
// magic.
func IsCompiled(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var buf [magicSize]byte
	n, _ := f.Read(buf[:])
	return n == magicSize && string(buf[:]) == headerMagic
}
