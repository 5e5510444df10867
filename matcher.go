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
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// defaultChunkSize is the per-worker block of contiguous haystack
// offsets in the static scan partition.
const defaultChunkSize = 4096

// transformWindowSize caps the memory used when scanning under a
// normalising transform: the haystack is normalised and scanned in
// windows of this many input bytes. Variable for tests.
var transformWindowSize = 4 << 20

var wordTable = func() (t [256]bool) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		t[i] = b == '_' || '0' <= b && b <= '9' || 'A' <= b && b <= 'Z' || 'a' <= b && b <= 'z'
	}
	return
}()

func isWord(b byte) bool { return wordTable[b] }

func isLineEnd(b byte) bool { return b == '\n' || b == '\r' }

// Matcher scans haystacks against one compiled index. It holds a
// single immutable memory map of the index for its whole lifetime; all
// on-disk structures are zero-copy views into that map, so a Matcher
// is safe for concurrent Scan calls (attach Stats from one goroutine
// only).
type Matcher struct {
	file   IndexFile
	header Header

	patternStore []byte
	bloom        bloomView
	indexArray   []byte
	bucketData   []byte
	short        shortMatcherView
	hasShort     bool

	transform *transformTable

	threads   int
	chunkSize int

	stats    *Stats
	tempPath string // non-empty if compiled on the fly
}

// NewMatcher memory-maps and validates the compiled index at path.
func NewMatcher(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	iFile, err := NewIndexFile(f)
	if err != nil {
		return nil, err
	}
	m, err := NewMatcherIndexFile(iFile)
	if err != nil {
		iFile.Close()
		return nil, err
	}
	return m, nil
}

// NewMatcherIndexFile binds a matcher over an already mapped index.
// The matcher takes ownership of the IndexFile on success.
func NewMatcherIndexFile(f IndexFile) (*Matcher, error) {
	m := &Matcher{file: f}
	if err := m.readMatcherData(f); err != nil {
		return nil, err
	}
	if m.header.Flags&(FlagIgnoreCase|FlagIgnorePunctuation|FlagElideWhitespace) != 0 {
		m.transform = newTransformTable(m.header.Flags)
	}
	m.threads = runtime.GOMAXPROCS(0)
	m.chunkSize = defaultChunkSize
	return m, nil
}

// NewMatcherAuto accepts either a compiled index or a plain
// newline-separated pattern file. A pattern file is compiled to a
// temporary index first, which is removed when the matcher is closed.
func NewMatcherAuto(path string, flags uint32) (*Matcher, error) {
	if IsCompiled(path) {
		return NewMatcher(path)
	}

	tmp, err := os.CreateTemp("", "omgmatch-*.omg")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if _, err := CompilePatternsFile(tmpPath, path, flags); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	m, err := NewMatcher(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	m.tempPath = tmpPath
	return m, nil
}

// Close releases the index mapping and removes any temporary index.
func (m *Matcher) Close() {
	if m.file != nil {
		m.file.Close()
		m.file = nil
	}
	if m.tempPath != "" {
		os.Remove(m.tempPath)
		m.tempPath = ""
	}
}

// Header returns a copy of the compiled index header.
func (m *Matcher) Header() Header {
	return m.header
}

// AddStats attaches a statistics accumulator. Counters are added to it
// at the end of every Scan call.
func (m *Matcher) AddStats(s *Stats) {
	m.stats = s
}

// SetThreads sets the scan worker count. Zero selects the number of
// available CPUs.
func (m *Matcher) SetThreads(n int) error {
	maxThreads := runtime.GOMAXPROCS(0)
	if n == 0 {
		n = maxThreads
	} else if n < 0 || n > maxThreads {
		return fmt.Errorf("set threads: %w: %d not in [0, %d]", ErrInvalidArgument, n, maxThreads)
	}
	m.threads = n
	return nil
}

func (m *Matcher) Threads() int { return m.threads }

// SetChunkSize sets the per-worker block size of the static scan
// partition, rounded up to a power of two. Zero selects the default.
func (m *Matcher) SetChunkSize(n int) error {
	if n == 0 {
		n = defaultChunkSize
	} else if n < 1 {
		return fmt.Errorf("set chunk size: %w: %d", ErrInvalidArgument, n)
	} else if n&(n-1) != 0 {
		n = int(nextPowerOfTwo(uint32(n)))
	}
	m.chunkSize = n
	return nil
}

func (m *Matcher) ChunkSize() int { return m.chunkSize }

// Scan reports every occurrence of any indexed pattern in haystack,
// sorted by (descending length, ascending offset) and filtered per
// opts. The result is deterministic regardless of thread count and
// chunk size.
func (m *Matcher) Scan(haystack []byte, opts MatchOptions) ([]Match, error) {
	if m.file == nil {
		return nil, fmt.Errorf("scan: %w: matcher is closed", ErrInvalidArgument)
	}
	start := time.Now()

	var all []Match
	var stats Stats
	var err error
	if m.transform == nil {
		all, stats = m.scanCore(haystack, opts, m.threads)
	} else {
		all, stats, err = m.scanTransformed(haystack, opts)
		if err != nil {
			return nil, err
		}
	}

	all = finalizeMatches(all, opts)

	if m.stats != nil {
		m.stats.add(stats)
	}
	metricScansTotal.Inc()
	metricMatchesTotal.Add(float64(len(all)))
	metricBloomFilteredTotal.Add(float64(stats.TotalFiltered))
	metricScanDuration.Observe(time.Since(start).Seconds())
	return all, nil
}

// scanCore runs the per-offset probe loop over haystack with the given
// number of workers. Chunks of chunkSize contiguous offsets are
// assigned to workers round-robin (a static partition: each offset is
// owned by exactly one worker, which writes to a private match
// vector). Workers share only the immutable index views.
func (m *Matcher) scanCore(haystack []byte, opts MatchOptions, workers int) ([]Match, Stats) {
	hsize := len(haystack)
	if hsize == 0 {
		return nil, Stats{}
	}

	numChunks := (hsize + m.chunkSize - 1) / m.chunkSize
	if workers > numChunks {
		workers = numChunks
	}
	if workers < 1 {
		workers = 1
	}

	locals := make([][]Match, workers)
	localStats := make([]Stats, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var local []Match
			var st Stats
			for chunk := w; chunk < numChunks; chunk += workers {
				lo := chunk * m.chunkSize
				hi := lo + m.chunkSize
				if hi > hsize {
					hi = hsize
				}
				local = m.scanRange(haystack, lo, hi, opts, local, &st)
			}
			locals[w] = local
			localStats[w] = st
		}(w)
	}
	wg.Wait()

	total := 0
	for _, l := range locals {
		total += len(l)
	}
	all := make([]Match, 0, total)
	var stats Stats
	for w := range locals {
		all = append(all, locals[w]...)
		stats.add(localStats[w])
	}
	return all, stats
}

// scanRange probes every offset in [lo, hi).
func (m *Matcher) scanRange(haystack []byte, lo, hi int, opts MatchOptions, local []Match, st *Stats) []Match {
	hsize := len(haystack)
	tableMask := m.header.TableSize - 1
	largest := m.header.LargestPatternLength
	useLong := largest >= 5
	useShort := m.hasShort && m.header.SmallestPatternLength <= 4
	use1 := useShort && m.short.len1 > 0
	use2 := useShort && m.short.len2 > 0
	use3 := useShort && m.short.len3 > 0
	use4 := useShort && m.short.len4 > 0

	for pos := lo; pos < hi; pos++ {
		// A match can only start where the word/non-word class
		// changes, so boundary scans skip interior offsets before
		// any probe.
		if opts.WordBoundary {
			prevWord := false
			if pos > 0 {
				prevWord = isWord(haystack[pos-1])
			}
			if isWord(haystack[pos]) == prevWord {
				continue
			}
		}

		if useLong && pos+4 <= hsize {
			st.TotalAttempts++
			cand := packGram(haystack[pos:])
			if !m.bloom.maybeHas(cand) {
				st.TotalFiltered++
			} else if slot, ok := probeBucket(m.indexArray, m.bucketData, tableMask, cand); !ok {
				st.TotalMisses++
			} else {
				st.TotalHits++
				local = m.scanBucket(slot, haystack, pos, opts, local, st)
			}
		}

		if useShort {
			// Longest class first so longest-only scans test long
			// candidates before short ones.
			if use4 && pos+4 <= hsize && m.short.query4(haystack[pos:]) {
				local = m.emitShort(haystack, pos, 4, opts, local, st)
			}
			if use3 && pos+3 <= hsize && m.short.query3(haystack[pos:]) {
				local = m.emitShort(haystack, pos, 3, opts, local, st)
			}
			if use2 && pos+2 <= hsize && m.short.query2(haystack[pos:]) {
				local = m.emitShort(haystack, pos, 2, opts, local, st)
			}
			if use1 && m.short.query1(haystack[pos]) {
				local = m.emitShort(haystack, pos, 1, opts, local, st)
			}
		}
	}
	return local
}

// scanBucket confirms exact matches against the bucket at slot.
// Records are sorted by descending length, so long candidates are
// tested first.
func (m *Matcher) scanBucket(slot uint32, haystack []byte, pos int, opts MatchOptions, local []Match, st *Stats) []Match {
	hsize := len(haystack)
	count := leU32(m.bucketData[slot+4:])
	rec := m.bucketData[slot+8:]

	for j := uint32(0); j < count; j++ {
		offset := leU64(rec)
		length := int(leU32(rec[8:]))
		rec = rec[patternRecordSize:]

		if pos+length > hsize {
			continue
		}
		st.TotalComparisons++
		if !equalPattern(haystack[pos:pos+length], m.patternStore[offset:offset+uint64(length)]) {
			continue
		}
		if !m.boundaryOK(haystack, pos, length, opts) {
			continue
		}
		local = append(local, Match{
			Offset: uint64(pos),
			Len:    uint32(length),
			Bytes:  haystack[pos : pos+length],
		})
	}
	return local
}

// equalPattern compares a candidate window against a stored pattern.
// First byte, last byte, then the middle: most candidates are rejected
// on the first load.
func equalPattern(a, b []byte) bool {
	n := len(a)
	if a[0] != b[0] || a[n-1] != b[n-1] {
		return false
	}
	for i := 1; i < n-1; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *Matcher) emitShort(haystack []byte, pos, length int, opts MatchOptions, local []Match, st *Stats) []Match {
	if !m.boundaryOK(haystack, pos, length, opts) {
		st.TotalMisses++
		return local
	}
	st.TotalHits++
	return append(local, Match{
		Offset: uint64(pos),
		Len:    uint32(length),
		Bytes:  haystack[pos : pos+length],
	})
}

// boundaryOK applies the requested boundary predicates to a candidate
// match. The word-boundary start condition was already enforced by the
// scan-time skip; only the end condition is tested here.
func (m *Matcher) boundaryOK(haystack []byte, pos, length int, opts MatchOptions) bool {
	hsize := len(haystack)
	end := pos + length
	if opts.WordBoundary && end < hsize && isWord(haystack[end]) {
		return false
	}
	if opts.WordPrefix && !(pos == 0 || !isWord(haystack[pos-1])) {
		return false
	}
	if opts.WordSuffix && !(end == hsize || !isWord(haystack[end])) {
		return false
	}
	if opts.LineStart && !(pos == 0 || isLineEnd(haystack[pos-1])) {
		return false
	}
	if opts.LineEnd && !(end >= hsize || isLineEnd(haystack[end])) {
		return false
	}
	return true
}

// scanTransformed normalises the haystack in windows and scans each
// window's normalised bytes, mapping match offsets back to the
// original coordinates. Windows extend past their chunk by enough
// normalised bytes to cover a pattern straddling the boundary; a
// window only keeps matches that start inside its own chunk, so every
// match is reported by exactly one window.
func (m *Matcher) scanTransformed(haystack []byte, opts MatchOptions) ([]Match, Stats, error) {
	hsize := len(haystack)
	if hsize == 0 {
		return nil, Stats{}, nil
	}

	needBM := m.transform.needsBackmap(m.header.Flags)
	numWindows := (hsize + transformWindowSize - 1) / transformWindowSize

	innerWorkers := 1
	if numWindows < m.threads {
		innerWorkers = m.threads / numWindows
	}

	windowMatches := make([][]Match, numWindows)
	windowStats := make([]Stats, numWindows)

	var g errgroup.Group
	g.SetLimit(m.threads)
	for w := 0; w < numWindows; w++ {
		w := w
		g.Go(func() error {
			base := w * transformWindowSize
			normalized, backmap, bodyOut := m.normalizeWindow(haystack, base, needBM)

			raw, st := m.scanCore(normalized, opts, innerWorkers)

			kept := raw[:0]
			for _, match := range raw {
				if int(match.Offset) >= bodyOut {
					continue
				}
				if backmap != nil {
					origOff := uint64(base) + uint64(backmap[match.Offset])
					origEnd := uint64(base) + uint64(backmap[match.Offset+uint64(match.Len)-1])
					match.Offset = origOff
					match.Len = uint32(origEnd - origOff + 1)
				} else {
					match.Offset += uint64(base)
				}
				match.Bytes = haystack[match.Offset : match.Offset+uint64(match.Len)]
				kept = append(kept, match)
			}
			windowMatches[w] = kept
			windowStats[w] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var all []Match
	var stats Stats
	for w := 0; w < numWindows; w++ {
		all = append(all, windowMatches[w]...)
		stats.add(windowStats[w])
	}
	return all, stats, nil
}

// normalizeWindow canonicalises the window starting at base. The
// window body is transformWindowSize input bytes; normalisation then
// continues past the body until largest-1 further output bytes exist
// (the straddle overlap) or input ends. bodyOut is the count of output
// bytes produced from body input; matches starting at or past it
// belong to the next window. backmap entries are window-relative
// source indexes.
func (m *Matcher) normalizeWindow(haystack []byte, base int, needBM bool) ([]byte, []uint32, int) {
	hsize := len(haystack)
	end := base + transformWindowSize
	if end > hsize {
		end = hsize
	}
	overlap := int(m.header.LargestPatternLength) - 1

	out := make([]byte, 0, end-base+overlap)
	var backmap []uint32
	if needBM {
		backmap = make([]uint32, 0, cap(out))
	}

	// A whitespace run straddling into this window was already
	// collapsed by the previous window; swallow its continuation.
	inSpace := base > 0 && m.transform.table[haystack[base-1]] == transformElideSpace

	bodyOut := 0
	for i := base; i < hsize; i++ {
		if i >= end && len(out)-bodyOut >= overlap {
			break
		}
		mapped := m.transform.table[haystack[i]]
		switch mapped {
		case transformSkip:
			continue
		case transformElideSpace:
			if !inSpace {
				out = append(out, ' ')
				if needBM {
					backmap = append(backmap, uint32(i-base))
				}
				inSpace = true
				if i < end {
					bodyOut = len(out)
				}
			}
			continue
		}
		out = append(out, byte(mapped))
		if needBM {
			backmap = append(backmap, uint32(i-base))
		}
		inSpace = false
		if i < end {
			bodyOut = len(out)
		}
	}
	return out, backmap, bodyOut
}
