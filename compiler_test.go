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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func compileTemp(t *testing.T, patterns []string, flags uint32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.omg")
	_, err := CompilePatterns(path, []byte(strings.Join(patterns, "\n")), flags)
	require.NoError(t, err)
	return path
}

func newTestMatcher(t *testing.T, patterns []string, flags uint32) *Matcher {
	t.Helper()
	m, err := NewMatcher(compileTemp(t, patterns, flags))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestCompileHeader(t *testing.T) {
	m := newTestMatcher(t, []string{"alpha", "betas", "gamma", "alphabet", "x", "no"}, 0)

	hdr := m.Header()
	if hdr.Version != IndexFormatVersion {
		t.Errorf("Version = %d, want %d", hdr.Version, IndexFormatVersion)
	}
	if hdr.Flags != 0 {
		t.Errorf("Flags = %#x, want 0", hdr.Flags)
	}
	// alpha, betas, gamma, alphabet are stored; x and no are short.
	if hdr.StoredPatternCount != 4 {
		t.Errorf("StoredPatternCount = %d, want 4", hdr.StoredPatternCount)
	}
	if hdr.SmallestPatternLength != 1 {
		t.Errorf("SmallestPatternLength = %d, want 1", hdr.SmallestPatternLength)
	}
	if hdr.LargestPatternLength != 8 {
		t.Errorf("LargestPatternLength = %d, want 8", hdr.LargestPatternLength)
	}
	if hdr.PatternStoreSize != uint64(len("alphabetasgammaalphabet")) {
		t.Errorf("PatternStoreSize = %d, want %d", hdr.PatternStoreSize, len("alphabetasgammaalphabet"))
	}
	// "alpha" and "alphabet" share the 4-gram "alph".
	if hdr.NumOccupiedBuckets != 3 {
		t.Errorf("NumOccupiedBuckets = %d, want 3", hdr.NumOccupiedBuckets)
	}
	if hdr.MaxBucketSize != 2 || hdr.MinBucketSize != 1 {
		t.Errorf("bucket sizes min=%d max=%d, want 1 and 2", hdr.MinBucketSize, hdr.MaxBucketSize)
	}
	if hdr.TableSize&(hdr.TableSize-1) != 0 {
		t.Errorf("TableSize %d not a power of two", hdr.TableSize)
	}
	if hdr.ShortMatcherSize == 0 {
		t.Error("ShortMatcherSize = 0 with short patterns present")
	}
}

func TestCompileStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.omg")
	stats, err := CompilePatterns(path, []byte("orange\napple\norange\nfig\nfig\npear\n\npeach\r\n"), 0)
	require.NoError(t, err)

	if stats.StoredPatternCount != 3 { // orange, apple, peach
		t.Errorf("StoredPatternCount = %d, want 3", stats.StoredPatternCount)
	}
	if stats.ShortPatternCount != 2 { // fig, pear
		t.Errorf("ShortPatternCount = %d, want 2", stats.ShortPatternCount)
	}
	if stats.DuplicatePatterns != 2 { // orange, fig
		t.Errorf("DuplicatePatterns = %d, want 2", stats.DuplicatePatterns)
	}
	if stats.SmallestPatternLength != 3 || stats.LargestPatternLength != 6 {
		t.Errorf("lengths = %d..%d, want 3..6", stats.SmallestPatternLength, stats.LargestPatternLength)
	}
	if want := uint64(len("orangeapplepeach") + len("fig") + len("pear")); stats.TotalInputBytes != want {
		t.Errorf("TotalInputBytes = %d, want %d", stats.TotalInputBytes, want)
	}
	if stats.TotalStoredBytes != uint64(len("orangeapplepeach")) {
		t.Errorf("TotalStoredBytes = %d, want %d", stats.TotalStoredBytes, len("orangeapplepeach"))
	}
}

func TestCompileTransformDedup(t *testing.T) {
	// Cat and CAT collapse to the same stored pattern under
	// ignore-case; one is a duplicate.
	path := filepath.Join(t.TempDir(), "out.omg")
	stats, err := CompilePatterns(path, []byte("magic\nMAGIC\n"), FlagIgnoreCase)
	require.NoError(t, err)
	if stats.StoredPatternCount != 1 || stats.DuplicatePatterns != 1 {
		t.Errorf("stored=%d dups=%d, want 1 and 1", stats.StoredPatternCount, stats.DuplicatePatterns)
	}
}

func TestCompileRejectsEmptyPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.omg")
	c, err := NewCompiler(path, 0)
	require.NoError(t, err)
	defer c.Close()

	if err := c.AddPattern(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("AddPattern(nil) = %v, want ErrInvalidArgument", err)
	}
}

func TestIsCompiled(t *testing.T) {
	path := compileTemp(t, []string{"pattern"}, 0)
	if !IsCompiled(path) {
		t.Error("IsCompiled(index) = false")
	}

	plain := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("pattern\n"), 0o600))
	if IsCompiled(plain) {
		t.Error("IsCompiled(pattern file) = true")
	}
	if IsCompiled(filepath.Join(t.TempDir(), "missing")) {
		t.Error("IsCompiled(missing) = true")
	}
}

// corrupt writes a copy of the file with buf[off] flipped.
func corrupt(t *testing.T, path string, off int64) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[off] ^= 0xFF
	out := filepath.Join(t.TempDir(), "corrupt.omg")
	require.NoError(t, os.WriteFile(out, data, 0o600))
	return out
}

func TestLoadCorruption(t *testing.T) {
	path := compileTemp(t, []string{"hello", "world", "ab"}, 0)

	m, err := NewMatcher(path)
	require.NoError(t, err)
	hdr := m.Header()
	m.Close()

	bloomOff := int64(headerSize) + int64(hdr.PatternStoreSize)
	hashOff := bloomOff + magicSize + 4 + int64(hdr.BloomFilterSize)
	shortOff := hashOff + magicSize + int64(hdr.TableSize)*4 + int64(hdr.HashBucketsSize)

	cases := []struct {
		name string
		off  int64
	}{
		{"header magic", 0},
		{"version", 8},
		{"bloom magic", bloomOff},
		{"hash magic", hashOff},
		{"short matcher magic", shortOff},
		{"pattern store size", 16}, // breaks the section size accounting
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMatcher(corrupt(t, path, tc.off))
			if !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("NewMatcher = %v, want ErrCorruptIndex", err)
			}
		})
	}

	t.Run("truncated", func(t *testing.T) {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		short := filepath.Join(t.TempDir(), "short.omg")
		require.NoError(t, os.WriteFile(short, data[:len(data)-1], 0o600))
		if _, err := NewMatcher(short); !errors.Is(err, ErrCorruptIndex) {
			t.Errorf("NewMatcher = %v, want ErrCorruptIndex", err)
		}
	})
}

func TestBloomCompleteness(t *testing.T) {
	patterns := []string{"hello", "world", "golang", "matcher", "zebra", "pangolin"}
	m := newTestMatcher(t, patterns, 0)

	for _, p := range patterns {
		if !m.bloom.maybeHas(packGram([]byte(p))) {
			t.Errorf("bloom.maybeHas(first4(%q)) = false", p)
		}
	}
}

func TestBucketRecordsSortedByLength(t *testing.T) {
	// All patterns share the gram "omeg" and land in one bucket.
	m := newTestMatcher(t, []string{"omega", "omegas", "omegamatch", "omegab"}, 0)

	slot, ok := probeBucket(m.indexArray, m.bucketData, m.header.TableSize-1, packGram([]byte("omeg")))
	require.True(t, ok)

	count := leU32(m.bucketData[slot+4:])
	require.Equal(t, uint32(4), count)

	rec := m.bucketData[slot+8:]
	prev := ^uint32(0)
	for i := uint32(0); i < count; i++ {
		length := leU32(rec[8:])
		if length > prev {
			t.Fatalf("bucket records not sorted by descending length")
		}
		prev = length
		rec = rec[patternRecordSize:]
	}
}
