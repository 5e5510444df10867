package omgmatch

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRadixSortMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ms := make([]Match, 5000)
	for i := range ms {
		ms[i] = Match{Offset: uint64(rng.Intn(1 << 20)), Len: uint32(1 + rng.Intn(64))}
	}

	want := append([]Match(nil), ms...)
	sort.SliceStable(want, func(a, b int) bool {
		if want[a].Len != want[b].Len {
			return want[a].Len > want[b].Len
		}
		return want[a].Offset < want[b].Offset
	})

	radixSortMatches(ms)
	if d := cmp.Diff(want, ms); d != "" {
		t.Errorf("radix sort disagrees with reference sort (-want +got):\n%s", d)
	}
}

func TestRadixSortLargeOffsets(t *testing.T) {
	ms := []Match{
		{Offset: 1 << 40, Len: 3},
		{Offset: 1, Len: 3},
		{Offset: 1<<40 + 1, Len: 8},
	}
	radixSortMatches(ms)
	want := []Match{
		{Offset: 1<<40 + 1, Len: 8},
		{Offset: 1, Len: 3},
		{Offset: 1 << 40, Len: 3},
	}
	if d := cmp.Diff(want, ms); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}
}

func TestFilterLongest(t *testing.T) {
	ms := []Match{
		{Offset: 0, Len: 4},
		{Offset: 0, Len: 3},
		{Offset: 1, Len: 2},
	}
	got := applyFilter(ms, filterLongest)
	want := []Match{{Offset: 0, Len: 4}, {Offset: 1, Len: 2}}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}

	// Idempotent.
	again := applyFilter(append([]Match(nil), got...), filterLongest)
	if d := cmp.Diff(got, again); d != "" {
		t.Errorf("longest-only not idempotent (-want +got):\n%s", d)
	}
}

func TestFilterNoOverlap(t *testing.T) {
	ms := []Match{
		{Offset: 0, Len: 4},
		{Offset: 2, Len: 4},
		{Offset: 4, Len: 2},
		{Offset: 7, Len: 1},
	}
	got := applyFilter(ms, filterNoOverlap)
	want := []Match{{Offset: 0, Len: 4}, {Offset: 4, Len: 2}, {Offset: 7, Len: 1}}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("(-want +got):\n%s", d)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Offset < got[i-1].Offset+uint64(got[i-1].Len) {
			t.Errorf("matches %d and %d overlap", i-1, i)
		}
	}
}
