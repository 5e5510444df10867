package omgmatch

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

// serializeTable lays the table out the way the compiler does: a dense
// index array of bucket offsets, then the packed bucket blob.
func serializeTable(t *buildHashTable) (idxArr, bucketData []byte) {
	idxArr = make([]byte, t.size*4)
	for i := range idxArr {
		idxArr[i] = 0xFF
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.empty() {
			continue
		}
		binary.LittleEndian.PutUint32(idxArr[i*4:], uint32(len(bucketData)))
		var buf [8]byte
		binary.LittleEndian.PutUint32(buf[:4], e.key)
		binary.LittleEndian.PutUint32(buf[4:], uint32(len(e.records)))
		bucketData = append(bucketData, buf[:]...)
		for _, rec := range e.records {
			var rbuf [patternRecordSize]byte
			binary.LittleEndian.PutUint64(rbuf[:8], rec.offset)
			binary.LittleEndian.PutUint32(rbuf[8:12], rec.length)
			bucketData = append(bucketData, rbuf[:]...)
		}
	}
	return idxArr, bucketData
}

func TestHashTableInsertAndProbe(t *testing.T) {
	table := newBuildHashTable(16)
	rng := rand.New(rand.NewSource(1))

	keys := map[uint32]int{}
	for i := 0; i < 10000; i++ {
		key := rng.Uint32()
		keys[key]++
		table.insert(key, uint64(i), uint32(5+i%40))
	}

	if table.size&(table.size-1) != 0 {
		t.Fatalf("table size %d not a power of two", table.size)
	}
	if float64(table.used)/float64(table.size) > hashTableLoadFactor {
		t.Fatalf("load %d/%d exceeds %v", table.used, table.size, hashTableLoadFactor)
	}

	idxArr, bucketData := serializeTable(table)
	mask := table.size - 1
	for key, count := range keys {
		slot, ok := probeBucket(idxArr, bucketData, mask, key)
		if !ok {
			t.Fatalf("probeBucket: key %#x not found", key)
		}
		if got := binary.LittleEndian.Uint32(bucketData[slot:]); got != key {
			t.Fatalf("probeBucket: slot key %#x, want %#x", got, key)
		}
		if got := binary.LittleEndian.Uint32(bucketData[slot+4:]); got != uint32(count) {
			t.Fatalf("key %#x: bucket count %d, want %d", key, got, count)
		}
	}
}

func TestHashTableProbeMiss(t *testing.T) {
	table := newBuildHashTable(0)
	table.insert(0x41424344, 0, 8)
	idxArr, bucketData := serializeTable(table)

	if _, ok := probeBucket(idxArr, bucketData, table.size-1, 0x45464748); ok {
		t.Error("probeBucket found a key that was never inserted")
	}
}

func TestHashTableSameKeyShareBucket(t *testing.T) {
	table := newBuildHashTable(0)
	table.insert(0xCAFEBABE, 0, 10)
	table.insert(0xCAFEBABE, 10, 7)
	table.insert(0xCAFEBABE, 17, 22)

	if table.used != 1 {
		t.Fatalf("used = %d, want 1", table.used)
	}
	for i := range table.entries {
		if table.entries[i].empty() {
			continue
		}
		if got := len(table.entries[i].records); got != 3 {
			t.Fatalf("bucket has %d records, want 3", got)
		}
	}
}
