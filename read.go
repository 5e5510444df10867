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
	"encoding/binary"
	"fmt"
)

// reader is a stateful file
type reader struct {
	r   IndexFile
	off uint64
}

func (r *reader) blob(sz uint64) ([]byte, error) {
	b, err := r.r.Read(r.off, sz)
	r.off += sz
	return b, err
}

func (r *reader) U32() (uint32, error) {
	b, err := r.r.Read(r.off, 4)
	r.off += 4
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// readMatcherData validates the section layout and binds zero-copy
// views over the mapping. Every section magic and every size field is
// checked before a view is handed out; a failed validation leaves the
// matcher unbound and the caller releases the mapping.
func (m *Matcher) readMatcherData(f IndexFile) error {
	size, err := f.Size()
	if err != nil {
		return err
	}
	r := &reader{r: f}

	hdrBytes, err := r.blob(headerSize)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Name(), err)
	}
	if err := m.header.unmarshal(hdrBytes); err != nil {
		return fmt.Errorf("read %s: %w", f.Name(), err)
	}
	hdr := &m.header

	// Sections must account for the file exactly.
	want := uint64(headerSize) + hdr.PatternStoreSize +
		uint64(magicSize+4+hdr.BloomFilterSize) +
		uint64(magicSize) + uint64(hdr.TableSize)*4 + uint64(hdr.HashBucketsSize) +
		uint64(hdr.ShortMatcherSize)
	if want != size {
		return fmt.Errorf("read %s: %w: sections total %d bytes, file is %d", f.Name(), ErrCorruptIndex, want, size)
	}

	if m.patternStore, err = r.blob(hdr.PatternStoreSize); err != nil {
		return err
	}

	magic, err := r.blob(magicSize)
	if err != nil {
		return err
	}
	if string(magic) != bloomMagic {
		return fmt.Errorf("read %s: %w: bad bloom magic %q", f.Name(), ErrCorruptIndex, magic)
	}
	bitSize, err := r.U32()
	if err != nil {
		return err
	}
	if bitSize>>3 != hdr.BloomFilterSize {
		return fmt.Errorf("read %s: %w: bloom bit size %d vs section size %d", f.Name(), ErrCorruptIndex, bitSize, hdr.BloomFilterSize)
	}
	bloomBits, err := r.blob(uint64(hdr.BloomFilterSize))
	if err != nil {
		return err
	}
	m.bloom = bloomView{bitSize: bitSize, bits: bloomBits}

	if magic, err = r.blob(magicSize); err != nil {
		return err
	}
	if string(magic) != hashMagic {
		return fmt.Errorf("read %s: %w: bad hash magic %q", f.Name(), ErrCorruptIndex, magic)
	}
	if m.indexArray, err = r.blob(uint64(hdr.TableSize) * 4); err != nil {
		return err
	}
	if m.bucketData, err = r.blob(uint64(hdr.HashBucketsSize)); err != nil {
		return err
	}

	if hdr.ShortMatcherSize > 0 {
		if err := m.readShortMatcher(r, hdr.ShortMatcherSize, f.Name()); err != nil {
			return err
		}
		m.hasShort = true
	}
	return nil
}

func (m *Matcher) readShortMatcher(r *reader, sectionSize uint32, name string) error {
	start := r.off
	magic, err := r.blob(magicSize)
	if err != nil {
		return err
	}
	if string(magic) != shortMatcherMagic {
		return fmt.Errorf("read %s: %w: bad short matcher magic %q", name, ErrCorruptIndex, magic)
	}

	sm := &m.short
	if sm.bitmap1, err = r.blob(32); err != nil {
		return err
	}
	if sm.bitmap2, err = r.blob(8192); err != nil {
		return err
	}
	for _, dst := range []*uint32{&sm.len1, &sm.len2, &sm.len3, &sm.len4} {
		if *dst, err = r.U32(); err != nil {
			return err
		}
	}
	if sm.arr3, err = r.blob(uint64(sm.len3) * 4); err != nil {
		return err
	}
	if sm.arr4, err = r.blob(uint64(sm.len4) * 4); err != nil {
		return err
	}

	if got := uint32(r.off - start); got != sectionSize {
		return fmt.Errorf("read %s: %w: short matcher is %d bytes, header says %d", name, ErrCorruptIndex, got, sectionSize)
	}
	return nil
}

func leU32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func leU64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
