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

// Byte-level canonicalisation. A 256-entry table maps each input byte
// to a rewritten byte, transformSkip (drop it), or transformElideSpace
// (collapse a whitespace run to one ' '). The same table is applied to
// patterns at compile time and to the haystack at scan time so the
// index recognises canonicalised forms.

const (
	transformSkip       = -1
	transformElideSpace = -2
)

var punctTable = [256]bool{
	'!': true, '"': true, '#': true, '$': true, '%': true, '&': true,
	'\'': true, '(': true, ')': true, '*': true, '+': true, ',': true,
	'-': true, '.': true, '/': true, ':': true, ';': true, '<': true,
	'=': true, '>': true, '?': true, '@': true, '[': true, '\\': true,
	']': true, '^': true, '`': true, '{': true, '|': true, '}': true,
	'~': true,
}

var spaceTable = [256]bool{
	'\t': true, '\n': true, '\v': true, '\f': true,
	'\r': true, ' ': true, '\a': true, '\b': true,
}

type transformTable struct {
	table [256]int16
}

func newTransformTable(flags uint32) *transformTable {
	t := &transformTable{}
	for i := 0; i < 256; i++ {
		switch {
		case flags&FlagElideWhitespace != 0 && spaceTable[i]:
			t.table[i] = transformElideSpace
		case flags&FlagIgnorePunctuation != 0 && punctTable[i]:
			t.table[i] = transformSkip
		case flags&FlagIgnoreCase != 0:
			t.table[i] = int16(toUpper(byte(i)))
		default:
			t.table[i] = int16(i)
		}
	}
	return t
}

func toUpper(b byte) byte {
	if 'a' <= b && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// apply canonicalises src in a single pass, appending to dst. If
// backmap is non-nil, backmap[j] is appended with the source index
// that produced output byte j; for a collapsed whitespace run it
// points at the run's first byte. A trailing space is stripped.
func (t *transformTable) apply(dst []byte, src []byte, backmap []uint32) ([]byte, []uint32) {
	inSpace := false
	for i := 0; i < len(src); i++ {
		mapped := t.table[src[i]]
		switch mapped {
		case transformSkip:
			continue
		case transformElideSpace:
			if !inSpace {
				dst = append(dst, ' ')
				if backmap != nil {
					backmap = append(backmap, uint32(i))
				}
				inSpace = true
			}
			continue
		}
		dst = append(dst, byte(mapped))
		if backmap != nil {
			backmap = append(backmap, uint32(i))
		}
		inSpace = false
	}

	if n := len(dst); n > 0 && dst[n-1] == ' ' {
		dst = dst[:n-1]
		if backmap != nil {
			backmap = backmap[:len(backmap)-1]
		}
	}
	return dst, backmap
}

// needsBackmap reports whether the transform can change byte offsets.
// A case-only transform is one-to-one, so match offsets map back with
// plain identity.
func (t *transformTable) needsBackmap(flags uint32) bool {
	return flags&(FlagIgnorePunctuation|FlagElideWhitespace) != 0
}
