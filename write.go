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
	"bufio"
	"encoding/binary"
	"math"
	"os"
)

// indexWriter writes the compiled index file. Errors are sticky: the
// first failure is kept and later calls are no-ops, so call sites can
// write whole sections and check once. The header and the hash index
// array are back-patched with writeAt after their final values are
// known, which is why off is tracked explicitly.
type indexWriter struct {
	f   *os.File
	b   *bufio.Writer
	off uint64
	err error
}

func newIndexWriter(f *os.File) *indexWriter {
	return &indexWriter{f: f, b: bufio.NewWriterSize(f, 256*1024)}
}

func (w *indexWriter) Write(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.b.Write(p)
	w.off += uint64(len(p))
}

func (w *indexWriter) Str(s string) {
	w.Write([]byte(s))
}

func (w *indexWriter) U32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func (w *indexWriter) U64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.Write(buf[:])
}

func (w *indexWriter) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// writeAt rewrites previously written bytes in place. Flushes the
// buffer first so the rewrite cannot be clobbered by buffered data.
func (w *indexWriter) writeAt(off uint64, p []byte) {
	if w.err != nil {
		return
	}
	if w.err = w.b.Flush(); w.err != nil {
		return
	}
	_, w.err = w.f.WriteAt(p, int64(off))
}

func (w *indexWriter) flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.b.Flush()
	return w.err
}
