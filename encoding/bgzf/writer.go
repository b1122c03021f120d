// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bgzf reads and writes the .bgzf (block gzipped) file format,
// and locates block and record boundaries inside it.
//
// A .bgzf file consists of one or more complete gzip blocks
// concatenated together.  Each of the gzip blocks must represent at
// most 64KB of uncompressed data, and the compressed size of the
// block must be at most 64KB.  The payload of the .bgzf file is equal
// to the uncompressed content of each block, concatenated together in
// order.  A valid .bgzf file ends with the 28 byte .bgzf terminator
// shown below; the terminator is a valid gzip block containing an
// empty payload.
//
// A position in the payload is addressed by a VOffset: the file offset of
// the block that contains the position, and the offset within that block's
// decompressed data.
//
// For more information about the .bgzf file format, see the SAM/BAM
// spec here: https://samtools.github.io/hts-specs/SAMv1.pdf
//
// Forcing a block boundary:
//
//	w, err := NewWriterParams(&out, flate.DefaultCompression, 1024)
//	n, err := w.Write([]byte("Foo bar"))
//	err = w.FlushBlock() // " baz" starts a new block.
//	n, err = w.Write([]byte(" baz"))
//	err = w.Close()
package bgzf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/grailbio/base/log"
	"github.com/klauspost/compress/gzip"
)

const (
	// DefaultUncompressedBlockSize is the block payload size used by
	// samtools, sambamba and biogo.
	DefaultUncompressedBlockSize = 0x0ff00

	// MaxUncompressedBlockSize is the largest payload of one block.
	MaxUncompressedBlockSize = 0x10000

	// compressedBlockSize bounds the compressed size of one block,
	// header and footer included.
	compressedBlockSize = 0x10000
)

var (
	// bgzfExtra is the BC subfield: ids 'B', 'C', length 2, and a
	// placeholder for BSIZE.
	bgzfExtra       = [...]byte{66, 67, 2, 0, 0, 0}
	bgzfExtraPrefix = [...]byte{66, 67, 2, 0}

	// terminator is the empty block that ends every BGZF file.
	terminator = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
		0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// Writer compresses a payload into BGZF blocks of at most a fixed number of
// uncompressed bytes, then appends the EOF terminator on Close. It tracks the
// voffset of the next payload byte, so callers can record where each record
// starts.
type Writer struct {
	w         io.Writer
	blockSize int
	gz        *gzip.Writer
	pending   bytes.Buffer // uncompressed bytes of the current block
	out       bytes.Buffer // compressed bytes of the block being emitted
	coffset   int64        // file offset of the current block
}

// NewWriter returns a Writer with DefaultUncompressedBlockSize blocks.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	return NewWriterParams(w, level, DefaultUncompressedBlockSize)
}

// NewWriterParams returns a Writer whose blocks hold at most blockSize
// uncompressed bytes.
func NewWriterParams(w io.Writer, level, blockSize int) (*Writer, error) {
	if blockSize <= 0 || blockSize > MaxUncompressedBlockSize {
		return nil, fmt.Errorf("bgzf block size %d not in (0, %d]", blockSize, MaxUncompressedBlockSize)
	}
	gz, err := gzip.NewWriterLevel(ioutil.Discard, level)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, blockSize: blockSize, gz: gz}, nil
}

// Write appends buf to the payload, emitting every block that fills up.
func (w *Writer) Write(buf []byte) (int, error) {
	n := 0
	for len(buf) > 0 {
		room := w.blockSize - w.pending.Len()
		if room > len(buf) {
			room = len(buf)
		}
		w.pending.Write(buf[:room]) // nolint: errcheck
		buf = buf[room:]
		n += room
		if w.pending.Len() == w.blockSize {
			if err := w.emit(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// FlushBlock compresses any buffered data into its own block, so the next
// byte written starts a new block.  It is a no-op if nothing is buffered.
func (w *Writer) FlushBlock() error {
	if w.pending.Len() == 0 {
		return nil
	}
	return w.emit()
}

// Close flushes the last block and appends the terminator.
func (w *Writer) Close() error {
	if err := w.FlushBlock(); err != nil {
		return err
	}
	n, err := w.w.Write(terminator)
	w.coffset += int64(n)
	return err
}

// VOffset returns the virtual offset of the next byte to be written.
func (w *Writer) VOffset() VOffset {
	return MakeVOffset(w.coffset, uint16(w.pending.Len()))
}

// emit compresses the pending bytes into one block and writes it out.
func (w *Writer) emit() error {
	w.out.Reset()
	w.gz.Reset(&w.out)
	w.gz.Header.Extra = append([]byte(nil), bgzfExtra[:]...)
	w.gz.Header.OS = 0xff // unknown
	if _, err := w.gz.Write(w.pending.Bytes()); err != nil {
		return err
	}
	if err := w.gz.Close(); err != nil {
		return err
	}
	w.pending.Reset()

	// The BC subfield payload is the block size minus one. The gzip header
	// is fixed, so the subfield starts at byte 12.
	b := w.out.Bytes()
	const extraOff = 12
	bsize := len(b) - 1
	if bsize >= compressedBlockSize {
		return fmt.Errorf("bgzf block of %d bytes exceeds %d", len(b), compressedBlockSize)
	}
	if len(b) < extraOff+len(bgzfExtra) || !bytes.Equal(b[extraOff:extraOff+len(bgzfExtraPrefix)], bgzfExtraPrefix[:]) {
		log.Panicf("bgzf: gzip header lacks the BC subfield")
	}
	binary.LittleEndian.PutUint16(b[extraOff+4:], uint16(bsize))
	n, err := w.w.Write(b)
	w.coffset += int64(n)
	return err
}
