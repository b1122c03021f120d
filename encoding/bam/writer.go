// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"io"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	htsbam "github.com/grailbio/hts/bam"
	htsbgzf "github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// WriterOpts control a Writer.
type WriterOpts struct {
	// Level is the gzip compression level. Zero means
	// gzip.DefaultCompression.
	Level int
	// BlockSize is the uncompressed size of a bgzf block. Zero means
	// bgzf.DefaultUncompressedBlockSize.
	BlockSize int
	// Index causes the writer to accumulate a .bai index. Records must then
	// be written in coordinate order.
	Index bool
}

// Writer writes a BAM file and reports the virtual offset at which each
// record starts. The header is written into its own bgzf block.
type Writer struct {
	bw    *bgzf.Writer
	index *htsbam.Index
	buf   bytes.Buffer
}

// NewWriter creates a Writer and writes header to w.
func NewWriter(w io.Writer, header *sam.Header, opts WriterOpts) (*Writer, error) {
	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = bgzf.DefaultUncompressedBlockSize
	}
	bw, err := bgzf.NewWriterParams(w, level, blockSize)
	if err != nil {
		return nil, err
	}
	hdr, err := MarshalHeader(header)
	if err != nil {
		return nil, errors.Wrap(err, "encode bam header")
	}
	if _, err := bw.Write(hdr); err != nil {
		return nil, err
	}
	if err := bw.FlushBlock(); err != nil {
		return nil, err
	}
	bamw := &Writer{bw: bw}
	if opts.Index {
		bamw.index = &htsbam.Index{}
	}
	return bamw, nil
}

// Write appends r and returns the virtual offset of its first byte.
func (w *Writer) Write(r *sam.Record) (bgzf.VOffset, error) {
	w.buf.Reset()
	if err := Marshal(r, &w.buf); err != nil {
		return 0, errors.Wrapf(err, "marshal %s", r.Name)
	}
	begin := w.bw.VOffset()
	if _, err := w.bw.Write(w.buf.Bytes()); err != nil {
		return 0, err
	}
	if w.index != nil {
		chunk := htsbgzf.Chunk{Begin: begin.Offset(), End: w.bw.VOffset().Offset()}
		if err := w.addToIndex(r, chunk); err != nil {
			return 0, errors.Wrapf(err, "index %s", r.Name)
		}
	}
	return begin, nil
}

// tileOverflow is the panic value of htsbam.Index.Add for a read that ends
// in a linear index tile that no earlier read has reached, but starts in a
// tile that one has.
const tileOverflow = "index: unexpected alignment length"

// addToIndex adds r to the .bai. For a read that ends in the tile after the
// last one set, Add panics with tileOverflow once it has recorded the read's
// bin. The read stays indexed through its bin, the tile it ends in stays
// unset, and the reference's mapped-read count omits it. Index.Chunks
// queries from one tile earlier to reach such reads. Any other panic is
// returned as an error.
func (w *Writer) addToIndex(r *sam.Record, c htsbgzf.Chunk) (err error) {
	defer func() {
		if p := recover(); p != nil && p != tileOverflow {
			err = errors.Errorf("bam index: %v", p)
		}
	}()
	return w.index.Add(r, c)
}

// FlushBlock ends the current bgzf block, so that the next record starts
// at uoffset 0 of a new block.
func (w *Writer) FlushBlock() error { return w.bw.FlushBlock() }

// VOffset returns the virtual offset at which the next record will start.
func (w *Writer) VOffset() bgzf.VOffset { return w.bw.VOffset() }

// Close flushes buffered data and writes the bgzf terminator. It does not
// close the underlying writer.
func (w *Writer) Close() error { return w.bw.Close() }

// WriteIndex writes the accumulated .bai index to iw. It must be called
// after Close, and only if the writer was created with WriterOpts.Index.
func (w *Writer) WriteIndex(iw io.Writer) error {
	if w.index == nil {
		return errors.New("bam writer was created without an index")
	}
	return htsbam.WriteIndex(iw, w.index)
}
