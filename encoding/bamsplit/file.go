// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	htsbam "github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// lastRecordWindow is how many compressed bytes before a split's end
// LastRecord examines before falling back to scanning the whole split.
const lastRecordWindow = 2 * bgzf.MaxUncompressedBlockSize

// File is an open BAM file. It reads records through one file handle and
// decompresses blocks for boundary guessing through another. Thread
// compatible.
type File struct {
	path        string
	size        int64
	header      *sam.Header
	firstRecord bgzf.VOffset
	eof         bgzf.VOffset

	in      file.File
	reader  *htsbam.Reader
	blocks  file.File
	guesser *Guesser
}

// Open opens the BAM file at path, which may be any path grailbio/base/file
// understands, and reads its header and the location of its first record.
func Open(ctx context.Context, path string) (*File, error) {
	f := &File{path: path}
	if err := f.open(ctx); err != nil {
		f.Close(ctx) // nolint: errcheck
		return nil, err
	}
	return f, nil
}

func (f *File) open(ctx context.Context) error {
	info, err := file.Stat(ctx, f.path)
	if err != nil {
		return errors.E(err, "stat", f.path)
	}
	f.size = info.Size()
	f.eof = bgzf.MakeVOffset(f.size, 0)
	if f.in, err = file.Open(ctx, f.path); err != nil {
		return errors.E(err, "open", f.path)
	}
	if f.reader, err = htsbam.NewReader(f.in.Reader(ctx), 1); err != nil {
		return errors.E(errors.Integrity, err, "read bam header", f.path)
	}
	f.header = f.reader.Header()
	f.firstRecord = f.eof
	if _, err = f.reader.Read(); err == nil {
		f.firstRecord = bgzf.FromOffset(f.reader.LastChunk().Begin)
	} else if err != io.EOF {
		return errors.E(errors.Integrity, err, "read first record", f.path)
	}
	if f.blocks, err = file.Open(ctx, f.path); err != nil {
		return errors.E(err, "open", f.path)
	}
	f.guesser = NewGuesser(bgzf.NewBlockReader(f.blocks.Reader(ctx), f.size), len(f.header.Refs()), f.firstRecord)
	return nil
}

// Path returns the path of the file.
func (f *File) Path() string { return f.path }

// Size returns the size of the file in bytes.
func (f *File) Size() int64 { return f.size }

// Header returns the BAM header. The caller must not modify it.
func (f *File) Header() *sam.Header { return f.header }

// FirstRecord returns the offset of the first record, or EOF() if the file
// has no records.
func (f *File) FirstRecord() bgzf.VOffset { return f.firstRecord }

// EOF returns the offset of the end of the record stream.
func (f *File) EOF() bgzf.VOffset { return f.eof }

// Guess returns the first record start at or after the raw file offset. See
// Guesser.Guess.
func (f *File) Guess(raw int64) (bgzf.VOffset, bool, error) { return f.guesser.Guess(raw) }

// Close releases the file handles.
func (f *File) Close(ctx context.Context) error {
	e := errors.Once{}
	if f.reader != nil {
		e.Set(f.reader.Close())
		f.reader = nil
	}
	if f.in != nil {
		e.Set(f.in.Close(ctx))
		f.in = nil
	}
	if f.blocks != nil {
		e.Set(f.blocks.Close(ctx))
		f.blocks = nil
	}
	return e.Err()
}

// OpenIndex reads the .bai index at path, or at the BAM path plus ".bai" if
// path is empty. Failures have kind errors.Unavailable.
func (f *File) OpenIndex(ctx context.Context, path string) (idx *bam.Index, err error) {
	if path == "" {
		path = f.path + ".bai"
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Unavailable, err, "open index", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if idx, err = bam.ReadIndex(in.Reader(ctx), f.header); err != nil {
		return nil, errors.E(errors.Unavailable, err, "read index", path)
	}
	return idx, nil
}

// OpenGIndex reads the .gbai index at path, or at the BAM path plus ".gbai"
// if path is empty. Failures have kind errors.Unavailable.
func (f *File) OpenGIndex(ctx context.Context, path string) (idx *bam.GIndex, err error) {
	if path == "" {
		path = f.path + ".gbai"
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Unavailable, err, "open gindex", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if idx, err = bam.ReadGIndex(in.Reader(ctx)); err != nil {
		return nil, errors.E(errors.Unavailable, err, "read gindex", path)
	}
	return idx, nil
}

// read returns the record at the current position of the reader and the
// offset at which it starts, or a nil record at the end of the stream.
func (f *File) read() (*sam.Record, bgzf.VOffset, error) {
	rec, err := f.reader.Read()
	if err == io.EOF {
		return nil, f.eof, nil
	}
	if err != nil {
		return nil, 0, errors.E(errors.Integrity, err, "read record", f.path)
	}
	return rec, bgzf.FromOffset(f.reader.LastChunk().Begin), nil
}

func (f *File) seek(off bgzf.VOffset) error {
	if err := f.reader.Seek(off.Offset()); err != nil {
		return errors.E(err, fmt.Sprintf("seek to %v", off), f.path)
	}
	return nil
}

// RecordAt implements RecordSource.
func (f *File) RecordAt(ctx context.Context, off bgzf.VOffset) (*sam.Record, bgzf.VOffset, error) {
	if off >= f.eof {
		return nil, f.eof, nil
	}
	if err := f.seek(off); err != nil {
		return nil, 0, err
	}
	rec, begin, err := f.read()
	if err != nil || rec == nil {
		return nil, f.eof, err
	}
	if begin != off {
		return nil, 0, errors.E(errors.Integrity, fmt.Sprintf("%s: no record starts at %v", f.path, off))
	}
	// The reader normalizes offsets at block ends, so the start of the
	// following record is read rather than computed.
	_, next, err := f.read()
	return rec, next, err
}

// LastRecord implements RecordSource.
func (f *File) LastRecord(ctx context.Context, s Split) (*sam.Record, error) {
	if s.Empty() {
		return nil, nil
	}
	// Try the tail of the split first. The guess is trusted only if the
	// records that follow it end exactly at s.End.
	if tail := s.End.Coffset() - lastRecordWindow; tail > s.Start.Coffset() {
		start, found, err := f.guesser.Guess(tail)
		if err != nil {
			return nil, err
		}
		if found && start > s.Start && start < s.End {
			rec, end, err := f.lastBefore(start, s.End)
			if err == nil && rec != nil && end == s.End {
				return rec, nil
			}
		}
	}
	rec, end, err := f.lastBefore(s.Start, s.End)
	if err != nil {
		return nil, err
	}
	if end != s.End && end < f.eof {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("%s: split %v does not end at a record start (next record at %v)", f.path, s, end))
	}
	return rec, nil
}

// lastBefore reads records from start and returns the last one that begins
// before end, together with the offset of the record that follows it.
func (f *File) lastBefore(start, end bgzf.VOffset) (*sam.Record, bgzf.VOffset, error) {
	if err := f.seek(start); err != nil {
		return nil, 0, err
	}
	var last *sam.Record
	for {
		rec, begin, err := f.read()
		if err != nil {
			return nil, 0, err
		}
		if rec == nil || begin >= end {
			return last, begin, nil
		}
		last = rec
	}
}
