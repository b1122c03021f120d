// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"context"
	"io"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	htsbam "github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// Iterator iterates over the records of one split, in file order. Thread
// compatible.
type Iterator interface {
	// Scan returns whether there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If an error
	// occurs, Scan returns false and the error can be retrieved by calling
	// Err.
	Scan() bool

	// Record returns the current record. This must be called only after a
	// call to Scan returns true.
	Record() *sam.Record

	// Err returns the error encountered during iteration, or nil if no error
	// occurred.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

type splitIterator struct {
	ctx      context.Context
	split    Split
	detector *OverlapDetector

	in     file.File
	reader *htsbam.Reader
	rec    *sam.Record
	err    error
}

// NewIterator returns an iterator over the records that start in s. If
// intervals is nonempty, only records that overlap at least one interval
// are yielded. The iterator reads through its own file handle, so several
// iterators may be used concurrently.
func (f *File) NewIterator(ctx context.Context, s Split, intervals []Interval) Iterator {
	i := &splitIterator{ctx: ctx, split: s}
	if len(intervals) > 0 {
		if i.detector, i.err = NewOverlapDetector(f.header, intervals); i.err != nil {
			return i
		}
	}
	if s.Empty() {
		i.err = io.EOF
		return i
	}
	if i.in, i.err = file.Open(ctx, f.path); i.err != nil {
		return i
	}
	if i.reader, i.err = htsbam.NewReader(i.in.Reader(ctx), 1); i.err != nil {
		i.err = errors.E(errors.Integrity, i.err, f.path)
		return i
	}
	i.err = i.reader.Seek(s.Start.Offset())
	return i
}

// Scan implements Iterator.
func (i *splitIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	for {
		rec, err := i.reader.Read()
		if err != nil {
			i.err = err
			return false
		}
		if bgzf.FromOffset(i.reader.LastChunk().Begin) >= i.split.End {
			i.err = io.EOF
			return false
		}
		if i.detector != nil && !i.detector.Overlaps(rec) {
			continue
		}
		i.rec = rec
		return true
	}
}

// Record implements Iterator.
func (i *splitIterator) Record() *sam.Record { return i.rec }

// Err implements Iterator.
func (i *splitIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements Iterator.
func (i *splitIterator) Close() error {
	e := errors.Once{}
	e.Set(i.Err())
	if i.reader != nil {
		e.Set(i.reader.Close())
	}
	if i.in != nil {
		e.Set(i.in.Close(i.ctx))
	}
	return e.Err()
}
