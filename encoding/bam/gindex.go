// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	htsbgzf "github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// MaxRecordSize is the largest record block_size accepted by readers in
// this package.
const MaxRecordSize = 0xffffff

// GIndex is the .gbai index: a sorted list of (refID, pos, seq) keys, each
// mapped to the voffset of a record in a coordinate-sorted BAM file. Entries
// are spaced roughly evenly in compressed bytes, with one extra entry at the
// first record of every reference, so the first entry always points at the
// first record of the file. Records with refID -1 sort last.
//
// On disk, the index is gzip compressed. It starts with the 16-byte magic
// gbaiMagic ("GBAI\x01" plus 11 fixed random bytes), followed by entries
// encoded as little-endian {int32 refID, int32 pos, uint32 seq, uint64
// voffset}. Entries are strictly increasing both by key and by voffset.
//
// Since every entry points at the start of a record, a GIndex is also a
// splitting index: FirstAtOrAfter snaps a file offset to the next indexed
// record without decompressing any data.
type GIndex []GIndexEntry

var gbaiMagic = []byte{
	'G', 'B', 'A', 'I', 0x01, 0xf1, 0x78, 0x5c,
	0x7b, 0xcb, 0xc1, 0xba, 0x08, 0x23, 0xb1, 0x19,
}

// GIndexEntry is one entry of the .gbai index. Seq counts records that share
// (RefID, Pos); WriteGIndex always sets it to zero.
type GIndexEntry struct {
	RefID   int32
	Pos     int32
	Seq     uint32
	VOffset uint64
}

// FirstAtOrAfter returns the voffset of the first indexed record whose
// bgzf block starts at or after coffset. It returns false if there is no such
// entry.
func (idx *GIndex) FirstAtOrAfter(coffset int64) (bgzf.VOffset, bool) {
	target := uint64(bgzf.MakeVOffset(coffset, 0))
	x := sort.Search(len(*idx), func(i int) bool {
		return (*idx)[i].VOffset >= target
	})
	if x == len(*idx) {
		return 0, false
	}
	return bgzf.VOffset((*idx)[x].VOffset), true
}

// gindexWriter streams gzip-compressed .gbai entries to an io.Writer.
type gindexWriter struct {
	gz *gzip.Writer
}

func newGIndexWriter(w io.Writer) (*gindexWriter, error) {
	gz := gzip.NewWriter(w)
	if _, err := gz.Write(gbaiMagic); err != nil {
		return nil, err
	}
	return &gindexWriter{gz: gz}, nil
}

func (w *gindexWriter) append(e GIndexEntry) error {
	return binary.Write(w.gz, binary.LittleEndian, &e)
}

func (w *gindexWriter) close() error { return w.gz.Close() }

// lessKey orders entries by (refID, pos, seq), with refID -1 last.
func lessKey(x, y GIndexEntry) bool {
	if x.RefID != y.RefID {
		if x.RefID < 0 || y.RefID < 0 {
			return y.RefID < 0
		}
		return x.RefID < y.RefID
	}
	if x.Pos != y.Pos {
		return x.Pos < y.Pos
	}
	return x.Seq < y.Seq
}

// WriteGIndex reads a .bam file from r, and writes a .gbai file to w.
// The spacing between voffset file locations will be approximately
// byteInterval, and parallelism controls the .bam file read
// parallelism.  Currently, WriteGIndex will not create two index
// entries for a given (RefID, Pos) pair, i.e. Seq will always be
// zero.  That means there will be only one entry for the entire
// unmapped region.
func WriteGIndex(w io.Writer, r io.Reader, byteInterval, parallelism int) error {
	bgzfReader, err := htsbgzf.NewReader(r, parallelism)
	if err != nil {
		return err
	}
	header, err := sam.NewHeader(nil, nil)
	if err != nil {
		return err
	}
	if err := header.DecodeBinary(bgzfReader); err != nil {
		return err
	}
	gindex, err := newGIndexWriter(w)
	if err != nil {
		return err
	}

	// Read through all alignment records, and output voffsets at shard boundaries.
	var (
		prevRefID      int32
		prevPos        int32
		prevFileOffset int64
		firstRecord    = true
		sizeBuf        = make([]byte, 4)
		buf            = make([]byte, MaxRecordSize)
	)
	for {
		if _, err := io.ReadFull(bgzfReader, sizeBuf); err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		// The reader skips exhausted blocks before a read, so Begin is the
		// canonical voffset of the record.
		recordVOffset := bgzf.FromOffset(bgzfReader.LastChunk().Begin)
		sz := int(binary.LittleEndian.Uint32(sizeBuf))
		if sz > MaxRecordSize {
			return fmt.Errorf("bam record exceeds max: %d", sz)
		}
		if sz < bamFixedBytes {
			return fmt.Errorf("bam record at %v is too short: %d", recordVOffset, sz)
		}
		if _, err := io.ReadFull(bgzfReader, buf[0:sz]); err == io.EOF {
			return fmt.Errorf("could not read full bam record")
		} else if err != nil {
			return err
		}

		// Parse the relevant fields
		refID := int32(binary.LittleEndian.Uint32(buf[0:4]))
		pos := int32(binary.LittleEndian.Uint32(buf[4:8]))

		// Always add an entry for the first record of a new RefID.
		newRef := firstRecord || refID != prevRefID
		firstOccurrence := pos != prevPos
		prevPos = pos
		if !newRef && !(firstOccurrence && recordVOffset.Coffset()-prevFileOffset >= int64(byteInterval)) {
			continue
		}
		if err := gindex.append(GIndexEntry{RefID: refID, Pos: pos, VOffset: uint64(recordVOffset)}); err != nil {
			return err
		}
		prevRefID = refID
		prevFileOffset = recordVOffset.Coffset()
		firstRecord = false
	}
	return gindex.close()
}

// ReadGIndex parses a .gbai file from r. It fails if the entries are not
// strictly increasing by key and by voffset.
func ReadGIndex(r io.Reader) (gindex *GIndex, err error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := gz.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	magic := make([]byte, len(gbaiMagic))
	if _, err = io.ReadFull(gz, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(gbaiMagic, magic) {
		return nil, fmt.Errorf("bad gbai magic %v", magic)
	}
	index := GIndex{}
	for {
		var e GIndexEntry
		if err = binary.Read(gz, binary.LittleEndian, &e); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if n := len(index); n > 0 {
			prev := index[n-1]
			if !lessKey(prev, e) {
				return nil, fmt.Errorf("gbai entry %d: key %+v does not follow %+v", n, e, prev)
			}
			if prev.VOffset >= e.VOffset {
				return nil, fmt.Errorf("gbai entry %d: voffset %v does not follow %v", n, bgzf.VOffset(e.VOffset), bgzf.VOffset(prev.VOffset))
			}
		}
		// References without records have no entries.
		index = append(index, e)
	}
	return &index, nil
}
