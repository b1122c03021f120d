// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"fmt"

	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// followingRecords is the number of records after a candidate that must
// also pass CheckRecord, when they lie inside the scan window.
const followingRecords = 2

// bamFixedBytes is the size of the fixed part of a record after block_size.
const bamFixedBytes = 32

// Guesser finds record boundaries in a BAM file without an index. It
// decompresses blocks near a raw file offset and looks for a run of
// structurally valid records.
//
// A Guesser reads through its own BlockReader and is not safe for
// concurrent use. Guesses for different offsets are independent of each
// other.
type Guesser struct {
	br    *bgzf.BlockReader
	nRefs int
	// firstRecord is the offset of the first record, or eof if the file
	// has none. Blocks before it hold the header.
	firstRecord bgzf.VOffset
	eof         bgzf.VOffset

	window []byte
}

// NewGuesser creates a Guesser for a BAM file with nRefs references whose
// first record starts at firstRecord. firstRecord must equal
// bgzf.MakeVOffset(br.Size(), 0) if the file has no records.
func NewGuesser(br *bgzf.BlockReader, nRefs int, firstRecord bgzf.VOffset) *Guesser {
	return &Guesser{
		br:          br,
		nRefs:       nRefs,
		firstRecord: firstRecord,
		eof:         bgzf.MakeVOffset(br.Size(), 0),
	}
}

// EOF returns the virtual offset of the end of the record stream.
func (g *Guesser) EOF() bgzf.VOffset { return g.eof }

// Guess returns the virtual offset of the first record that starts in a
// bgzf block at or after the file offset raw. If no record starts between
// raw and the end of the file, it returns (g.EOF(), false, nil).
//
// Errors are fatal: they report a block that cannot be decompressed, or an
// I/O failure.
func (g *Guesser) Guess(raw int64) (bgzf.VOffset, bool, error) {
	if g.firstRecord >= g.eof || raw >= g.br.Size() {
		return g.eof, false, nil
	}
	coffset, found, err := g.br.NextBlock(raw)
	if err != nil {
		if bgzf.IsMalformed(err) {
			return 0, false, errors.E(errors.Integrity, fmt.Sprintf("find block at or after %d", raw), err)
		}
		return 0, false, errors.E(err, fmt.Sprintf("find block at or after %d", raw))
	}
	if !found {
		return g.eof, false, nil
	}
	// Blocks up to and including the one holding the first record contain
	// header data, which must not be mistaken for records.
	if coffset <= g.firstRecord.Coffset() {
		return g.firstRecord, true, nil
	}
	for coffset < g.br.Size() {
		block, err := g.readBlock(coffset)
		if err != nil {
			return 0, false, err
		}
		n := len(block.Data)
		next := block.Next()
		g.window = append(g.window[:0], block.Data...)
		// Records may straddle into the following block.
		if next < g.br.Size() {
			following, err := g.readBlock(next)
			if err != nil {
				return 0, false, err
			}
			g.window = append(g.window, following.Data...)
		}
		for u := 0; u < n; u++ {
			if g.plausible(g.window[u:]) {
				vo := bgzf.MakeVOffset(coffset, uint16(u))
				log.Debug.Printf("bamsplit: raw offset %d resolved to %v", raw, vo)
				return vo, true, nil
			}
		}
		coffset = next
	}
	return g.eof, false, nil
}

func (g *Guesser) readBlock(coffset int64) (bgzf.Block, error) {
	block, err := g.br.ReadBlock(coffset)
	if err == nil {
		return block, nil
	}
	if bgzf.IsMalformed(err) {
		return bgzf.Block{}, errors.E(errors.Integrity, err)
	}
	return bgzf.Block{}, errors.E(err, fmt.Sprintf("read block at %d", coffset))
}

// plausible reports whether win starts with a record, followed by up to
// followingRecords more records that are fully contained in win.
func (g *Guesser) plausible(win []byte) bool {
	n, err := bam.CheckRecord(win, g.nRefs)
	if err != nil {
		return false
	}
	for i := 0; i < followingRecords && n < len(win); i++ {
		rest := win[n:]
		h, err := bam.DecodeRecordHeader(rest)
		if err != nil {
			// Too short to tell.
			break
		}
		if h.Size() > len(rest) {
			if h.BlockSize < bamFixedBytes || h.BlockSize > bam.MaxRecordSize {
				return false
			}
			// Runs past the window; accept what has been seen.
			break
		}
		m, err := bam.CheckRecord(rest, g.nRefs)
		if err != nil {
			return false
		}
		n += m
	}
	return true
}
