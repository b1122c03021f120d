// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	htsbam "github.com/grailbio/hts/bam"
	htsbgzf "github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
)

// tileWidth is the span of one linear index window.
const tileWidth = 1 << 14

// Index is a .bai index bound to the references of the BAM file it indexes.
type Index struct {
	bai  *htsbam.Index
	refs []*sam.Reference
}

// Chunk is a half-open range [Begin, End) of virtual offsets.
type Chunk struct {
	Begin bgzf.VOffset
	End   bgzf.VOffset
}

// String returns "[begin,end)".
func (c Chunk) String() string {
	return fmt.Sprintf("[%v,%v)", c.Begin, c.End)
}

// ReadIndex reads a .bai index for a BAM file with the given header. The
// index may describe fewer references than the header, since references
// after the last one with records are often left out, but not more.
func ReadIndex(r io.Reader, header *sam.Header) (*Index, error) {
	bai, err := htsbam.ReadIndex(r)
	if err != nil {
		return nil, err
	}
	idx := &Index{bai: bai, refs: header.Refs()}
	if n := idx.NumRefs(); n > len(idx.refs) {
		return nil, fmt.Errorf("bam index has %d references, header has %d", n, len(idx.refs))
	}
	return idx, nil
}

// NumRefs returns the number of references the index describes.
func (i *Index) NumRefs() int {
	if i.bai == nil {
		return 0
	}
	return i.bai.NumRefs()
}

// Chunks returns the merged list of chunks that may contain records
// overlapping [beg, end) on reference refID. Positions are 0-based. The
// result is sorted by Begin, and no two chunks overlap or abut. It returns
// nil, nil if no record can overlap the range.
//
// The query starts one linear index tile before beg. Indexes built by hts
// do not point the tile in which a tile-crossing read ends at that read, so
// a query confined to that tile would otherwise miss it. The extra chunks
// only cost a few extra records read.
func (i *Index) Chunks(refID, beg, end int) ([]Chunk, error) {
	if refID < 0 || refID >= len(i.refs) {
		return nil, fmt.Errorf("bam index: reference id %d out of range [0,%d)", refID, len(i.refs))
	}
	if beg < 0 {
		beg = 0
	}
	if end <= beg || refID >= i.NumRefs() {
		return nil, nil
	}
	qbeg := beg - tileWidth
	if qbeg < 0 {
		qbeg = 0
	}
	chunks, err := i.bai.Chunks(i.refs[refID], qbeg, end)
	switch {
	case err == index.ErrInvalid || err == index.ErrNoReference:
		// No record starts at or after the query's tile.
		return nil, nil
	case err != nil:
		return nil, err
	}
	return fromHTSChunks(chunks), nil
}

// MergeChunks sorts the chunks by Begin and merges those that overlap or
// abut. The input slice may be reordered.
func MergeChunks(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return nil
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Begin < chunks[j].Begin })
	hc := make([]htsbgzf.Chunk, len(chunks))
	for i, c := range chunks {
		hc[i] = htsbgzf.Chunk{Begin: c.Begin.Offset(), End: c.End.Offset()}
	}
	return fromHTSChunks(index.Adjacent(hc))
}

func fromHTSChunks(hc []htsbgzf.Chunk) []Chunk {
	if len(hc) == 0 {
		return nil
	}
	chunks := make([]Chunk, len(hc))
	for i, c := range hc {
		chunks[i] = Chunk{Begin: bgzf.FromOffset(c.Begin), End: bgzf.FromOffset(c.End)}
	}
	return chunks
}
