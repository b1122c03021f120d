// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// ChunkIndex is a positional index. *bam.Index implements it.
type ChunkIndex interface {
	// Chunks returns the chunks that may hold records overlapping the
	// 0-based, half-open range [beg, end) of reference refID.
	Chunks(refID, beg, end int) ([]bam.Chunk, error)
}

var _ ChunkIndex = (*bam.Index)(nil)

// FilterActive reports whether interval filtering should run for n
// intervals. A threshold of zero disables filtering, as does n >
// threshold: beyond that many intervals, index queries cost more than
// scanning every split and filtering records as they are read.
func FilterActive(n, threshold int) bool {
	return n > 0 && threshold > 0 && n <= threshold
}

// ResolveChunks queries index for every interval and returns the union of
// the resulting chunks, sorted by Begin, with overlapping and abutting
// chunks merged. The result is empty, not nil, when no chunk matches.
func ResolveChunks(header *sam.Header, intervals []Interval, index ChunkIndex) ([]bam.Chunk, error) {
	if index == nil {
		return nil, errors.E(errors.Unavailable, "no positional index for interval filtering")
	}
	var all []bam.Chunk
	for _, iv := range intervals {
		r, err := iv.resolve(header)
		if err != nil {
			return nil, err
		}
		chunks, err := index.Chunks(r.refID, r.start, r.end)
		if err != nil {
			return nil, errors.E(errors.Unavailable, err, "query index for "+iv.String())
		}
		all = append(all, chunks...)
	}
	merged := bam.MergeChunks(all)
	if merged == nil {
		merged = []bam.Chunk{}
	}
	return merged, nil
}
