// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"sort"

	"github.com/grailbio/bamsplit/encoding/bam"
)

// FilterSplits returns the splits that intersect at least one chunk, in
// their original order. The splits are not modified. chunks must be sorted
// and merged, as returned by ResolveChunks.
func FilterSplits(splits []Split, chunks []bam.Chunk) []Split {
	kept := make([]Split, 0, len(splits))
	for _, s := range splits {
		// Merged chunks are sorted by both Begin and End, so the first chunk
		// that ends after s.Start is the only candidate.
		i := sort.Search(len(chunks), func(i int) bool { return chunks[i].End > s.Start })
		if i < len(chunks) && s.Intersects(chunks[i]) {
			kept = append(kept, s)
		}
	}
	return kept
}
