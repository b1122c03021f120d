// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"fmt"

	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/bamsplit/encoding/bgzf"
)

// splitSlop lets the last raw range grow up to 10% past the split size
// instead of leaving a tiny range at the end of the file.
const splitSlop = 1.1

// RawRange is a half-open range [Start, End) of file bytes. Its boundaries
// need not fall on record or block boundaries.
type RawRange struct {
	Start, End int64
}

// RawRanges divides [0, fileSize) into ranges of splitSize bytes. The last
// range may be up to 10% larger than splitSize. A non-positive splitSize
// yields a single range.
func RawRanges(fileSize, splitSize int64) []RawRange {
	if fileSize <= 0 {
		return nil
	}
	if splitSize <= 0 {
		return []RawRange{{0, fileSize}}
	}
	var ranges []RawRange
	remaining := fileSize
	for float64(remaining)/float64(splitSize) > splitSlop {
		start := fileSize - remaining
		ranges = append(ranges, RawRange{start, start + splitSize})
		remaining -= splitSize
	}
	if remaining > 0 {
		ranges = append(ranges, RawRange{fileSize - remaining, fileSize})
	}
	return ranges
}

// Split is a half-open range [Start, End) of virtual offsets in the BAM file
// at Path. Start is the beginning of a record; End is the beginning of a
// record or the end of the record stream.
type Split struct {
	Path       string
	Start, End bgzf.VOffset
}

// Empty reports whether s contains no records.
func (s Split) Empty() bool { return s.Start >= s.End }

// Intersects reports whether s and c share at least one virtual offset.
func (s Split) Intersects(c bam.Chunk) bool {
	return c.Begin < s.End && s.Start < c.End
}

// String returns "path:[start,end)".
func (s Split) String() string {
	return fmt.Sprintf("%s:[%v,%v)", s.Path, s.Start, s.End)
}
