// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"context"

	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// RecordSource gives MergePairs access to the records at split boundaries.
// *File implements it.
type RecordSource interface {
	// LastRecord returns the last record that starts in s, or nil if s is
	// empty.
	LastRecord(ctx context.Context, s Split) (*sam.Record, error)
	// RecordAt returns the record that starts at off, and the offset at
	// which the following record starts. It returns a nil record if off is
	// the end of the record stream.
	RecordAt(ctx context.Context, off bgzf.VOffset) (*sam.Record, bgzf.VOffset, error)
}

// MergePairs moves split boundaries so that no boundary separates a read
// from its mate. If keepTogether is false, splits is returned unchanged.
//
// Only the last record of a split and the record at its end are compared,
// since every boundary is a record start. When they are mates, the split
// is extended to end after the mate. Following splits that now start
// before the new end are trimmed, and dropped once empty; the extended
// split is then checked again. The records covered by the result are those
// covered by splits, and the result has no more splits than the input.
func MergePairs(ctx context.Context, src RecordSource, splits []Split, keepTogether bool) ([]Split, error) {
	if !keepTogether || len(splits) == 0 {
		return splits, nil
	}
	pending := append([]Split(nil), splits...)
	merged := make([]Split, 0, len(pending))
	for i := range pending {
		cur := pending[i]
		if cur.Empty() {
			// Fully absorbed by its predecessor.
			continue
		}
		last, err := src.LastRecord(ctx, cur)
		if err != nil {
			return nil, err
		}
		for last != nil {
			first, next, err := src.RecordAt(ctx, cur.End)
			if err != nil {
				return nil, err
			}
			if first == nil || !bam.IsMate(last, first) {
				break
			}
			log.Debug.Printf("bamsplit: %s: moving end past mate %s (%v -> %v)", cur, first.Name, cur.End, next)
			cur.End = next
			for j := i + 1; j < len(pending) && pending[j].Start < cur.End; j++ {
				pending[j].Start = cur.End
			}
			last = first
		}
		merged = append(merged, cur)
	}
	return merged, nil
}
