// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"github.com/biogo/store/interval"
	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// span is a 0-based, half-open range stored in an interval tree.
type span struct {
	start, end int
	id         uintptr
}

func (s span) Overlap(b interval.IntRange) bool {
	return s.start < b.End && b.Start < s.end
}
func (s span) ID() uintptr              { return s.id }
func (s span) Range() interval.IntRange { return interval.IntRange{Start: s.start, End: s.end} }

// query is a 0-based, half-open range to look up.
type query struct{ start, end int }

func (q query) Overlap(b interval.IntRange) bool {
	return q.start < b.End && b.Start < q.end
}

// OverlapDetector decides whether a record overlaps any of a set of
// intervals. Thread compatible.
type OverlapDetector struct {
	trees map[int]*interval.IntTree
}

// NewOverlapDetector builds a detector for intervals on header. It fails if
// any interval is invalid.
func NewOverlapDetector(header *sam.Header, intervals []Interval) (*OverlapDetector, error) {
	d := &OverlapDetector{trees: map[int]*interval.IntTree{}}
	for i, iv := range intervals {
		r, err := iv.resolve(header)
		if err != nil {
			return nil, err
		}
		if r.end <= r.start {
			continue
		}
		t := d.trees[r.refID]
		if t == nil {
			t = &interval.IntTree{}
			d.trees[r.refID] = t
		}
		if err := t.Insert(span{start: r.start, end: r.end, id: uintptr(i)}, true); err != nil {
			return nil, err
		}
	}
	for _, t := range d.trees {
		t.AdjustRanges()
	}
	return d, nil
}

// Overlaps reports whether r overlaps any interval. An unmapped read that
// is placed at a position counts as covering the one base at that
// position; unplaced reads never overlap.
func (d *OverlapDetector) Overlaps(r *sam.Record) bool {
	if r.Ref == nil || r.Pos < 0 {
		return false
	}
	t := d.trees[r.Ref.ID()]
	if t == nil {
		return false
	}
	end := r.Pos + 1
	if !bam.IsUnmapped(r) {
		if e := r.End(); e > end {
			end = e
		}
	}
	return len(t.Get(query{start: r.Pos, end: end})) > 0
}
