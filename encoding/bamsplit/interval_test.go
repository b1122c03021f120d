// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want Interval
	}{
		{"chr1", Interval{"chr1", 1, maxPos}},
		{"chr1:100", Interval{"chr1", 100, maxPos}},
		{"chr1:100-200", Interval{"chr1", 100, 200}},
		{"chr1:1,000-2,000", Interval{"chr1", 1000, 2000}},
		{"HLA-A*01:01:01:01:1-10", Interval{"HLA-A*01:01:01:01", 1, 10}},
	}
	for _, test := range tests {
		got, err := ParseInterval(test.in)
		assert.NoError(t, err, test.in)
		expect.EQ(t, got, test.want)
	}
	for _, bad := range []string{"", ":1-10", "chr1:x", "chr1:1-y", "chr1:-"} {
		_, err := ParseInterval(bad)
		expect.True(t, IsInvalidInterval(err), "%q: %v", bad, err)
	}
}

func TestParseIntervals(t *testing.T) {
	got, err := ParseIntervals("chr1:1-10; chr2:5-6\tchr3")
	assert.NoError(t, err)
	expect.EQ(t, got, []Interval{{"chr1", 1, 10}, {"chr2", 5, 6}, {"chr3", 1, maxPos}})

	got, err = ParseIntervals("")
	assert.NoError(t, err)
	expect.EQ(t, len(got), 0)

	_, err = ParseIntervals("chr1:1-10;chr1:z")
	expect.True(t, IsInvalidInterval(err))
}

func TestIntervalResolve(t *testing.T) {
	header := testHeader(t, nil)
	r, err := Interval{"chr21", 5000, 9999}.resolve(header)
	assert.NoError(t, err)
	expect.EQ(t, r, resolvedInterval{refID: 1, start: 4999, end: 9999})

	// The end is clamped to the reference length.
	r, err = Interval{"chr20", 1, maxPos}.resolve(header)
	assert.NoError(t, err)
	expect.EQ(t, r, resolvedInterval{refID: 0, start: 0, end: 100000})

	// Single base.
	r, err = Interval{"chr20", 7, 7}.resolve(header)
	assert.NoError(t, err)
	expect.EQ(t, r, resolvedInterval{refID: 0, start: 6, end: 7})

	for _, bad := range []Interval{
		{"chr22", 1, 10},
		{"chr21", 10, 9},
		{"chr21", 0, 9},
	} {
		_, err := bad.resolve(header)
		expect.True(t, IsInvalidInterval(err), "%v: %v", bad, err)
	}

	expect.NoError(t, ValidateIntervals(header, fixtureIntervals))
	expect.NoError(t, ValidateIntervals(header, nil))
	err = ValidateIntervals(header, []Interval{{"chr21", 1, 2}, {"chrM", 1, 2}})
	expect.True(t, IsInvalidInterval(err))
}

func TestOverlapDetector(t *testing.T) {
	header := testHeader(t, nil)
	chr20, chr21 := header.Refs()[0], header.Refs()[1]
	d, err := NewOverlapDetector(header, fixtureIntervals)
	assert.NoError(t, err)

	tests := []struct {
		name  string
		ref   *sam.Reference
		pos   int
		flags sam.Flags
		want  bool
	}{
		{"before", chr21, 4980, 0, false},
		{"reaches start", chr21, 4990, 0, true},
		{"inside", chr21, 6000, 0, true},
		{"last base", chr21, 9998, 0, true},
		{"after", chr21, 9999, 0, false},
		{"second interval", chr21, 22990, 0, true},
		{"other ref", chr20, 6000, 0, false},
		{"unmapped placed inside", chr21, 6000, sam.Unmapped, true},
		{"unmapped placed before", chr21, 4990, sam.Unmapped, false},
		{"unplaced", nil, -1, sam.Unmapped, false},
	}
	for _, test := range tests {
		r := newRead(t, "r", test.ref, test.pos, -1, test.flags)
		expect.EQ(t, d.Overlaps(r), test.want, test.name)
	}

	_, err = NewOverlapDetector(header, []Interval{{"chrX", 1, 2}})
	expect.True(t, IsInvalidInterval(err))
}
