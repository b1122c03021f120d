// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// maxPos is the end used for an interval with no explicit end. It is the
// largest position the BAM binning scheme can address.
const maxPos = 1<<29 - 1

// Interval is a genomic range on the reference named Ref. Start and End are
// 1-based and inclusive, as in samtools region strings.
type Interval struct {
	Ref        string
	Start, End int
}

// String returns the interval in "ref:start-end" form.
func (iv Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", iv.Ref, iv.Start, iv.End)
}

// ParseInterval parses a samtools-style region: "ref", "ref:start" or
// "ref:start-end". Positions are 1-based and inclusive, and may contain
// commas as digit separators. A missing start means 1 and a missing end
// means the end of the reference.
func ParseInterval(s string) (Interval, error) {
	iv := Interval{Ref: s, Start: 1, End: maxPos}
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		if s == "" {
			return Interval{}, errors.E(errors.Invalid, "empty interval")
		}
		return iv, nil
	}
	iv.Ref = s[:colon]
	if iv.Ref == "" {
		return Interval{}, errors.E(errors.Invalid, fmt.Sprintf("interval %q: missing reference name", s))
	}
	span := strings.Replace(s[colon+1:], ",", "", -1)
	parse := func(v string) (int, error) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.E(errors.Invalid, err, fmt.Sprintf("interval %q", s))
		}
		return n, nil
	}
	var err error
	if dash := strings.IndexByte(span, '-'); dash >= 0 {
		if iv.Start, err = parse(span[:dash]); err != nil {
			return Interval{}, err
		}
		if iv.End, err = parse(span[dash+1:]); err != nil {
			return Interval{}, err
		}
	} else if iv.Start, err = parse(span); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// ParseIntervals parses a list of regions separated by whitespace or
// semicolons.
func ParseIntervals(s string) ([]Interval, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	intervals := make([]Interval, 0, len(fields))
	for _, f := range fields {
		iv, err := ParseInterval(f)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// resolvedInterval is an Interval mapped onto a header: a reference id and
// a 0-based, half-open range.
type resolvedInterval struct {
	refID      int
	start, end int
}

// resolve maps iv onto header. It fails if the reference is unknown, if
// Start < 1, or if Start > End. End is clamped to the reference length.
func (iv Interval) resolve(header *sam.Header) (resolvedInterval, error) {
	var ref *sam.Reference
	for _, r := range header.Refs() {
		if r.Name() == iv.Ref {
			ref = r
			break
		}
	}
	if ref == nil {
		return resolvedInterval{}, errors.E(errors.Invalid, fmt.Sprintf("interval %v: unknown reference %q", iv, iv.Ref))
	}
	if iv.Start < 1 || iv.Start > iv.End {
		return resolvedInterval{}, errors.E(errors.Invalid, fmt.Sprintf("interval %v: invalid range", iv))
	}
	end := iv.End
	if end > ref.Len() {
		end = ref.Len()
	}
	return resolvedInterval{refID: ref.ID(), start: iv.Start - 1, end: end}, nil
}

// ValidateIntervals checks every interval against header. It returns the
// first error, whose kind is errors.Invalid.
func ValidateIntervals(header *sam.Header, intervals []Interval) error {
	for _, iv := range intervals {
		if _, err := iv.resolve(header); err != nil {
			return err
		}
	}
	return nil
}
