// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/sam"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSplitSize is the default value of Opts.SplitSize.
	DefaultSplitSize = int64(128 << 20)
	// DefaultMaxIntervalsForFiltering is the default value of
	// Opts.MaxIntervalsForFiltering.
	DefaultMaxIntervalsForFiltering = 10000
)

// Opts configure split computation. The zero value computes unfiltered
// splits without moving boundaries for pairs.
type Opts struct {
	// KeepPairsTogether moves split boundaries that separate a read from its
	// mate.
	KeepPairsTogether bool `yaml:"keep_pairs_together"`
	// Intervals restricts the splits to those that may contain records
	// overlapping at least one interval. Readers of the splits should apply
	// the same intervals per record.
	Intervals []Interval `yaml:"intervals"`
	// MaxIntervalsForFiltering disables interval filtering of splits when
	// more intervals than this are given. Zero disables filtering.
	MaxIntervalsForFiltering int `yaml:"max_intervals_for_filtering"`
	// SplitSize is the size of the raw ranges in bytes.
	SplitSize int64 `yaml:"split_size"`
	// Index is the path of the .bai index. If empty, the BAM path plus
	// ".bai" is used.
	Index string `yaml:"index"`
	// GIndex, if set, is the path of a .gbai index used to place split
	// boundaries instead of scanning the compressed data.
	GIndex string `yaml:"gindex"`
	// Parallelism is the number of boundaries guessed concurrently. Values
	// below 2 guess sequentially.
	Parallelism int `yaml:"parallelism"`
}

// DefaultOpts returns the options used by the command line tool.
func DefaultOpts() Opts {
	return Opts{
		SplitSize:                DefaultSplitSize,
		MaxIntervalsForFiltering: DefaultMaxIntervalsForFiltering,
		Parallelism:              1,
	}
}

// LoadOpts reads YAML-encoded options from path. Fields missing from the
// file keep their values from DefaultOpts.
func LoadOpts(ctx context.Context, path string) (opts Opts, err error) {
	opts = DefaultOpts()
	in, err := file.Open(ctx, path)
	if err != nil {
		return opts, errors.E(err, "open options", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return opts, errors.E(err, "read options", path)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.E(errors.Invalid, err, "parse options", path)
	}
	return opts, nil
}

// Validate checks opts against the BAM header. Errors have kind
// errors.Invalid.
func (o Opts) Validate(header *sam.Header) error {
	if o.SplitSize < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("negative split size %d", o.SplitSize))
	}
	if o.MaxIntervalsForFiltering < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("negative interval threshold %d", o.MaxIntervalsForFiltering))
	}
	return ValidateIntervals(header, o.Intervals)
}

// UnmarshalYAML parses an interval from a samtools-style region string.
func (iv *Interval) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseInterval(s)
	if err != nil {
		return err
	}
	*iv = parsed
	return nil
}

// MarshalYAML encodes the interval as a region string.
func (iv Interval) MarshalYAML() (interface{}, error) {
	return iv.String(), nil
}
