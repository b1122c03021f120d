// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"context"
	"sort"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// ComputeFile opens the BAM file at path, divides it into raw ranges of
// opts.SplitSize bytes, and computes splits with Compute.
func ComputeFile(ctx context.Context, path string, opts Opts) (splits []Split, err error) {
	f, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Compute(ctx, f, RawRanges(f.Size(), opts.SplitSize), opts)
}

// Compute turns raw byte ranges of f into splits. ranges must be sorted and
// cover the file without gaps or overlaps.
//
// Each range boundary is moved to the first record that starts in a bgzf
// block at or after it, so adjacent splits share their boundary and the
// splits cover every record exactly once. Splits without records are
// dropped. Then, if interval filtering is active (see FilterActive), splits
// that intersect no index chunk of opts.Intervals are dropped, and if
// opts.KeepPairsTogether is set, boundaries between mates are moved (see
// MergePairs).
//
// Every error aborts the computation. Invalid intervals are reported before
// any record data is read.
func Compute(ctx context.Context, f *File, ranges []RawRange, opts Opts) ([]Split, error) {
	if err := opts.Validate(f.Header()); err != nil {
		return nil, err
	}
	bounds, err := resolveBoundaries(ctx, f, ranges, opts)
	if err != nil {
		return nil, err
	}
	splits := make([]Split, 0, len(ranges))
	for _, r := range ranges {
		s := Split{Path: f.Path(), Start: bounds[r.Start], End: bounds[r.End]}
		if s.Empty() {
			log.Debug.Printf("bamsplit: raw range [%d,%d) holds no records", r.Start, r.End)
			continue
		}
		splits = append(splits, s)
	}
	nRefined := len(splits)

	if FilterActive(len(opts.Intervals), opts.MaxIntervalsForFiltering) {
		idx, err := f.OpenIndex(ctx, opts.Index)
		if err != nil {
			return nil, err
		}
		chunks, err := ResolveChunks(f.Header(), opts.Intervals, idx)
		if err != nil {
			return nil, err
		}
		splits = FilterSplits(splits, chunks)
	} else if len(opts.Intervals) > 0 {
		log.Debug.Printf("bamsplit: %d intervals, threshold %d: not filtering splits",
			len(opts.Intervals), opts.MaxIntervalsForFiltering)
	}
	nFiltered := len(splits)

	if splits, err = MergePairs(ctx, f, splits, opts.KeepPairsTogether); err != nil {
		return nil, err
	}
	log.Printf("bamsplit: %s: %d raw ranges, %d splits, %d after filtering, %d after pairing",
		f.Path(), len(ranges), nRefined, nFiltered, len(splits))
	return splits, nil
}

// resolveBoundaries maps every distinct range boundary to a record offset.
func resolveBoundaries(ctx context.Context, f *File, ranges []RawRange, opts Opts) (map[int64]bgzf.VOffset, error) {
	bounds := map[int64]bgzf.VOffset{}
	var raw []int64
	add := func(off int64) {
		if _, ok := bounds[off]; ok {
			return
		}
		bounds[off] = f.EOF()
		if off < f.Size() {
			raw = append(raw, off)
		}
	}
	for _, r := range ranges {
		add(r.Start)
		add(r.End)
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i] < raw[j] })

	if opts.GIndex != "" {
		idx, err := f.OpenGIndex(ctx, opts.GIndex)
		if err != nil {
			return nil, err
		}
		for _, off := range raw {
			if vo, ok := idx.FirstAtOrAfter(off); ok {
				bounds[off] = vo
			}
		}
		return bounds, nil
	}

	guessed := make([]bgzf.VOffset, len(raw))
	if opts.Parallelism < 2 || len(raw) < 2 {
		for i, off := range raw {
			vo, _, err := f.Guess(off)
			if err != nil {
				return nil, err
			}
			guessed[i] = vo
		}
	} else {
		if err := guessParallel(ctx, f, raw, guessed, opts.Parallelism); err != nil {
			return nil, err
		}
	}
	for i, off := range raw {
		bounds[off] = guessed[i]
	}
	return bounds, nil
}

// guessParallel guesses raw[i] into guessed[i]. Each worker reads through
// its own file handle and Guesser.
func guessParallel(ctx context.Context, f *File, raw []int64, guessed []bgzf.VOffset, parallelism int) error {
	if parallelism > len(raw) {
		parallelism = len(raw)
	}
	nRefs := len(f.Header().Refs())
	return traverse.Each(parallelism, func(job int) (err error) {
		start := job * len(raw) / parallelism
		end := (job + 1) * len(raw) / parallelism
		in, err := file.Open(ctx, f.Path())
		if err != nil {
			return errors.E(err, "open", f.Path())
		}
		defer func() {
			if cerr := in.Close(ctx); cerr != nil && err == nil {
				err = cerr
			}
		}()
		g := NewGuesser(bgzf.NewBlockReader(in.Reader(ctx), f.Size()), nRefs, f.FirstRecord())
		for i := start; i < end; i++ {
			if guessed[i], _, err = g.Guess(raw[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
