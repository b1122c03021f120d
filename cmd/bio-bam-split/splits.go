// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/bamsplit/encoding/bamsplit"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

type splitsFlags struct {
	config       string
	index        string
	gindex       string
	intervals    string
	splitSize    int64
	keepPairs    bool
	maxIntervals int
	parallelism  int
	stats        bool
}

func newCmdSplits() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "splits",
		Short:    "Print the splits of a BAM file",
		ArgsName: "path",
	}
	defaults := bamsplit.DefaultOpts()
	flags := splitsFlags{}
	cmd.Flags.StringVar(&flags.config, "config", "", "YAML file with split options. Flags given on the command line override it")
	cmd.Flags.StringVar(&flags.index, "index", "", "Input BAM index filename. By default set to input bampath + .bai")
	cmd.Flags.StringVar(&flags.gindex, "gindex", "", "If set, a .gbai index used to place split boundaries")
	cmd.Flags.StringVar(&flags.intervals, "intervals", "", `Regions to restrict the splits to, separated by ';' or spaces.
Each region is 'chr', 'chr:begin' or 'chr:begin-end', 1-based and closed, as in samtools.`)
	cmd.Flags.Int64Var(&flags.splitSize, "split-size", defaults.SplitSize, "Goal size of a split in compressed bytes")
	cmd.Flags.BoolVar(&flags.keepPairs, "keep-pairs", defaults.KeepPairsTogether, "Move split boundaries that separate a read from its mate")
	cmd.Flags.IntVar(&flags.maxIntervals, "max-intervals", defaults.MaxIntervalsForFiltering,
		"Skip interval filtering of splits when more intervals than this are given. Zero disables filtering")
	cmd.Flags.IntVar(&flags.parallelism, "parallelism", defaults.Parallelism, "Number of split boundaries to locate concurrently")
	cmd.Flags.BoolVar(&flags.stats, "stats", false, "Also print the number of records in each split and a checksum of them")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("splits takes one pathname argument, but got %v", argv)
		}
		ctx := vcontext.Background()
		set := map[string]bool{}
		cmd.Flags.Visit(func(f *flag.Flag) { set[f.Name] = true })
		opts, err := flags.opts(ctx, set)
		if err != nil {
			return err
		}
		return printSplits(ctx, env.Stdout, argv[0], opts, flags.stats)
	})
	return cmd
}

// opts returns the options from the config file, if any, with the flags
// named in set applied on top.
func (f splitsFlags) opts(ctx context.Context, set map[string]bool) (bamsplit.Opts, error) {
	opts := bamsplit.DefaultOpts()
	if f.config != "" {
		var err error
		if opts, err = bamsplit.LoadOpts(ctx, f.config); err != nil {
			return opts, err
		}
	}
	if set["index"] {
		opts.Index = f.index
	}
	if set["gindex"] {
		opts.GIndex = f.gindex
	}
	if set["intervals"] {
		intervals, err := bamsplit.ParseIntervals(f.intervals)
		if err != nil {
			return opts, err
		}
		opts.Intervals = intervals
	}
	if set["split-size"] {
		opts.SplitSize = f.splitSize
	}
	if set["keep-pairs"] {
		opts.KeepPairsTogether = f.keepPairs
	}
	if set["max-intervals"] {
		opts.MaxIntervalsForFiltering = f.maxIntervals
	}
	if set["parallelism"] {
		opts.Parallelism = f.parallelism
	}
	return opts, nil
}

// printSplits computes the splits of the BAM file at path and writes one
// tab-separated line per split to w. With stats set, each line also has the
// number of records in the split that overlap opts.Intervals, and a seahash
// checksum of those records.
func printSplits(ctx context.Context, w io.Writer, path string, opts bamsplit.Opts, stats bool) (err error) {
	f, err := bamsplit.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	splits, err := bamsplit.Compute(ctx, f, bamsplit.RawRanges(f.Size(), opts.SplitSize), opts)
	if err != nil {
		return err
	}
	total := 0
	for _, s := range splits {
		if !stats {
			if _, err := fmt.Fprintf(w, "%s\t%v\t%v\n", s.Path, s.Start, s.End); err != nil {
				return err
			}
			continue
		}
		n, sum, err := splitStats(f.NewIterator(ctx, s, opts.Intervals))
		if err != nil {
			return errors.E(err, "read split", s.String())
		}
		total += n
		if _, err := fmt.Fprintf(w, "%s\t%v\t%v\t%d\t%016x\n", s.Path, s.Start, s.End, n, sum); err != nil {
			return err
		}
	}
	if stats {
		log.Printf("%s: %d records in %d splits", path, total, len(splits))
	}
	return nil
}

// splitStats drains it and returns the number of records and the seahash of
// their BAM encodings, in order. It closes it.
func splitStats(it bamsplit.Iterator) (n int, sum uint64, err error) {
	h := seahash.New()
	var buf bytes.Buffer
	for it.Scan() {
		buf.Reset()
		if err := bam.Marshal(it.Record(), &buf); err != nil {
			it.Close() // nolint: errcheck
			return 0, 0, err
		}
		h.Write(buf.Bytes()) // nolint: errcheck
		n++
	}
	if err := it.Close(); err != nil {
		return 0, 0, err
	}
	return n, h.Sum64(), nil
}
