// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"runtime"

	"github.com/grailbio/bamsplit/encoding/bam"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdGIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "gindex",
		Short:    "Write a .gbai index for a BAM file",
		ArgsName: "[path]",
	}
	shardSize := cmd.Flags.Int("shard-size", 64*1024, "Approximate bytes per interval in index")
	parallelism := cmd.Flags.Int("parallelism", runtime.NumCPU(), "Number of blocks to decompress concurrently")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		switch len(argv) {
		case 0:
			return bam.WriteGIndex(env.Stdout, env.Stdin, *shardSize, *parallelism)
		case 1:
			return writeGIndexFile(argv[0], *shardSize, *parallelism)
		default:
			return fmt.Errorf("gindex takes at most one pathname argument, but got %v", argv)
		}
	})
	return cmd
}

// writeGIndexFile indexes the BAM file at path into path.gbai.
func writeGIndexFile(path string, shardSize, parallelism int) (err error) {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	out, err := file.Create(ctx, path+".gbai")
	if err != nil {
		return errors.E(err, "create", path+".gbai")
	}
	if err = bam.WriteGIndex(out.Writer(ctx), in.Reader(ctx), shardSize, parallelism); err != nil {
		out.Discard(ctx)
		return err
	}
	return out.Close(ctx)
}
