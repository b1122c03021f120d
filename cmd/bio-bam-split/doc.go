// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Command bio-bam-split computes record-aligned splits of a BAM file, and
builds the .gbai index that can be used to place split boundaries.

Usage:

	bio-bam-split splits [flags] foo.bam
	bio-bam-split gindex [--shard-size=N] [foo.bam] < foo.bam > foo.bam.gbai

The splits subcommand prints one line per split: the BAM path and the start
and end virtual offsets in coffset:uoffset form. With --stats, it also reads
each split and prints the number of records that overlap the intervals and a
seahash checksum of their encodings.

The gindex subcommand reads the BAM file from stdin and writes the index to
stdout. Given a path, it reads the path and writes path.gbai instead.
*/
package main
