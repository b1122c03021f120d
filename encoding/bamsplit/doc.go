// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bamsplit partitions a BAM file into independent units of work.
//
// A split is a half-open range of bgzf virtual offsets [Start, End). Start
// is the first byte of a BAM record, and End is either the first byte of a
// record or the end of the record stream. Splits are computed from coarse
// byte ranges of the file (see RawRanges) in three steps:
//
//   - each raw boundary is snapped forward to the next record start by a
//     Guesser, which looks for a run of structurally valid records in the
//     decompressed data, or by a .gbai index if one is given;
//   - if genomic intervals are given and a .bai index is available, splits
//     that contain no index chunk for any interval are dropped;
//   - if pairs are to be kept together, a split boundary that separates a
//     read from its mate is moved past the mate.
//
// Compute runs these steps. File.NewIterator reads the records of one split.
package bamsplit
