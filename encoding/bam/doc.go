// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam provides the low-level pieces of BAM handling that the hts
// packages do not expose: structural validation of serialized records, .bai
// chunk queries, the .gbai position index, and a writer that reports the
// virtual offset of every record it writes.
package bam
