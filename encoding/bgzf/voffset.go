// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"fmt"

	htsbgzf "github.com/grailbio/hts/bgzf"
)

// VOffset is a virtual file offset as described in the SAM/BAM
// specification. The upper 48 bits store the file offset of a bgzf block
// (coffset), and the lower 16 bits store the offset within the decompressed
// payload of that block (uoffset). Comparing two VOffsets as integers orders
// them by (coffset, uoffset).
type VOffset uint64

// MaxVOffset is larger than any voffset in a real file.
const MaxVOffset = VOffset(^uint64(0))

// MakeVOffset creates a VOffset from its two parts.
func MakeVOffset(coffset int64, uoffset uint16) VOffset {
	return VOffset(uint64(coffset)<<16 | uint64(uoffset))
}

// FromOffset converts a biogo-style bgzf.Offset to a VOffset.
func FromOffset(off htsbgzf.Offset) VOffset {
	return MakeVOffset(off.File, off.Block)
}

// Coffset returns the file offset of the bgzf block.
func (v VOffset) Coffset() int64 { return int64(v >> 16) }

// Uoffset returns the offset within the decompressed block.
func (v VOffset) Uoffset() uint16 { return uint16(v) }

// Offset converts v to a biogo-style bgzf.Offset.
func (v VOffset) Offset() htsbgzf.Offset {
	return htsbgzf.Offset{File: v.Coffset(), Block: v.Uoffset()}
}

// Compare returns a negative value, 0, or a positive value if v is smaller
// than, equal to, or larger than w.
func (v VOffset) Compare(w VOffset) int {
	switch {
	case v < w:
		return -1
	case v > w:
		return 1
	}
	return 0
}

// String returns "coffset:uoffset".
func (v VOffset) String() string {
	return fmt.Sprintf("%d:%d", v.Coffset(), v.Uoffset())
}
