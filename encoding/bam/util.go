// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import "github.com/grailbio/hts/sam"

// IsPaired returns true if record is paired.
func IsPaired(record *sam.Record) bool { return record.Flags&sam.Paired != 0 }

// IsUnmapped returns true if record is unmapped.
func IsUnmapped(record *sam.Record) bool { return record.Flags&sam.Unmapped != 0 }

// IsRead1 returns true if record is the first read of a pair.
func IsRead1(record *sam.Record) bool { return record.Flags&sam.Read1 != 0 }

// IsRead2 returns true if record is the second read of a pair.
func IsRead2(record *sam.Record) bool { return record.Flags&sam.Read2 != 0 }

// IsMate returns true if a and b are the two reads of one pair: both are
// paired, they share a name, one is Read1 and the other Read2, and each
// record's mate coordinates point at the other.
func IsMate(a, b *sam.Record) bool {
	if !IsPaired(a) || !IsPaired(b) || a.Name != b.Name {
		return false
	}
	if !(IsRead1(a) && IsRead2(b)) && !(IsRead2(a) && IsRead1(b)) {
		return false
	}
	return a.MateRef.ID() == b.Ref.ID() && a.MatePos == b.Pos &&
		b.MateRef.ID() == a.Ref.ID() && b.MatePos == a.Pos
}
