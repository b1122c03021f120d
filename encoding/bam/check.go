// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"errors"

	"github.com/grailbio/hts/sam"
)

const bamFixedBytes = 32

// Errors returned by CheckRecord. Each names the first structural check that
// failed.
var (
	ErrShortWindow      = errors.New("bam: window too short for a record header")
	ErrBlockSize        = errors.New("bam: record block_size out of range")
	ErrRefID            = errors.New("bam: reference id out of range")
	ErrMateRefID        = errors.New("bam: mate reference id out of range")
	ErrPosition         = errors.New("bam: position out of range")
	ErrMatePosition     = errors.New("bam: mate position out of range")
	ErrReadName         = errors.New("bam: malformed read name")
	ErrMappedWithoutRef = errors.New("bam: mapped record without reference or position")
	ErrVariableLength   = errors.New("bam: cigar, sequence and quality exceed record length")
	ErrCorruptAuxField  = errors.New("bam: corrupt aux field")
)

// RecordHeader is the fixed-size part of a serialized BAM record.
type RecordHeader struct {
	// BlockSize is the length of the record, excluding the 4-byte
	// block_size field itself.
	BlockSize int
	RefID     int
	Pos       int
	NameLen   int
	MapQ      byte
	Bin       uint16
	NCigar    int
	Flags     sam.Flags
	SeqLen    int
	MateRefID int
	MatePos   int
	TempLen   int
}

// Size returns the total number of bytes the record occupies, including the
// block_size field.
func (h *RecordHeader) Size() int { return 4 + h.BlockSize }

// DecodeRecordHeader decodes the 36 byte header (block_size followed by
// the fixed-size fields) at the start of b.
func DecodeRecordHeader(b []byte) (RecordHeader, error) {
	if len(b) < 4+bamFixedBytes {
		return RecordHeader{}, ErrShortWindow
	}
	// Need to use int(int32(uint32)) to ensure 2's complement extension of -1.
	return RecordHeader{
		BlockSize: int(int32(binary.LittleEndian.Uint32(b))),
		RefID:     int(int32(binary.LittleEndian.Uint32(b[4:]))),
		Pos:       int(int32(binary.LittleEndian.Uint32(b[8:]))),
		NameLen:   int(b[12]),
		MapQ:      b[13],
		Bin:       binary.LittleEndian.Uint16(b[14:]),
		NCigar:    int(binary.LittleEndian.Uint16(b[16:])),
		Flags:     sam.Flags(binary.LittleEndian.Uint16(b[18:])),
		SeqLen:    int(int32(binary.LittleEndian.Uint32(b[20:]))),
		MateRefID: int(int32(binary.LittleEndian.Uint32(b[24:]))),
		MatePos:   int(int32(binary.LittleEndian.Uint32(b[28:]))),
		TempLen:   int(int32(binary.LittleEndian.Uint32(b[32:]))),
	}, nil
}

// CheckRecord reports whether b starts with something that is structurally
// a BAM record in a file with nRefs reference sequences. On success it
// returns the size of the record in bytes, including the block_size field.
// The whole record must be contained in b.
//
// CheckRecord only examines b; it has no side effects. It does not validate
// record semantics such as whether the cigar matches the sequence length.
func CheckRecord(b []byte, nRefs int) (int, error) {
	h, err := DecodeRecordHeader(b)
	if err != nil {
		return 0, err
	}
	if h.BlockSize < bamFixedBytes || h.BlockSize > MaxRecordSize || h.Size() > len(b) {
		return 0, ErrBlockSize
	}
	if h.RefID < -1 || h.RefID >= nRefs {
		return 0, ErrRefID
	}
	if h.MateRefID < -1 || h.MateRefID >= nRefs {
		return 0, ErrMateRefID
	}
	if h.Pos < -1 {
		return 0, ErrPosition
	}
	if h.MatePos < -1 {
		return 0, ErrMatePosition
	}
	if h.Flags&sam.Unmapped == 0 && (h.RefID < 0 || h.Pos < 0) {
		return 0, ErrMappedWithoutRef
	}
	if h.SeqLen < 0 {
		return 0, ErrVariableLength
	}
	rec := b[4:h.Size()]
	nameEnd := bamFixedBytes + h.NameLen
	if h.NameLen < 2 || nameEnd > len(rec) || !validName(rec[bamFixedBytes:nameEnd]) {
		return 0, ErrReadName
	}
	auxOffset := nameEnd + h.NCigar*4 + (h.SeqLen+1)>>1 + h.SeqLen
	if auxOffset > len(rec) {
		return 0, ErrVariableLength
	}
	if _, err := countAuxFields(rec[auxOffset:]); err != nil {
		return 0, err
	}
	return h.Size(), nil
}

// validName checks a NUL-terminated read name. SAM restricts names to
// [!-?A-~]{1,254}.
func validName(name []byte) bool {
	n := len(name) - 1
	if name[n] != 0 {
		return false
	}
	for _, c := range name[:n] {
		if c < '!' || c > '~' || c == '@' {
			return false
		}
	}
	return true
}

var jumps = [256]int{
	'A': 1,
	'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4,
	'f': 4,
	'Z': -1,
	'H': -1,
	'B': -1,
}

// countAuxFields examines the data of a SAM record's OPT field to determine
// the number of auxFields there are. It fails unless the fields end exactly
// at the end of aux.
func countAuxFields(aux []byte) (int, error) {
	naux := 0
	i := 0
	for i < len(aux) {
		if i+3 > len(aux) {
			return -1, ErrCorruptAuxField
		}
		t := aux[i+2]
		switch j := jumps[t]; {
		case j > 0:
			i += j + 3
		case j < 0:
			switch t {
			case 'Z', 'H':
				end := i + 3
				for end < len(aux) && aux[end] != 0 {
					end++
				}
				if end == len(aux) {
					return -1, ErrCorruptAuxField
				}
				i = end + 1
			case 'B':
				if len(aux) < i+8 {
					return -1, ErrCorruptAuxField
				}
				sub := jumps[aux[i+3]]
				if sub <= 0 {
					return -1, ErrCorruptAuxField
				}
				length := int(binary.LittleEndian.Uint32(aux[i+4 : i+8]))
				if length < 0 || length > len(aux) {
					return -1, ErrCorruptAuxField
				}
				i += length*sub + 8
			}
		default:
			return -1, ErrCorruptAuxField
		}
		naux++
	}
	if i != len(aux) {
		return -1, ErrCorruptAuxField
	}
	return naux, nil
}
