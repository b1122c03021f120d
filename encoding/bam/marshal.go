// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/grailbio/hts/sam"
)

var (
	errNameAbsentOrTooLong           = errors.New("bam: name absent or too long")
	errSequenceQualityLengthMismatch = errors.New("bam: sequence/quality length mismatch")
)

// auxLen returns the encoded length of aa. String and hex fields gain a NUL.
func auxLen(aa []sam.Aux) int {
	n := 0
	for _, a := range aa {
		n += len(a)
		if t := a.Type(); t == 'Z' || t == 'H' {
			n++
		}
	}
	return n
}

// Marshal appends the BAM encoding of r to buf, block_size field first. The
// fixed part uses the same layout that DecodeRecordHeader reads.
func Marshal(r *sam.Record, buf *bytes.Buffer) error {
	if len(r.Name) == 0 || len(r.Name) > 254 {
		return errNameAbsentOrTooLong
	}
	if r.Qual != nil && len(r.Qual) != r.Seq.Length {
		return errSequenceQualityLengthMismatch
	}
	size := bamFixedBytes + len(r.Name) + 1 + 4*len(r.Cigar) + len(r.Seq.Seq) + r.Seq.Length + auxLen(r.AuxFields)

	var fixed [4 + bamFixedBytes]byte
	le := binary.LittleEndian
	le.PutUint32(fixed[0:], uint32(size))
	le.PutUint32(fixed[4:], uint32(int32(r.Ref.ID())))
	le.PutUint32(fixed[8:], uint32(int32(r.Pos)))
	fixed[12] = byte(len(r.Name) + 1)
	fixed[13] = r.MapQ
	le.PutUint16(fixed[14:], uint16(r.Bin()))
	le.PutUint16(fixed[16:], uint16(len(r.Cigar)))
	le.PutUint16(fixed[18:], uint16(r.Flags))
	le.PutUint32(fixed[20:], uint32(int32(r.Seq.Length)))
	le.PutUint32(fixed[24:], uint32(int32(r.MateRef.ID())))
	le.PutUint32(fixed[28:], uint32(int32(r.MatePos)))
	le.PutUint32(fixed[32:], uint32(int32(r.TempLen)))
	buf.Write(fixed[:])

	buf.WriteString(r.Name)
	buf.WriteByte(0)
	var op [4]byte
	for _, o := range r.Cigar {
		le.PutUint32(op[:], uint32(o))
		buf.Write(op[:])
	}
	for _, d := range r.Seq.Seq {
		buf.WriteByte(byte(d))
	}
	if r.Qual != nil {
		buf.Write(r.Qual)
	} else {
		// Missing qualities are all 0xff.
		for i := 0; i < r.Seq.Length; i++ {
			buf.WriteByte(0xff)
		}
	}
	for _, a := range r.AuxFields {
		buf.Write(a)
		if t := a.Type(); t == 'Z' || t == 'H' {
			buf.WriteByte(0)
		}
	}
	return nil
}

// MarshalHeader encodes header in BAM binary format, starting with the BAM
// magic.
func MarshalHeader(header *sam.Header) ([]byte, error) {
	bb := bytes.Buffer{}
	if err := header.EncodeBinary(&bb); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}
