// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalTestRecord(t *testing.T, r *sam.Record) []byte {
	var buf bytes.Buffer
	require.NoError(t, Marshal(r, &buf))
	return buf.Bytes()
}

func TestCheckRecord(t *testing.T) {
	header := testHeader(t, 1000, 1000)
	chr1 := header.Refs()[0]
	good := marshalTestRecord(t, newTestRecord(t, "read1", chr1, 10, sam.Paired|sam.Read1, chr1, 200))
	nRefs := len(header.Refs())

	n, err := CheckRecord(good, nRefs)
	require.NoError(t, err)
	assert.Equal(t, len(good), n)

	// Trailing bytes belong to the next record and are ignored.
	n, err = CheckRecord(append(append([]byte(nil), good...), 1, 2, 3), nRefs)
	require.NoError(t, err)
	assert.Equal(t, len(good), n)

	putInt32 := func(off int, v int32) func([]byte) {
		return func(b []byte) { binary.LittleEndian.PutUint32(b[off:], uint32(v)) }
	}
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"short", func(b []byte) []byte { return b[:20] }, ErrShortWindow},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }, ErrBlockSize},
		{"block size too small", mutateWith(putInt32(0, 31)), ErrBlockSize},
		{"block size negative", mutateWith(putInt32(0, -5)), ErrBlockSize},
		{"ref id too large", mutateWith(putInt32(4, 2)), ErrRefID},
		{"ref id negative", mutateWith(putInt32(4, -2)), ErrRefID},
		{"mate ref id", mutateWith(putInt32(24, 7)), ErrMateRefID},
		{"position", mutateWith(putInt32(8, -3)), ErrPosition},
		{"mate position", mutateWith(putInt32(28, -9)), ErrMatePosition},
		{"mapped without position", mutateWith(putInt32(8, -1)), ErrMappedWithoutRef},
		{"mapped without ref", mutateWith(func(b []byte) {
			putInt32(4, -1)(b)
			putInt32(24, -1)(b)
		}), ErrMappedWithoutRef},
		{"name not terminated", mutateWith(func(b []byte) { b[36+len("read1")] = 'x' }), ErrReadName},
		{"name too short", mutateWith(func(b []byte) { b[12] = 1 }), ErrReadName},
		{"name has control byte", mutateWith(func(b []byte) { b[36] = '\t' }), ErrReadName},
		{"negative sequence length", mutateWith(putInt32(20, -1)), ErrVariableLength},
		{"cigar too long", mutateWith(func(b []byte) { binary.LittleEndian.PutUint16(b[16:], 1000) }), ErrVariableLength},
		{"aux garbage", func(b []byte) []byte {
			b = append([]byte(nil), b...)
			b = append(b, 'X', 'Y', '?')
			binary.LittleEndian.PutUint32(b, uint32(len(b)-4))
			return b
		}, ErrCorruptAuxField},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := CheckRecord(test.mutate(good), nRefs)
			assert.Equal(t, test.want, err)
		})
	}
}

func mutateWith(f func([]byte)) func([]byte) []byte {
	return func(b []byte) []byte {
		b = append([]byte(nil), b...)
		f(b)
		return b
	}
}

func TestCheckRecordUnmapped(t *testing.T) {
	header := testHeader(t, 1000)
	b := marshalTestRecord(t, newTestRecord(t, "u", nil, -1, sam.Unmapped, nil, -1))
	n, err := CheckRecord(b, len(header.Refs()))
	require.NoError(t, err)
	assert.Equal(t, len(b), n)

	// An unmapped read with no references in the header is still valid.
	_, err = CheckRecord(b, 0)
	assert.NoError(t, err)
}

func TestCountAuxFields(t *testing.T) {
	var aux []byte
	for _, v := range []interface{}{"group1", uint8(3), int32(-7), float32(1.5)} {
		a, err := sam.NewAux(sam.NewTag("XX"), v)
		require.NoError(t, err)
		aux = append(aux, a...)
		if a.Type() == 'Z' {
			aux = append(aux, 0)
		}
	}
	n, err := countAuxFields(aux)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = countAuxFields(aux[:len(aux)-1])
	assert.Equal(t, ErrCorruptAuxField, err)

	n, err = countAuxFields(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
