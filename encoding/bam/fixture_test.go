// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/require"
)

func testHeader(t *testing.T, lens ...int) *sam.Header {
	var refs []*sam.Reference
	for i, l := range lens {
		ref, err := sam.NewReference(fmt.Sprintf("chr%d", i+1), "", "", l, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	header, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	return header
}

// newTestRecord returns a 10 base record. ref may be nil for an unmapped,
// unplaced read.
func newTestRecord(t *testing.T, name string, ref *sam.Reference, pos int, flags sam.Flags, mateRef *sam.Reference, matePos int) *sam.Record {
	var cigar []sam.CigarOp
	if flags&sam.Unmapped == 0 {
		cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}
	}
	r, err := sam.NewRecord(name, ref, mateRef, pos, matePos, 0, 60, cigar,
		[]byte("ACGTACGTAC"), []byte{30, 30, 30, 30, 30, 30, 30, 30, 30, 30}, nil)
	require.NoError(t, err)
	r.Flags = flags
	return r
}

// writeTestBAM encodes recs and returns the file contents, the voffset of
// each record and, if opts.Index is set, the .bai contents.
func writeTestBAM(t *testing.T, header *sam.Header, recs []*sam.Record, opts WriterOpts) ([]byte, []bgzf.VOffset, []byte) {
	var buf, index bytes.Buffer
	w, err := NewWriter(&buf, header, opts)
	require.NoError(t, err)
	var offsets []bgzf.VOffset
	for _, r := range recs {
		off, err := w.Write(r)
		require.NoError(t, err)
		offsets = append(offsets, off)
	}
	require.NoError(t, w.Close())
	if opts.Index {
		require.NoError(t, w.WriteIndex(&index))
	}
	return buf.Bytes(), offsets, index.Bytes()
}
