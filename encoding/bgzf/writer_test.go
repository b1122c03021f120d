// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"io/ioutil"
	"math/rand"
	"os"
	"testing"

	"github.com/grailbio/base/grail"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	// Create random bytes.
	for _, length := range []int{0, 1, 100, 65279, 65280, 65281, 500000} {
		t.Logf("length: %d", length)
		for _, blockSize := range []int{DefaultUncompressedBlockSize, 0x0ff05, 1000} {
			input := make([]byte, length)
			n, err := rand.Read(input)
			require.Nil(t, err)
			assert.Equal(t, length, n)

			// Write bgzf
			var buf bytes.Buffer
			w, err := NewWriterParams(&buf, 1, blockSize)
			require.Nil(t, err)
			n, err = w.Write(input)
			assert.Nil(t, err)
			assert.Equal(t, length, n)
			err = w.Close()
			assert.Nil(t, err)
			assert.Equal(t, uint64(buf.Len())<<16, uint64(w.VOffset()))

			// Verify output
			r, err := gzip.NewReader(&buf)
			require.Nil(t, err)
			actual, err := ioutil.ReadAll(r)
			require.Nil(t, err)
			assert.Equal(t, length, len(actual))
			assert.Equal(t, 0, bytes.Compare(input, actual))
		}
	}
}

func TestWriterParamsValidation(t *testing.T) {
	_, err := NewWriterParams(&bytes.Buffer{}, 1, 0)
	assert.Error(t, err)
	_, err = NewWriterParams(&bytes.Buffer{}, 1, MaxUncompressedBlockSize+1)
	assert.Error(t, err)
}

func TestVOffset(t *testing.T) {
	// Set bgzf block size to 5.
	var buf bytes.Buffer
	w, err := NewWriterParams(&buf, 1, 5)
	require.Nil(t, err)

	// Write 4 bytes, should not cause block completion, so voffset should be (0, 4)
	_, err = w.Write([]byte("ABCD"))
	require.Nil(t, err)
	assert.Equal(t, MakeVOffset(0, 4), w.VOffset())

	// Write 1 byte, should cause block completion, so voffset should be (non-zero, 0)
	_, err = w.Write([]byte("E"))
	require.Nil(t, err)
	voffset1 := w.VOffset()
	assert.Equal(t, uint16(0), voffset1.Uoffset())
	assert.NotEqual(t, int64(0), voffset1.Coffset())

	// Write 1 byte, should not cause block completion.  Coffset
	// should be the same, and uoffset should be 1.
	_, err = w.Write([]byte("F"))
	require.Nil(t, err)
	voffset2 := w.VOffset()
	assert.Equal(t, uint16(1), voffset2.Uoffset())
	assert.Equal(t, voffset1.Coffset(), voffset2.Coffset())

	// FlushBlock starts a new block.
	require.Nil(t, w.FlushBlock())
	voffset3 := w.VOffset()
	assert.Equal(t, uint16(0), voffset3.Uoffset())
	assert.True(t, voffset3.Coffset() > voffset2.Coffset())

	// FlushBlock on an empty buffer does nothing.
	require.Nil(t, w.FlushBlock())
	assert.Equal(t, voffset3, w.VOffset())
}

func TestVOffsetOrder(t *testing.T) {
	a := MakeVOffset(10, 65535)
	b := MakeVOffset(11, 0)
	assert.True(t, a < b)
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, int64(10), a.Coffset())
	assert.Equal(t, uint16(65535), a.Uoffset())
	assert.Equal(t, "10:65535", a.String())
	assert.Equal(t, a, FromOffset(a.Offset()))
}

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	defer shutdown()
	os.Exit(m.Run())
}
