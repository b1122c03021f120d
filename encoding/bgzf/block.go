// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

const (
	// headerSize is the size of a bgzf block header: the 10 byte gzip header,
	// XLEN, and the 6 byte BC subfield.
	headerSize = 18
	// trailerSize is the size of the CRC32 and ISIZE fields.
	trailerSize = 8
)

// ErrMalformed is the cause of every error returned for a block that
// cannot be parsed or decompressed. Use errors.Cause to test for it.
var ErrMalformed = errors.New("malformed bgzf block")

// Block is one decompressed bgzf block.
type Block struct {
	// Coffset is the file offset of the block.
	Coffset int64
	// Csize is the size of the compressed block, including the header and
	// trailer. The next block starts at Coffset+Csize.
	Csize int
	// Data is the decompressed payload. It is owned by the BlockReader and is
	// valid until the next call to ReadBlock.
	Data []byte
}

// Next returns the file offset of the block that follows b.
func (b *Block) Next() int64 { return b.Coffset + int64(b.Csize) }

// parseHeader checks that buf starts with a bgzf block header and returns
// the total compressed block size. buf must be at least headerSize long.
func parseHeader(buf []byte) (int, bool) {
	if buf[0] != 0x1f || buf[1] != 0x8b || buf[2] != 8 || buf[3] != 4 {
		return 0, false
	}
	xlen := int(binary.LittleEndian.Uint16(buf[10:]))
	if xlen != 6 || buf[12] != 'B' || buf[13] != 'C' || binary.LittleEndian.Uint16(buf[14:]) != 2 {
		return 0, false
	}
	size := int(binary.LittleEndian.Uint16(buf[16:])) + 1
	if size < headerSize+trailerSize {
		return 0, false
	}
	return size, true
}

// BlockReader decompresses individual bgzf blocks at given file offsets.
// Thread compatible. Callers that read blocks concurrently must use one
// BlockReader, and one underlying file handle, per goroutine.
type BlockReader struct {
	r    io.ReadSeeker
	size int64

	cbuf  []byte
	dbuf  bytes.Buffer
	inflr io.ReadCloser
}

// NewBlockReader creates a BlockReader over r, which has the given size in
// bytes.
func NewBlockReader(r io.ReadSeeker, size int64) *BlockReader {
	return &BlockReader{r: r, size: size, cbuf: make([]byte, compressedBlockSize)}
}

// Size returns the size of the underlying file.
func (br *BlockReader) Size() int64 { return br.size }

func (br *BlockReader) readAt(buf []byte, off int64) error {
	if _, err := br.r.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(br.r, buf)
	return err
}

// ReadBlock reads and decompresses the block that starts at coffset. It
// returns an error whose cause is ErrMalformed if the bytes at coffset are
// not a complete, valid bgzf block.
func (br *BlockReader) ReadBlock(coffset int64) (Block, error) {
	if coffset < 0 || coffset+headerSize > br.size {
		return Block{}, errors.Wrapf(ErrMalformed, "truncated block header at %d (file size %d)", coffset, br.size)
	}
	hdr := br.cbuf[:headerSize]
	if err := br.readAt(hdr, coffset); err != nil {
		return Block{}, errors.Wrapf(err, "read block header at %d", coffset)
	}
	csize, ok := parseHeader(hdr)
	if !ok {
		return Block{}, errors.Wrapf(ErrMalformed, "invalid block header at %d", coffset)
	}
	if coffset+int64(csize) > br.size {
		return Block{}, errors.Wrapf(ErrMalformed, "block at %d of size %d is truncated (file size %d)", coffset, csize, br.size)
	}
	body := br.cbuf[headerSize:csize]
	if err := br.readAt(body, coffset+headerSize); err != nil {
		return Block{}, errors.Wrapf(err, "read block at %d", coffset)
	}
	cdata := body[:len(body)-trailerSize]
	trailer := body[len(body)-trailerSize:]
	wantCRC := binary.LittleEndian.Uint32(trailer)
	wantSize := int(binary.LittleEndian.Uint32(trailer[4:]))
	if wantSize > MaxUncompressedBlockSize {
		return Block{}, errors.Wrapf(ErrMalformed, "block at %d claims %d uncompressed bytes", coffset, wantSize)
	}

	if br.inflr == nil {
		br.inflr = flate.NewReader(bytes.NewReader(cdata))
	} else if err := br.inflr.(flate.Resetter).Reset(bytes.NewReader(cdata), nil); err != nil {
		return Block{}, errors.Wrapf(err, "reset inflater at %d", coffset)
	}
	br.dbuf.Reset()
	br.dbuf.Grow(wantSize)
	if _, err := io.Copy(&br.dbuf, io.LimitReader(br.inflr, MaxUncompressedBlockSize+1)); err != nil {
		return Block{}, errors.Wrapf(ErrMalformed, "inflate block at %d: %v", coffset, err)
	}
	data := br.dbuf.Bytes()
	if len(data) != wantSize {
		return Block{}, errors.Wrapf(ErrMalformed, "block at %d: got %d bytes, header says %d", coffset, len(data), wantSize)
	}
	if crc32.ChecksumIEEE(data) != wantCRC {
		return Block{}, errors.Wrapf(ErrMalformed, "block at %d: crc mismatch", coffset)
	}
	return Block{Coffset: coffset, Csize: csize, Data: data}, nil
}

// IsMalformed reports whether err was caused by a corrupt or truncated
// block.
func IsMalformed(err error) bool {
	return errors.Cause(err) == ErrMalformed
}
