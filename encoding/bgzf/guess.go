// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// scanWindow is the number of bytes NextBlock reads at a time while looking
// for a block header.
const scanWindow = compressedBlockSize + headerSize

// NextBlock returns the file offset of the first bgzf block that starts at
// or after off. A candidate position is accepted only if it parses as a
// block header, the block decompresses with a valid checksum, and the block
// is followed either by another block header or by the end of the file.
// Returns (br.Size(), false, nil) if no block starts in [off, br.Size()).
//
// A candidate whose header parses but which fails to decompress is skipped
// as a false positive, unless it ends exactly at another block header or at
// the end of the file. Such a block, like one that runs past the end of the
// file, is reported as an error whose cause is ErrMalformed.
func (br *BlockReader) NextBlock(off int64) (int64, bool, error) {
	if off < 0 {
		off = 0
	}
	buf := make([]byte, scanWindow)
	next := make([]byte, headerSize)
	for off < br.size {
		n := len(buf)
		if rem := br.size - off; rem < int64(n) {
			n = int(rem)
		}
		win := buf[:n]
		if err := br.readAt(win, off); err != nil {
			return 0, false, errors.Wrapf(err, "scan for block at %d", off)
		}
		for i := 0; i+headerSize <= len(win); i++ {
			if win[i] != 0x1f || win[i+1] != 0x8b {
				continue
			}
			csize, ok := parseHeader(win[i:])
			if !ok {
				continue
			}
			coffset := off + int64(i)
			end := coffset + int64(csize)
			if end > br.size {
				return 0, false, errors.Wrapf(ErrMalformed, "block at %d of size %d runs past end of file (size %d)", coffset, csize, br.size)
			}
			followed, err := br.followedByBlock(end, next)
			if err != nil {
				return 0, false, err
			}
			_, err = br.ReadBlock(coffset)
			switch {
			case err == nil && followed:
				return coffset, true, nil
			case err == nil:
				log.Debug.Printf("bgzf: block candidate at %d is not followed by a block", coffset)
			case !IsMalformed(err):
				return 0, false, err
			case followed:
				return 0, false, errors.Wrapf(err, "block candidate at %d", coffset)
			default:
				log.Debug.Printf("bgzf: rejected block candidate at %d: %v", coffset, err)
			}
		}
		// Candidates that start in the last headerSize-1 bytes of the window
		// are examined in the next round.
		if n < len(buf) {
			break
		}
		off += int64(n - headerSize + 1)
	}
	return br.size, false, nil
}

// followedByBlock reports whether end is the end of the file or the start of
// a block header. hdr is scratch space of headerSize bytes.
func (br *BlockReader) followedByBlock(end int64, hdr []byte) (bool, error) {
	if end == br.size {
		return true, nil
	}
	if end+headerSize > br.size {
		return false, nil
	}
	if err := br.readAt(hdr, end); err != nil {
		return false, errors.Wrapf(err, "read block header at %d", end)
	}
	_, ok := parseHeader(hdr)
	return ok, nil
}
