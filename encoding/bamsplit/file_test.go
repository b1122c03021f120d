// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamsplit

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/bamsplit/encoding/bgzf"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecordAt(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "file")
	defer cleanup()
	b := writeManyRecords(t, dir, 1000)
	ctx, f := openTestFile(t, b.path)
	defer f.Close(ctx) // nolint: errcheck

	assert.Equal(t, b.path, f.Path())
	assert.Equal(t, b.size, f.Size())
	assert.Equal(t, b.offsets[0], f.FirstRecord())
	assert.Equal(t, bgzf.MakeVOffset(b.size, 0), f.EOF())
	assert.Len(t, f.Header().Refs(), 2)

	for _, i := range []int{0, 1, 17, 499, 500, 998, 999} {
		rec, next, err := f.RecordAt(ctx, b.offsets[i])
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, b.recs[i].Name, rec.Name)
		if i+1 < len(b.offsets) {
			assert.Equal(t, b.offsets[i+1], next, "record %d", i)
		} else {
			assert.Equal(t, f.EOF(), next)
		}
	}
	rec, next, err := f.RecordAt(ctx, f.EOF())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, f.EOF(), next)
}

func TestFileLastRecord(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "file")
	defer cleanup()
	b := writeManyRecords(t, dir, 1000)
	ctx, f := openTestFile(t, b.path)
	defer f.Close(ctx) // nolint: errcheck

	for _, test := range []struct{ start, end int }{{0, 1}, {0, 1000}, {10, 20}, {999, 1000}, {500, 501}} {
		end := f.EOF()
		if test.end < len(b.offsets) {
			end = b.offsets[test.end]
		}
		rec, err := f.LastRecord(ctx, Split{Path: b.path, Start: b.offsets[test.start], End: end})
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, b.recs[test.end-1].Name, rec.Name, "[%d,%d)", test.start, test.end)
	}
	rec, err := f.LastRecord(ctx, Split{Start: b.offsets[5], End: b.offsets[5]})
	require.NoError(t, err)
	assert.Nil(t, rec)

	// A split that does not end at a record start.
	_, err = f.LastRecord(ctx, Split{Start: b.offsets[0], End: b.offsets[5] + 1})
	require.Error(t, err)
	assert.True(t, IsMalformed(err), "%v", err)
}

func TestFileLastRecordLargeSplit(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "file")
	defer cleanup()
	// Enough records that the split is longer than the tail window.
	b := writeManyRecords(t, dir, 20000)
	require.True(t, b.size > 2*lastRecordWindow, "file too small: %d", b.size)
	ctx, f := openTestFile(t, b.path)
	defer f.Close(ctx) // nolint: errcheck

	for _, end := range []int{15000, 19999} {
		rec, err := f.LastRecord(ctx, Split{Start: b.offsets[0], End: b.offsets[end]})
		require.NoError(t, err)
		assert.Equal(t, b.recs[end-1].Name, rec.Name)
	}
	rec, err := f.LastRecord(ctx, Split{Start: b.offsets[0], End: f.EOF()})
	require.NoError(t, err)
	assert.Equal(t, b.recs[len(b.recs)-1].Name, rec.Name)
}

func TestFileIndexes(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "file")
	defer cleanup()
	b := writeManyRecords(t, dir, 100)
	ctx, f := openTestFile(t, b.path)
	defer f.Close(ctx) // nolint: errcheck

	idx, err := f.OpenIndex(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, idx.NumRefs())

	_, err = f.OpenIndex(ctx, filepath.Join(dir, "missing.bai"))
	assert.True(t, IsIndexUnavailable(err), "%v", err)

	garbage := filepath.Join(dir, "garbage.bai")
	require.NoError(t, ioutil.WriteFile(garbage, []byte("not an index"), 0600))
	_, err = f.OpenIndex(ctx, garbage)
	assert.True(t, IsIndexUnavailable(err), "%v", err)

	// An index of a file without records describes no reference.
	empty := writeBAM(t, dir, "empty.bam", testHeader(t, nil), nil, 8192)
	idx, err = f.OpenIndex(ctx, empty.path+".bai")
	require.NoError(t, err)
	assert.Equal(t, 0, idx.NumRefs())
	chunks, err := idx.Chunks(1, 0, 1000)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	// An index of a file with more references than this one.
	var refs []*sam.Reference
	for _, name := range []string{"chr20", "chr21", "chr22"} {
		ref, err := sam.NewReference(name, "", "", 100000, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	header, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	other := writeBAM(t, dir, "other.bam", header, []*sam.Record{newRead(t, "r", refs[2], 10, -1, 0)}, 8192)
	_, err = f.OpenIndex(ctx, other.path+".bai")
	assert.True(t, IsIndexUnavailable(err), "%v", err)

	_, err = f.OpenGIndex(ctx, "")
	assert.True(t, IsIndexUnavailable(err), "%v", err)
	_, err = f.OpenGIndex(ctx, garbage)
	assert.True(t, IsIndexUnavailable(err), "%v", err)
}

func TestOpenErrors(t *testing.T) {
	ctx := vcontext.Background()
	dir, cleanup := testutil.TempDir(t, "", "file")
	defer cleanup()

	_, err := Open(ctx, filepath.Join(dir, "missing.bam"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.bam")
	require.NoError(t, ioutil.WriteFile(garbage, []byte("this is not a bam file"), 0600))
	_, err = Open(ctx, garbage)
	require.Error(t, err)
	assert.True(t, IsMalformed(err), "%v", err)
}

func TestIterator(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "file")
	defer cleanup()
	b := writePairsBAM(t, dir)
	ctx, f := openTestFile(t, b.path)
	defer f.Close(ctx) // nolint: errcheck

	s := Split{Path: b.path, Start: b.offsets[100], End: b.offsets[200]}
	recs := readSplit(t, ctx, f, s, nil)
	require.Len(t, recs, 100)
	assert.Equal(t, names(b.recs[100:200]), names(recs))

	// Empty split.
	assert.Len(t, readSplit(t, ctx, f, Split{Start: b.offsets[3], End: b.offsets[3]}, nil), 0)

	// Bad intervals are reported through Err.
	it := f.NewIterator(ctx, s, []Interval{{"chrUn", 1, 2}})
	assert.False(t, it.Scan())
	assert.True(t, IsInvalidInterval(it.Err()), "%v", it.Err())
	assert.Error(t, it.Close())
}
