// ABOUTME: Tests for page header codecs and the Ptr codec
// ABOUTME: Verifies tag checking on every typed read

package pager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreePageRoundTrip(t *testing.T) {
	s := NewMemStreamSize(3 * PageSize)

	want := FreePage{Num: 2, Next: 7}
	require.NoError(t, WritePage(s, want))

	got, err := ReadFreePage(s, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHeapPageRoundTrip(t *testing.T) {
	s := NewMemStreamSize(3 * PageSize)

	want := HeapPage{
		Num:          1,
		Next:         5,
		Prev:         3,
		FirstFreeOff: 100,
		MaxFragSize:  2048,
		MaxFragOff:   1500,
	}
	require.NoError(t, WritePage(s, want))

	got, err := ReadHeapPage(s, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBTreePageRoundTrips(t *testing.T) {
	s := NewMemStreamSize(3 * PageSize)

	leaf := BTreeLeafPage{Num: 1, NumRows: 12, FirstFreeOff: 900}
	require.NoError(t, WritePage(s, leaf))
	gotLeaf, err := ReadBTreeLeafPage(s, 1)
	require.NoError(t, err)
	assert.Equal(t, leaf, gotLeaf)

	internal := BTreeInternalPage{Num: 2, NumKeys: 4, FirstFreeOff: 77}
	require.NoError(t, WritePage(s, internal))
	gotInternal, err := ReadBTreeInternalPage(s, 2)
	require.NoError(t, err)
	assert.Equal(t, internal, gotInternal)
}

func TestWrongPageType(t *testing.T) {
	s := NewMemStreamSize(2 * PageSize)

	require.NoError(t, WritePage(s, FreePage{Num: 1}))

	_, err := ReadHeapPage(s, 1)
	assert.ErrorIs(t, err, ErrWrongPageType)

	_, err = ReadBTreeLeafPage(s, 1)
	assert.ErrorIs(t, err, ErrWrongPageType)
}

func TestPtrCodec(t *testing.T) {
	s := NewMemStreamSize(2 * PageSize)

	pos := Ptr{Page: 1, Off: 42}
	want := Ptr{Page: 9, Off: 4095}
	require.NoError(t, WritePtr(s, pos, want))

	got, err := ReadPtr(s, pos)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.True(t, NullPtr.IsNull())
	assert.False(t, want.IsNull())
	assert.Equal(t, int64(1*PageSize+42), pos.Position())
}

func TestShortRead(t *testing.T) {
	s := NewMemStream()

	_, err := ReadFreePage(s, 3)
	assert.ErrorIs(t, err, ErrShortRead)
}
