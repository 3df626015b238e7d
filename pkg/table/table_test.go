// ABOUTME: Tests for schema mutation and the page-0 metadata round trip

package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/pagestore/pkg/pager"
)

func TestAddColumnRejectsDuplicates(t *testing.T) {
	tbl := New("test")
	require.NoError(t, tbl.AddColumn(Column{Name: "col1", Type: Scalar(Uint8), ID: 1}))
	err := tbl.AddColumn(Column{Name: "col1", Type: Scalar(Int32), ID: 2})
	assert.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestSetKeyRequiresColumn(t *testing.T) {
	tbl := New("test")
	assert.ErrorIs(t, tbl.SetKey("nope"), ErrUnknownColumn)

	require.NoError(t, tbl.AddColumn(Column{Name: "id", Type: Scalar(Uint32), ID: 1}))
	require.NoError(t, tbl.SetKey("id"))
	assert.Equal(t, "id", tbl.Key())
}

func TestRemoveColumn(t *testing.T) {
	tbl := New("test")
	require.NoError(t, tbl.AddColumn(Column{Name: "id", Type: Scalar(Uint32), ID: 1}))
	require.NoError(t, tbl.SetKey("id"))

	assert.ErrorIs(t, tbl.RemoveColumn("nope"), ErrUnknownColumn)
	require.NoError(t, tbl.RemoveColumn("id"))
	assert.Empty(t, tbl.Key(), "removing the key column must clear the key")
	_, ok := tbl.Column("id")
	assert.False(t, ok)
}

func TestMetadataRoundTrip(t *testing.T) {
	tbl := New("test")
	require.NoError(t, tbl.AddColumn(Column{Name: "col1", Type: Scalar(Uint8), ID: 1, Offset: 0}))
	require.NoError(t, tbl.AddColumn(Column{Name: "col2", Type: TextType(128), ID: 2, Offset: 1}))
	require.NoError(t, tbl.SetKey("col1"))

	s := pager.NewMemStreamSize(2 * pager.PageSize)
	require.NoError(t, tbl.WriteTo(s))

	got, err := ReadFrom(s)
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name())
	assert.Equal(t, "col1", got.Key())

	col1, ok := got.Column("col1")
	require.True(t, ok)
	assert.Equal(t, Scalar(Uint8), col1.Type)
	assert.Equal(t, uint8(1), col1.ID)
	assert.Equal(t, uint8(0), col1.Offset)

	col2, ok := got.Column("col2")
	require.True(t, ok)
	assert.Equal(t, Text, col2.Type.ID)
	assert.Equal(t, uint64(128), col2.Type.Size, "declared Text size must survive the round trip")
	assert.Equal(t, uint8(pager.PtrSize), col2.Type.RowSize())
	assert.Equal(t, uint8(1), col2.Offset)

	assert.Len(t, got.Columns(), 2)
}

func TestMetadataRoundTripAllTypes(t *testing.T) {
	tbl := New("widths")
	ids := []TypeID{Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float32, Float64}
	off := uint8(0)
	for i, id := range ids {
		typ := Scalar(id)
		require.NoError(t, tbl.AddColumn(Column{
			Name:   string(rune('a' + i)),
			Type:   typ,
			ID:     uint8(i + 1),
			Offset: off,
		}))
		off += typ.RowSize()
	}
	require.NoError(t, tbl.SetKey("a"))

	s := pager.NewMemStreamSize(pager.PageSize)
	require.NoError(t, tbl.WriteTo(s))
	got, err := ReadFrom(s)
	require.NoError(t, err)

	assert.Equal(t, tbl.Key(), got.Key())
	require.Len(t, got.Columns(), len(ids))
	for _, want := range tbl.Columns() {
		c, ok := got.Column(want.Name)
		require.True(t, ok, "column %q lost in round trip", want.Name)
		assert.Equal(t, want, c)
	}
}

func TestScalarWidths(t *testing.T) {
	assert.Equal(t, uint8(1), Scalar(Int8).RowSize())
	assert.Equal(t, uint8(2), Scalar(Uint16).RowSize())
	assert.Equal(t, uint8(4), Scalar(Float32).RowSize())
	assert.Equal(t, uint8(8), Scalar(Uint64).RowSize())
	assert.Equal(t, uint8(8), Scalar(Float64).RowSize())
	assert.Panics(t, func() { Scalar(Text) })
}
