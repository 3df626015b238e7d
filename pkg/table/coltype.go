// ABOUTME: Column type universe: ten scalar widths plus heap-backed Text
// ABOUTME: Text occupies a single Ptr on the row; its bytes live on the heap

package table

import (
	"fmt"

	"github.com/nainya/pagestore/pkg/pager"
)

// TypeID enumerates the supported column types.
type TypeID uint8

const (
	Int8 TypeID = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Text
)

// ColType is a column type together with its declared size. For scalars
// the size is the scalar width; for Text it is the declared heap payload
// size, carried through serialization for forward compatibility while the
// on-row footprint stays a single Ptr.
type ColType struct {
	ID   TypeID
	Size uint64
}

func scalarWidth(id TypeID) uint64 {
	switch id {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// Scalar builds a scalar column type. It panics on Text; use TextType.
func Scalar(id TypeID) ColType {
	if id >= Text {
		panic(fmt.Sprintf("table: not a scalar type id: %d", id))
	}
	return ColType{ID: id, Size: scalarWidth(id)}
}

// TextType builds a Text column type with the given declared size.
func TextType(size uint64) ColType {
	return ColType{ID: Text, Size: size}
}

// RowSize returns the column's footprint within a fixed-width row image.
func (t ColType) RowSize() uint8 {
	if t.ID == Text {
		return pager.PtrSize
	}
	return uint8(scalarWidth(t.ID))
}

func typeOf(id uint8, size uint64) (ColType, error) {
	tid := TypeID(id)
	if tid > Text {
		return ColType{}, fmt.Errorf("table: unknown type id %d", id)
	}
	if tid == Text {
		return TextType(size), nil
	}
	return Scalar(tid), nil
}
