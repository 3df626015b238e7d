// ABOUTME: On-disk page layout: header offsets, page type tags and codecs
// ABOUTME: Every non-header page starts with a 1-byte type tag at offset 0

package pager

import (
	"encoding/binary"
	"fmt"
)

// PageSize is the fixed size of every page in the file.
const PageSize = 4096

// Page 0 holds the file header at fixed offsets. Everything past TableOff
// belongs to the serialized table metadata.
const (
	VersionMajorOff = 0
	VersionMinorOff = 2
	VersionPatchOff = 4
	FileSizeOff     = 6
	FreelistPtrOff  = 10
	HeapPtrOff      = 14
	TableOff        = 18
)

// NullPage is the null page pointer. Page 0 is reserved for the file
// header, so 0 is safe as a sentinel.
const NullPage uint32 = 0

// PageType is the tag byte at offset 0 of every non-header page.
type PageType byte

const (
	PageFree PageType = iota
	PageBTreeLeaf
	PageBTreeInternal
	PageHeap
)

// HeapHeaderSize is the number of header bytes at the start of a heap
// page: tag(1) + next(4) + prev(4) + firstFree(2) + maxSize(2) + maxOff(2).
const HeapHeaderSize = 15

// Ptr addresses a byte position in the file as (page, offset within page).
type Ptr struct {
	Page uint32
	Off  uint16
}

// PtrSize is the on-disk footprint of a Ptr: 4-byte page + 2-byte offset.
const PtrSize = 6

// NullPtr is the null position.
var NullPtr = Ptr{}

// IsNull reports whether p is the null position.
func (p Ptr) IsNull() bool {
	return p == NullPtr
}

// Position returns the absolute byte position p addresses.
func (p Ptr) Position() int64 {
	return int64(p.Page)*PageSize + int64(p.Off)
}

func (p Ptr) String() string {
	return fmt.Sprintf("(%d, %d)", p.Page, p.Off)
}

func encodePtr(b []byte, p Ptr) {
	binary.LittleEndian.PutUint32(b[0:4], p.Page)
	binary.LittleEndian.PutUint16(b[4:6], p.Off)
}

func decodePtr(b []byte) Ptr {
	return Ptr{
		Page: binary.LittleEndian.Uint32(b[0:4]),
		Off:  binary.LittleEndian.Uint16(b[4:6]),
	}
}

// ReadPtr reads the 6-byte pointer stored at position pos.
func ReadPtr(s Stream, pos Ptr) (Ptr, error) {
	var buf [PtrSize]byte
	if err := readFull(s, pos.Position(), buf[:]); err != nil {
		return NullPtr, err
	}
	return decodePtr(buf[:]), nil
}

// WritePtr writes ptr at position pos.
func WritePtr(s Stream, pos, ptr Ptr) error {
	var buf [PtrSize]byte
	encodePtr(buf[:], ptr)
	return writeFull(s, pos.Position(), buf[:])
}

// Page is one of the known page-header kinds. The sum is closed: the
// shared write path switches on the concrete type, and each kind has a
// checked read that fails with ErrWrongPageType on a tag mismatch.
type Page interface {
	// PageNum returns the 0-based page number the header belongs to.
	PageNum() uint32

	// Type returns the tag byte written at offset 0 of the page.
	Type() PageType

	encodeHeader() []byte
}

// FreePage is an unused page threaded into the free list.
type FreePage struct {
	Num uint32
	// Next is the next page in the free chain; NullPage terminates it.
	Next uint32
}

func (p FreePage) PageNum() uint32 { return p.Num }
func (p FreePage) Type() PageType  { return PageFree }

func (p FreePage) encodeHeader() []byte {
	buf := make([]byte, 5)
	buf[0] = byte(PageFree)
	binary.LittleEndian.PutUint32(buf[1:5], p.Next)
	return buf
}

// HeapPage is a page subdivided into fragments by the heap allocator.
// Heap pages form a doubly linked list ordered by allocation.
type HeapPage struct {
	Num  uint32
	Next uint32
	Prev uint32
	// FirstFreeOff heads the intra-page free-fragment list; 0 means none.
	FirstFreeOff uint16
	// (MaxFragSize, MaxFragOff) caches the largest free fragment in the
	// page for O(1) first-fit routing. (0, 0) means no free fragment.
	MaxFragSize uint16
	MaxFragOff  uint16
}

func (p HeapPage) PageNum() uint32 { return p.Num }
func (p HeapPage) Type() PageType  { return PageHeap }

func (p HeapPage) encodeHeader() []byte {
	buf := make([]byte, HeapHeaderSize)
	buf[0] = byte(PageHeap)
	binary.LittleEndian.PutUint32(buf[1:5], p.Next)
	binary.LittleEndian.PutUint32(buf[5:9], p.Prev)
	binary.LittleEndian.PutUint16(buf[9:11], p.FirstFreeOff)
	binary.LittleEndian.PutUint16(buf[11:13], p.MaxFragSize)
	binary.LittleEndian.PutUint16(buf[13:15], p.MaxFragOff)
	return buf
}

// BTreeLeafPage is reserved for the indexing layer; only the header codec
// exists for now.
type BTreeLeafPage struct {
	Num          uint32
	NumRows      uint16
	FirstFreeOff uint16
}

func (p BTreeLeafPage) PageNum() uint32 { return p.Num }
func (p BTreeLeafPage) Type() PageType  { return PageBTreeLeaf }

func (p BTreeLeafPage) encodeHeader() []byte {
	buf := make([]byte, 5)
	buf[0] = byte(PageBTreeLeaf)
	binary.LittleEndian.PutUint16(buf[1:3], p.NumRows)
	binary.LittleEndian.PutUint16(buf[3:5], p.FirstFreeOff)
	return buf
}

// BTreeInternalPage is reserved for the indexing layer; only the header
// codec exists for now.
type BTreeInternalPage struct {
	Num          uint32
	NumKeys      uint16
	FirstFreeOff uint16
}

func (p BTreeInternalPage) PageNum() uint32 { return p.Num }
func (p BTreeInternalPage) Type() PageType  { return PageBTreeInternal }

func (p BTreeInternalPage) encodeHeader() []byte {
	buf := make([]byte, 5)
	buf[0] = byte(PageBTreeInternal)
	binary.LittleEndian.PutUint16(buf[1:3], p.NumKeys)
	binary.LittleEndian.PutUint16(buf[3:5], p.FirstFreeOff)
	return buf
}

// WritePage writes the page's header at the start of its page.
func WritePage(s Stream, p Page) error {
	return writeFull(s, int64(p.PageNum())*PageSize, p.encodeHeader())
}

func readTagged(s Stream, pgNum uint32, want PageType, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := readFull(s, int64(pgNum)*PageSize, buf); err != nil {
		return nil, err
	}
	if PageType(buf[0]) != want {
		return nil, fmt.Errorf("%w: page %d has tag %d, want %d", ErrWrongPageType, pgNum, buf[0], want)
	}
	return buf, nil
}

// ReadFreePage loads a free-page header, checking the tag.
func ReadFreePage(s Stream, pgNum uint32) (FreePage, error) {
	buf, err := readTagged(s, pgNum, PageFree, 5)
	if err != nil {
		return FreePage{}, err
	}
	return FreePage{
		Num:  pgNum,
		Next: binary.LittleEndian.Uint32(buf[1:5]),
	}, nil
}

// ReadHeapPage loads a heap-page header, checking the tag.
func ReadHeapPage(s Stream, pgNum uint32) (HeapPage, error) {
	buf, err := readTagged(s, pgNum, PageHeap, HeapHeaderSize)
	if err != nil {
		return HeapPage{}, err
	}
	return HeapPage{
		Num:          pgNum,
		Next:         binary.LittleEndian.Uint32(buf[1:5]),
		Prev:         binary.LittleEndian.Uint32(buf[5:9]),
		FirstFreeOff: binary.LittleEndian.Uint16(buf[9:11]),
		MaxFragSize:  binary.LittleEndian.Uint16(buf[11:13]),
		MaxFragOff:   binary.LittleEndian.Uint16(buf[13:15]),
	}, nil
}

// ReadBTreeLeafPage loads a leaf-page header, checking the tag.
func ReadBTreeLeafPage(s Stream, pgNum uint32) (BTreeLeafPage, error) {
	buf, err := readTagged(s, pgNum, PageBTreeLeaf, 5)
	if err != nil {
		return BTreeLeafPage{}, err
	}
	return BTreeLeafPage{
		Num:          pgNum,
		NumRows:      binary.LittleEndian.Uint16(buf[1:3]),
		FirstFreeOff: binary.LittleEndian.Uint16(buf[3:5]),
	}, nil
}

// ReadBTreeInternalPage loads an internal-page header, checking the tag.
func ReadBTreeInternalPage(s Stream, pgNum uint32) (BTreeInternalPage, error) {
	buf, err := readTagged(s, pgNum, PageBTreeInternal, 5)
	if err != nil {
		return BTreeInternalPage{}, err
	}
	return BTreeInternalPage{
		Num:          pgNum,
		NumKeys:      binary.LittleEndian.Uint16(buf[1:3]),
		FirstFreeOff: binary.LittleEndian.Uint16(buf[3:5]),
	}, nil
}

// readU32 / writeU32 access little-endian header fields at absolute offsets.
func readU32(s Stream, off int64) (uint32, error) {
	var buf [4]byte
	if err := readFull(s, off, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeU32(s Stream, off int64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return writeFull(s, off, buf[:])
}

func writeU16(s Stream, off int64, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return writeFull(s, off, buf[:])
}

func readU16(s Stream, off int64) (uint16, error) {
	var buf [2]byte
	if err := readFull(s, off, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}
