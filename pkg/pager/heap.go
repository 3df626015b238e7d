// ABOUTME: Variable-size fragment allocator layered on the free list
// ABOUTME: First-fit inside heap pages, chained fragments for oversize payloads

package pager

import (
	"encoding/binary"
	"fmt"
)

// FragKind discriminates the three fragment variants inside a heap page.
type FragKind byte

const (
	FragFree FragKind = iota
	FragUsed
	FragChained
)

const (
	fragBaseHeader = 3 // kind(1) + size(2), shared by every variant

	// UsedHeaderSize is the header of a plain allocation; the payload
	// follows immediately.
	UsedHeaderSize = fragBaseHeader

	// FreeHeaderSize adds the 2-byte next-free offset within the page.
	FreeHeaderSize = fragBaseHeader + 2

	// ChainedHeaderSize adds a 6-byte Ptr to the next fragment of the chain.
	ChainedHeaderSize = fragBaseHeader + PtrSize

	// MaxAllocSize bounds a plain malloc; MaxChainedAllocSize bounds a
	// chained one.
	MaxAllocSize        = PageSize - HeapHeaderSize - UsedHeaderSize
	MaxChainedAllocSize = PageSize - HeapHeaderSize - ChainedHeaderSize

	// minUsedSize keeps every allocated extent at least FreeHeaderSize
	// bytes so the region can be re-described as a free fragment later.
	minUsedSize = FreeHeaderSize - UsedHeaderSize

	// chainedExtra is the routing slack a chained allocation needs on top
	// of the cached free-fragment size.
	chainedExtra = ChainedHeaderSize - FreeHeaderSize
)

// Fragment is the in-memory image of one fragment header. Pos is not part
// of the on-disk layout; it records where the header starts.
type Fragment struct {
	Pos  Ptr
	Kind FragKind
	// Size is the payload size, excluding the header.
	Size uint16
	// NextFree links free fragments within the same page; 0 is the end.
	NextFree uint16
	// Next points to the next fragment of an oversize chain; NullPtr ends
	// it. Only meaningful for FragChained.
	Next Ptr
}

func headerSize(k FragKind) uint16 {
	switch k {
	case FragFree:
		return FreeHeaderSize
	case FragChained:
		return ChainedHeaderSize
	default:
		return UsedHeaderSize
	}
}

// extent is the total number of page bytes the fragment occupies.
func (f Fragment) extent() uint16 {
	return headerSize(f.Kind) + f.Size
}

// PayloadPos returns the position of the first payload byte.
func (f Fragment) PayloadPos() Ptr {
	return Ptr{Page: f.Pos.Page, Off: f.Pos.Off + headerSize(f.Kind)}
}

// WriteFragment writes the fragment header at f.Pos.
func WriteFragment(s Stream, f Fragment) error {
	buf := make([]byte, headerSize(f.Kind))
	buf[0] = byte(f.Kind)
	binary.LittleEndian.PutUint16(buf[1:3], f.Size)
	switch f.Kind {
	case FragFree:
		binary.LittleEndian.PutUint16(buf[3:5], f.NextFree)
	case FragChained:
		encodePtr(buf[3:9], f.Next)
	}
	return writeFull(s, f.Pos.Position(), buf)
}

// ReadFragment reads the fragment header starting at pos.
func ReadFragment(s Stream, pos Ptr) (Fragment, error) {
	var base [fragBaseHeader]byte
	if err := readFull(s, pos.Position(), base[:]); err != nil {
		return Fragment{}, err
	}
	frag := Fragment{
		Pos:  pos,
		Kind: FragKind(base[0]),
		Size: binary.LittleEndian.Uint16(base[1:3]),
	}
	switch frag.Kind {
	case FragFree:
		var extra [2]byte
		if err := readFull(s, pos.Position()+fragBaseHeader, extra[:]); err != nil {
			return Fragment{}, err
		}
		frag.NextFree = binary.LittleEndian.Uint16(extra[:])
	case FragChained:
		var extra [PtrSize]byte
		if err := readFull(s, pos.Position()+fragBaseHeader, extra[:]); err != nil {
			return Fragment{}, err
		}
		frag.Next = decodePtr(extra[:])
	case FragUsed:
	default:
		return Fragment{}, fmt.Errorf("%w: %d at %v", ErrBadFragment, base[0], pos)
	}
	return frag, nil
}

// Heap sub-allocates variable-size regions inside heap pages. Heap pages
// are requested from the free list on demand and linked into a doubly
// linked list whose head lives at HeapPtrOff in page 0.
type Heap struct {
	head uint32
}

// NewHeap returns a heap with no pages yet.
func NewHeap() *Heap {
	return &Heap{}
}

// LoadHeap reads the heap head pointer back from page 0.
func LoadHeap(s Stream) (*Heap, error) {
	head, err := readU32(s, HeapPtrOff)
	if err != nil {
		return nil, err
	}
	return &Heap{head: head}, nil
}

// Head returns the first heap page number, NullPage if none.
func (h *Heap) Head() uint32 {
	return h.head
}

// WriteTo persists the heap head pointer into page 0.
func (h *Heap) WriteTo(s Stream) error {
	return writeU32(s, HeapPtrOff, h.head)
}

// newHeapPage formats a fresh heap page out of the free list: one free
// fragment spans the whole body.
func (h *Heap) newHeapPage(s Stream, fl *FreeList, prev uint32) (HeapPage, error) {
	const bodySize = PageSize - HeapHeaderSize - FreeHeaderSize
	page, err := fl.Allocate(s, func(pgNum uint32) Page {
		return HeapPage{
			Num:          pgNum,
			Next:         NullPage,
			Prev:         prev,
			FirstFreeOff: HeapHeaderSize,
			MaxFragSize:  bodySize,
			MaxFragOff:   HeapHeaderSize,
		}
	})
	if err != nil {
		return HeapPage{}, err
	}
	hp := page.(HeapPage)
	body := Fragment{
		Pos:      Ptr{Page: hp.Num, Off: HeapHeaderSize},
		Kind:     FragFree,
		Size:     bodySize,
		NextFree: 0,
	}
	if err := WriteFragment(s, body); err != nil {
		return HeapPage{}, err
	}
	return hp, nil
}

// findFirstFitPage walks the heap-page list for the first page that has a
// free fragment and whose cached max free-fragment size is at least need,
// allocating and linking a new page at the tail when none qualifies.
func (h *Heap) findFirstFitPage(s Stream, fl *FreeList, need uint16) (HeapPage, error) {
	if h.head == NullPage {
		hp, err := h.newHeapPage(s, fl, NullPage)
		if err != nil {
			return HeapPage{}, err
		}
		h.head = hp.Num
		return hp, h.WriteTo(s)
	}
	hp, err := ReadHeapPage(s, h.head)
	if err != nil {
		return HeapPage{}, err
	}
	for hp.MaxFragSize < need || hp.FirstFreeOff == 0 {
		if hp.Next == NullPage {
			fresh, err := h.newHeapPage(s, fl, hp.Num)
			if err != nil {
				return HeapPage{}, err
			}
			hp.Next = fresh.Num
			if err := WritePage(s, hp); err != nil {
				return HeapPage{}, err
			}
			return fresh, nil
		}
		hp, err = ReadHeapPage(s, hp.Next)
		if err != nil {
			return HeapPage{}, err
		}
	}
	return hp, nil
}

// Malloc allocates size payload bytes, as a Chained fragment when chained
// is set, and returns the written fragment together with the offset of the
// payload relative to the fragment start. The allocated size field may
// exceed the request when leftover slack was too small to split off as a
// free fragment.
func (h *Heap) Malloc(size uint16, chained bool, fl *FreeList, s Stream) (Fragment, uint16, error) {
	kind := FragUsed
	if chained {
		kind = FragChained
	}
	if size == 0 {
		return Fragment{}, 0, fmt.Errorf("%w: zero-size allocation", ErrOutOfRange)
	}
	if chained && size > MaxChainedAllocSize || !chained && size > MaxAllocSize {
		return Fragment{}, 0, fmt.Errorf("%w: %d bytes (chained=%v)", ErrOutOfRange, size, chained)
	}
	if !chained && size < minUsedSize {
		size = minUsedSize
	}

	// The routing measure is in free-fragment sizes: a free fragment of
	// size n occupies n+FreeHeaderSize bytes, so it can host any extent up
	// to that. For chained allocations this works out to chainedExtra more
	// bytes than the plain request.
	needExtent := headerSize(kind) + size
	need := needExtent - FreeHeaderSize
	hp, err := h.findFirstFitPage(s, fl, need)
	if err != nil {
		return Fragment{}, 0, err
	}

	// First-fit walk of the intra-page free list: lowest offset wins.
	var prev Fragment
	hasPrev := false
	frag, err := ReadFragment(s, Ptr{Page: hp.Num, Off: hp.FirstFreeOff})
	if err != nil {
		return Fragment{}, 0, err
	}
	for frag.Size < need {
		prev, hasPrev = frag, true
		frag, err = ReadFragment(s, Ptr{Page: hp.Num, Off: frag.NextFree})
		if err != nil {
			return Fragment{}, 0, err
		}
	}

	oldExtent := frag.extent()
	allocSize := size
	linkOff := frag.NextFree

	// Split the tail off as a new free fragment when it can still carry a
	// free header plus at least one byte; otherwise the slack is absorbed
	// into the allocated fragment.
	if remaining := oldExtent - needExtent; remaining >= FreeHeaderSize+1 {
		split := Fragment{
			Pos:      Ptr{Page: hp.Num, Off: frag.Pos.Off + needExtent},
			Kind:     FragFree,
			Size:     remaining - FreeHeaderSize,
			NextFree: frag.NextFree,
		}
		if err := WriteFragment(s, split); err != nil {
			return Fragment{}, 0, err
		}
		linkOff = split.Pos.Off
	} else {
		allocSize = oldExtent - headerSize(kind)
	}

	if hasPrev {
		prev.NextFree = linkOff
		if err := WriteFragment(s, prev); err != nil {
			return Fragment{}, 0, err
		}
	} else {
		hp.FirstFreeOff = linkOff
	}

	alloc := Fragment{Pos: frag.Pos, Kind: kind, Size: allocSize, Next: NullPtr}
	if err := WriteFragment(s, alloc); err != nil {
		return Fragment{}, 0, err
	}
	if err := h.refreshMaxCache(s, &hp); err != nil {
		return Fragment{}, 0, err
	}
	return alloc, headerSize(kind), nil
}

// Chain links tail after head in an oversize chain. Both fragments must be
// Chained.
func (h *Heap) Chain(head *Fragment, tail Fragment, s Stream) error {
	if head.Kind != FragChained || tail.Kind != FragChained {
		return fmt.Errorf("%w: chain requires Chained fragments", ErrBadFragment)
	}
	head.Next = tail.Pos
	return WriteFragment(s, *head)
}

// Free reclaims the fragment whose header starts at ptr: the fragment
// becomes Free, is spliced into the page's free list in ascending offset
// order, and is coalesced with adjacent free neighbors in both directions.
// The page itself is never returned to the free list.
func (h *Heap) Free(ptr Ptr, fl *FreeList, s Stream) error {
	_ = fl // heap pages are not handed back to the free list
	frag, err := ReadFragment(s, ptr)
	if err != nil {
		return err
	}
	if frag.Kind == FragFree {
		return nil
	}
	hp, err := ReadHeapPage(s, ptr.Page)
	if err != nil {
		return err
	}

	freed := Fragment{
		Pos:  ptr,
		Kind: FragFree,
		Size: frag.extent() - FreeHeaderSize,
	}

	// Locate the neighbors in the ascending-offset free list.
	var prev Fragment
	hasPrev := false
	off := hp.FirstFreeOff
	for off != 0 && off < ptr.Off {
		cur, err := ReadFragment(s, Ptr{Page: ptr.Page, Off: off})
		if err != nil {
			return err
		}
		prev, hasPrev = cur, true
		off = cur.NextFree
	}
	freed.NextFree = off

	// Forward coalesce with the successor when contiguous.
	if off != 0 && freed.Pos.Off+freed.extent() == off {
		next, err := ReadFragment(s, Ptr{Page: ptr.Page, Off: off})
		if err != nil {
			return err
		}
		freed.Size += next.extent()
		freed.NextFree = next.NextFree
	}

	// Backward coalesce into the predecessor when contiguous; otherwise
	// splice the freed fragment in.
	if hasPrev && prev.Pos.Off+prev.extent() == freed.Pos.Off {
		prev.Size += freed.extent()
		prev.NextFree = freed.NextFree
		if err := WriteFragment(s, prev); err != nil {
			return err
		}
	} else if hasPrev {
		prev.NextFree = freed.Pos.Off
		if err := WriteFragment(s, prev); err != nil {
			return err
		}
		if err := WriteFragment(s, freed); err != nil {
			return err
		}
	} else {
		hp.FirstFreeOff = freed.Pos.Off
		if err := WriteFragment(s, freed); err != nil {
			return err
		}
	}

	return h.refreshMaxCache(s, &hp)
}

// refreshMaxCache rescans the page's free list, stores the (size, offset)
// of the largest free fragment, and writes the page header back. (0, 0)
// means the page has no free fragment left.
func (h *Heap) refreshMaxCache(s Stream, hp *HeapPage) error {
	var maxSize, maxOff uint16
	for off := hp.FirstFreeOff; off != 0; {
		frag, err := ReadFragment(s, Ptr{Page: hp.Num, Off: off})
		if err != nil {
			return err
		}
		if frag.Size > maxSize {
			maxSize, maxOff = frag.Size, off
		}
		off = frag.NextFree
	}
	hp.MaxFragSize, hp.MaxFragOff = maxSize, maxOff
	return WritePage(s, *hp)
}
