// ABOUTME: Whole-page allocator backed by a singly linked chain of free pages
// ABOUTME: Grows the file lazily when the chain runs out

package pager

import (
	"fmt"

	"github.com/nainya/pagestore/internal/metrics"
)

// FreeList manages the set of unused pages. The chain is singly linked
// through each free page's Next field, terminated by NullPage, and kept
// sorted by ascending page number on deallocation. The head pointer is
// persisted at FreelistPtrOff in page 0, which stays the single source of
// truth across operations.
type FreeList struct {
	head uint32
}

// InitFreeList formats an empty free list onto the stream: file size
// becomes firstFreePg+1, a terminal free page is written at firstFreePg,
// and the head pointer is stored in page 0.
func InitFreeList(firstFreePg uint32, s Stream) (*FreeList, error) {
	if err := writeU32(s, FileSizeOff, firstFreePg+1); err != nil {
		return nil, err
	}
	if err := WritePage(s, FreePage{Num: firstFreePg, Next: NullPage}); err != nil {
		return nil, err
	}
	if err := writeU32(s, FreelistPtrOff, firstFreePg); err != nil {
		return nil, err
	}
	metrics.Shared().FileSizePages.Set(float64(firstFreePg + 1))
	return &FreeList{head: firstFreePg}, nil
}

// LoadFreeList reads the head pointer back from page 0.
func LoadFreeList(s Stream) (*FreeList, error) {
	head, err := readU32(s, FreelistPtrOff)
	if err != nil {
		return nil, err
	}
	return &FreeList{head: head}, nil
}

// Head returns the first free page number.
func (fl *FreeList) Head() uint32 {
	return fl.head
}

func (fl *FreeList) writeHead(s Stream) error {
	return writeU32(s, FreelistPtrOff, fl.head)
}

// Allocate removes the head page from the chain, formats it with the page
// returned by construct, and returns that page. When the head has no
// successor the file grows by one page; the fresh free page is threaded
// after the current head before the head is taken, so the head is always a
// valid free page afterwards.
func (fl *FreeList) Allocate(s Stream, construct func(pgNum uint32) Page) (Page, error) {
	taken, err := fl.popHead(s)
	if err != nil {
		return nil, err
	}
	page := construct(taken)
	if page.PageNum() != taken {
		return nil, fmt.Errorf("pager: construct changed page number %d to %d", taken, page.PageNum())
	}
	if err := WritePage(s, page); err != nil {
		return nil, err
	}
	metrics.Shared().PageAllocsTotal.Inc()
	return page, nil
}

func (fl *FreeList) popHead(s Stream) (uint32, error) {
	taken := fl.head
	fp, err := ReadFreePage(s, taken)
	if err != nil {
		return NullPage, err
	}
	if fp.Next != NullPage {
		fl.head = fp.Next
		return taken, fl.writeHead(s)
	}

	// Chain exhausted: grow the file by one page and thread the new free
	// page after the current head.
	size, err := readU32(s, FileSizeOff)
	if err != nil {
		return NullPage, err
	}
	grown := size
	if err := writeU32(s, FileSizeOff, size+1); err != nil {
		return NullPage, err
	}
	metrics.Shared().FileSizePages.Set(float64(size + 1))
	if err := WritePage(s, FreePage{Num: grown, Next: NullPage}); err != nil {
		return NullPage, err
	}
	fp.Next = grown
	if err := WritePage(s, fp); err != nil {
		return NullPage, err
	}
	fl.head = grown
	return taken, fl.writeHead(s)
}

// Deallocate threads pgNum back into the free chain at the position that
// keeps the chain sorted by ascending page number, which keeps trailing
// free space cheap to coalesce. Deallocating the current head is a no-op
// safety net; handing back a page that the sorted walk finds already in the
// chain is likewise a no-op.
func (fl *FreeList) Deallocate(s Stream, pgNum uint32) error {
	if pgNum == fl.head {
		return nil
	}
	if fl.head > pgNum {
		if err := WritePage(s, FreePage{Num: pgNum, Next: fl.head}); err != nil {
			return err
		}
		fl.head = pgNum
		if err := fl.writeHead(s); err != nil {
			return err
		}
		metrics.Shared().PageDeallocsTotal.Inc()
		return nil
	}

	cur := fl.head
	for {
		fp, err := ReadFreePage(s, cur)
		if err != nil {
			return err
		}
		if fp.Next == pgNum {
			return nil
		}
		if fp.Next == NullPage || fp.Next > pgNum {
			if err := WritePage(s, FreePage{Num: pgNum, Next: fp.Next}); err != nil {
				return err
			}
			fp.Next = pgNum
			if err := WritePage(s, fp); err != nil {
				return err
			}
			metrics.Shared().PageDeallocsTotal.Inc()
			return nil
		}
		cur = fp.Next
	}
}
