// Package pager implements the paged storage substrate: a fixed-size page
// allocator (free list) and a variable-size fragment allocator (heap)
// layered on top of it, both operating over any random-access byte stream.
package pager

import "errors"

var (
	// ErrShortRead indicates EOF before the expected byte count
	ErrShortRead = errors.New("pager: short read")

	// ErrWrongPageType indicates a page tag byte mismatching the expected type
	ErrWrongPageType = errors.New("pager: wrong page type")

	// ErrOutOfRange indicates an allocation request exceeding single-page capacity
	ErrOutOfRange = errors.New("pager: allocation exceeds page capacity")

	// ErrBadFragment indicates an unknown fragment kind byte on disk
	ErrBadFragment = errors.New("pager: bad fragment kind")
)
