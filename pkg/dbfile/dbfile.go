// ABOUTME: User-facing facade over the free list, heap and table metadata
// ABOUTME: Owns the stream and keeps page 0 the single source of truth

// Package dbfile exposes the database file: a paged stream holding the
// file header, the table schema, the free list and the heap.
package dbfile

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/pagestore/internal/metrics"
	"github.com/nainya/pagestore/pkg/pager"
	"github.com/nainya/pagestore/pkg/table"
)

// File format version, written into page 0 at initialization.
const (
	VersionMajor = 0
	VersionMinor = 1
	VersionPatch = 0
)

// ErrNotInitialized indicates operations on a DbFile created with NewEmpty
// before WriteInit ran.
var ErrNotInitialized = errors.New("dbfile: not initialized")

// DbFile is a database file. It exclusively owns its stream for the
// duration of every call; callers sharing a file across goroutines must
// take an external mutex.
type DbFile struct {
	stream pager.Stream
	tbl    *table.Table
	fl     *pager.FreeList
	heap   *pager.Heap
	log    zerolog.Logger
}

// Option configures a DbFile.
type Option func(*DbFile)

// WithLogger attaches a structured logger; the default discards events.
func WithLogger(l zerolog.Logger) Option {
	return func(db *DbFile) { db.log = l }
}

// ConstructFrom reads an already-formatted stream: the free list, heap
// head and table metadata are loaded from page 0.
func ConstructFrom(s pager.Stream, opts ...Option) (*DbFile, error) {
	db := &DbFile{stream: s, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(db)
	}
	fl, err := pager.LoadFreeList(s)
	if err != nil {
		return nil, err
	}
	heap, err := pager.LoadHeap(s)
	if err != nil {
		return nil, err
	}
	tbl, err := table.ReadFrom(s)
	if err != nil {
		return nil, err
	}
	db.fl, db.heap, db.tbl = fl, heap, tbl
	db.log.Debug().
		Str("table", tbl.Name()).
		Uint32("freelist_head", fl.Head()).
		Uint32("heap_head", heap.Head()).
		Msg("database loaded")
	return db, nil
}

// NewEmpty prepares a fresh database over the stream. Nothing is written
// until WriteInit; writing into an already-formatted stream nukes it.
func NewEmpty(name string, s pager.Stream, opts ...Option) *DbFile {
	db := &DbFile{
		stream: s,
		tbl:    table.New(name),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// WriteInit formats the stream: version triple, a free list whose first
// free page is page 1, an empty heap, and the table metadata.
func (db *DbFile) WriteInit() error {
	start := time.Now()
	if err := db.writeVersion(); err != nil {
		return err
	}
	fl, err := pager.InitFreeList(1, db.stream)
	if err != nil {
		return err
	}
	db.fl = fl
	db.heap = pager.NewHeap()
	if err := db.heap.WriteTo(db.stream); err != nil {
		return err
	}
	if err := db.tbl.WriteTo(db.stream); err != nil {
		return err
	}
	metrics.Shared().RecordDbOperation("write_init", time.Since(start))
	db.log.Info().Str("table", db.tbl.Name()).Msg("database initialized")
	return nil
}

func (db *DbFile) writeVersion() error {
	var buf [6]byte
	buf[0] = VersionMajor
	buf[2] = VersionMinor
	buf[4] = VersionPatch
	if _, err := db.stream.WriteAt(buf[:], pager.VersionMajorOff); err != nil {
		return fmt.Errorf("dbfile: write version: %w", err)
	}
	return nil
}

// Version reads the version triple back from page 0.
func (db *DbFile) Version() (major, minor, patch uint16, err error) {
	var buf [6]byte
	if _, err = db.stream.ReadAt(buf[:], pager.VersionMajorOff); err != nil {
		return 0, 0, 0, fmt.Errorf("dbfile: read version: %w", err)
	}
	return uint16(buf[0]) | uint16(buf[1])<<8,
		uint16(buf[2]) | uint16(buf[3])<<8,
		uint16(buf[4]) | uint16(buf[5])<<8, nil
}

// Table returns the in-memory schema.
func (db *DbFile) Table() *table.Table {
	return db.tbl
}

// Key returns the key column name, empty if none is set.
func (db *DbFile) Key() string {
	return db.tbl.Key()
}

// AddColumn appends a column to the schema. The column ID and row offset
// are derived from the columns already present. The change is in-memory
// until WriteInit (or WriteMeta) runs.
func (db *DbFile) AddColumn(name string, typ table.ColType) error {
	cols := db.tbl.Columns()
	var nextID table.ColumnID
	var nextOff uint8
	for _, c := range cols {
		if c.ID >= nextID {
			nextID = c.ID + 1
		}
		nextOff += c.Type.RowSize()
	}
	return db.tbl.AddColumn(table.Column{
		Name:   name,
		Type:   typ,
		ID:     nextID,
		Offset: nextOff,
	})
}

// SetKey designates an existing column as the key.
func (db *DbFile) SetKey(name string) error {
	return db.tbl.SetKey(name)
}

// WriteMeta rewrites the table metadata region of page 0.
func (db *DbFile) WriteMeta() error {
	return db.tbl.WriteTo(db.stream)
}

// FreeList exposes the page allocator.
func (db *DbFile) FreeList() (*pager.FreeList, error) {
	if db.fl == nil {
		return nil, ErrNotInitialized
	}
	return db.fl, nil
}

// Heap exposes the fragment allocator.
func (db *DbFile) Heap() (*pager.Heap, error) {
	if db.heap == nil {
		return nil, ErrNotInitialized
	}
	return db.heap, nil
}

// StoreText places the string's bytes on the heap and returns a Ptr to
// the fragment holding them. Payloads that fit a single fragment are
// stored plain; longer ones are split across a chain of Chained
// fragments, one heap page each.
func (db *DbFile) StoreText(s string) (pager.Ptr, error) {
	if db.heap == nil || db.fl == nil {
		return pager.NullPtr, ErrNotInitialized
	}
	start := time.Now()
	data := []byte(s)

	if len(data) <= pager.MaxAllocSize {
		frag, payloadOff, err := db.heap.Malloc(uint16(len(data)), false, db.fl, db.stream)
		if err != nil {
			return pager.NullPtr, err
		}
		pos := pager.Ptr{Page: frag.Pos.Page, Off: frag.Pos.Off + payloadOff}
		if _, err := db.stream.WriteAt(data, pos.Position()); err != nil {
			return pager.NullPtr, fmt.Errorf("dbfile: write text payload: %w", err)
		}
		metrics.Shared().RecordHeapAlloc(len(data))
		metrics.Shared().RecordDbOperation("store_text", time.Since(start))
		return frag.Pos, nil
	}

	// Oversize payload: caller-orchestrated chain, linked front to back.
	var head, prev pager.Fragment
	rest := data
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > pager.MaxChainedAllocSize {
			chunk = chunk[:pager.MaxChainedAllocSize]
		}
		frag, payloadOff, err := db.heap.Malloc(uint16(len(chunk)), true, db.fl, db.stream)
		if err != nil {
			return pager.NullPtr, err
		}
		pos := pager.Ptr{Page: frag.Pos.Page, Off: frag.Pos.Off + payloadOff}
		if _, err := db.stream.WriteAt(chunk, pos.Position()); err != nil {
			return pager.NullPtr, fmt.Errorf("dbfile: write text payload: %w", err)
		}
		if head.Pos.IsNull() {
			head = frag
		} else {
			if err := db.heap.Chain(&prev, frag, db.stream); err != nil {
				return pager.NullPtr, err
			}
		}
		prev = frag
		rest = rest[len(chunk):]
	}
	metrics.Shared().RecordHeapAlloc(len(data))
	metrics.Shared().RecordDbOperation("store_text", time.Since(start))
	db.log.Debug().Int("bytes", len(data)).Msg("stored chained text")
	return head.Pos, nil
}

// LoadText reads a string previously placed by StoreText. The stored size
// may exceed the original length when malloc absorbed split slack; the
// exact length is not recorded on the heap.
func (db *DbFile) LoadText(ptr pager.Ptr) (string, error) {
	var out []byte
	for !ptr.IsNull() {
		frag, err := pager.ReadFragment(db.stream, ptr)
		if err != nil {
			return "", err
		}
		payload := make([]byte, frag.Size)
		pos := frag.PayloadPos()
		if _, err := db.stream.ReadAt(payload, pos.Position()); err != nil {
			return "", fmt.Errorf("dbfile: read text payload: %w", err)
		}
		out = append(out, payload...)
		if frag.Kind != pager.FragChained {
			break
		}
		ptr = frag.Next
	}
	return string(out), nil
}

// FreeText releases every fragment of a stored text, following the chain.
func (db *DbFile) FreeText(ptr pager.Ptr) error {
	if db.heap == nil || db.fl == nil {
		return ErrNotInitialized
	}
	for !ptr.IsNull() {
		frag, err := pager.ReadFragment(db.stream, ptr)
		if err != nil {
			return err
		}
		next := pager.NullPtr
		if frag.Kind == pager.FragChained {
			next = frag.Next
		}
		if err := db.heap.Free(ptr, db.fl, db.stream); err != nil {
			return err
		}
		metrics.Shared().HeapFreesTotal.Inc()
		ptr = next
	}
	return nil
}
