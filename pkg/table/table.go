// ABOUTME: Table metadata: ordered column set with a designated key column
// ABOUTME: Persisted ASCII-delimited in page 0 after the fixed file header

// Package table holds the table schema and its page-0 serialization.
package table

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/nainya/pagestore/pkg/pager"
)

var (
	// ErrDuplicateColumn indicates an AddColumn with an already-taken name
	ErrDuplicateColumn = errors.New("table: duplicate column")

	// ErrUnknownColumn indicates a lookup, removal or key assignment for a
	// column that does not exist
	ErrUnknownColumn = errors.New("table: unknown column")

	// ErrMetaTooLarge indicates serialized metadata overflowing page 0
	ErrMetaTooLarge = errors.New("table: metadata does not fit page 0")

	// ErrBadMeta indicates malformed metadata bytes in page 0
	ErrBadMeta = errors.New("table: malformed metadata")
)

// ColumnID identifies a column within its table.
type ColumnID = uint8

// Column describes one column of a table.
type Column struct {
	Name string
	Type ColType
	ID   ColumnID
	// Offset is the column's byte offset within a fixed-width row image.
	Offset uint8
}

// Table is an ordered column set with a designated key column. The
// in-memory container is a map: insertion order is not preserved across a
// write/read cycle, and only the column set and the key are semantic.
type Table struct {
	name string
	key  string
	cols map[string]Column
}

// New creates an empty table with the given name.
func New(name string) *Table {
	return &Table{name: name, cols: make(map[string]Column)}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Key returns the name of the key column, empty if none was set.
func (t *Table) Key() string { return t.key }

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Columns returns the column set sorted by column ID.
func (t *Table) Columns() []Column {
	out := make([]Column, 0, len(t.cols))
	for _, c := range t.cols {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddColumn inserts a column; the name must be unique within the table.
func (t *Table) AddColumn(c Column) error {
	if _, ok := t.cols[c.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
	}
	t.cols[c.Name] = c
	return nil
}

// RemoveColumn drops a column by name.
func (t *Table) RemoveColumn(name string) error {
	if _, ok := t.cols[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	delete(t.cols, name)
	if t.key == name {
		t.key = ""
	}
	return nil
}

// SetKey designates an existing column as the key.
func (t *Table) SetKey(name string) error {
	if _, ok := t.cols[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	t.key = name
	return nil
}

// WriteTo serializes the table into page 0 starting at TableOff.
//
// Format:
//
//	<tbl-name> '{' <key-name> ';' (<col-name> ',' <id:u8> <type:u8> <size:u64> <off:u8>)* '}'
//
// The numeric fields are fixed-width little-endian, so no delimiter
// follows them; the next byte starts the next column name.
func (t *Table) WriteTo(s pager.Stream) error {
	var buf bytes.Buffer
	buf.WriteString(t.name)
	buf.WriteByte('{')
	buf.WriteString(t.key)
	buf.WriteByte(';')
	for _, c := range t.Columns() {
		buf.WriteString(c.Name)
		buf.WriteByte(',')
		buf.WriteByte(c.ID)
		buf.WriteByte(byte(c.Type.ID))
		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], c.Type.Size)
		buf.Write(size[:])
		buf.WriteByte(c.Offset)
	}
	buf.WriteByte('}')
	if pager.TableOff+buf.Len() > pager.PageSize {
		return fmt.Errorf("%w: %d bytes", ErrMetaTooLarge, buf.Len())
	}
	if _, err := s.WriteAt(buf.Bytes(), pager.TableOff); err != nil {
		return fmt.Errorf("table: write metadata: %w", err)
	}
	return nil
}

// ReadFrom deserializes the table metadata from page 0.
func ReadFrom(s pager.Stream) (*Table, error) {
	raw := make([]byte, pager.PageSize-pager.TableOff)
	if n, err := s.ReadAt(raw, pager.TableOff); n < len(raw) && err != nil {
		// Short page 0 still parses as long as the closing brace is there.
		raw = raw[:n]
	}
	r := metaReader{buf: raw}

	name, err := r.until('{')
	if err != nil {
		return nil, err
	}
	tbl := New(string(name))
	key, err := r.until(';')
	if err != nil {
		return nil, err
	}
	for {
		c, err := r.peek()
		if err != nil {
			return nil, err
		}
		if c == '}' {
			break
		}
		colName, err := r.until(',')
		if err != nil {
			return nil, err
		}
		fixed, err := r.take(1 + 1 + 8 + 1)
		if err != nil {
			return nil, err
		}
		typ, err := typeOf(fixed[1], binary.LittleEndian.Uint64(fixed[2:10]))
		if err != nil {
			return nil, err
		}
		col := Column{
			Name:   string(colName),
			Type:   typ,
			ID:     fixed[0],
			Offset: fixed[10],
		}
		if err := tbl.AddColumn(col); err != nil {
			return nil, err
		}
	}
	if len(key) > 0 {
		if err := tbl.SetKey(string(key)); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

type metaReader struct {
	buf []byte
	pos int
}

func (r *metaReader) peek() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("%w: unexpected end", ErrBadMeta)
	}
	return r.buf[r.pos], nil
}

func (r *metaReader) until(delim byte) ([]byte, error) {
	i := bytes.IndexByte(r.buf[r.pos:], delim)
	if i < 0 {
		return nil, fmt.Errorf("%w: missing %q", ErrBadMeta, delim)
	}
	out := r.buf[r.pos : r.pos+i]
	r.pos += i + 1
	return out, nil
}

func (r *metaReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("%w: unexpected end", ErrBadMeta)
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}
