// Package history records per-step simulation state in a fixed-schema,
// append-only table.
//
// The column schema is locked by the first Set call: every later Add must
// flatten to exactly the same ordered column list. Flattening turns a scalar
// into one column, a sequence into name_0, name_1, ..., and a keyed value
// (Keyed, a string-keyed map, or a struct) into name_<key> columns.
package history

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/fatih/structs"
)

var (
	ErrSchemaMismatch = errors.New("history: columns do not match the recorded schema")
	ErrSchemaLocked   = errors.New("history: schema already set")
	ErrNoSchema       = errors.New("history: schema not set")
	ErrUnknownColumn  = errors.New("history: unknown column")
	ErrCapacity       = errors.New("history: capacity exceeded")
	ErrIndex          = errors.New("history: index out of range")
)

// Overflow selects what Add does once the table holds height rows.
type Overflow int

const (
	// OverflowError rejects the row with ErrCapacity.
	OverflowError Overflow = iota
	// OverflowGrow doubles the storage.
	OverflowGrow
)

// Field is one named input to Set or Add.
type Field struct {
	Name  string
	Value any
}

// F is shorthand for Field{name, value}.
func F(name string, value any) Field { return Field{Name: name, Value: value} }

// Keyed is an ordered mapping. It flattens to name_<key> columns in slice
// order.
type Keyed []Field

// History is the column store. It is not safe for concurrent use.
type History struct {
	height   int
	overflow Overflow
	columns  []string
	index    map[string]int
	cells    [][]Value // cells[column][row]
	size     int
}

// New returns an empty history able to hold height rows.
func New(height int, overflow Overflow) *History {
	if height < 1 {
		height = 1
	}
	return &History{height: height, overflow: overflow}
}

// Set defines the schema from fields and records them as the first row.
func (h *History) Set(fields ...Field) error {
	if h.columns != nil {
		return ErrSchemaLocked
	}
	names, _, err := flatten(fields)
	if err != nil {
		return err
	}

	h.columns = names
	h.index = make(map[string]int, len(names))
	h.cells = make([][]Value, len(names))
	for i, name := range names {
		h.index[name] = i
		h.cells[i] = make([]Value, h.height)
	}
	h.size = 0
	return h.Add(fields...)
}

// Add appends a row. The flattened columns must equal the schema.
func (h *History) Add(fields ...Field) error {
	if h.columns == nil {
		return ErrNoSchema
	}
	names, values, err := flatten(fields)
	if err != nil {
		return err
	}
	if !sameColumns(names, h.columns) {
		return fmt.Errorf("%w: expected %v, got %v", ErrSchemaMismatch, h.columns, names)
	}

	if h.size == h.height {
		if h.overflow != OverflowGrow {
			return fmt.Errorf("%w: %d rows", ErrCapacity, h.height)
		}
		h.grow()
	}
	for c, v := range values {
		h.cells[c][h.size] = v
	}
	h.size++
	return nil
}

func (h *History) grow() {
	h.height *= 2
	for c := range h.cells {
		next := make([]Value, h.height)
		copy(next, h.cells[c])
		h.cells[c] = next
	}
}

// Len is the number of recorded rows.
func (h *History) Len() int { return h.size }

// Cap is the current row capacity.
func (h *History) Cap() int { return h.height }

// Columns returns a copy of the schema.
func (h *History) Columns() []string {
	return append([]string(nil), h.columns...)
}

// HasColumn reports whether name is part of the schema.
func (h *History) HasColumn(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Column returns every recorded value of a column.
func (h *History) Column(name string) ([]Value, error) {
	c, err := h.col(name)
	if err != nil {
		return nil, err
	}
	return append([]Value(nil), h.cells[c][:h.size]...), nil
}

// Floats returns a column read as float64.
func (h *History) Floats(name string) ([]float64, error) {
	c, err := h.col(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, h.size)
	for i, v := range h.cells[c][:h.size] {
		out[i] = v.Float()
	}
	return out, nil
}

// At returns a single cell. Negative t counts back from the latest row.
func (h *History) At(name string, t int) (Value, error) {
	c, err := h.col(name)
	if err != nil {
		return Value{}, err
	}
	r, err := h.row(t)
	if err != nil {
		return Value{}, err
	}
	return h.cells[c][r], nil
}

// Float is At read as float64.
func (h *History) Float(name string, t int) (float64, error) {
	v, err := h.At(name, t)
	if err != nil {
		return 0, err
	}
	return v.Float(), nil
}

// SetAt overwrites an already recorded cell.
func (h *History) SetAt(name string, t int, value any) error {
	c, err := h.col(name)
	if err != nil {
		return err
	}
	r, err := h.row(t)
	if err != nil {
		return err
	}
	v, err := ValueOf(value)
	if err != nil {
		return err
	}
	h.cells[c][r] = v
	return nil
}

// Row returns the full row at t. Negative t counts back from the latest row.
func (h *History) Row(t int) (Record, error) {
	r, err := h.row(t)
	if err != nil {
		return Record{}, err
	}
	values := make([]Value, len(h.columns))
	for c := range h.columns {
		values[c] = h.cells[c][r]
	}
	return Record{names: h.columns, values: values}, nil
}

// Select returns the recorded rows restricted to the named columns.
func (h *History) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		c, err := h.col(name)
		if err != nil {
			return nil, err
		}
		idx[i] = c
	}
	tbl := &Table{Columns: append([]string(nil), names...), Rows: make([][]Value, h.size)}
	for r := 0; r < h.size; r++ {
		row := make([]Value, len(idx))
		for i, c := range idx {
			row[i] = h.cells[c][r]
		}
		tbl.Rows[r] = row
	}
	return tbl, nil
}

func (h *History) col(name string) (int, error) {
	c, ok := h.index[name]
	if !ok {
		return 0, fmt.Errorf("%w %q, available columns: %v", ErrUnknownColumn, name, h.columns)
	}
	return c, nil
}

func (h *History) row(t int) (int, error) {
	r := t
	if r < 0 {
		r += h.size
	}
	if r < 0 || r >= h.size {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrIndex, t, h.size)
	}
	return r, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func flatten(fields []Field) ([]string, []Value, error) {
	var (
		names  []string
		values []Value
	)
	push := func(name string, raw any) error {
		v, err := ValueOf(raw)
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		names = append(names, name)
		values = append(values, v)
		return nil
	}

	for _, f := range fields {
		switch x := f.Value.(type) {
		case Keyed:
			for _, kv := range x {
				if err := push(f.Name+"_"+kv.Name, kv.Value); err != nil {
					return nil, nil, err
				}
			}
			continue
		case time.Time, Value, nil:
			if err := push(f.Name, x); err != nil {
				return nil, nil, err
			}
			continue
		}

		rv := reflect.ValueOf(f.Value)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				if err := push(fmt.Sprintf("%s_%d", f.Name, i), rv.Index(i).Interface()); err != nil {
					return nil, nil, err
				}
			}
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return nil, nil, fmt.Errorf("history: field %q: map keys must be strings", f.Name)
			}
			keys := make([]string, 0, rv.Len())
			for _, k := range rv.MapKeys() {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := push(f.Name+"_"+k, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()); err != nil {
					return nil, nil, err
				}
			}
		case reflect.Struct:
			for _, sf := range structs.Fields(f.Value) {
				if !sf.IsExported() {
					continue
				}
				key := sf.Tag("structs")
				if key == "-" {
					continue
				}
				if key == "" {
					key = sf.Name()
				}
				if err := push(f.Name+"_"+key, sf.Value()); err != nil {
					return nil, nil, err
				}
			}
		default:
			if err := push(f.Name, f.Value); err != nil {
				return nil, nil, err
			}
		}
	}
	return names, values, nil
}
