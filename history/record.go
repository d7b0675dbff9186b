package history

// Record is one history row: column names paired with their values, in
// schema order.
type Record struct {
	names  []string
	values []Value
}

func (r Record) Len() int { return len(r.names) }
func (r Record) Names() []string { return append([]string(nil), r.names...) }
func (r Record) Values() []Value { return append([]Value(nil), r.values...) }
func (r Record) IsZero() bool { return r.names == nil }

// Get returns the value of a column.
func (r Record) Get(name string) (Value, bool) {
	for i, n := range r.names {
		if n == name {
			return r.values[i], true
		}
	}
	return Value{}, false
}

// Float returns the column read as float64, or NaN when it is missing.
func (r Record) Float(name string) float64 {
	v, _ := r.Get(name)
	return v.Float()
}

// Map returns the row as name -> plain Go value.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.names))
	for i, n := range r.names {
		m[n] = r.values[i].Interface()
	}
	return m
}

// Table is a column subset of the history, as returned by Select.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// Strings renders the table rows for CSV output, header first.
func (t *Table) Strings() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = v.String()
		}
		out = append(out, line)
	}
	return out
}
