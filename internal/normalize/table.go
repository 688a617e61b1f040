package normalize

// Row is one flattened flight record keyed by column name.
// A column absent from a Row is null.
type Row map[string]any

// Table is an ordered set of columns over rows. Column order is first-seen order.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.columns))
	copy(cols, t.columns)

	return cols
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return len(t.rows) == 0
}

// HasColumn reports whether name is a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]

	return ok
}

// Value returns the value at row i, column name; nil when null.
func (t *Table) Value(i int, name string) any {
	return t.rows[i][name]
}

// addColumn registers name at the end of the column list if it is new.
func (t *Table) addColumn(name string) {
	if _, ok := t.index[name]; ok {
		return
	}

	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
}

// appendRow adds a row whose columns were registered by the caller.
func (t *Table) appendRow(r Row) {
	t.rows = append(t.rows, r)
}

// Drop removes the named columns. Names that are not columns are ignored.
func (t *Table) Drop(names ...string) {
	dropped := false

	for _, name := range names {
		if _, ok := t.index[name]; !ok {
			continue
		}

		delete(t.index, name)

		for _, r := range t.rows {
			delete(r, name)
		}

		dropped = true
	}

	if !dropped {
		return
	}

	kept := t.columns[:0]
	for _, c := range t.columns {
		if _, ok := t.index[c]; ok {
			t.index[c] = len(kept)
			kept = append(kept, c)
		}
	}

	t.columns = kept
}

// SetConstant sets column name to v on every row. An existing column keeps
// its position; a new one is appended.
func (t *Table) SetConstant(name string, v any) {
	t.addColumn(name)

	for _, r := range t.rows {
		r[name] = v
	}
}

// Map replaces every value of column name with fn(value).
func (t *Table) Map(name string, fn func(any) any) {
	if !t.HasColumn(name) {
		return
	}

	for _, r := range t.rows {
		v := fn(r[name])
		if v == nil {
			delete(r, name)

			continue
		}

		r[name] = v
	}
}

// Concat appends other's rows. Columns new to t are appended in other's order;
// rows on either side lacking a column read as null (outer join by column).
func (t *Table) Concat(other *Table) {
	for _, c := range other.columns {
		t.addColumn(c)
	}

	t.rows = append(t.rows, other.rows...)
}
