package domain

import "encoding/json"

// FileNameColumn is the provenance column injected into every silver table.
// Tables are partitioned by it and loads replace exactly one of its values.
const FileNameColumn = "file_name"

// ColumnType is a logical column type. Values match DuckDB type names.
type ColumnType string

// Supported column types.
const (
	TypeVarchar   ColumnType = "VARCHAR"
	TypeBigint    ColumnType = "BIGINT"
	TypeInteger   ColumnType = "INTEGER"
	TypeDouble    ColumnType = "DOUBLE"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeDate      ColumnType = "DATE"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// Valid reports whether t is one of the supported column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeVarchar, TypeBigint, TypeInteger, TypeDouble, TypeBoolean, TypeDate, TypeTimestamp:
		return true
	}
	return false
}

// Column is one typed column of a TableModel.
type Column struct {
	Name     string     `yaml:"name"`
	Type     ColumnType `yaml:"type"`
	Nullable bool       `yaml:"nullable"`
	// Optional columns may be absent from a transformed frame; they are then
	// filled with NULL and must also be Nullable.
	Optional    bool              `yaml:"optional"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
}

// Comment is the column comment stored with the table: the description,
// followed by the metadata as a JSON object with sorted keys when there is any.
func (c Column) Comment() string {
	if len(c.Metadata) == 0 {
		return c.Description
	}
	meta, _ := json.Marshal(c.Metadata)
	if c.Description == "" {
		return string(meta)
	}
	return c.Description + " " + string(meta)
}

// TableModel is a named, typed schema. One TableModel maps to exactly one
// silver table.
type TableModel struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Columns     []Column `yaml:"columns"`
}

// Column returns the column with the given name.
func (m TableModel) Column(name string) (Column, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in order.
func (m TableModel) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

// Frame is an untyped tabular result: ordered column names and rows of values
// aligned with them. It is what a transform produces and what the storage
// engine reads and writes.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// NewFrame returns an empty frame with the given columns.
func NewFrame(columns ...string) Frame {
	return Frame{Columns: columns}
}

// Append adds a row. Values must be aligned with Columns.
func (f *Frame) Append(values ...any) {
	f.Rows = append(f.Rows, values)
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// Index returns the position of col, or -1.
func (f Frame) Index(col string) int {
	for i, c := range f.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Value returns the value of col in the given row.
func (f Frame) Value(row int, col string) (any, bool) {
	i := f.Index(col)
	if i < 0 || row < 0 || row >= len(f.Rows) || i >= len(f.Rows[row]) {
		return nil, false
	}
	return f.Rows[row][i], true
}

// WithConstant returns a copy of f with col set to v on every row. An existing
// column of the same name is overwritten, otherwise the column is appended.
func (f Frame) WithConstant(col string, v any) Frame {
	idx := f.Index(col)
	out := Frame{Columns: append([]string(nil), f.Columns...)}
	if idx < 0 {
		out.Columns = append(out.Columns, col)
	}
	out.Rows = make([][]any, len(f.Rows))
	for i, row := range f.Rows {
		r := make([]any, len(out.Columns))
		copy(r, row)
		if idx < 0 {
			r[len(r)-1] = v
		} else {
			r[idx] = v
		}
		out.Rows[i] = r
	}
	return out
}
