// Package schema validates untyped frames against typed table models and
// loads model definitions from YAML.
package schema

import (
	"duck-etl/internal/ddl"
	"duck-etl/internal/domain"
)

// Compile-time check.
var _ domain.SchemaValidator = (*Validator)(nil)

// Validator checks a frame against a model: columns the model does not declare
// are dropped, the remaining columns are put in model order and every value is
// coerced to its declared type. Any violation fails the whole frame.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator { return &Validator{} }

// Validate returns a new frame shaped exactly like model.
func (v *Validator) Validate(frame domain.Frame, model domain.TableModel) (domain.Frame, error) {
	seen := make(map[string]bool, len(frame.Columns))
	for _, c := range frame.Columns {
		if seen[c] {
			return domain.Frame{}, domain.ErrValidation(model.Name, "duplicate column %q", c)
		}
		seen[c] = true
	}

	src := make([]int, len(model.Columns))
	for i, col := range model.Columns {
		src[i] = frame.Index(col.Name)
		if src[i] < 0 && !col.Optional {
			return domain.Frame{}, domain.ErrValidation(model.Name, "missing column %q", col.Name)
		}
	}

	out := domain.Frame{Columns: model.ColumnNames(), Rows: make([][]any, len(frame.Rows))}
	for r, row := range frame.Rows {
		if len(row) != len(frame.Columns) {
			return domain.Frame{}, domain.ErrValidation(model.Name, "row %d has %d values, want %d", r, len(row), len(frame.Columns))
		}
		vals := make([]any, len(model.Columns))
		for i, col := range model.Columns {
			var raw any
			if src[i] >= 0 {
				raw = row[src[i]]
			}
			val, err := Coerce(raw, col.Type)
			if err != nil {
				return domain.Frame{}, domain.ErrValidation(model.Name, "column %q row %d: %v", col.Name, r, err)
			}
			if val == nil && !col.Nullable {
				return domain.Frame{}, domain.ErrValidation(model.Name, "column %q row %d: null in non-nullable column", col.Name, r)
			}
			vals[i] = val
		}
		out.Rows[r] = vals
	}
	return out, nil
}

// CheckModel reports a ConfigurationError for a model that cannot back a table.
func CheckModel(model domain.TableModel) error {
	if err := ddl.ValidateIdentifier(model.Name); err != nil {
		return domain.ErrConfiguration("model %q: %v", model.Name, err)
	}
	if len(model.Columns) == 0 {
		return domain.ErrConfiguration("model %q: at least one column is required", model.Name)
	}
	seen := make(map[string]bool, len(model.Columns))
	for _, c := range model.Columns {
		if err := ddl.ValidateIdentifier(c.Name); err != nil {
			return domain.ErrConfiguration("model %q column %q: %v", model.Name, c.Name, err)
		}
		if seen[c.Name] {
			return domain.ErrConfiguration("model %q: duplicate column %q", model.Name, c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return domain.ErrConfiguration("model %q column %q: unsupported type %q", model.Name, c.Name, c.Type)
		}
		if c.Optional && !c.Nullable {
			return domain.ErrConfiguration("model %q column %q: optional columns must be nullable", model.Name, c.Name)
		}
	}
	return nil
}
