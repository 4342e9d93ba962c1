package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-etl/internal/domain"
)

func TestCoerce(t *testing.T) {
	day := time.Date(2021, 10, 20, 0, 0, 0, 0, time.UTC)
	ts := time.Date(2021, 10, 20, 8, 30, 0, 500000000, time.UTC)

	tests := []struct {
		name string
		in   any
		typ  domain.ColumnType
		want any
	}{
		{"nil", nil, domain.TypeBigint, nil},
		{"varchar_keeps_blank", "", domain.TypeVarchar, ""},
		{"varchar_from_int", 42, domain.TypeVarchar, "42"},
		{"varchar_from_float", 1.5, domain.TypeVarchar, "1.5"},
		{"varchar_from_bytes", []byte("abc"), domain.TypeVarchar, "abc"},
		{"bigint_from_string", " 12 ", domain.TypeBigint, int64(12)},
		{"bigint_blank_is_null", "  ", domain.TypeBigint, nil},
		{"bigint_from_int32", int32(7), domain.TypeBigint, int64(7)},
		{"bigint_from_integral_float", 3.0, domain.TypeBigint, int64(3)},
		{"integer", "-5", domain.TypeInteger, int32(-5)},
		{"double_from_string", "2.25", domain.TypeDouble, 2.25},
		{"double_from_int", 2, domain.TypeDouble, 2.0},
		{"bool_from_string", "Yes", domain.TypeBoolean, true},
		{"bool_from_int", 0, domain.TypeBoolean, false},
		{"date_from_string", "2021-10-20", domain.TypeDate, day},
		{"date_from_timestamp", ts, domain.TypeDate, day},
		{"timestamp_from_rfc3339", "2021-10-20T10:30:00.5+02:00", domain.TypeTimestamp, ts},
		{"timestamp_from_space_layout", "2021-10-20 08:30:00.5", domain.TypeTimestamp, ts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.typ)
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				require.IsType(t, time.Time{}, got)
				assert.True(t, want.Equal(got.(time.Time)), "got %v", got)
				assert.Equal(t, time.UTC, got.(time.Time).Location())
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   any
		typ  domain.ColumnType
	}{
		{"bigint_from_text", "twelve", domain.TypeBigint},
		{"bigint_from_fraction", 1.5, domain.TypeBigint},
		{"bigint_from_bool", true, domain.TypeBigint},
		{"integer_overflow", int64(1) << 40, domain.TypeInteger},
		{"double_from_text", "n/a", domain.TypeDouble},
		{"bool_from_text", "maybe", domain.TypeBoolean},
		{"bool_from_two", 2, domain.TypeBoolean},
		{"date_from_text", "yesterday", domain.TypeDate},
		{"timestamp_from_int", 5, domain.TypeTimestamp},
		{"varchar_from_struct", struct{}{}, domain.TypeVarchar},
		{"unknown_type", "x", "MONEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.in, tt.typ)
			assert.Error(t, err)
		})
	}
}
