package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"duck-etl/internal/domain"
)

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

// Coerce converts v to the Go representation of t: string, int64, int32,
// float64, bool or time.Time. nil stays nil. A blank string is NULL for every
// type except VARCHAR. Dates are midnight UTC; timestamps are naive UTC.
func Coerce(v any, t domain.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if s, ok := v.(string); ok && t != domain.TypeVarchar {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v = s
	}

	switch t {
	case domain.TypeVarchar:
		return toString(v)
	case domain.TypeBigint:
		return toInt64(v)
	case domain.TypeInteger:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("value %d out of INTEGER range", n)
		}
		return int32(n), nil
	case domain.TypeDouble:
		return toFloat64(v)
	case domain.TypeBoolean:
		return toBool(v)
	case domain.TypeDate:
		ts, err := toTime(v, dateLayouts)
		if err != nil {
			return nil, err
		}
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case domain.TypeTimestamp:
		ts, err := toTime(v, timestampLayouts)
		if err != nil {
			return nil, err
		}
		return ts.UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported type %q", t)
	}
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	if n, ok := asInt64(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to VARCHAR", v, v)
}

func toInt64(v any) (int64, error) {
	if n, ok := asInt64(v); ok {
		return n, nil
	}
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d out of BIGINT range", x)
		}
		return int64(x), nil
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to BIGINT", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("cannot coerce %v (%T) to BIGINT", v, v)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("cannot coerce %v to an integer without loss", f)
	}
	return int64(f), nil
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func toFloat64(v any) (float64, error) {
	if n, ok := asInt64(v); ok {
		return float64(n), nil
	}
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case uint64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to DOUBLE", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot coerce %v (%T) to DOUBLE", v, v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(x) {
		case "1", "t", "true", "y", "yes":
			return true, nil
		case "0", "f", "false", "n", "no":
			return false, nil
		}
		return false, fmt.Errorf("cannot coerce %q to BOOLEAN", x)
	}
	if n, ok := asInt64(v); ok && (n == 0 || n == 1) {
		return n == 1, nil
	}
	return false, fmt.Errorf("cannot coerce %v (%T) to BOOLEAN", v, v)
}

func toTime(v any, layouts []string) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, x); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a date or time", x)
	}
	return time.Time{}, fmt.Errorf("cannot coerce %v (%T) to a date or time", v, v)
}
