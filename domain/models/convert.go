package models

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// Warehouse drivers hand back rows as map[string]interface{} with
// driver-specific value types. The converters below normalise them.

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04:05 MST", "2006-01-02"}

// ToFloat converts a numeric cell. NULL is zero.
func ToFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case *big.Rat:
		f, _ := x.Float64()
		return f, nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	case *float64:
		if x == nil {
			return 0, nil
		}
		return *x, nil
	case *int64:
		if x == nil {
			return 0, nil
		}
		return float64(*x), nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

// ToInt64 converts an integer cell. NULL is zero.
func ToInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case *big.Rat:
		f, _ := x.Float64()
		return int64(f), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	case *int64:
		if x == nil {
			return 0, nil
		}
		return *x, nil
	}
	return 0, fmt.Errorf("unsupported integer value %v (%T)", v, v)
}

// ToInt converts a required integer cell such as a time bin.
func ToInt(v interface{}) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("missing integer value")
	}
	n, err := ToInt64(v)
	return int(n), err
}

// ToTime accepts native times and the textual layouts the drivers emit.
func ToTime(v interface{}) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x != nil {
			return *x, nil
		}
	case []byte:
		return ToTime(string(x))
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unsupported time value %q", x)
	}
	return time.Time{}, fmt.Errorf("unsupported time value %v (%T)", v, v)
}
