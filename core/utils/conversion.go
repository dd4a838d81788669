package utils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ToInt converts various types to int using explicit type switching.
// It handles standard integer types, floats, strings, and byte slices.
func ToInt(val any) int {
	return int(ToInt64(val))
}

// ToInt64 converts various types to int64.
func ToInt64(val any) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case uint:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i
	case []byte:
		i, _ := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return i
	default:
		return 0
	}
}

// ToString converts various types to string. nil becomes the empty string.
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBool converts various types to bool.
// It handles bool, numeric types (1=true), and strings ("1", "true").
func ToBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int, int64, int32, uint, uint64, uint32, float64, float32:
		return ToInt64(v) == 1
	case string:
		return v == "1" || strings.ToLower(v) == "true"
	case []byte:
		s := string(v)
		return s == "1" || strings.ToLower(s) == "true"
	default:
		return false
	}
}

// ToTime converts a stored timestamp. It accepts time.Time, RFC 3339 strings,
// unix milliseconds and exported timestamp objects ({"_seconds": n} or
// {"seconds": n}). The second return value is false when val holds no usable
// time.
func ToTime(val any) (time.Time, bool) {
	switch v := val.(type) {
	case time.Time:
		return v.UTC(), !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.UTC(), !v.IsZero()
	case string:
		if v == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC(), true
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	case int, int64, int32, uint, uint64, uint32, float64, float32:
		ms := ToInt64(v)
		if ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	case map[string]any:
		for _, key := range []string{"_seconds", "seconds"} {
			if s, ok := v[key]; ok {
				sec := ToInt64(s)
				nanos := ToInt64(v["_nanoseconds"]) + ToInt64(v["nanos"])
				if sec <= 0 {
					return time.Time{}, false
				}
				return time.Unix(sec, nanos).UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// ToStringList converts an array-like or set-like value into a list of
// non-empty strings. Arrays keep their order and report ordered=true. Maps
// are treated as sets: keys with a truthy value are returned sorted and
// ordered is false. Duplicates are dropped, first occurrence wins.
func ToStringList(val any) (list []string, ordered bool) {
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		list = append(list, s)
	}

	switch v := val.(type) {
	case []string:
		for _, s := range v {
			add(s)
		}
		return list, true
	case []any:
		for _, item := range v {
			add(ToString(item))
		}
		return list, true
	case map[string]any:
		for k, flag := range v {
			if ToBool(flag) {
				add(k)
			}
		}
		sort.Strings(list)
		return list, false
	case map[string]bool:
		for k, flag := range v {
			if flag {
				add(k)
			}
		}
		sort.Strings(list)
		return list, false
	default:
		return nil, true
	}
}
