package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToBool(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"Bool", true, true},
		{"One", 1, true},
		{"Float", float64(1), true},
		{"Zero", 0, false},
		{"String", "true", true},
		{"StringOne", "1", true},
		{"Nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToBool(tt.in))
		})
	}
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "abc", ToString([]byte("abc")))
	assert.Equal(t, "42", ToString(42))
}

func TestToTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		ok   bool
	}{
		{"Time", want, true},
		{"RFC3339", "2024-03-01T12:00:00Z", true},
		{"Millis", want.UnixMilli(), true},
		{"MillisFloat", float64(want.UnixMilli()), true},
		{"Exported", map[string]any{"_seconds": float64(want.Unix()), "_nanoseconds": float64(0)}, true},
		{"Empty", "", false},
		{"Garbage", "yesterday", false},
		{"Nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestToStringList(t *testing.T) {
	list, ordered := ToStringList([]any{"user2", "user3", "user2", ""})
	assert.Equal(t, []string{"user2", "user3"}, list)
	assert.True(t, ordered)

	list, ordered = ToStringList(map[string]any{"user3": true, "user1": true, "user2": false})
	assert.Equal(t, []string{"user1", "user3"}, list)
	assert.False(t, ordered)

	list, _ = ToStringList(nil)
	assert.Empty(t, list)
}
