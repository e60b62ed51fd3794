package glob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"", "", true},
		{"", "a", false},
		{"*", "", true},
		{"*", "anything", true},
		{"user:*", "user:1", true},
		{"user:*", "user:", true},
		{"user:*", "post:1", false},
		{"?ser:?", "user:1", true},
		{"?ser:?", "user:10", false},
		{"a*b*c", "abc", true},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
		{"*.log", "app.log.1", false},
		{"**", "x", true},
		{"h?llo", "héllo", true},
		{"exact", "exact", true},
		{"exact", "exacT", false},
		{"a*", "b", false},
		{"a\xff", "a\xfe", false},
		{"a\xff", "a\xff", true},
		{"a?", "a\xfe", true},
		{"?", "\xff\xfe", false},
		{"*\xfe", "\xff\xfe", true},
		{"\x00L:*", "\x00L:queue", true},
		{"\x00L:*", "\x00S:queue", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.input))
		})
	}
}

func TestHasWildcard(t *testing.T) {
	assert.True(t, HasWildcard("news.*"))
	assert.True(t, HasWildcard("user:?"))
	assert.False(t, HasWildcard("news.sports"))
}

func TestFilter(t *testing.T) {
	keys := []string{"user:1", "user:2", "user:3", "post:1", "post:2"}

	assert.Equal(t, []string{"user:1", "user:2", "user:3"}, Filter("user:*", keys))
	assert.Equal(t, []string{"user:1", "user:2", "user:3"}, Filter("?ser:?", keys))
	assert.Empty(t, Filter("comment:*", keys))
}
