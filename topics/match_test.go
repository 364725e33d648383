package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"exact match", "a/b/c", "a/b/c", true},
		{"exact mismatch", "a/b/c", "a/b/d", false},
		{"literal shorter than topic", "a/b", "a/b/c", false},
		{"literal longer than topic", "a/b/c", "a/b", false},
		{"case sensitive", "a/B/c", "a/b/c", false},

		{"plus matches one level", "a/+/c", "a/b/c", true},
		{"plus matches exactly one level", "a/+/c", "a/b/d/c", false},
		{"plus needs a level", "a/+", "a", false},
		{"plus alone", "+", "a", true},
		{"plus alone two levels", "+", "a/b", false},

		{"hash matches parent", "a/#", "a", true},
		{"hash matches child", "a/#", "a/b", true},
		{"hash matches deep child", "a/#", "a/b/c", true},
		{"hash alone matches anything", "#", "a/b/c", true},
		{"hash must be last", "a/#/c", "a/b/c", false},
		{"hash after mismatch", "b/#", "a/b", false},

		{"mixed wildcards", "a/+/#", "a/b/c/d", true},
		{"mixed wildcards no level for plus", "a/+/#", "a", false},

		{"empty filter empty topic", "", "", true},
		{"empty filter", "", "a", false},
		{"empty topic", "a", "", false},
		{"empty levels", "a//c", "a//c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.filter, tt.topic), "Match(%q, %q)", tt.filter, tt.topic)
		})
	}
}

func TestMatchWithoutWildcardsIsEquality(t *testing.T) {
	values := []string{"a", "a/b", "a/b/c", "posts", "sensor/1/temp", ""}
	for _, filter := range values {
		for _, topic := range values {
			assert.Equal(t, filter == topic, Match(filter, topic), "Match(%q, %q)", filter, topic)
		}
	}
}
