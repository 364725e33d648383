// Package topics deals with topic names and topic filters as used by
// MQTT-style brokers.
//   - A topic name is a "/" separated string; each part is a topic level.
//   - "#" is a multi-level wildcard. It must be the last level of a filter
//     and matches the parent level plus any number of child levels,
//     including zero.
//   - "+" is a single-level wildcard. It matches exactly one level.
//   - Every other level matches by case-sensitive string equality.
package topics

import "strings"

const (
	// MWC is the multi-level wildcard
	MWC = "#"

	// SWC is the single-level wildcard
	SWC = "+"

	// SEP is the topic level separator
	SEP = "/"
)

// Match reports whether the concrete topic matches the subscription filter.
//
// It is pure and total: any pair of strings yields a boolean, never a
// panic. A filter without wildcards matches only the identical topic.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}

	levels := strings.Split(filter, SEP)
	parts := strings.Split(topic, SEP)

	for i, level := range levels {
		if level == MWC {
			// "#" only acts as a wildcard when it terminates the filter.
			// It matches the remaining levels, even when there are none.
			return i == len(levels)-1
		}
		if i >= len(parts) {
			return false
		}
		if level == SWC {
			continue
		}
		if level != parts[i] {
			return false
		}
	}

	return len(levels) == len(parts)
}
