package clock

import "fmt"

// Tag is a (timestamp, value) pair. Timestamps are logical write versions,
// not wall-clock time. The zero Tag is the register's initial state.
type Tag struct {
	Timestamp int
	Value     int
}

// CompareResult represents the result of comparing two tags.
type CompareResult int

const (
	// Before indicates this tag orders before the other.
	Before CompareResult = iota
	// After indicates this tag orders after the other.
	After
	// Equal indicates the tags are identical.
	Equal
)

// String returns the name of the comparison result.
func (r CompareResult) String() string {
	switch r {
	case Before:
		return "Before"
	case After:
		return "After"
	case Equal:
		return "Equal"
	default:
		return "Unknown"
	}
}

// Compare orders two tags lexicographically: the larger timestamp wins, and
// for equal timestamps the larger value wins.
func (t Tag) Compare(other Tag) CompareResult {
	switch {
	case t.Timestamp > other.Timestamp:
		return After
	case t.Timestamp < other.Timestamp:
		return Before
	case t.Value > other.Value:
		return After
	case t.Value < other.Value:
		return Before
	default:
		return Equal
	}
}

// Dominates returns true if t orders strictly after other.
func (t Tag) Dominates(other Tag) bool {
	return t.Compare(other) == After
}

// Next returns the tag a writer proposes after observing t as the newest
// tag of a majority: one timestamp higher, carrying the writer's value.
func (t Tag) Next(value int) Tag {
	return Tag{Timestamp: t.Timestamp + 1, Value: value}
}

// String returns a string representation of the tag.
func (t Tag) String() string {
	return fmt.Sprintf("(ts=%d, v=%d)", t.Timestamp, t.Value)
}

// Max returns the greatest of the given tags, or the zero Tag if none are given.
func Max(tags ...Tag) Tag {
	var max Tag
	for i, t := range tags {
		if i == 0 || t.Dominates(max) {
			max = t
		}
	}
	return max
}
