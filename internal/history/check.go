package history

import (
	"strconv"
	"strings"
)

// DefaultMaxStates bounds the search of Check.
const DefaultMaxStates = 1 << 20

// Result is the outcome of a linearizability check.
type Result struct {
	// Linearizable is true if a legal sequential order was found.
	Linearizable bool
	// Order is one legal sequential order when Linearizable is true.
	Order []Operation
	// Exhausted is true if the search gave up after MaxStates states; the
	// history is then neither proven nor refuted.
	Exhausted bool
}

// Checker searches for a sequential order of a register history that
// respects real time (an operation that ended before another started is
// ordered first) and register semantics (every get returns the latest put,
// or Initial if there is none).
type Checker struct {
	Initial   int
	MaxStates int
}

// Check runs a Checker with the given initial value and default limits.
func Check(ops []Operation, initial int) Result {
	c := Checker{Initial: initial, MaxStates: DefaultMaxStates}
	return c.Check(ops)
}

func (c Checker) Check(ops []Operation) Result {
	s := &search{
		ops:       ops,
		placed:    make([]bool, len(ops)),
		failed:    make(map[string]struct{}),
		maxStates: c.MaxStates,
	}
	if s.maxStates <= 0 {
		s.maxStates = DefaultMaxStates
	}

	ok := s.run(c.Initial)
	if !ok {
		return Result{Exhausted: s.exhausted}
	}
	order := make([]Operation, len(s.order))
	for i, idx := range s.order {
		order[i] = ops[idx]
	}
	return Result{Linearizable: true, Order: order}
}

type search struct {
	ops       []Operation
	placed    []bool
	order     []int
	failed    map[string]struct{}
	states    int
	maxStates int
	exhausted bool
}

func (s *search) run(value int) bool {
	if len(s.order) == len(s.ops) {
		return true
	}
	key := s.key(value)
	if _, seen := s.failed[key]; seen {
		return false
	}
	s.states++
	if s.states > s.maxStates {
		s.exhausted = true
		return false
	}

	// puts first: they unlock the gets waiting for their value
	for _, kind := range []Kind{Put, Get} {
		for i, op := range s.ops {
			if s.placed[i] || op.Kind != kind || !s.minimal(i) {
				continue
			}
			next := value
			if op.Kind == Get {
				if op.Value != value {
					continue
				}
			} else {
				next = op.Value
			}

			s.placed[i] = true
			s.order = append(s.order, i)
			if s.run(next) {
				return true
			}
			s.order = s.order[:len(s.order)-1]
			s.placed[i] = false
			if s.exhausted {
				return false
			}
		}
	}

	s.failed[key] = struct{}{}
	return false
}

// minimal reports whether no unplaced operation must precede ops[i].
func (s *search) minimal(i int) bool {
	start := s.ops[i].Start
	for j, other := range s.ops {
		if j != i && !s.placed[j] && other.End <= start {
			return false
		}
	}
	return true
}

func (s *search) key(value int) string {
	var b strings.Builder
	for _, p := range s.placed {
		if p {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(value))
	return b.String()
}
