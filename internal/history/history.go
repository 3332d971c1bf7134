package history

import (
	"fmt"
	"sort"
	"sync"
)

// Kind is the type of a register operation.
type Kind int

const (
	Put Kind = iota
	Get
)

func (k Kind) String() string {
	if k == Put {
		return "put"
	}
	return "get"
}

// Operation is one completed put or get. Start and End are wall-clock
// nanoseconds; Value is the written value for puts and the returned value
// for gets.
type Operation struct {
	Node  string
	Seq   int
	Kind  Kind
	Value int
	Start int64
	End   int64
}

func (op Operation) String() string {
	return fmt.Sprintf("%s#%d %s(%d) [%d,%d]", op.Node, op.Seq, op.Kind, op.Value, op.Start, op.End)
}

// Recorder receives completed operations. Implementations must be safe for
// concurrent use because every node records from its own goroutine.
type Recorder interface {
	Record(op Operation)
}

// Log is an in-memory Recorder.
type Log struct {
	mu  sync.Mutex
	ops []Operation
}

// Record appends op.
func (l *Log) Record(op Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// Operations returns the recorded operations ordered by start time.
func (l *Log) Operations() []Operation {
	l.mu.Lock()
	ops := append([]Operation(nil), l.ops...)
	l.mu.Unlock()

	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Start < ops[j].Start })
	return ops
}

// ByNode groups operations per node, each group in sequence order.
func ByNode(ops []Operation) map[string][]Operation {
	groups := make(map[string][]Operation)
	for _, op := range ops {
		groups[op.Node] = append(groups[op.Node], op)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Seq < g[j].Seq })
	}
	return groups
}
