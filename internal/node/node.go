package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"abdkv/internal/clock"
	"abdkv/internal/history"
	"abdkv/internal/logger"
	"abdkv/internal/msg"
	"abdkv/internal/quorum"
	"abdkv/internal/repair"
	"abdkv/internal/storage"
	"abdkv/internal/transport"
)

// State is the lifecycle stage of a node.
type State int

const (
	// Unconfigured nodes are missing the peer list or the operation count.
	Unconfigured State = iota
	// Configured nodes know N and M and wait for the launch signal.
	Configured
	// Running nodes have operations left to issue.
	Running
	// Completed nodes finished all 2*M operations and notified the monitor.
	Completed
	// Crashed nodes ignore every message.
	Crashed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "UNCONFIGURED"
	case Configured:
		return "CONFIGURED"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Crashed:
		return "CRASHED"
	default:
		return "UNKNOWN"
	}
}

// Option configures a Node.
type Option func(*Node)

// WithOperationLog sets the per-run operation log.
func WithOperationLog(l *logger.Logger) Option {
	return func(n *Node) { n.oplog = l }
}

// WithRecorder sets where completed operations are recorded.
func WithRecorder(r history.Recorder) Option {
	return func(n *Node) { n.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// WithStore replaces the in-memory register.
func WithStore(s storage.Store) Option {
	return func(n *Node) { n.store = s }
}

// operation is the scratch state of the operation in flight.
type operation struct {
	isWrite     bool
	value       int // scheduled value of a put
	start       time.Time
	readSenders *quorum.Tracker
	responses   []repair.Response

	writeBack  bool // WriteRequest already broadcast
	target     clock.Tag
	readResult int
	ackSenders *quorum.Tracker
}

// Node is one replica. All methods except Address must be called from a
// single goroutine; Run does this for the node's whole lifetime.
type Node struct {
	index    int
	addr     msg.Address
	out      transport.Sender
	store    storage.Store
	oplog    *logger.Logger
	recorder history.Recorder
	now      func() time.Time

	peers      []msg.Address
	monitor    msg.Address
	hasPeers   bool
	operations int // M
	hasCount   bool
	schedule   []int

	seq       int
	completed int
	crashed   bool
	launched  bool
	started   bool
	done      bool
	op        *operation
}

// New creates the replica with the given index. Outgoing envelopes go to out.
func New(index int, out transport.Sender, opts ...Option) *Node {
	n := &Node{
		index: index,
		addr:  msg.NodeAddress(index),
		out:   out,
		store: storage.NewInMemoryRegister(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Address returns the node's address.
func (n *Node) Address() msg.Address {
	return n.addr
}

// Run handles envelopes from mb until ctx is done or mb is closed.
func (n *Node) Run(ctx context.Context, mb *transport.Mailbox) error {
	for {
		env, err := mb.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("node %s: %w", n.addr, err)
		}
		n.Handle(env)
	}
}

// Handle processes a single envelope to completion.
func (n *Node) Handle(env msg.Envelope) {
	if n.crashed {
		return
	}

	switch m := env.Body.(type) {
	case msg.PeerConfig:
		n.configureReferences(m.Peers, m.Monitor)
	case msg.OperationCountConfig:
		n.configureOperationCount(m.Operations)
	case msg.CrashSignal:
		n.crash()
	case msg.LaunchSignal:
		n.launch()
	case msg.ReadRequest:
		n.handleReadRequest(env.From, m)
	case msg.ReadResponse:
		n.handleReadResponse(env.From, m)
	case msg.WriteRequest:
		n.handleWriteRequest(env.From, m)
	case msg.Ack:
		n.handleAck(env.From, m)
	case nil:
		log.Printf("[%s] dropping empty envelope from %s", n.addr, env.From)
	default:
		log.Printf("[%s] dropping unexpected %s from %s", n.addr, m.Kind(), env.From)
	}
}

// configureReferences and configureOperationCount drop messages that arrive
// after the first operation started, so N and M stay fixed for the run.
func (n *Node) configureReferences(peers []msg.Address, monitor msg.Address) {
	if n.started {
		log.Printf("[%s] ignoring peer configuration after start", n.addr)
		return
	}
	n.peers = append([]msg.Address(nil), peers...)
	n.monitor = monitor
	n.hasPeers = true
	n.computeSchedule()
	n.maybeStart()
}

func (n *Node) configureOperationCount(m int) {
	if m < 0 {
		log.Printf("[%s] ignoring negative operation count %d", n.addr, m)
		return
	}
	if n.started {
		log.Printf("[%s] ignoring operation count %d after start", n.addr, m)
		return
	}
	n.operations = m
	n.hasCount = true
	n.computeSchedule()
	n.oplog.Log("%s: updated number of operations to %d", n.addr, m)
	n.maybeStart()
}

// computeSchedule fills writeSchedule[k] = k*N + i once both N and M are known.
func (n *Node) computeSchedule() {
	if !n.hasPeers || !n.hasCount {
		return
	}
	size := len(n.peers)
	n.schedule = make([]int, n.operations)
	for k := range n.schedule {
		n.schedule[k] = k*size + n.index
	}
}

func (n *Node) crash() {
	if op := n.op; op != nil {
		progress := "reads " + op.readSenders.String()
		if op.writeBack {
			progress = "acks " + op.ackSenders.String()
		}
		log.Printf("[%s] crashed during seq=%d with %s", n.addr, n.seq, progress)
	}
	n.crashed = true
	n.op = nil
	n.oplog.Log("%s: process crashed", n.addr)
	log.Printf("[%s] crashed, entering silent mode", n.addr)
}

func (n *Node) launch() {
	if n.launched {
		return
	}
	n.launched = true
	n.maybeStart()
}

// maybeStart begins the first operation once the node is launched and fully
// configured. Launch may precede configuration; the start is then deferred.
func (n *Node) maybeStart() {
	if !n.launched || n.started || !n.hasPeers || !n.hasCount {
		return
	}
	n.started = true
	log.Printf("[%s] launched: N=%d M=%d majority=%d", n.addr, len(n.peers), n.operations, quorum.Majority(len(n.peers)))
	n.startOperation()
}

func (n *Node) handleReadRequest(from msg.Address, m msg.ReadRequest) {
	local := n.store.Get()
	n.send(from, msg.ReadResponse{
		Value:     local.Value,
		Timestamp: local.Timestamp,
		Seq:       m.Seq,
	})
}

func (n *Node) handleReadResponse(from msg.Address, m msg.ReadResponse) {
	op := n.op
	if !n.launched || op == nil || m.Seq != n.seq || op.writeBack {
		return
	}
	counted, reached := op.readSenders.Add(from)
	if !counted {
		return
	}
	op.responses = append(op.responses, repair.Response{
		From: from,
		Tag:  clock.Tag{Timestamp: m.Timestamp, Value: m.Value},
	})
	if !reached {
		return
	}

	result := repair.Reconcile(op.responses)
	var wb repair.WriteBack
	if op.isWrite {
		wb = repair.PlanWrite(result, op.value)
	} else {
		wb = repair.PlanRead(result)
	}
	op.writeBack = true
	op.target = wb.Target
	op.readResult = wb.ReadResult
	op.ackSenders = quorum.NewTracker(quorum.Majority(len(n.peers)))

	n.broadcast(msg.WriteRequest{Value: wb.Target.Value, Timestamp: wb.Target.Timestamp})
}

func (n *Node) handleWriteRequest(from msg.Address, m msg.WriteRequest) {
	n.store.Apply(clock.Tag{Timestamp: m.Timestamp, Value: m.Value})
	n.send(from, msg.Ack{Value: m.Value, Timestamp: m.Timestamp})
}

func (n *Node) handleAck(from msg.Address, m msg.Ack) {
	op := n.op
	if !n.launched || op == nil || !op.writeBack {
		return
	}
	if (clock.Tag{Timestamp: m.Timestamp, Value: m.Value}) != op.target {
		return
	}
	if _, reached := op.ackSenders.Add(from); !reached {
		return
	}

	end := n.now()
	latency := end.Sub(op.start)
	n.finish(op, end, latency)
	n.completed++
	n.startOperation()
}

func (n *Node) finish(op *operation, end time.Time, latency time.Duration) {
	rec := history.Operation{
		Node:  string(n.addr),
		Seq:   n.seq,
		Start: op.start.UnixNano(),
		End:   end.UnixNano(),
	}
	if op.isWrite {
		rec.Kind, rec.Value = history.Put, op.value
		n.oplog.Log("%s: Put value: %d operation duration: %dns end_ts=%d seq=%d",
			n.addr, op.value, latency.Nanoseconds(), rec.End, n.seq)
	} else {
		rec.Kind, rec.Value = history.Get, op.readResult
		n.oplog.Log("%s: Get return value: %d operation duration: %dns end_ts=%d seq=%d",
			n.addr, op.readResult, latency.Nanoseconds(), rec.End, n.seq)
	}
	if n.recorder != nil {
		n.recorder.Record(rec)
	}
}

// startOperation issues the next put or get, or signals completion to the
// monitor once all 2*M operations are done.
func (n *Node) startOperation() {
	if n.completed >= 2*n.operations {
		n.op = nil
		if !n.done {
			n.done = true
			n.oplog.Log("%s: all operations completed", n.addr)
			log.Printf("[%s] all %d operations completed", n.addr, n.completed)
			if n.monitor != "" {
				n.send(n.monitor, msg.CompletionSignal{})
			}
		}
		return
	}

	majority := quorum.Majority(len(n.peers))
	op := &operation{
		start:       n.now(),
		readSenders: quorum.NewTracker(majority),
	}
	if n.completed < n.operations {
		op.isWrite = true
		op.value = n.schedule[n.completed]
	}
	n.op = op
	n.seq++

	kind := "read"
	if op.isWrite {
		kind = "write"
	}
	n.oplog.Log("%s: Invoke %s start_ts=%d seq=%d", n.addr, kind, op.start.UnixNano(), n.seq)

	n.broadcast(msg.ReadRequest{Seq: n.seq})
}

func (n *Node) broadcast(m msg.Message) {
	for _, p := range n.peers {
		n.send(p, m)
	}
}

func (n *Node) send(to msg.Address, m msg.Message) {
	if err := n.out.Send(msg.Envelope{From: n.addr, To: to, Body: m}); err != nil {
		log.Printf("[%s] send %s to %s failed: %v", n.addr, m.Kind(), to, err)
	}
}

// Snapshot is a point-in-time view of a node, for tests and reporting.
type Snapshot struct {
	Address    msg.Address
	State      State
	Local      clock.Tag
	Seq        int
	Completed  int
	Operations int
	Schedule   []int
	Peers      []msg.Address
}

// Snapshot returns the node's current state. Like Handle it must not race
// with Run; callers take it after Run has returned.
func (n *Node) Snapshot() Snapshot {
	return Snapshot{
		Address:    n.addr,
		State:      n.state(),
		Local:      n.store.Get(),
		Seq:        n.seq,
		Completed:  n.completed,
		Operations: n.operations,
		Schedule:   append([]int(nil), n.schedule...),
		Peers:      append([]msg.Address(nil), n.peers...),
	}
}

func (n *Node) state() State {
	switch {
	case n.crashed:
		return Crashed
	case n.done:
		return Completed
	case n.started:
		return Running
	case n.hasPeers && n.hasCount:
		return Configured
	default:
		return Unconfigured
	}
}
