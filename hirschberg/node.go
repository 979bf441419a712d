// Package hirschberg implements the Hirschberg–Sinclair leader election
// protocol for a bidirectional ring of message-passing processes. Each
// round a surviving candidate probes 2^round hops in both directions;
// the probe dies at any node with a higher id, and a candidate whose own
// id returns from both directions either doubles its reach or, once the
// reach covers the ring, is elected.
package hirschberg

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/viktor-platform/sample-distributed-algorithms/procnet"
	"github.com/viktor-platform/sample-distributed-algorithms/trace"
)

// A Node is one ring participant. Round, counter and the recorder are
// touched only from the node's own process goroutine; the elected flag
// is atomic because the orchestrator polls it from outside.
type Node struct {
	proc   *procnet.Process
	rec    *trace.Recorder
	logger *log.Logger

	name     string
	id       int64
	ringSize int

	round   int
	counter int
	elected atomic.Bool
}

// NewNode creates a node with its election id and the known ring size.
// The node is inert until its process is started.
func NewNode(name string, id int64, ringSize int, logger *log.Logger) *Node {
	if logger == nil {
		logger = log.Default()
	}
	n := &Node{
		proc:     procnet.NewProcess(name, logger),
		rec:      trace.NewRecorder(),
		logger:   logger,
		name:     name,
		id:       id,
		ringSize: ringSize,
	}
	n.proc.OnStart(n.run)
	procnet.On(n.proc, MsgReceiveOut, n.receiveOut)
	procnet.On(n.proc, MsgReceiveIn, n.receiveIn)
	return n
}

func (n *Node) Name() string { return n.name }

// ID returns the election id, the value leadership is decided on.
func (n *Node) ID() int64 { return n.id }

// Process exposes the underlying runtime process for wiring and
// lifecycle control.
func (n *Node) Process() *procnet.Process { return n.proc }

// Elected reports whether this node won the election. Safe to call from
// any goroutine.
func (n *Node) Elected() bool { return n.elected.Load() }

// Trace returns a snapshot of the node's recorded events.
func (n *Node) Trace() []trace.Event { return n.rec.Snapshot() }

// TraceLen returns how many events the node has recorded so far.
func (n *Node) TraceLen() int { return n.rec.Len() }

// run initiates the election: enter round one and probe both neighbours
// with a one-hop reach. The IDLE event is pinned to clock 0 so every
// node's trace starts from a common frame.
func (n *Node) run(ctx context.Context) error {
	n.round = 1
	n.counter = 0
	n.rec.RecordAt(n.name, n.id, n.round, trace.StateIdle, 0)
	return n.sendOut(n.id, 1, n.proc.Neighbours())
}

func (n *Node) sendOut(candidate, hops int64, targets []procnet.Ref) error {
	n.rec.Record(n.name, n.id, n.round, trace.StateSendOut)
	msg := OutMessage{Candidate: candidate, Hops: hops}
	for _, target := range targets {
		if err := n.proc.Send(target, msg, MsgReceiveOut); err != nil {
			return fmt.Errorf("send out to %s: %w", target.Name(), err)
		}
	}
	return nil
}

func (n *Node) sendIn(candidate int64, target procnet.Ref) error {
	n.rec.Record(n.name, n.id, n.round, trace.StateSendIn)
	if err := n.proc.Send(target, InMessage{Candidate: candidate}, MsgReceiveIn); err != nil {
		return fmt.Errorf("send in to %s: %w", target.Name(), err)
	}
	return nil
}

// receiveOut handles a forward probe. A candidate that cannot beat this
// node's id dies here without a reply. Otherwise the hop budget shrinks
// by the current round; a spent budget turns the probe around, an
// unspent one is relayed to the far neighbour.
func (n *Node) receiveOut(ctx context.Context, from string, msg OutMessage) error {
	n.rec.Record(n.name, n.id, n.round, trace.StateReceiveOut)

	if msg.Candidate <= n.id {
		return nil
	}

	hops := msg.Hops - int64(n.round)
	if hops > 0 {
		other, err := n.otherNeighbour(from)
		if err != nil {
			return err
		}
		return n.sendOut(msg.Candidate, hops, []procnet.Ref{other})
	}

	sender, err := n.neighbour(from)
	if err != nil {
		return err
	}
	return n.sendIn(msg.Candidate, sender)
}

// receiveIn handles a returning confirmation. Someone else's candidate
// is relayed onward untouched. The node's own id returning from both
// directions means it is the maximum over the current reach: either the
// reach already covers the ring and the node is elected, or the next
// round starts with double the reach.
func (n *Node) receiveIn(ctx context.Context, from string, msg InMessage) error {
	n.rec.Record(n.name, n.id, n.round, trace.StateReceiveIn)

	if msg.Candidate != n.id {
		other, err := n.otherNeighbour(from)
		if err != nil {
			return err
		}
		return n.sendIn(msg.Candidate, other)
	}

	n.counter++
	if n.counter < 2 {
		return nil
	}

	if 1<<n.round+1 >= n.ringSize {
		n.elected.Store(true)
		n.logger.Printf("%s is elected with value %d!", n.name, n.id)
		n.round++
		n.rec.Record(n.name, n.id, n.round, trace.StateSelected)
		return nil
	}

	n.round++
	n.counter = 0
	return n.sendOut(n.id, 1<<(n.round-1), n.proc.Neighbours())
}

// neighbour returns the neighbour the named sender reached us through.
func (n *Node) neighbour(name string) (procnet.Ref, error) {
	for _, ref := range n.proc.Neighbours() {
		if ref.Name() == name {
			return ref, nil
		}
	}
	return procnet.Ref{}, fmt.Errorf("%s is not a neighbour of %s", name, n.name)
}

// otherNeighbour returns the neighbour on the side opposite the sender.
func (n *Node) otherNeighbour(name string) (procnet.Ref, error) {
	for _, ref := range n.proc.Neighbours() {
		if ref.Name() != name {
			return ref, nil
		}
	}
	return procnet.Ref{}, fmt.Errorf("no neighbour opposite %s on %s", name, n.name)
}
