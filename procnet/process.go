// Package procnet runs simulated network processes inside one Go
// program. Each Process owns a mailbox, a neighbour set and its own
// goroutine; all interaction between processes is one-way message
// delivery, never a shared variable or a blocking call.
package procnet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	structpb "google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrNotStarted     = errors.New("process not started")
	ErrMailboxFull    = errors.New("mailbox full")
)

const (
	mailboxSize    = 256
	deliverTimeout = 5 * time.Second
)

// An Envelope carries one message between two processes.
type Envelope struct {
	ID      string
	From    string
	To      string
	Type    string
	Payload *structpb.Struct
}

// A Ref is a send-capable handle on a process. Refs are what the name
// server hands out and what neighbours hold; delivering through a Ref
// enqueues on the target's mailbox without touching its state.
type Ref struct {
	name  string
	inbox chan<- Envelope
}

// Name returns the logical name of the process behind the handle.
func (r Ref) Name() string {
	return r.name
}

// deliver enqueues an envelope. A full mailbox makes the sender wait a
// bounded time, never forever, so concurrent senders cannot deadlock.
func (r Ref) deliver(env Envelope) error {
	select {
	case r.inbox <- env:
		return nil
	default:
	}

	select {
	case r.inbox <- env:
		return nil
	case <-time.After(deliverTimeout):
		return fmt.Errorf("deliver %s to %s: %w", env.Type, r.name, ErrMailboxFull)
	}
}

// An EntryFunc runs once in the process goroutine, before any message is
// dispatched.
type EntryFunc func(ctx context.Context) error

type handlerFunc func(ctx context.Context, env Envelope) error

// A Process is one concurrent participant in the simulated network.
// Its state is mutated only from its own goroutine: messages are
// dequeued and handled one at a time, so per-edge FIFO order is
// preserved and handlers need no locking of their own.
type Process struct {
	name   string
	logger *log.Logger

	inbox    chan Envelope
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	mu         sync.RWMutex
	handlers   map[string]handlerFunc
	neighbours []Ref
	entry      EntryFunc
}

func NewProcess(name string, logger *log.Logger) *Process {
	if logger == nil {
		logger = log.Default()
	}
	return &Process{
		name:     name,
		logger:   logger,
		inbox:    make(chan Envelope, mailboxSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		handlers: make(map[string]handlerFunc),
	}
}

func (p *Process) Name() string {
	return p.name
}

// Ref returns the send-capable handle other processes use to reach this
// one.
func (p *Process) Ref() Ref {
	return Ref{name: p.name, inbox: p.inbox}
}

// OnStart registers the hook that kicks off the process's behaviour when
// Start is called.
func (p *Process) OnStart(fn EntryFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry = fn
}

// AddNeighbour appends a neighbour reference. Topology wiring happens
// before Start; a ring node ends up with exactly two.
func (p *Process) AddNeighbour(ref Ref) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.neighbours = append(p.neighbours, ref)
}

// Neighbours returns a copy of the neighbour set.
func (p *Process) Neighbours() []Ref {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Ref, len(p.neighbours))
	copy(out, p.neighbours)
	return out
}

// Start begins the process's behaviour in its own goroutine. Starting
// twice is a programmer error.
func (p *Process) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("start %s: %w", p.name, ErrAlreadyStarted)
	}
	go p.loop(ctx)
	return nil
}

// Stop requests shutdown. A message already dequeued is still handled to
// completion; nothing new is accepted afterwards.
func (p *Process) Stop() error {
	if !p.started.Load() {
		return fmt.Errorf("stop %s: %w", p.name, ErrNotStarted)
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	return nil
}

// Join blocks until the process goroutine has exited.
func (p *Process) Join() error {
	if !p.started.Load() {
		return fmt.Errorf("join %s: %w", p.name, ErrNotStarted)
	}
	<-p.done
	return nil
}

// Send encodes a payload and enqueues it on the target's mailbox. Calls
// are one-way: a reply, if any, arrives later as a separate message.
func (p *Process) Send(to Ref, payload any, operation string) error {
	structPayload, err := encodeStruct(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", operation, err)
	}
	return to.deliver(Envelope{
		ID:      uuid.NewString(),
		From:    p.name,
		To:      to.Name(),
		Type:    operation,
		Payload: structPayload,
	})
}

func (p *Process) loop(ctx context.Context) {
	defer close(p.done)

	p.mu.RLock()
	entry := p.entry
	p.mu.RUnlock()

	if entry != nil {
		if err := entry(ctx); err != nil {
			p.logger.Printf("[%s] entry failed: %v", p.name, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case env := <-p.inbox:
			p.dispatch(ctx, env)
		}
	}
}

// dispatch runs the registered handler for an envelope. Handler errors
// are logged and swallowed: a malformed message must not hang or kill
// the run.
func (p *Process) dispatch(ctx context.Context, env Envelope) {
	p.mu.RLock()
	handler := p.handlers[env.Type]
	p.mu.RUnlock()

	if handler == nil {
		p.logger.Printf("[%s] no handler for %s from %s; dropping", p.name, env.Type, env.From)
		return
	}
	if err := handler(ctx, env); err != nil {
		p.logger.Printf("[%s] handler for %s failed: %v", p.name, env.Type, err)
	}
}
