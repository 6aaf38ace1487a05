// Package actordag is the cooperative actor-graph runtime §4.F describes:
// a tree of ActorNodes connected by bounded FIFO edges, each node owning
// private state and an event processor that optionally emits one event to
// a single child. Translated from `event_sourcing/actor_dag.rs`'s
// `tokio::sync::{mpsc,watch,Mutex}` + `tokio::spawn` composition into Go
// channels, `context.Context` cancellation, `sync.Mutex`, and
// `golang.org/x/sync/errgroup`.
package actordag

import (
	"context"
	"fmt"
	"os"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// EventType tags an Event for dispatch between actors (§4.F).
type EventType string

// Event is the unit of work actors exchange. Payload is left as
// interface{} since every actor in the pipeline handles a different
// concrete shape (decoded blocks, canonicity updates, ledger diffs).
type Event struct {
	Type    EventType
	Payload interface{}
}

// edgeQueueDepth is the bounded FIFO depth every edge uses (§4.F: "queue
// depth >= 10").
const edgeQueueDepth = 16

// Processor is an actor's event-processing function: given an incoming
// event and a pointer to its private state, it returns the event to
// forward to a child, or nil to forward nothing.
type Processor[S any] func(ctx context.Context, ev Event, state *S) *Event

// ActorNode is one node of the actor graph (§4.F).
type ActorNode[S any] struct {
	id EventType

	childEdges  map[EventType]chan Event
	parentEdges map[EventType]chan Event
	children    []*ActorNode[S]

	inbox  chan Event // this node's own receiving end, consumed once by a parent via ConsumeSender
	sender chan Event // this node's own sending end, handed to a parent wiring us as its child

	processor Processor[S]

	mu    sync.Mutex
	state *S

	logger cmtlog.Logger
}

// AddReceiver registers a new child edge under id and returns the
// channel a downstream node should read from.
func (n *ActorNode[S]) AddReceiver(id EventType) chan Event {
	ch := make(chan Event, edgeQueueDepth)
	n.childEdges[id] = ch
	return ch
}

// ConsumeSender takes and clears this node's own inbound sender, for a
// parent to wire up as one of its child edges. Returns false if already
// consumed.
func (n *ActorNode[S]) ConsumeSender() (chan Event, bool) {
	if n.sender == nil {
		return nil, false
	}
	s := n.sender
	n.sender = nil
	return s, true
}

// AddParent registers a new parent edge keyed by id and returns the
// channel the parent should send events on.
func (n *ActorNode[S]) AddParent(id EventType) chan Event {
	ch := make(chan Event, edgeQueueDepth)
	n.parentEdges[id] = ch
	return ch
}

// AddChild wires child as a downstream node: child's own sender becomes
// one of this node's child edges, keyed by child's id.
func (n *ActorNode[S]) AddChild(child *ActorNode[S]) {
	sender, ok := child.ConsumeSender()
	if !ok {
		n.logger.Error("failed to add child: sender already consumed", "child", child.id)
		return
	}
	n.childEdges[child.id] = sender
	n.children = append(n.children, child)
}

// Size returns the number of nodes in the subtree rooted at n (§4.F
// test coverage: "size of tree").
func (n *ActorNode[S]) Size() int {
	count := 1
	for _, c := range n.children {
		count += c.Size()
	}
	return count
}

// WithState runs fn against the node's private state under its mutex,
// for tests and inspection (§4.F "mutate and inspect state").
func (n *ActorNode[S]) WithState(fn func(*S)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n.state)
}

// SpawnAll recursively spawns one goroutine per parent edge for n and
// every descendant, registering them all on group. It returns
// immediately; processing happens in the background until ctx is
// cancelled.
func (n *ActorNode[S]) SpawnAll(ctx context.Context, group *errgroup.Group) {
	n.startProcessing(ctx, group)
	for _, c := range n.children {
		c.SpawnAll(ctx, group)
	}
}

// startProcessing spawns one goroutine per parent edge (plus the node's
// own inbox, if it still has one) that reads events, runs the processor,
// and forwards the result to the matching child edge.
func (n *ActorNode[S]) startProcessing(ctx context.Context, group *errgroup.Group) {
	edges := n.parentEdges
	if n.inbox != nil {
		edges[n.id] = n.inbox
		n.inbox = nil
	}

	for evType, ch := range edges {
		evType, ch := evType, ch
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					n.logger.Info("shutting down parent receiver", "node", n.id, "edge", evType)
					return nil
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					n.dispatch(ctx, ev)
				}
			}
		})
	}
}

// dispatch runs the processor against one event and forwards its result,
// if any, to the matching child edge (§4.F dispatch contract). Each
// dispatch gets its own correlation ID purely for log correlation across
// a multi-stage pipeline; it never travels with the event itself.
func (n *ActorNode[S]) dispatch(ctx context.Context, ev Event) {
	corrID := uuid.New()

	n.mu.Lock()
	out := n.processor(ctx, ev, n.state)
	n.mu.Unlock()

	if out == nil {
		return
	}

	child, ok := n.childEdges[out.Type]
	if !ok {
		n.logger.Error("no child registered for event type, dropping", "node", n.id, "type", out.Type, "corr", corrID)
		return
	}

	select {
	case child <- *out:
	case <-ctx.Done():
		n.logger.Info("dispatch cancelled before delivery", "node", n.id, "corr", corrID)
	}
}

// ActorNodeBuilder constructs an ActorNode (§4.F factory composition).
type ActorNodeBuilder[S any] struct {
	id        EventType
	processor Processor[S]
	children  []*ActorNode[S]
	state     *S
	logger    cmtlog.Logger
}

// NewBuilder starts a builder for a node identified by id.
func NewBuilder[S any](id EventType) *ActorNodeBuilder[S] {
	return &ActorNodeBuilder[S]{id: id}
}

// WithState sets the node's initial private state.
func (b *ActorNodeBuilder[S]) WithState(state *S) *ActorNodeBuilder[S] {
	b.state = state
	return b
}

// WithProcessor sets the node's event processor.
func (b *ActorNodeBuilder[S]) WithProcessor(p Processor[S]) *ActorNodeBuilder[S] {
	b.processor = p
	return b
}

// WithChild appends a pre-built child node.
func (b *ActorNodeBuilder[S]) WithChild(child *ActorNode[S]) *ActorNodeBuilder[S] {
	b.children = append(b.children, child)
	return b
}

// WithLogger overrides the node's logger; defaults to a
// component-scoped cometbft logger if not set.
func (b *ActorNodeBuilder[S]) WithLogger(l cmtlog.Logger) *ActorNodeBuilder[S] {
	b.logger = l
	return b
}

// Build constructs the ActorNode, panicking if a required field (state,
// processor) was never set — mirroring the original's `.expect(...)`
// preconditions on build().
func (b *ActorNodeBuilder[S]) Build() *ActorNode[S] {
	if b.processor == nil {
		panic(fmt.Sprintf("actordag: event processor must be set before building %s", b.id))
	}
	if b.state == nil {
		panic(fmt.Sprintf("actordag: initial state must be set before building %s", b.id))
	}

	logger := b.logger
	if logger == nil {
		logger = cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("component", "actordag", "node", b.id)
	}

	ch := make(chan Event, edgeQueueDepth)
	n := &ActorNode[S]{
		id:          b.id,
		childEdges:  make(map[EventType]chan Event),
		parentEdges: make(map[EventType]chan Event),
		inbox:       ch,
		sender:      ch,
		processor:   b.processor,
		state:       b.state,
		logger:      logger,
	}

	for _, child := range b.children {
		n.AddChild(child)
	}

	return n
}

// Factory builds a concrete actor node given a cancellable context for
// shutdown (§4.F: "each concrete actor is built by a factory").
type Factory[S any] interface {
	CreateActor(ctx context.Context) *ActorNode[S]
}
