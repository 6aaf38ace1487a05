package actordag

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type counterState struct {
	count int
}

func passthrough(_ context.Context, ev Event, _ *counterState) *Event {
	return &ev
}

func TestSizeOfTree(t *testing.T) {
	leaf1 := NewBuilder[counterState]("leaf1").WithState(&counterState{}).WithProcessor(passthrough).Build()
	leaf2 := NewBuilder[counterState]("leaf2").WithState(&counterState{}).WithProcessor(passthrough).Build()
	mid := NewBuilder[counterState]("mid").WithState(&counterState{}).WithProcessor(passthrough).
		WithChild(leaf1).WithChild(leaf2).Build()
	root := NewBuilder[counterState]("root").WithState(&counterState{}).WithProcessor(passthrough).
		WithChild(mid).Build()

	assert.Equal(t, 4, root.Size())
}

func TestNoChildren(t *testing.T) {
	n := NewBuilder[counterState]("solo").WithState(&counterState{}).WithProcessor(passthrough).Build()
	assert.Equal(t, 1, n.Size())
	assert.Empty(t, n.children)
}

func TestMultipleChildren(t *testing.T) {
	c1 := NewBuilder[counterState]("c1").WithState(&counterState{}).WithProcessor(passthrough).Build()
	c2 := NewBuilder[counterState]("c2").WithState(&counterState{}).WithProcessor(passthrough).Build()
	c3 := NewBuilder[counterState]("c3").WithState(&counterState{}).WithProcessor(passthrough).Build()
	root := NewBuilder[counterState]("root").WithState(&counterState{}).WithProcessor(passthrough).
		WithChild(c1).WithChild(c2).WithChild(c3).Build()

	assert.Equal(t, 4, root.Size())
	assert.Len(t, root.children, 3)
}

// TestEventProcessorFiltering checks that a processor returning nil for
// some events drops them silently instead of forwarding to the child.
func TestEventProcessorFiltering(t *testing.T) {
	received := make(chan Event, 4)
	child := NewBuilder[counterState]("child").WithState(&counterState{}).WithProcessor(
		func(_ context.Context, ev Event, _ *counterState) *Event {
			received <- ev
			return nil
		}).Build()
	// filter forwards only "keep" events, re-tagged to the child's own id
	// so dispatch's childEdges lookup (keyed by child id) finds them.
	filter := func(_ context.Context, ev Event, _ *counterState) *Event {
		if ev.Type != "keep" {
			return nil
		}
		return &Event{Type: child.id, Payload: ev.Payload}
	}

	root := NewBuilder[counterState]("root").WithState(&counterState{}).WithProcessor(filter).
		WithChild(child).Build()
	parentCh := root.AddParent("source")

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	root.SpawnAll(gctx, g)

	parentCh <- Event{Type: "drop"}
	parentCh <- Event{Type: "keep"}

	select {
	case ev := <-received:
		assert.Equal(t, child.id, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	cancel()
	_ = g.Wait()

	select {
	case <-received:
		t.Fatal("dropped event must never reach the child")
	default:
	}
}

func TestMutateAndInspectState(t *testing.T) {
	inc := func(_ context.Context, ev Event, s *counterState) *Event {
		s.count++
		return nil
	}
	n := NewBuilder[counterState]("counter").WithState(&counterState{}).WithProcessor(inc).Build()
	parentCh := n.AddParent("source")

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	n.SpawnAll(gctx, g)

	parentCh <- Event{Type: "tick"}
	parentCh <- Event{Type: "tick"}

	require.Eventually(t, func() bool {
		var got int
		n.WithState(func(s *counterState) { got = s.count })
		return got == 2
	}, time.Second, time.Millisecond)

	cancel()
	_ = g.Wait()
}

func TestEventRoutingToSpecificReceiver(t *testing.T) {
	var mu sync.Mutex
	var routedTo EventType

	left := NewBuilder[counterState]("left").WithState(&counterState{}).WithProcessor(
		func(_ context.Context, ev Event, _ *counterState) *Event {
			mu.Lock()
			routedTo = "left"
			mu.Unlock()
			return nil
		}).Build()
	right := NewBuilder[counterState]("right").WithState(&counterState{}).WithProcessor(
		func(_ context.Context, ev Event, _ *counterState) *Event {
			mu.Lock()
			routedTo = "right"
			mu.Unlock()
			return nil
		}).Build()

	router := func(_ context.Context, ev Event, _ *counterState) *Event {
		return &ev
	}
	root := NewBuilder[counterState]("router").WithState(&counterState{}).WithProcessor(router).
		WithChild(left).WithChild(right).Build()
	parentCh := root.AddParent("source")

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	root.SpawnAll(gctx, g)

	parentCh <- Event{Type: "right"}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return routedTo == "right"
	}, time.Second, time.Millisecond)

	cancel()
	_ = g.Wait()
}

// TestProcessingWithAddParentAPI exercises wiring a parent edge directly
// via AddParent on a standalone node (no SpawnAll tree), mirroring a
// component that feeds a single actor without building a full DAG.
func TestProcessingWithAddParentAPI(t *testing.T) {
	out := make(chan Event, 1)
	n := NewBuilder[counterState]("node").WithState(&counterState{}).WithProcessor(
		func(_ context.Context, ev Event, _ *counterState) *Event {
			out <- ev
			return nil
		}).Build()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	parentCh := n.AddParent("upstream")
	n.startProcessing(gctx, g)
	parentCh <- Event{Type: "ping"}

	select {
	case ev := <-out:
		assert.Equal(t, EventType("ping"), ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event via AddParent channel")
	}

	cancel()
	require.NoError(t, g.Wait())
}
