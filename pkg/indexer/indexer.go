// Package indexer wires the block decoder, command/diff extractor,
// canonical-branch engine, ledger engine, persistent store, and event log
// into the four-stage actor-DAG pipeline §4.F/§5 describe, and exposes the
// single per-file entry point a `cmd/indexer` main loop drives.
package indexer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"golang.org/x/sync/errgroup"

	"github.com/certen/mina-core/pkg/actordag"
	"github.com/certen/mina-core/pkg/block"
	"github.com/certen/mina-core/pkg/canonical"
	"github.com/certen/mina-core/pkg/config"
	"github.com/certen/mina-core/pkg/diff"
	"github.com/certen/mina-core/pkg/eventlog"
	"github.com/certen/mina-core/pkg/ledger"
	"github.com/certen/mina-core/pkg/metrics"
	"github.com/certen/mina-core/pkg/store"
	"github.com/certen/mina-core/pkg/types"
)

// Actor-DAG node ids double as the event types that route between stages
// (dispatch looks a forwarded event's type up in the sender's child-edge
// map, keyed by the receiving node's id).
const (
	stageDecode    actordag.EventType = "decode"
	stageDiff      actordag.EventType = "diff"
	stageCanonical actordag.EventType = "canonical"
	stageFinalize  actordag.EventType = "finalize"

	// entryEdge keys the external parent edge IngestFile feeds, distinct
	// from the root node's own id so it doesn't collide with the root's
	// inbox edge in startProcessing's edge map.
	entryEdge actordag.EventType = "ingest"
)

// envelope threads one block through every pipeline stage. done carries
// the terminal result back to the synchronous caller of IngestFile; it is
// never persisted (internal actor-DAG traffic, not an event-log record).
type envelope struct {
	path string
	raw  []byte

	blk *block.Block
	ld  *diff.LedgerDiff

	updates []canonical.Update

	done chan error
}

// pipelineState is the shared state every actor-DAG node in the pipeline
// mutates under its own node mutex (§4.F: one Mutex-guarded state per
// node; here every stage shares the same backing components since the
// work is a single linear pipeline, not independent sub-systems).
type pipelineState struct {
	cfg *config.Config

	store  *store.Store
	ledger *ledger.LedgerStore
	tree   *canonical.Tree
	events *eventlog.Log
	mtr    *metrics.Metrics

	diffConstants diff.Constants
	mainnetHash   types.StateHash
	hardforkHash  types.StateHash
	hardforkLen   types.BlockchainLength
}

// Indexer owns the persistent store and the actor-DAG pipeline built on
// top of it.
type Indexer struct {
	store  *store.Store
	events *eventlog.Log
	mtr    *metrics.Metrics

	entry  chan actordag.Event
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New opens the persistent store at cfg.DataDir and assembles the
// decode -> diff -> canonical -> finalize actor-DAG pipeline, starting its
// goroutines immediately.
func New(cfg *config.Config, logger *log.Logger) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[indexer] ", log.LstdFlags)
	}

	st, err := store.Open(cfg.NetworkName, cfg.DataDir, cfg.StoreBackend)
	if err != nil {
		return nil, fmt.Errorf("indexer: open store: %w", err)
	}

	ls := ledger.NewLedgerStore(store.NewFamilyKV(st, store.FamilyLedgerDiff))
	tree := canonical.NewTree(cfg.TransitionFrontierDistance, logger)
	events := eventlog.New(st)

	// The actor-DAG nodes get their own structured logger rather than the
	// indexer's stdlib one: §4.F's runtime is the one component translated
	// closely enough from a cometbft-style actor loop to warrant it.
	dagLogger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout)).With("component", "indexer")
	mtr := metrics.New()

	state := &pipelineState{
		cfg:    cfg,
		store:  st,
		ledger: ls,
		tree:   tree,
		events: events,
		mtr:    mtr,
		diffConstants: diff.Constants{
			CoinbaseAmount:     types.Amount(cfg.CoinbaseAmount),
			SuperchargeFactor:  cfg.SuperchargedCoinbaseFactor,
			AccountCreationFee: types.Amount(cfg.AccountCreationFee),
		},
		mainnetHash:  types.StateHash(cfg.MainnetGenesisStateHash),
		hardforkHash: types.StateHash(cfg.HardforkGenesisStateHash),
		hardforkLen:  types.BlockchainLength(cfg.HardforkBlockchainLength),
	}

	finalize := actordag.NewBuilder[pipelineState](stageFinalize).
		WithState(state).WithProcessor(finalizeProcessor).WithLogger(dagLogger).Build()
	canon := actordag.NewBuilder[pipelineState](stageCanonical).
		WithState(state).WithProcessor(canonicalProcessor).WithLogger(dagLogger).
		WithChild(finalize).Build()
	diffNode := actordag.NewBuilder[pipelineState](stageDiff).
		WithState(state).WithProcessor(diffProcessor).WithLogger(dagLogger).
		WithChild(canon).Build()
	root := actordag.NewBuilder[pipelineState](stageDecode).
		WithState(state).WithProcessor(decodeProcessor).WithLogger(dagLogger).
		WithChild(diffNode).Build()

	// AddParent must run before SpawnAll: startProcessing only spawns a
	// goroutine for the parent edges that exist at the moment it runs.
	entry := root.AddParent(entryEdge)

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	root.SpawnAll(gctx, group)

	return &Indexer{
		store: st, events: events, mtr: mtr,
		entry: entry, cancel: cancel, group: group,
	}, nil
}

// IngestFile reads the block at path and drives it through the pipeline,
// blocking until the block has been decoded, diffed, canonicity-resolved,
// persisted, and logged (§5: blocks are ingested one at a time, in file
// order, to keep the canonical-branch engine's forest consistent).
func (ix *Indexer) IngestFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("indexer: read %s: %w", path, err)
	}

	done := make(chan error, 1)
	ix.entry <- actordag.Event{Type: stageDecode, Payload: &envelope{path: path, raw: raw, done: done}}
	return <-done
}

// Close cancels every pipeline goroutine, waits for them to exit, and
// closes the underlying store.
func (ix *Indexer) Close() error {
	ix.cancel()
	if err := ix.group.Wait(); err != nil {
		return err
	}
	return ix.store.Close()
}

// Metrics exposes the Prometheus registry for an HTTP /metrics handler.
func (ix *Indexer) Metrics() *metrics.Metrics { return ix.mtr }

// EventLog exposes the append-only event log for recovery/replay.
func (ix *Indexer) EventLog() *eventlog.Log { return ix.events }

func decodeProcessor(_ context.Context, ev actordag.Event, state *pipelineState) *actordag.Event {
	env := ev.Payload.(*envelope)

	blk, err := block.ParseFile(env.path, env.raw, state.hardforkLen, state.mainnetHash, state.hardforkHash)
	if err != nil {
		env.done <- fmt.Errorf("decode: %w", err)
		return nil
	}
	env.blk = blk
	return &actordag.Event{Type: stageDiff, Payload: env}
}

func diffProcessor(_ context.Context, ev actordag.Event, state *pipelineState) *actordag.Event {
	env := ev.Payload.(*envelope)

	isNew := func(pk types.PublicKey) bool {
		_, found, err := state.ledger.GetAccount(pk, types.TokenAddressDefault)
		return err == nil && !found
	}
	ld := diff.FromBlock(env.blk, state.diffConstants, isNew)

	if err := state.ledger.RecordDiffs(ld); err != nil {
		state.mtr.LedgerApplyFailures.Inc()
		env.done <- fmt.Errorf("record diffs: %w", err)
		return nil
	}
	env.ld = ld
	return &actordag.Event{Type: stageCanonical, Payload: env}
}

func canonicalProcessor(_ context.Context, ev actordag.Event, state *pipelineState) *actordag.Event {
	env := ev.Payload.(*envelope)

	// The tree's first-ever insertion becomes its root unconditionally
	// regardless of previous_state_hash (§4.C), which is how a genesis
	// block — whose previous_state_hash carries no real chain meaning —
	// establishes the forest without special-casing here.
	env.updates = state.tree.Process(canonical.NodeInput{
		Height:            env.blk.BlockchainLength,
		StateHash:         env.blk.StateHash,
		PreviousStateHash: env.blk.PreviousStateHash,
		LastVRFOutput:     env.blk.LastVRFOutput,
	})
	if len(env.updates) == 0 {
		state.mtr.BlocksDangling.Inc()
	}

	return &actordag.Event{Type: stageFinalize, Payload: env}
}

func canonicityKey(u canonical.Update) []byte {
	b := make([]byte, 4, 4+len(u.StateHash))
	binary.BigEndian.PutUint32(b, uint32(u.Height))
	return append(b, []byte(u.StateHash)...)
}

func finalizeProcessor(_ context.Context, ev actordag.Event, state *pipelineState) *actordag.Event {
	env := ev.Payload.(*envelope)

	batch, err := state.store.NewBatch()
	if err != nil {
		env.done <- fmt.Errorf("finalize: new batch: %w", err)
		return nil
	}

	if err := batch.Set(store.FamilyBlocks, []byte(env.blk.StateHash), env.raw); err != nil {
		env.done <- err
		return nil
	}

	changes := make([]ledger.CanonicityChange, 0, len(env.updates))
	for _, u := range env.updates {
		encoded, err := json.Marshal(u)
		if err != nil {
			env.done <- fmt.Errorf("finalize: marshal update: %w", err)
			return nil
		}
		if err := batch.Set(store.FamilyCanonicity, canonicityKey(u), encoded); err != nil {
			env.done <- err
			return nil
		}
		changes = append(changes, ledger.CanonicityChange{
			StateHash: u.StateHash, Canonical: u.Canonical, WasCanonical: u.WasCanonical,
		})
	}

	maxCanon := make([]byte, 4)
	binary.BigEndian.PutUint32(maxCanon, uint32(state.tree.MaxCanonicalBlockchainLength()))
	if err := batch.Set(store.FamilyMeta, []byte("max_canonical_blockchain_length"), maxCanon); err != nil {
		env.done <- err
		return nil
	}

	seq, err := state.events.NextSeqNum()
	if err != nil {
		env.done <- err
		return nil
	}
	if err := state.events.AppendTo(batch, seq, eventlog.KindNewBlock, map[string]types.StateHash{
		"state_hash": env.blk.StateHash,
	}); err != nil {
		env.done <- err
		return nil
	}
	seq++
	for _, u := range env.updates {
		if err := state.events.AppendTo(batch, seq, eventlog.KindCanonicalUpdate, eventlog.CanonicalUpdatePayload{
			Height: u.Height, StateHash: u.StateHash, Canonical: u.Canonical, WasCanonical: u.WasCanonical,
		}); err != nil {
			env.done <- err
			return nil
		}
		seq++
	}

	commitStart := time.Now()
	if err := batch.Commit(); err != nil {
		env.done <- fmt.Errorf("finalize: commit: %w", err)
		return nil
	}
	state.mtr.StoreBatchLatency.Observe(time.Since(commitStart).Seconds())

	if err := state.ledger.OnCanonicityChanges(changes); err != nil {
		state.mtr.LedgerApplyFailures.Inc()
		env.done <- fmt.Errorf("finalize: apply canonicity: %w", err)
		return nil
	}

	var demoted int
	for _, u := range env.updates {
		if u.WasCanonical && !u.Canonical {
			demoted++
		}
	}
	if demoted > 0 {
		state.mtr.ReorgDepth.Observe(float64(demoted))
	}

	state.mtr.BlocksIngested.Inc()
	state.mtr.CanonicalUpdates.Add(float64(len(env.updates)))
	state.mtr.EventLogLength.Set(float64(seq))

	env.done <- nil
	return nil
}
