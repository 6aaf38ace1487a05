// Package eventlog is the append-only, gap-free event log described in
// §3.7/§4.G: every block-tree and ledger event gets a strictly increasing
// u32 seq_num, and the log is the canonical recovery path on restart.
// Grounded on the teacher's KV-backed store idiom (big-endian integer
// keys, JSON-encoded values, sentinel "not found" errors).
package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/certen/mina-core/pkg/store"
	"github.com/certen/mina-core/pkg/types"
)

// Kind tags an Event (§3.7). Actor-internal events are never persisted
// and so have no Kind here.
type Kind int

const (
	KindNewBlock Kind = iota
	KindNewBestTip
	KindNewCanonicalBlock
	KindNewLedger
	KindNewStakingLedger
	KindAggregateDelegations
	KindCanonicalUpdate
)

// CanonicalUpdatePayload is the payload for KindCanonicalUpdate events.
type CanonicalUpdatePayload struct {
	Height       types.BlockchainLength `json:"height"`
	StateHash    types.StateHash        `json:"state_hash"`
	Canonical    bool                   `json:"canonical"`
	WasCanonical bool                   `json:"was_canonical"`
}

// Event is one persisted, sequence-numbered log record.
type Event struct {
	SeqNum  uint32          `json:"seq_num"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ErrNotFound is returned by Get for a seq_num that has not been written.
var ErrNotFound = errors.New("eventlog: event not found")

var keyNextSeq = []byte("eventlog:next_seq")

// Log is the append-only event log.
type Log struct {
	store *store.Store
}

// New constructs a Log backed by s.
func New(s *store.Store) *Log {
	return &Log{store: s}
}

func seqKey(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// NextSeqNum returns the seq_num the next Append call will assign.
func (l *Log) NextSeqNum() (uint32, error) {
	b, err := l.store.Get(store.FamilyMeta, keyNextSeq)
	if err != nil {
		return 0, fmt.Errorf("eventlog: load next seq: %w", err)
	}
	if len(b) != 4 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(b), nil
}

// Append writes one event with kind and payload, assigning it the next
// seq_num, and returns that seq_num. Appends within the same batch as the
// data they describe (via AppendTo) guarantee §4.G's "seq n visible implies
// 0..=n visible" property; Append itself commits its own single-key write
// immediately for callers that do not need batching.
func (l *Log) Append(kind Kind, payload interface{}) (uint32, error) {
	n, err := l.NextSeqNum()
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("eventlog: marshal payload: %w", err)
	}
	ev := Event{SeqNum: n, Kind: kind, Payload: b}
	evBytes, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("eventlog: marshal event: %w", err)
	}
	if err := l.store.Set(store.FamilyEventLog, seqKey(n), evBytes); err != nil {
		return 0, fmt.Errorf("eventlog: write event %d: %w", n, err)
	}
	if err := l.setNextSeq(n + 1); err != nil {
		return 0, err
	}
	return n, nil
}

// AppendTo stages kind/payload as seq_num n's write within an already-open
// store.Batch, and stages the next-seq_num bump alongside it, so the
// caller can commit it atomically with the block data the event
// describes.
func (l *Log) AppendTo(b *store.Batch, n uint32, kind Kind, payload interface{}) error {
	pb, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventlog: marshal payload: %w", err)
	}
	ev := Event{SeqNum: n, Kind: kind, Payload: pb}
	evBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal event: %w", err)
	}
	if err := b.Set(store.FamilyEventLog, seqKey(n), evBytes); err != nil {
		return err
	}
	next := make([]byte, 4)
	binary.BigEndian.PutUint32(next, n+1)
	return b.Set(store.FamilyMeta, keyNextSeq, next)
}

func (l *Log) setNextSeq(n uint32) error {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return l.store.Set(store.FamilyMeta, keyNextSeq, b)
}

// Get returns the nth event (§4.G get_event(n)).
func (l *Log) Get(n uint32) (*Event, error) {
	b, err := l.store.Get(store.FamilyEventLog, seqKey(n))
	if err != nil {
		return nil, fmt.Errorf("eventlog: get %d: %w", n, err)
	}
	if len(b) == 0 {
		return nil, ErrNotFound
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("eventlog: unmarshal %d: %w", n, err)
	}
	return &ev, nil
}

// GetLog replays every event from seq_num 0 to the current frontier, in
// order (§4.G get_event_log).
func (l *Log) GetLog() ([]Event, error) {
	next, err := l.NextSeqNum()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, next)
	for i := uint32(0); i < next; i++ {
		ev, err := l.Get(i)
		if err != nil {
			return nil, fmt.Errorf("eventlog: gap at seq %d: %w", i, err)
		}
		events = append(events, *ev)
	}
	return events, nil
}
