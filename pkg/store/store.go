// Package store is the persistent KV layer every ingestion component
// reads and writes through (§4.E), grounded on the teacher's
// `pkg/consensus.bft_integration`'s use of `cometbft-db`.
package store

import (
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// Family is a logical column family, modeled as a fixed ASCII key prefix
// over the single physical dbm.DB (§4.E's "Column-family adaptation").
type Family string

const (
	FamilyBlocks     Family = "blk:" // state_hash -> encoded block
	FamilyCanonicity Family = "cno:" // height_be ++ state_hash -> canonicity record
	FamilyCommands   Family = "cmd:" // txn_hash -> command
	FamilyLedgerDiff Family = "ldf:" // pkg/ledger's whole key space: accounts, tokens, holders, token history, recorded block diffs
	FamilyEventLog   Family = "evt:" // seq_num_be -> event
	FamilyMeta       Family = "met:" // fixed keys -> misc metadata (max_canonical_blockchain_length, etc.)
)

// ErrReadOnly is returned by any write through a secondary (read-only)
// Store handle (§4.E "Secondary/read-only mode").
var ErrReadOnly = errors.New("store: write attempted on a secondary (read-only) handle")

// Store is the single physical database backing every logical family.
type Store struct {
	db       dbm.DB
	readOnly bool
}

// NewForTest wraps an already-constructed dbm.DB (typically dbm.NewMemDB())
// as a primary Store, for use by other packages' tests that need a real
// Store without touching disk.
func NewForTest(db dbm.DB) *Store {
	return &Store{db: db}
}

// Open creates or opens the primary store at dir using backend (one of
// cometbft-db's registered backend names, e.g. "goleveldb").
func Open(name, dir, backend string) (*Store, error) {
	db, err := dbm.NewDB(name, dbm.BackendType(backend), dir)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenSecondary opens the database at primaryDir with backend, the same way
// Open does, and returns a Store whose writes always fail with ErrReadOnly.
// dir is not used: no separate working directory is kept, and no
// backend-level secondary or read-only mode is requested.
func OpenSecondary(name, dir, primaryDir, backend string) (*Store, error) {
	db, err := dbm.NewDB(name, dbm.BackendType(backend), primaryDir)
	if err != nil {
		return nil, fmt.Errorf("store: open secondary %s: %w", primaryDir, err)
	}
	return &Store{db: db, readOnly: true}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func familyKey(f Family, key []byte) []byte {
	return append([]byte(f), key...)
}

// Get reads a single key within a family.
func (s *Store) Get(f Family, key []byte) ([]byte, error) {
	v, err := s.db.Get(familyKey(f, key))
	if err != nil {
		return nil, fmt.Errorf("store: get %s%x: %w", f, key, err)
	}
	return v, nil
}

// Set durably writes a single key within a family. Fails with ErrReadOnly
// on a secondary handle.
func (s *Store) Set(f Family, key, value []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := s.db.SetSync(familyKey(f, key), value); err != nil {
		return fmt.Errorf("store: set %s%x: %w", f, key, err)
	}
	return nil
}

// Has reports whether a key is present within a family.
func (s *Store) Has(f Family, key []byte) (bool, error) {
	ok, err := s.db.Has(familyKey(f, key))
	if err != nil {
		return false, fmt.Errorf("store: has %s%x: %w", f, key, err)
	}
	return ok, nil
}

// Iterator returns a forward iterator over every key in family f whose
// suffix (after the family prefix) falls within [start, end).
func (s *Store) Iterator(f Family, start, end []byte) (dbm.Iterator, error) {
	var s2, e2 []byte
	if start != nil {
		s2 = familyKey(f, start)
	} else {
		s2 = []byte(f)
	}
	if end != nil {
		e2 = familyKey(f, end)
	} else {
		e2 = prefixUpperBound([]byte(f))
	}
	return s.db.Iterator(s2, e2)
}

// prefixUpperBound returns the smallest byte string greater than every
// string with the given prefix, for use as an iterator's exclusive end.
func prefixUpperBound(prefix []byte) []byte {
	out := append([]byte{}, prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded
}

// Batch accumulates writes spanning multiple families and commits them
// atomically (§4.E: "atomic across column families" via the physical
// single-DB property).
type Batch struct {
	store *Store
	batch dbm.Batch
}

// NewBatch starts a new atomic batch. Fails immediately on a secondary
// handle since every batch eventually calls Write.
func (s *Store) NewBatch() (*Batch, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	return &Batch{store: s, batch: s.db.NewBatch()}, nil
}

// Set stages a write to family f within the batch.
func (b *Batch) Set(f Family, key, value []byte) error {
	if err := b.batch.Set(familyKey(f, key), value); err != nil {
		return fmt.Errorf("store: batch set %s%x: %w", f, key, err)
	}
	return nil
}

// Delete stages a delete within the batch.
func (b *Batch) Delete(f Family, key []byte) error {
	if err := b.batch.Delete(familyKey(f, key)); err != nil {
		return fmt.Errorf("store: batch delete %s%x: %w", f, key, err)
	}
	return nil
}

// Commit writes every staged operation atomically and durably.
func (b *Batch) Commit() error {
	if err := b.batch.WriteSync(); err != nil {
		return fmt.Errorf("store: batch commit: %w", err)
	}
	return b.batch.Close()
}
