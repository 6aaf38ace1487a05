package store

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewForTest(dbm.NewMemDB())
}

func TestGetSetWithinFamily(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(FamilyBlocks, []byte("state1"), []byte("payload")))

	v, err := s.Get(FamilyBlocks, []byte("state1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v)

	// Same key under a different family is a distinct entry.
	v2, err := s.Get(FamilyCanonicity, []byte("state1"))
	require.NoError(t, err)
	assert.Nil(t, v2)
}

func TestBatchCommitsAcrossFamilies(t *testing.T) {
	s := newTestStore(t)
	b, err := s.NewBatch()
	require.NoError(t, err)

	require.NoError(t, b.Set(FamilyBlocks, []byte("state1"), []byte("block-bytes")))
	require.NoError(t, b.Set(FamilyCanonicity, []byte("state1"), []byte{0x01}))
	require.NoError(t, b.Commit())

	v1, err := s.Get(FamilyBlocks, []byte("state1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("block-bytes"), v1)

	v2, err := s.Get(FamilyCanonicity, []byte("state1"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, v2)
}

func TestSecondaryHandleRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	s.readOnly = true

	err := s.Set(FamilyBlocks, []byte("k"), []byte("v"))
	assert.ErrorIs(t, err, ErrReadOnly)

	_, err = s.NewBatch()
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestFamilyKVAdaptsStore(t *testing.T) {
	s := newTestStore(t)
	kv := NewFamilyKV(s, FamilyLedgerDiff)

	require.NoError(t, kv.Set([]byte("acct:1:B62qA"), []byte("account-bytes")))
	v, err := kv.Get([]byte("acct:1:B62qA"))
	require.NoError(t, err)
	assert.Equal(t, []byte("account-bytes"), v)
}
