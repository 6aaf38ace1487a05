package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/mina-core/pkg/diff"
	"github.com/certen/mina-core/pkg/types"
)

type memKV struct{ m map[string][]byte }

func newMemKV() *memKV { return &memKV{m: make(map[string][]byte)} }

func (k *memKV) Get(key []byte) ([]byte, error) { return k.m[string(key)], nil }
func (k *memKV) Set(key, value []byte) error {
	k.m[string(key)] = append([]byte{}, value...)
	return nil
}

func nonce(n uint32) *types.Nonce {
	v := types.Nonce(n)
	return &v
}

func paymentLedgerDiff() *diff.LedgerDiff {
	return &diff.LedgerDiff{
		StateHash: "state1",
		AccountDiffs: [][]diff.AccountDiff{
			{
				// Funds A so the debit group below has something to spend.
				{Kind: diff.KindPayment, Payment: &diff.PaymentDiff{PublicKey: "B62qA", Token: types.TokenAddressDefault, Amount: 100, UpdateType: diff.Credit}},
			},
			{
				{Kind: diff.KindPayment, Payment: &diff.PaymentDiff{PublicKey: "B62qB", Token: types.TokenAddressDefault, Amount: 30, UpdateType: diff.Credit}},
				{Kind: diff.KindPayment, Payment: &diff.PaymentDiff{PublicKey: "B62qA", Token: types.TokenAddressDefault, Amount: 30, UpdateType: diff.Debit, Nonce: nonce(1)}},
			},
			{
				{Kind: diff.KindCoinbase, Coinbase: &diff.CoinbaseDiff{PublicKey: "B62qcoinbase", Amount: 720}},
			},
		},
	}
}

func TestApplyAndUnapplyDiffsRoundTrip(t *testing.T) {
	s := NewLedgerStore(newMemKV())
	ld := paymentLedgerDiff()

	require.NoError(t, s.RecordDiffs(ld))
	require.NoError(t, s.ApplyDiffs("state1"))

	a, _, err := s.GetAccount("B62qA", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Nonce(1), a.Nonce)
	assert.Equal(t, types.Amount(70), a.Balance)

	b, _, err := s.GetAccount("B62qB", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(30), b.Balance)

	cb, _, err := s.GetAccount("B62qcoinbase", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(720), cb.Balance)

	require.NoError(t, s.UnapplyDiffs("state1"))

	a2, _, err := s.GetAccount("B62qA", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Nonce(1), a2.Nonce, "nonce is never rolled back")
	assert.Equal(t, types.Amount(0), a2.Balance)

	b2, _, err := s.GetAccount("B62qB", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(0), b2.Balance)
}

func TestOnCanonicityChangesAppliesAndUnapplies(t *testing.T) {
	s := NewLedgerStore(newMemKV())
	require.NoError(t, s.RecordDiffs(paymentLedgerDiff()))

	err := s.OnCanonicityChanges([]CanonicityChange{
		{StateHash: "state1", Canonical: true, WasCanonical: false},
	})
	require.NoError(t, err)
	b, _, err := s.GetAccount("B62qB", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(30), b.Balance)

	err = s.OnCanonicityChanges([]CanonicityChange{
		{StateHash: "state1", Canonical: false, WasCanonical: true},
	})
	require.NoError(t, err)
	b2, _, err := s.GetAccount("B62qB", types.TokenAddressDefault)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(0), b2.Balance)
}

func TestTokenEngineSetAndApplyDiff(t *testing.T) {
	s := NewLedgerStore(newMemKV())
	require.NoError(t, s.SetToken(&Token{Address: "tok1", Owner: "B62qowner", Symbol: "FOO"}))

	require.NoError(t, s.ApplyTokenDiff(TokenDiff{Token: "tok1", Kind: TokenDiffSupply, SignedAmount: 100}, "B62qowner"))
	tok, err := s.getToken("tok1")
	require.NoError(t, err)
	assert.Equal(t, types.Amount(100), tok.Supply)

	holder, err := s.getHolder("tok1", "B62qowner")
	require.NoError(t, err)
	assert.Equal(t, types.Amount(100), holder.Balance)

	require.NoError(t, s.UnapplyTokenDiff("tok1", "B62qowner"))
	tok2, err := s.getToken("tok1")
	require.NoError(t, err)
	assert.Equal(t, types.Amount(0), tok2.Supply)
}

func TestInsufficientBalanceDebitFails(t *testing.T) {
	s := NewLedgerStore(newMemKV())
	ld := &diff.LedgerDiff{
		StateHash: "state2",
		AccountDiffs: [][]diff.AccountDiff{
			{{Kind: diff.KindPayment, Payment: &diff.PaymentDiff{PublicKey: "B62qA", Token: types.TokenAddressDefault, Amount: 30, UpdateType: diff.Debit, Nonce: nonce(1)}}},
		},
	}
	require.NoError(t, s.RecordDiffs(ld))
	err := s.ApplyDiffs("state2")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}
