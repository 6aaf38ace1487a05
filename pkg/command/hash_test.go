package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/mina-core/pkg/base58check"
	"github.com/certen/mina-core/pkg/types"
)

func samplePayment() *SignedCommand {
	return &SignedCommand{
		Kind: KindPayment,
		Payment: &PaymentBody{
			Source:   types.PublicKey("B62qsender"),
			Receiver: types.PublicKey("B62qreceiver"),
			Amount:   30,
			Token:    types.TokenAddressDefault,
		},
		FeePayer:   types.PublicKey("B62qsender"),
		Fee:        1,
		Nonce:      0,
		ValidUntil: 0,
		Memo:       []byte{0},
		Signer:     types.PublicKey("B62qsender"),
	}
}

func TestHashOfIsDeterministic(t *testing.T) {
	c := samplePayment()
	h1 := HashOf(c, 1)
	h2 := HashOf(c, 1)
	assert.Equal(t, h1, h2)
}

func TestHashOfDistinguishesVersions(t *testing.T) {
	c := samplePayment()
	v1 := HashOf(c, 1)
	v2 := HashOf(c, 2)
	assert.NotEqual(t, v1, v2)
}

func TestHashOfDistinguishesContent(t *testing.T) {
	a := samplePayment()
	b := samplePayment()
	b.Payment.Amount = 31

	ha := HashOf(a, 1)
	hb := HashOf(b, 1)
	assert.NotEqual(t, ha, hb)
}

func TestMemoRoundTrip(t *testing.T) {
	encoded := base58check.Encode(base58check.VersionUserCommandMemo, []byte{5, 'h', 'e', 'l', 'l', 'o'})

	decoded, err := DecodeMemo(encoded)
	require.NoError(t, err)

	c := &SignedCommand{Memo: decoded}
	assert.Equal(t, "hello", c.MemoText())
}

func TestMemoRejectsWrongVersion(t *testing.T) {
	wrong := base58check.Encode(base58check.VersionStateHash, []byte{5, 'h', 'e', 'l', 'l', 'o'})
	_, err := DecodeMemo(wrong)
	assert.Error(t, err)
}
