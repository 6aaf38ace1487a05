package ledger

import (
	"github.com/certen/mina-core/pkg/diff"
	"github.com/certen/mina-core/pkg/types"
)

// ZkappState is the zkapp sub-record an Account carries when it has been
// touched by a zkapp command (§3.4).
type ZkappState struct {
	AppState           []string
	VerificationKey    string
	Permissions        string
	ZkappURI           string
	TokenSymbol        string
	ProvedState        bool
	Timing             string
	VotingFor          string
	Actions            []string
	Events             []string
}

// Account is the per-(public_key, token) ledger record (§3.4).
type Account struct {
	PublicKey types.PublicKey
	Token     types.TokenAddress
	Balance   types.Amount
	Nonce     types.Nonce
	Delegate  types.PublicKey // defaults to PublicKey itself
	Zkapp     *ZkappState     // nil until first touched by a zkapp diff
}

// Token is a per-TokenAddress record: supply, owner, and display symbol
// (§3.4).
type Token struct {
	Address types.TokenAddress
	Owner   types.PublicKey
	Supply  types.Amount
	Symbol  string
}

// HolderKind records whether a TokenHolder's most recent movement was a
// credit or a debit, mirroring diff.UpdateType.
type HolderKind = diff.UpdateType

// TokenHolder tracks one (token, public_key)'s balance and the kind of its
// most recent movement (§3.4).
type TokenHolder struct {
	Token     types.TokenAddress
	PublicKey types.PublicKey
	Balance   types.Amount
	Kind      HolderKind
}

// TokenDiffKind tags a TokenDiff (§4.D token engine sub-operations).
type TokenDiffKind int

const (
	TokenDiffOwner TokenDiffKind = iota
	TokenDiffSupply
	TokenDiffSymbol
)

// TokenDiff is one of Owner(pk), Supply(signed_amount), or Symbol(new_symbol).
type TokenDiff struct {
	Token        types.TokenAddress
	Kind         TokenDiffKind
	Owner        types.PublicKey
	SignedAmount int64
	Symbol       string
}

// defaultAccount returns the zero-value account for a freshly seen
// (public_key, token) pair; delegate defaults to self per §3.4.
func defaultAccount(pk types.PublicKey, token types.TokenAddress) *Account {
	return &Account{PublicKey: pk, Token: token, Delegate: pk}
}
