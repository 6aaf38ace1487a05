// Package diff converts a decoded block into the ordered ledger-diff
// sequence the ledger engine applies (§3.5, §4.B), grounded on
// `ledger/diff/{mod,account/mod}.rs`.
package diff

import (
	"github.com/certen/mina-core/pkg/types"
)

// UpdateType selects whether a PaymentDiff credits or debits its account.
// A Debit carries the post-application nonce for user-originated commands
// and nil for internal commands (§3.5).
type UpdateType int

const (
	Credit UpdateType = iota
	Debit
)

// PaymentDiff is the common shape shared by Payment, FeeTransfer, and
// FeeTransferViaCoinbase account diffs.
type PaymentDiff struct {
	PublicKey  types.PublicKey
	Token      types.TokenAddress
	Amount     types.Amount
	UpdateType UpdateType
	Nonce      *types.Nonce // set only for Debit on a user command
}

// DelegationDiff re-points an account's delegate.
type DelegationDiff struct {
	Delegator types.PublicKey
	Delegate  types.PublicKey
	Nonce     types.Nonce
}

// CoinbaseDiff credits the block's coinbase reward to its receiver.
type CoinbaseDiff struct {
	PublicKey types.PublicKey
	Amount    types.Amount
}

// FailedTransactionNonceDiff advances a sender's nonce without moving a
// balance, for a command whose status is Failed (§3.5).
type FailedTransactionNonceDiff struct {
	PublicKey types.PublicKey
	Nonce     types.Nonce
}

// Kind tags the AccountDiff union (§3.5).
type Kind int

const (
	KindPayment Kind = iota
	KindDelegation
	KindCoinbase
	KindFeeTransfer
	KindFeeTransferViaCoinbase
	KindFailedTransactionNonce
	KindZkapp
)

// ZkappKind enumerates the zkapp-specific diff variants (§3.5). Modeled as
// one tagged struct rather than thirteen Go types, since every variant
// carries the same (public_key, token) addressing and differs only in
// payload shape.
type ZkappKind int

const (
	ZkappState ZkappKind = iota
	ZkappPayment
	ZkappDelegate
	ZkappPermissions
	ZkappVerificationKey
	ZkappProvedState
	ZkappURI
	ZkappTokenSymbol
	ZkappTiming
	ZkappVotingFor
	ZkappActions
	ZkappEvents
	ZkappIncrementNonce
	ZkappAccountCreationFee
	ZkappFeePayerNonce
)

// ZkappDiff carries one zkapp account-update effect (§4.B: state,
// permissions, VK, proved-state, uri, symbol, timing, voting-for, actions,
// events, increment-nonce, account-creation-fee, fee-payer-nonce).
type ZkappDiff struct {
	Kind      ZkappKind
	PublicKey types.PublicKey
	Token     types.TokenAddress

	Nonce   *types.Nonce // set for FeePayerNonce; IncrementNonce diffs carry none
	Amount  types.Amount // set for AccountCreationFee
	Payment *PaymentDiff // set when Kind wraps a balance_change payment

	StringValue string   // URI / TokenSymbol / Timing / VotingFor / VerificationKey / Permissions
	ListValue   []string // AppState / Actions / Events
	BoolValue   bool     // ProvedState
}

// AccountDiff is the tagged union §3.5 defines. Exactly one of the
// following fields is populated, selected by Kind.
type AccountDiff struct {
	Kind Kind

	Payment                *PaymentDiff
	Delegation             *DelegationDiff
	Coinbase               *CoinbaseDiff
	FeeTransfer            *PaymentDiff
	FeeTransferViaCoinbase *PaymentDiff
	FailedTransactionNonce *FailedTransactionNonceDiff
	Zkapp                  *ZkappDiff
}

// PublicKey returns the account this diff targets, matching the
// `TokenAccount for AccountDiff` match-arm list in the original.
func (d AccountDiff) PublicKey() types.PublicKey {
	switch d.Kind {
	case KindPayment:
		return d.Payment.PublicKey
	case KindDelegation:
		return d.Delegation.Delegator
	case KindCoinbase:
		return d.Coinbase.PublicKey
	case KindFeeTransfer:
		return d.FeeTransfer.PublicKey
	case KindFeeTransferViaCoinbase:
		return d.FeeTransferViaCoinbase.PublicKey
	case KindFailedTransactionNonce:
		return d.FailedTransactionNonce.PublicKey
	case KindZkapp:
		return d.Zkapp.PublicKey
	}
	return ""
}

// SignedAmount returns the diff's signed magnitude: negative for a debit,
// positive for a credit, zero for diffs that never move a balance
// (§4.D `amount()`).
func (d AccountDiff) SignedAmount() int64 {
	switch d.Kind {
	case KindDelegation, KindFailedTransactionNonce:
		return 0
	case KindCoinbase:
		return int64(d.Coinbase.Amount)
	case KindFeeTransfer:
		return signedPayment(d.FeeTransfer)
	case KindFeeTransferViaCoinbase:
		return signedPayment(d.FeeTransferViaCoinbase)
	case KindPayment:
		return signedPayment(d.Payment)
	case KindZkapp:
		if d.Zkapp.Kind == ZkappAccountCreationFee {
			return -int64(d.Zkapp.Amount)
		}
		if d.Zkapp.Payment != nil {
			return signedPayment(d.Zkapp.Payment)
		}
		return 0
	}
	return 0
}

func signedPayment(p *PaymentDiff) int64 {
	if p.UpdateType == Debit {
		return -int64(p.Amount)
	}
	return int64(p.Amount)
}

// LedgerDiff is the ordered, block-scoped diff sequence §3.5 describes.
type LedgerDiff struct {
	BlockchainLength  types.BlockchainLength
	StateHash         types.StateHash
	StagedLedgerHash  types.LedgerHash
	NewCoinbaseReceiver *types.PublicKey
	NewPKBalances     map[types.PublicKey]types.Amount
	PublicKeysSeen    []types.PublicKey
	AccountDiffs      [][]AccountDiff
}

// Flatten returns every AccountDiff across every group, in application
// order.
func (ld *LedgerDiff) Flatten() []AccountDiff {
	var out []AccountDiff
	for _, group := range ld.AccountDiffs {
		out = append(out, group...)
	}
	return out
}
