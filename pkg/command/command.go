// Package command models signed commands (payments, delegations) and
// zkapp commands (§3.3), and reproduces the bit-exact transaction-hash
// algorithm of §4.A / §6.
package command

import (
	"github.com/certen/mina-core/pkg/types"
)

// Kind distinguishes the two SignedCommand payload shapes (§3.3).
type Kind int

const (
	KindPayment Kind = iota
	KindDelegation
)

// Status is the outcome of applying a command within its block.
type Status int

const (
	StatusApplied Status = iota
	StatusFailed
)

// PaymentBody is the Payment variant of a SignedCommand payload.
type PaymentBody struct {
	Source   types.PublicKey
	Receiver types.PublicKey
	Amount   types.Amount
	Token    types.TokenAddress
}

// DelegationBody is the Delegation variant of a SignedCommand payload.
type DelegationBody struct {
	Delegator  types.PublicKey
	NewDelegate types.PublicKey
}

// SignedCommand is a Payment or a Delegation, carrying the fields common to
// both (§3.3).
type SignedCommand struct {
	Kind      Kind
	Payment   *PaymentBody
	Delegation *DelegationBody

	FeePayer  types.PublicKey
	Fee       types.Amount
	Nonce     types.Nonce
	ValidUntil types.GlobalSlot
	Memo      []byte // raw memo bytes, preserved for hashing (§4.A)
	Signer    types.PublicKey
}

// MemoText decodes the raw memo bytes into their displayable UTF-8 form,
// stripping the base58check length-prefix byte (§6).
func (c *SignedCommand) MemoText() string {
	if len(c.Memo) == 0 {
		return ""
	}
	n := int(c.Memo[0])
	if n+1 > len(c.Memo) {
		n = len(c.Memo) - 1
	}
	return string(c.Memo[1 : 1+n])
}

// UserCommandWithStatus pairs a SignedCommand with its block-level outcome.
type UserCommandWithStatus struct {
	Version        int // 1 or 2
	Command        SignedCommand
	Status         Status
	FailureReasons []string
	Hash           types.TxnHash
}

// Fee returns the fee-payer's fee regardless of command status; failed
// commands still pay their fee (§3.3).
func (u *UserCommandWithStatus) Fee() types.Amount { return u.Command.Fee }

// ZkappAuthorizationKind is the authorization method on a zkapp account
// update.
type ZkappAuthorizationKind int

const (
	AuthNone ZkappAuthorizationKind = iota
	AuthSignature
	AuthProof
)

// ZkappAccountUpdate is one node of a zkapp command's update tree (§3.3).
type ZkappAccountUpdate struct {
	PublicKey     types.PublicKey
	TokenID       types.TokenAddress
	BalanceChange int64 // signed; negative is a debit

	Delegate         *types.PublicKey
	VerificationKey  *string
	Permissions      *string
	ZkappURI         *string
	TokenSymbol      *string
	Timing           *string
	VotingFor        *string
	AppState         []string
	Actions          []string
	Events           []string

	ImplicitAccountCreationFee bool
	IncrementNonce             bool
	Authorization              ZkappAuthorizationKind
	ProvedStatePrecondition    bool

	Children []*ZkappAccountUpdate
}

// ZkappCommand is the V2-only command shape: a fee payer plus an update
// tree (§3.3).
type ZkappCommand struct {
	FeePayer     types.PublicKey
	FeePayerFee  types.Amount
	FeePayerNonce types.Nonce
	Memo         []byte
	Updates      []*ZkappAccountUpdate
	Status       Status
	Hash         types.TxnHash
}
