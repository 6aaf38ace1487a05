// Package ledger maintains the persisted (public_key, token) -> Account
// map and its per-token invariants (§3.4, §4.D), grounded on
// `store/zkapp_store_impl/token_store_impl.rs` for the token engine and on
// the teacher's KV-backed ledger store for the storage idiom.
package ledger

import "errors"

// Sentinel errors for ledger operations.
var (
	// ErrAccountNotFound names an account with no recorded state. No
	// ledger operation returns it: GetAccount reports absence through its
	// found result instead.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrTokenNotFound is returned when a token has no recorded state.
	ErrTokenNotFound = errors.New("ledger: token not found")

	// ErrNonceMismatch names a Debit diff whose nonce does not follow the
	// account's current nonce. Debit nonces are not checked when diffs are
	// applied, so no ledger operation returns it.
	ErrNonceMismatch = errors.New("ledger: nonce mismatch")

	// ErrInsufficientBalance is returned when a debit would drive an
	// account balance negative.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrNoDiffHistory is returned when applying or unapplying a block
	// whose diffs were never recorded.
	ErrNoDiffHistory = errors.New("ledger: no diff history for block")

	// ErrEmptyTokenHistory is returned when unapplying a token diff with
	// no recorded predecessor.
	ErrEmptyTokenHistory = errors.New("ledger: token has no diff history")
)
