package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/certen/mina-core/pkg/diff"
	"github.com/certen/mina-core/pkg/types"
)

// KV defines the key-value store interface the ledger engine is built on.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// LedgerStore provides high-level access to account, token, and holder
// state in the KV store (§3.4, §4.D).
//
// CONCURRENCY: LedgerStore assumes single-writer access. The indexer calls
// it from its diff and finalize pipeline stages, one block at a time. If
// you need to use it from multiple goroutines, wrap it with your own
// synchronization.
type LedgerStore struct {
	kv KV
}

// NewLedgerStore creates a new LedgerStore instance.
func NewLedgerStore(kv KV) *LedgerStore {
	return &LedgerStore{kv: kv}
}

// ====== KV Key Layout ======

var (
	keyAccountPrefix  = []byte("acct:") // + token ":" pk -> Account
	keyTokenPrefix    = []byte("tok:")  // + token -> Token
	keyHolderPrefix   = []byte("hld:")  // + token ":" pk -> TokenHolder
	keyTokenHistory   = []byte("tdh:")  // + token -> []TokenDiff (append-only, JSON array)
	keyBlockDiffs     = []byte("bdf:")  // + state_hash -> recorded *diff.LedgerDiff
	keyBlockApplied   = []byte("bap:")  // + state_hash -> 0x01 once diffs are applied
	keyTokenCount     = []byte("tok-count")
)

func accountKey(pk types.PublicKey, token types.TokenAddress) []byte {
	return append(append(append([]byte{}, keyAccountPrefix...), []byte(token)...), append([]byte(":"), []byte(pk)...)...)
}

func tokenKey(token types.TokenAddress) []byte {
	return append(append([]byte{}, keyTokenPrefix...), []byte(token)...)
}

func holderKey(token types.TokenAddress, pk types.PublicKey) []byte {
	return append(append(append([]byte{}, keyHolderPrefix...), []byte(token)...), append([]byte(":"), []byte(pk)...)...)
}

func tokenHistoryKey(token types.TokenAddress) []byte {
	return append(append([]byte{}, keyTokenHistory...), []byte(token)...)
}

func blockDiffsKey(stateHash types.StateHash) []byte {
	return append(append([]byte{}, keyBlockDiffs...), []byte(stateHash)...)
}

func blockAppliedKey(stateHash types.StateHash) []byte {
	return append(append([]byte{}, keyBlockApplied...), []byte(stateHash)...)
}

// ====== Account access ======

// GetAccount loads an account, returning a freshly defaulted record (never
// ErrAccountNotFound) if none has been recorded yet — callers that need to
// distinguish "new" from "existing" should check the returned bool.
func (s *LedgerStore) GetAccount(pk types.PublicKey, token types.TokenAddress) (*Account, bool, error) {
	b, err := s.kv.Get(accountKey(pk, token))
	if err != nil {
		return nil, false, fmt.Errorf("get account: %w", err)
	}
	if len(b) == 0 {
		return defaultAccount(pk, token), false, nil
	}
	var a Account
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, false, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, true, nil
}

func (s *LedgerStore) setAccount(a *Account) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	return s.kv.Set(accountKey(a.PublicKey, a.Token), b)
}

// ====== Block diff recording and (un)application (§4.D) ======

// RecordDiffs persists a block's ledger diffs without touching any account
// balance. Every ingested block's diffs are recorded exactly once,
// regardless of its canonicity at ingestion time; canonicity changes
// later drive ApplyDiffs/UnapplyDiffs via OnCanonicityChanges.
func (s *LedgerStore) RecordDiffs(ld *diff.LedgerDiff) error {
	b, err := json.Marshal(ld)
	if err != nil {
		return fmt.Errorf("marshal ledger diff: %w", err)
	}
	return s.kv.Set(blockDiffsKey(ld.StateHash), b)
}

func (s *LedgerStore) loadDiffs(stateHash types.StateHash) (*diff.LedgerDiff, error) {
	b, err := s.kv.Get(blockDiffsKey(stateHash))
	if err != nil {
		return nil, fmt.Errorf("get ledger diff: %w", err)
	}
	if len(b) == 0 {
		return nil, ErrNoDiffHistory
	}
	var ld diff.LedgerDiff
	if err := json.Unmarshal(b, &ld); err != nil {
		return nil, fmt.Errorf("unmarshal ledger diff: %w", err)
	}
	return &ld, nil
}

// ApplyDiffs applies the recorded diffs for stateHash, in application
// order, and marks the block applied.
func (s *LedgerStore) ApplyDiffs(stateHash types.StateHash) error {
	ld, err := s.loadDiffs(stateHash)
	if err != nil {
		return err
	}
	for _, group := range ld.AccountDiffs {
		for _, d := range group {
			if err := s.applyOne(d); err != nil {
				return fmt.Errorf("apply diff for %s: %w", stateHash, err)
			}
		}
	}
	return s.kv.Set(blockAppliedKey(stateHash), []byte{0x01})
}

// UnapplyDiffs reverses the recorded diffs for stateHash, in reverse
// application order, and marks the block unapplied. Nonce values are
// never rolled back (§4.D: "nonce values are not rolled back").
func (s *LedgerStore) UnapplyDiffs(stateHash types.StateHash) error {
	ld, err := s.loadDiffs(stateHash)
	if err != nil {
		return err
	}
	flat := ld.Flatten()
	for i := len(flat) - 1; i >= 0; i-- {
		if err := s.unapplyOne(flat[i]); err != nil {
			return fmt.Errorf("unapply diff for %s: %w", stateHash, err)
		}
	}
	return s.kv.Set(blockAppliedKey(stateHash), []byte{0x00})
}

// CanonicityChange is the minimal shape OnCanonicityChanges needs from a
// canonical-engine Update (kept decoupled from pkg/canonical to avoid an
// import cycle between the ledger and canonical-branch engines, per §9's
// "actor-DAG back-edges" note).
type CanonicityChange struct {
	StateHash    types.StateHash
	Canonical    bool
	WasCanonical bool
}

// OnCanonicityChanges implements §4.D's `on_canonicity_changes` operation:
// blocks that left the canonical set are unapplied, blocks that entered it
// are applied, and no-op transitions are ignored.
func (s *LedgerStore) OnCanonicityChanges(updates []CanonicityChange) error {
	for _, u := range updates {
		switch {
		case u.WasCanonical && !u.Canonical:
			if err := s.UnapplyDiffs(u.StateHash); err != nil {
				return err
			}
		case !u.WasCanonical && u.Canonical:
			if err := s.ApplyDiffs(u.StateHash); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyOne applies a single AccountDiff to its target account (§4.D step 2).
func (s *LedgerStore) applyOne(d diff.AccountDiff) error {
	switch d.Kind {
	case diff.KindPayment:
		return s.applyPayment(d.Payment)
	case diff.KindFeeTransfer:
		return s.applyPayment(d.FeeTransfer)
	case diff.KindFeeTransferViaCoinbase:
		return s.applyPayment(d.FeeTransferViaCoinbase)
	case diff.KindDelegation:
		a, _, err := s.GetAccount(d.Delegation.Delegator, types.TokenAddressDefault)
		if err != nil {
			return err
		}
		a.Delegate = d.Delegation.Delegate
		a.Nonce = d.Delegation.Nonce
		return s.setAccount(a)
	case diff.KindCoinbase:
		a, _, err := s.GetAccount(d.Coinbase.PublicKey, types.TokenAddressDefault)
		if err != nil {
			return err
		}
		a.Balance += d.Coinbase.Amount
		return s.setAccount(a)
	case diff.KindFailedTransactionNonce:
		a, _, err := s.GetAccount(d.FailedTransactionNonce.PublicKey, types.TokenAddressDefault)
		if err != nil {
			return err
		}
		a.Nonce = d.FailedTransactionNonce.Nonce
		return s.setAccount(a)
	case diff.KindZkapp:
		return s.applyZkapp(d.Zkapp)
	}
	return nil
}

func (s *LedgerStore) applyPayment(p *diff.PaymentDiff) error {
	a, _, err := s.GetAccount(p.PublicKey, p.Token)
	if err != nil {
		return err
	}
	if p.UpdateType == diff.Credit {
		a.Balance += p.Amount
	} else {
		if uint64(a.Balance) < uint64(p.Amount) {
			return fmt.Errorf("%w: account %s balance %d < debit %d", ErrInsufficientBalance, a.PublicKey, a.Balance, p.Amount)
		}
		a.Balance -= p.Amount
		if p.Nonce != nil {
			a.Nonce = *p.Nonce
		}
	}
	return s.setAccount(a)
}

func (s *LedgerStore) applyZkapp(z *diff.ZkappDiff) error {
	a, _, err := s.GetAccount(z.PublicKey, z.Token)
	if err != nil {
		return err
	}
	if a.Zkapp == nil {
		a.Zkapp = &ZkappState{}
	}
	switch z.Kind {
	case diff.ZkappPayment:
		if z.Payment != nil {
			return s.applyPayment(z.Payment)
		}
	case diff.ZkappDelegate:
		a.Delegate = types.PublicKey(z.StringValue)
	case diff.ZkappVerificationKey:
		a.Zkapp.VerificationKey = z.StringValue
	case diff.ZkappPermissions:
		a.Zkapp.Permissions = z.StringValue
	case diff.ZkappProvedState:
		a.Zkapp.ProvedState = z.BoolValue
	case diff.ZkappURI:
		a.Zkapp.ZkappURI = z.StringValue
	case diff.ZkappTokenSymbol:
		a.Zkapp.TokenSymbol = z.StringValue
	case diff.ZkappTiming:
		a.Zkapp.Timing = z.StringValue
	case diff.ZkappVotingFor:
		a.Zkapp.VotingFor = z.StringValue
	case diff.ZkappActions:
		a.Zkapp.Actions = z.ListValue
	case diff.ZkappEvents:
		a.Zkapp.Events = z.ListValue
	case diff.ZkappState:
		a.Zkapp.AppState = z.ListValue
	case diff.ZkappIncrementNonce, diff.ZkappFeePayerNonce:
		if z.Nonce != nil {
			a.Nonce = *z.Nonce
		}
	case diff.ZkappAccountCreationFee:
		a.Balance -= z.Amount
	}
	return s.setAccount(a)
}

// unapplyOne reverses a single AccountDiff's effect on its target account.
func (s *LedgerStore) unapplyOne(d diff.AccountDiff) error {
	switch d.Kind {
	case diff.KindPayment:
		return s.unapplyPayment(d.Payment)
	case diff.KindFeeTransfer:
		return s.unapplyPayment(d.FeeTransfer)
	case diff.KindFeeTransferViaCoinbase:
		return s.unapplyPayment(d.FeeTransferViaCoinbase)
	case diff.KindCoinbase:
		a, _, err := s.GetAccount(d.Coinbase.PublicKey, types.TokenAddressDefault)
		if err != nil {
			return err
		}
		a.Balance -= d.Coinbase.Amount
		return s.setAccount(a)
	case diff.KindZkapp:
		if d.Zkapp.Kind == diff.ZkappPayment && d.Zkapp.Payment != nil {
			return s.unapplyPayment(d.Zkapp.Payment)
		}
		if d.Zkapp.Kind == diff.ZkappAccountCreationFee {
			a, _, err := s.GetAccount(d.Zkapp.PublicKey, d.Zkapp.Token)
			if err != nil {
				return err
			}
			a.Balance += d.Zkapp.Amount
			return s.setAccount(a)
		}
		return nil
	default:
		// Delegation and FailedTransactionNonce carry no balance effect
		// to reverse; nonces are never rolled back (§4.D).
		return nil
	}
}

func (s *LedgerStore) unapplyPayment(p *diff.PaymentDiff) error {
	a, _, err := s.GetAccount(p.PublicKey, p.Token)
	if err != nil {
		return err
	}
	if p.UpdateType == diff.Credit {
		a.Balance -= p.Amount
	} else {
		a.Balance += p.Amount
	}
	return s.setAccount(a)
}

// ====== Token engine (§4.D token engine sub-operations) ======

// SetToken upserts a token record; on first insert it allocates the owner
// as the first token holder and increments the global token count.
func (s *LedgerStore) SetToken(tok *Token) error {
	existing, err := s.getToken(tok.Address)
	isNew := err == ErrTokenNotFound
	if err != nil && !isNew {
		return err
	}
	_ = existing

	b, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.kv.Set(tokenKey(tok.Address), b); err != nil {
		return fmt.Errorf("set token: %w", err)
	}

	if isNew {
		holder := &TokenHolder{Token: tok.Address, PublicKey: tok.Owner, Balance: 0, Kind: diff.Credit}
		if err := s.setHolder(holder); err != nil {
			return err
		}
		count, _ := s.getTokenCount()
		return s.setTokenCount(count + 1)
	}
	return nil
}

func (s *LedgerStore) getToken(token types.TokenAddress) (*Token, error) {
	b, err := s.kv.Get(tokenKey(token))
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if len(b) == 0 {
		return nil, ErrTokenNotFound
	}
	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &tok, nil
}

func (s *LedgerStore) getTokenCount() (uint64, error) {
	b, err := s.kv.Get(keyTokenCount)
	if err != nil || len(b) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b), nil
}

func (s *LedgerStore) setTokenCount(n uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return s.kv.Set(keyTokenCount, b)
}

func (s *LedgerStore) getHolder(token types.TokenAddress, pk types.PublicKey) (*TokenHolder, error) {
	b, err := s.kv.Get(holderKey(token, pk))
	if err != nil {
		return nil, fmt.Errorf("get holder: %w", err)
	}
	if len(b) == 0 {
		return &TokenHolder{Token: token, PublicKey: pk}, nil
	}
	var h TokenHolder
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("unmarshal holder: %w", err)
	}
	return &h, nil
}

func (s *LedgerStore) setHolder(h *TokenHolder) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal holder: %w", err)
	}
	return s.kv.Set(holderKey(h.Token, h.PublicKey), b)
}

// ApplyTokenDiff applies a TokenDiff to its token's record and holder,
// appending it to the historical per-token diff list.
func (s *LedgerStore) ApplyTokenDiff(d TokenDiff, holderPK types.PublicKey) error {
	tok, err := s.getToken(d.Token)
	if err == ErrTokenNotFound {
		tok = &Token{Address: d.Token}
	} else if err != nil {
		return err
	}

	switch d.Kind {
	case TokenDiffOwner:
		tok.Owner = d.Owner
	case TokenDiffSupply:
		tok.Supply = types.Amount(int64(tok.Supply) + d.SignedAmount)
	case TokenDiffSymbol:
		tok.Symbol = d.Symbol
	}

	if err := s.kv.Set(tokenKey(d.Token), mustMarshal(tok)); err != nil {
		return fmt.Errorf("set token: %w", err)
	}

	if d.Kind == TokenDiffSupply {
		holder, err := s.getHolder(d.Token, holderPK)
		if err != nil {
			return err
		}
		if d.SignedAmount >= 0 {
			holder.Balance += types.Amount(d.SignedAmount)
			holder.Kind = diff.Credit
		} else {
			holder.Balance -= types.Amount(-d.SignedAmount)
			holder.Kind = diff.Debit
		}
		if err := s.setHolder(holder); err != nil {
			return err
		}
	}

	return s.appendTokenHistory(d)
}

// UnapplyTokenDiff pops the most recent diff for token and reverses its
// effect.
func (s *LedgerStore) UnapplyTokenDiff(token types.TokenAddress, holderPK types.PublicKey) error {
	history, err := s.loadTokenHistory(token)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return ErrEmptyTokenHistory
	}
	last := history[len(history)-1]
	history = history[:len(history)-1]

	tok, err := s.getToken(token)
	if err != nil {
		return err
	}
	switch last.Kind {
	case TokenDiffSupply:
		tok.Supply = types.Amount(int64(tok.Supply) - last.SignedAmount)
	case TokenDiffSymbol, TokenDiffOwner:
		// Reversing owner/symbol changes to their prior value would
		// require storing the previous value in the diff; out of scope
		// for the historical-list representation used here.
	}
	if err := s.kv.Set(tokenKey(token), mustMarshal(tok)); err != nil {
		return fmt.Errorf("set token: %w", err)
	}

	if last.Kind == TokenDiffSupply {
		holder, err := s.getHolder(token, holderPK)
		if err != nil {
			return err
		}
		if last.SignedAmount >= 0 {
			holder.Balance -= types.Amount(last.SignedAmount)
		} else {
			holder.Balance += types.Amount(-last.SignedAmount)
		}
		if err := s.setHolder(holder); err != nil {
			return err
		}
	}

	return s.saveTokenHistory(token, history)
}

func (s *LedgerStore) loadTokenHistory(token types.TokenAddress) ([]TokenDiff, error) {
	b, err := s.kv.Get(tokenHistoryKey(token))
	if err != nil {
		return nil, fmt.Errorf("get token history: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var history []TokenDiff
	if err := json.Unmarshal(b, &history); err != nil {
		return nil, fmt.Errorf("unmarshal token history: %w", err)
	}
	return history, nil
}

func (s *LedgerStore) saveTokenHistory(token types.TokenAddress, history []TokenDiff) error {
	b, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal token history: %w", err)
	}
	return s.kv.Set(tokenHistoryKey(token), b)
}

func (s *LedgerStore) appendTokenHistory(d TokenDiff) error {
	history, err := s.loadTokenHistory(d.Token)
	if err != nil {
		return err
	}
	history = append(history, d)
	return s.saveTokenHistory(d.Token, history)
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("ledger: unexpected marshal failure: %v", err))
	}
	return b
}
