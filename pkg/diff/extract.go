package diff

import (
	"github.com/certen/mina-core/pkg/block"
	"github.com/certen/mina-core/pkg/command"
	"github.com/certen/mina-core/pkg/types"
)

// Constants bundles the network constants the extractor needs that the
// block itself doesn't carry (§4.B: coinbase reward, supercharge factor,
// account-creation fee).
type Constants struct {
	CoinbaseAmount     types.Amount
	SuperchargeFactor  uint64
	AccountCreationFee types.Amount
}

// IsNewAccount answers whether pk had no prior balance before this block,
// resolved against the store by the ledger engine rather than a
// back-edge message to the canonical engine (§9 design notes).
type IsNewAccount func(pk types.PublicKey) bool

// CoinbaseReward computes §4.B's `coinbase_reward`: doubled under
// supercharge for V1, fixed for V2.
func CoinbaseReward(b *block.Block, c Constants) types.Amount {
	if b.Version == block.V1 && b.SuperchargeCoinbase {
		return types.Amount(uint64(c.CoinbaseAmount) * c.SuperchargeFactor)
	}
	return c.CoinbaseAmount
}

// FromBlock builds the ordered LedgerDiff for b, following the application
// order contract in §3.5: user commands (pre-diff then post-diff order),
// then zkapp commands, then coinbase, then aggregated fee transfers.
func FromBlock(b *block.Block, c Constants, isNew IsNewAccount) *LedgerDiff {
	ld := &LedgerDiff{
		BlockchainLength: b.BlockchainLength,
		StateHash:        b.StateHash,
		StagedLedgerHash: b.StagedLedgerHash,
		NewPKBalances:    make(map[types.PublicKey]types.Amount),
	}

	seen := make(map[types.PublicKey]struct{})
	see := func(pk types.PublicKey) {
		if _, ok := seen[pk]; !ok {
			seen[pk] = struct{}{}
			ld.PublicKeysSeen = append(ld.PublicKeysSeen, pk)
		}
	}

	// 1. User commands, pre-diff then post-diff order (§3.5 #1).
	feeByPayer := make(map[types.PublicKey]types.Amount)
	for _, uc := range b.Commands() {
		see(uc.Command.FeePayer)
		feeByPayer[uc.Command.FeePayer] += uc.Command.Fee

		if uc.Status == command.StatusFailed {
			nextNonce := uc.Command.Nonce + 1
			ld.AccountDiffs = append(ld.AccountDiffs, []AccountDiff{{
				Kind: KindFailedTransactionNonce,
				FailedTransactionNonce: &FailedTransactionNonceDiff{
					PublicKey: uc.Command.FeePayer,
					Nonce:     nextNonce,
				},
			}})
			continue
		}

		switch uc.Command.Kind {
		case command.KindPayment:
			nonce := uc.Command.Nonce + 1
			see(uc.Command.Payment.Source)
			see(uc.Command.Payment.Receiver)
			ld.AccountDiffs = append(ld.AccountDiffs, []AccountDiff{
				{Kind: KindPayment, Payment: &PaymentDiff{
					PublicKey: uc.Command.Payment.Source, Token: uc.Command.Payment.Token,
					Amount: uc.Command.Payment.Amount, UpdateType: Debit, Nonce: &nonce,
				}},
				{Kind: KindPayment, Payment: &PaymentDiff{
					PublicKey: uc.Command.Payment.Receiver, Token: uc.Command.Payment.Token,
					Amount: uc.Command.Payment.Amount, UpdateType: Credit,
				}},
			})
		case command.KindDelegation:
			nonce := uc.Command.Nonce + 1
			see(uc.Command.Delegation.Delegator)
			see(uc.Command.Delegation.NewDelegate)
			ld.AccountDiffs = append(ld.AccountDiffs, []AccountDiff{{
				Kind: KindDelegation,
				Delegation: &DelegationDiff{
					Delegator: uc.Command.Delegation.Delegator,
					Delegate:  uc.Command.Delegation.NewDelegate,
					Nonce:     nonce,
				},
			}})
		}
	}

	// zkapp commands (V2 only) follow every signed command in the same
	// ordered list, each expanded along its own update tree (§4.B zkapp
	// bullet list).
	for _, zc := range b.ZkappCommands() {
		see(zc.FeePayer)
		feeByPayer[zc.FeePayer] += zc.FeePayerFee
		ld.AccountDiffs = append(ld.AccountDiffs, zkappDiffGroups(&zc, c.AccountCreationFee, see)...)
	}

	// 2. Coinbase diff (§3.5 #2).
	reward := CoinbaseReward(b, c)
	newAccount := isNew != nil && isNew(b.CoinbaseReceiver)
	coinbaseAmount := reward
	if newAccount {
		if coinbaseAmount > c.AccountCreationFee {
			coinbaseAmount -= c.AccountCreationFee
		} else {
			coinbaseAmount = 0
		}
		ld.NewCoinbaseReceiver = &b.CoinbaseReceiver
	}
	see(b.CoinbaseReceiver)
	ld.NewPKBalances[b.CoinbaseReceiver] = coinbaseAmount
	ld.AccountDiffs = append(ld.AccountDiffs, []AccountDiff{{
		Kind:     KindCoinbase,
		Coinbase: &CoinbaseDiff{PublicKey: b.CoinbaseReceiver, Amount: coinbaseAmount},
	}})

	// 3. Aggregated fee transfers (§3.5 #3-4).
	var totalTxFees types.Amount
	for pk, fee := range feeByPayer {
		if fee == 0 {
			continue
		}
		totalTxFees += fee
		see(pk)
		ld.AccountDiffs = append(ld.AccountDiffs, []AccountDiff{
			{Kind: KindFeeTransfer, FeeTransfer: &PaymentDiff{PublicKey: pk, Amount: fee, UpdateType: Debit}},
			{Kind: KindFeeTransfer, FeeTransfer: &PaymentDiff{PublicKey: b.CoinbaseReceiver, Amount: fee, UpdateType: Credit}},
		})
	}

	feeByProver := make(map[types.PublicKey]types.Amount)
	var totalSnarkFees types.Amount
	for _, w := range b.CompletedWorks() {
		if w.Fee == 0 {
			continue
		}
		feeByProver[w.Prover] += w.Fee
		totalSnarkFees += w.Fee
	}

	// The Open Question on fee_transfer_via_coinbase interleaving (§9) is
	// resolved here at whole-block granularity: when the coinbase
	// receiver's genuine fee revenue for the block can't cover the
	// aggregate SNARK-work payout, every prover payout for this block is
	// funded via coinbase instead of via ordinary fee transfer, rather
	// than splitting individual transfers (the decoder has no per-work
	// attribution to the fee that funded it).
	fundedViaCoinbase := totalSnarkFees > totalTxFees
	proverKind := KindFeeTransfer
	if fundedViaCoinbase {
		proverKind = KindFeeTransferViaCoinbase
	}
	for prover, fee := range feeByProver {
		see(prover)
		var debit, credit AccountDiff
		if fundedViaCoinbase {
			debit = AccountDiff{Kind: proverKind, FeeTransferViaCoinbase: &PaymentDiff{PublicKey: b.CoinbaseReceiver, Amount: fee, UpdateType: Debit}}
			credit = AccountDiff{Kind: proverKind, FeeTransferViaCoinbase: &PaymentDiff{PublicKey: prover, Amount: fee, UpdateType: Credit}}
		} else {
			debit = AccountDiff{Kind: proverKind, FeeTransfer: &PaymentDiff{PublicKey: b.CoinbaseReceiver, Amount: fee, UpdateType: Debit}}
			credit = AccountDiff{Kind: proverKind, FeeTransfer: &PaymentDiff{PublicKey: prover, Amount: fee, UpdateType: Credit}}
		}
		ld.AccountDiffs = append(ld.AccountDiffs, []AccountDiff{debit, credit})
	}

	return ld
}

// zkappDiffGroups walks a zkapp command's update tree depth-first,
// producing one diff group per account update (§4.B zkapp bullet list).
func zkappDiffGroups(zc *command.ZkappCommand, accountCreationFee types.Amount, see func(types.PublicKey)) [][]AccountDiff {
	var groups [][]AccountDiff

	feePayerNonce := zc.FeePayerNonce + 1
	groups = append(groups, []AccountDiff{{
		Kind: KindZkapp,
		Zkapp: &ZkappDiff{
			Kind:      ZkappFeePayerNonce,
			PublicKey: zc.FeePayer,
			Nonce:     &feePayerNonce,
		},
	}})

	var walk func(u *command.ZkappAccountUpdate)
	walk = func(u *command.ZkappAccountUpdate) {
		see(u.PublicKey)
		var group []AccountDiff

		if u.ImplicitAccountCreationFee {
			group = append(group, AccountDiff{
				Kind: KindZkapp,
				Zkapp: &ZkappDiff{Kind: ZkappAccountCreationFee, PublicKey: zc.FeePayer, Token: u.TokenID, Amount: accountCreationFee},
			})
		}
		if u.IncrementNonce {
			group = append(group, AccountDiff{
				Kind:  KindZkapp,
				Zkapp: &ZkappDiff{Kind: ZkappIncrementNonce, PublicKey: u.PublicKey, Token: u.TokenID},
			})
		}
		if u.BalanceChange != 0 {
			updateType := Credit
			amount := u.BalanceChange
			if amount < 0 {
				updateType = Debit
				amount = -amount
			}
			group = append(group, AccountDiff{
				Kind: KindZkapp,
				Zkapp: &ZkappDiff{
					Kind: ZkappPayment, PublicKey: u.PublicKey, Token: u.TokenID,
					Payment: &PaymentDiff{PublicKey: u.PublicKey, Token: u.TokenID, Amount: types.Amount(amount), UpdateType: updateType},
				},
			})
		}
		if u.Delegate != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappDelegate, PublicKey: u.PublicKey, StringValue: string(*u.Delegate)}})
		}
		if u.VerificationKey != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappVerificationKey, PublicKey: u.PublicKey, StringValue: *u.VerificationKey}})
		}
		if u.Permissions != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappPermissions, PublicKey: u.PublicKey, StringValue: *u.Permissions}})
		}
		if u.ZkappURI != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappURI, PublicKey: u.PublicKey, StringValue: *u.ZkappURI}})
		}
		if u.TokenSymbol != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappTokenSymbol, PublicKey: u.PublicKey, StringValue: *u.TokenSymbol}})
		}
		if u.Timing != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappTiming, PublicKey: u.PublicKey, StringValue: *u.Timing}})
		}
		if u.VotingFor != nil {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappVotingFor, PublicKey: u.PublicKey, StringValue: *u.VotingFor}})
		}
		if len(u.Actions) > 0 {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappActions, PublicKey: u.PublicKey, ListValue: u.Actions}})
		}
		if len(u.Events) > 0 {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappEvents, PublicKey: u.PublicKey, ListValue: u.Events}})
		}
		if u.Authorization == command.AuthProof && u.ProvedStatePrecondition {
			group = append(group, AccountDiff{Kind: KindZkapp, Zkapp: &ZkappDiff{Kind: ZkappProvedState, PublicKey: u.PublicKey, BoolValue: true}})
		}

		if len(group) > 0 {
			groups = append(groups, group)
		}

		// Non-root child updates carry no nonce (§4.B).
		for _, child := range u.Children {
			walk(child)
		}
	}
	for _, u := range zc.Updates {
		walk(u)
	}

	return groups
}
