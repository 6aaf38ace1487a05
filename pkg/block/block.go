// Package block decodes V1 and V2 on-disk block JSON into a single uniform
// in-memory view (§4.A), hiding the schema differences between the
// pre-hardfork and post-hardfork ("berkeley") wire formats from every
// downstream package.
package block

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/certen/mina-core/pkg/command"
	"github.com/certen/mina-core/pkg/types"
)

// Version distinguishes the two on-disk schemas (§3.2).
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// EpochData mirrors the staking_epoch_data / next_epoch_data record shape
// shared by both versions (§3.2).
type EpochData struct {
	LedgerHash      types.LedgerHash
	Seed            []byte
	TotalCurrency   types.Amount
	EpochLength     uint32
	StartCheckpoint types.StateHash
	LockCheckpoint  types.StateHash
}

// SnarkWork is one completed SNARK-work summary from a staged ledger diff.
type SnarkWork struct {
	Prover types.PublicKey
	Fee    types.Amount
}

// DiffPart is one half (pre or post) of a staged ledger diff: an ordered
// command list plus the completed works paid for in that half.
type DiffPart struct {
	Commands       []command.UserCommandWithStatus
	ZkappCommands  []command.ZkappCommand
	CompletedWorks []SnarkWork
}

// StagedLedgerDiff is the per-block package of commands, coinbase, and
// completed SNARK work (§GLOSSARY).
type StagedLedgerDiff struct {
	PreDiff  DiffPart
	PostDiff *DiffPart // nil when the block has no second diff half
}

// Block is the uniform, version-independent view every downstream package
// consumes (§3.2).
type Block struct {
	Network string
	Version Version

	StateHash              types.StateHash
	PreviousStateHash      types.StateHash
	BlockchainLength       types.BlockchainLength
	GlobalSlotSinceGenesis types.GlobalSlot
	EpochCount             uint32
	GenesisStateHash       types.StateHash

	BlockCreator        types.PublicKey
	BlockStakeWinner    types.PublicKey
	CoinbaseReceiver    types.PublicKey
	SuperchargeCoinbase bool // V1 only; always false for V2 (§4.B)
	LastVRFOutput       []byte
	MinWindowDensity    uint32
	TotalCurrency       types.Amount

	SnarkedLedgerHash types.LedgerHash
	StagedLedgerHash  types.LedgerHash

	StakingEpochData EpochData
	NextEpochData    EpochData

	StagedLedgerDiff StagedLedgerDiff

	// V2-only fields (§3.2, §3.8 NEW).
	TokensUsed       []types.TokenAddress
	AccountsAccessed []types.PublicKey
	AccountsCreated  []types.PublicKey
	UsernameUpdates  map[types.PublicKey]string
}

// ErrMissingField reports an absent required field during decode.
var ErrMissingField = errors.New("block: missing required field")

// ErrUnknownVariant reports a tagged-sum variant the decoder does not
// recognize (§4.A).
var ErrUnknownVariant = errors.New("block: unknown variant")

// ErrMalformedJSON wraps any underlying JSON syntax error.
var ErrMalformedJSON = errors.New("block: malformed json")

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}

// IsGenesis reports whether b is a chain-root block: its state hash
// matches one of the two designated genesis constants, in which case
// previous_state_hash carries no meaning (§3.2).
func (b *Block) IsGenesis(mainnetGenesis, hardforkGenesis types.StateHash) bool {
	return b.StateHash == mainnetGenesis || b.StateHash == hardforkGenesis
}

// Commands returns pre_diff commands followed by post_diff commands, in
// index order (§4.B contract: commands(block) = pre_diff ++ post_diff).
func (b *Block) Commands() []command.UserCommandWithStatus {
	cmds := make([]command.UserCommandWithStatus, 0, len(b.StagedLedgerDiff.PreDiff.Commands))
	cmds = append(cmds, b.StagedLedgerDiff.PreDiff.Commands...)
	if b.StagedLedgerDiff.PostDiff != nil {
		cmds = append(cmds, b.StagedLedgerDiff.PostDiff.Commands...)
	}
	return cmds
}

// ZkappCommands returns the V2-only zkapp command list, pre_diff then
// post_diff.
func (b *Block) ZkappCommands() []command.ZkappCommand {
	cmds := make([]command.ZkappCommand, 0, len(b.StagedLedgerDiff.PreDiff.ZkappCommands))
	cmds = append(cmds, b.StagedLedgerDiff.PreDiff.ZkappCommands...)
	if b.StagedLedgerDiff.PostDiff != nil {
		cmds = append(cmds, b.StagedLedgerDiff.PostDiff.ZkappCommands...)
	}
	return cmds
}

// CompletedWorks returns every completed SNARK work across both diff
// halves.
func (b *Block) CompletedWorks() []SnarkWork {
	works := make([]SnarkWork, 0, len(b.StagedLedgerDiff.PreDiff.CompletedWorks))
	works = append(works, b.StagedLedgerDiff.PreDiff.CompletedWorks...)
	if b.StagedLedgerDiff.PostDiff != nil {
		works = append(works, b.StagedLedgerDiff.PostDiff.CompletedWorks...)
	}
	return works
}

// TxFees sums the fees of every user command in the block (§4.A NEW
// convenience accessor, grounded on precomputed/mod.rs: tx_fees).
func (b *Block) TxFees() types.Amount {
	var sum types.Amount
	for _, c := range b.Commands() {
		sum += c.Fee()
	}
	return sum
}

// SnarkFees sums the fee of every completed SNARK work in the block
// (§4.A NEW convenience accessor, grounded on precomputed/mod.rs:
// snark_fees).
func (b *Block) SnarkFees() types.Amount {
	var sum types.Amount
	for _, w := range b.CompletedWorks() {
		sum += w.Fee
	}
	return sum
}

// HashLastVRFOutput returns the blake2b-256 digest of the raw VRF output
// bytes — not itself a protocol-critical value (§3.9 NEW). The §4.C
// tie-breaker compares the raw LastVRFOutput bytes, not this digest.
func (b *Block) HashLastVRFOutput() [32]byte {
	return blake2b.Sum256(b.LastVRFOutput)
}
