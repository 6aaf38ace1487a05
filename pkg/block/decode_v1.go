package block

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/certen/mina-core/pkg/types"
)

// decodeV1 decodes the pre-hardfork schema: an outer `{version, data}`
// envelope (itself following the general versioned-envelope shape),
// wrapping `protocol_state` and `staged_ledger_diff` (§4.A).
func decodeV1(outer map[string]json.RawMessage, network string) (*Block, error) {
	dataRaw, ok := outer["data"]
	if !ok {
		return nil, missingField("data")
	}
	dataRaw, err := flattenEnvelope(dataRaw)
	if err != nil {
		return nil, err
	}
	data, err := asObject(dataRaw)
	if err != nil {
		return nil, err
	}

	protocolStateRaw, err := field(data, "protocol_state")
	if err != nil {
		return nil, err
	}
	protocolState, err := asObject(protocolStateRaw)
	if err != nil {
		return nil, err
	}

	previousStateHash, err := requireString(protocolState, "previous_state_hash")
	if err != nil {
		return nil, err
	}

	bodyRaw, err := field(protocolState, "body")
	if err != nil {
		return nil, err
	}
	body, err := asObject(bodyRaw)
	if err != nil {
		return nil, err
	}

	genesisStateHash, err := requireString(body, "genesis_state_hash")
	if err != nil {
		return nil, err
	}

	blockchainStateRaw, err := field(body, "blockchain_state")
	if err != nil {
		return nil, err
	}
	blockchainState, err := asObject(blockchainStateRaw)
	if err != nil {
		return nil, err
	}
	snarkedLedgerHash, err := requireString(blockchainState, "snarked_ledger_hash")
	if err != nil {
		return nil, err
	}
	stagedLedgerHash, err := requireString(blockchainState, "staged_ledger_hash")
	if err != nil {
		return nil, err
	}

	consensusStateRaw, err := field(body, "consensus_state")
	if err != nil {
		return nil, err
	}
	consensusState, err := asObject(consensusStateRaw)
	if err != nil {
		return nil, err
	}

	blockchainLength, err := requireUint64(consensusState, "blockchain_length")
	if err != nil {
		return nil, err
	}
	epochCount, err := requireUint64(consensusState, "epoch_count")
	if err != nil {
		return nil, err
	}
	minWindowDensity, err := requireUint64(consensusState, "min_window_density")
	if err != nil {
		return nil, err
	}
	totalCurrency, err := requireUint64(consensusState, "total_currency")
	if err != nil {
		return nil, err
	}
	globalSlot, err := requireUint64(consensusState, "global_slot_since_genesis")
	if err != nil {
		return nil, err
	}
	blockCreator, err := requireString(consensusState, "block_creator")
	if err != nil {
		return nil, err
	}
	blockStakeWinner, err := requireString(consensusState, "block_stake_winner")
	if err != nil {
		return nil, err
	}
	coinbaseReceiver, err := requireString(consensusState, "coinbase_receiver")
	if err != nil {
		return nil, err
	}
	supercharge, err := requireBool(consensusState, "supercharge_coinbase")
	if err != nil {
		return nil, err
	}
	lastVRFStr, err := requireString(consensusState, "last_vrf_output")
	if err != nil {
		return nil, err
	}
	lastVRF, _ := base64.StdEncoding.DecodeString(lastVRFStr)

	stakingEpochRaw, err := field(consensusState, "staking_epoch_data")
	if err != nil {
		return nil, err
	}
	stakingEpoch, err := decodeEpochData(stakingEpochRaw)
	if err != nil {
		return nil, err
	}
	nextEpochRaw, err := field(consensusState, "next_epoch_data")
	if err != nil {
		return nil, err
	}
	nextEpoch, err := decodeEpochData(nextEpochRaw)
	if err != nil {
		return nil, err
	}

	stagedLedgerDiffRaw, err := field(data, "staged_ledger_diff")
	if err != nil {
		return nil, err
	}
	diff, err := asObject(stagedLedgerDiffRaw)
	if err != nil {
		return nil, err
	}
	diffArrRaw, ok := diff["diff"]
	if !ok {
		return nil, missingField("staged_ledger_diff.diff")
	}
	var diffParts []json.RawMessage
	if err := json.Unmarshal(diffArrRaw, &diffParts); err != nil {
		return nil, fmt.Errorf("%w: staged_ledger_diff.diff: %v", ErrMalformedJSON, err)
	}
	if len(diffParts) == 0 {
		return nil, missingField("staged_ledger_diff.diff[0]")
	}
	preDiff, err := decodeDiffPart(diffParts[0])
	if err != nil {
		return nil, err
	}
	var postDiff *DiffPart
	if len(diffParts) > 1 && string(diffParts[1]) != "null" {
		pd, err := decodeDiffPart(diffParts[1])
		if err != nil {
			return nil, err
		}
		postDiff = &pd
	}

	return &Block{
		Network:                network,
		Version:                V1,
		PreviousStateHash:      types.StateHash(previousStateHash),
		BlockchainLength:       types.BlockchainLength(blockchainLength),
		GlobalSlotSinceGenesis: types.GlobalSlot(globalSlot),
		EpochCount:             uint32(epochCount),
		GenesisStateHash:       types.StateHash(genesisStateHash),
		BlockCreator:           types.PublicKey(blockCreator),
		BlockStakeWinner:       types.PublicKey(blockStakeWinner),
		CoinbaseReceiver:       types.PublicKey(coinbaseReceiver),
		SuperchargeCoinbase:    supercharge,
		LastVRFOutput:          lastVRF,
		MinWindowDensity:       uint32(minWindowDensity),
		TotalCurrency:          types.Amount(totalCurrency),
		SnarkedLedgerHash:      types.LedgerHash(snarkedLedgerHash),
		StagedLedgerHash:       types.LedgerHash(stagedLedgerHash),
		StakingEpochData:       stakingEpoch,
		NextEpochData:          nextEpoch,
		StagedLedgerDiff: StagedLedgerDiff{
			PreDiff:  preDiff,
			PostDiff: postDiff,
		},
	}, nil
}
