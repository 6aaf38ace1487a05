package block

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/certen/mina-core/pkg/types"
)

// decodeV2 decodes the post-hardfork ("berkeley") schema: a flatter outer
// `{version, data}` envelope carrying `protocol_state`, `staged_ledger_diff`,
// and the V2-only `tokens_used` / `accounts_accessed` / `accounts_created`
// / `username_updates` fields (§4.A, §3.8 NEW). V2 never nests
// `{version, t}` wrappers the way V1 does, but flattenEnvelope is a no-op
// on plain objects, so the same field helpers apply unchanged.
func decodeV2(outer map[string]json.RawMessage, network string) (*Block, error) {
	dataRaw, ok := outer["data"]
	if !ok {
		return nil, missingField("data")
	}
	data, err := asObject(dataRaw)
	if err != nil {
		return nil, err
	}

	protocolStateRaw, ok := data["protocol_state"]
	if !ok {
		return nil, missingField("protocol_state")
	}
	protocolState, err := asObject(protocolStateRaw)
	if err != nil {
		return nil, err
	}

	previousStateHash, err := requireString(protocolState, "previous_state_hash")
	if err != nil {
		return nil, err
	}

	body, err := asObject(protocolState["body"])
	if err != nil {
		return nil, err
	}

	genesisStateHash, err := requireString(body, "genesis_state_hash")
	if err != nil {
		return nil, err
	}

	blockchainState, err := asObject(body["blockchain_state"])
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

	consensusState, err := asObject(body["consensus_state"])
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
	lastVRFStr, err := requireString(consensusState, "last_vrf_output")
	if err != nil {
		return nil, err
	}
	lastVRF, _ := base64.StdEncoding.DecodeString(lastVRFStr)

	stakingEpoch, err := decodeEpochData(consensusState["staking_epoch_data"])
	if err != nil {
		return nil, err
	}
	nextEpoch, err := decodeEpochData(consensusState["next_epoch_data"])
	if err != nil {
		return nil, err
	}

	diff, err := asObject(data["staged_ledger_diff"])
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

	var tokensUsed []types.TokenAddress
	if raw, ok := data["tokens_used"]; ok {
		var tokens []string
		_ = json.Unmarshal(raw, &tokens)
		for _, t := range tokens {
			tokensUsed = append(tokensUsed, types.TokenAddress(t))
		}
	}

	var accountsAccessed []types.PublicKey
	if raw, ok := data["accounts_accessed"]; ok {
		var pks []string
		_ = json.Unmarshal(raw, &pks)
		for _, pk := range pks {
			accountsAccessed = append(accountsAccessed, types.PublicKey(pk))
		}
	}

	var accountsCreated []types.PublicKey
	if raw, ok := data["accounts_created"]; ok {
		var pks []string
		_ = json.Unmarshal(raw, &pks)
		for _, pk := range pks {
			accountsCreated = append(accountsCreated, types.PublicKey(pk))
		}
	}

	var usernameUpdates map[types.PublicKey]string
	if raw, ok := data["username_updates"]; ok {
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err == nil {
			usernameUpdates = make(map[types.PublicKey]string, len(m))
			for k, v := range m {
				usernameUpdates[types.PublicKey(k)] = v
			}
		}
	}

	return &Block{
		Network:                network,
		Version:                V2,
		PreviousStateHash:      types.StateHash(previousStateHash),
		BlockchainLength:       types.BlockchainLength(blockchainLength),
		GlobalSlotSinceGenesis: types.GlobalSlot(globalSlot),
		EpochCount:             uint32(epochCount),
		GenesisStateHash:       types.StateHash(genesisStateHash),
		BlockCreator:           types.PublicKey(blockCreator),
		BlockStakeWinner:       types.PublicKey(blockStakeWinner),
		CoinbaseReceiver:       types.PublicKey(coinbaseReceiver),
		SuperchargeCoinbase:    false, // §4.B: V2 reward is fixed, never supercharged
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
		TokensUsed:       tokensUsed,
		AccountsAccessed: accountsAccessed,
		AccountsCreated:  accountsCreated,
		UsernameUpdates:  usernameUpdates,
	}, nil
}
