package block

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/certen/mina-core/pkg/command"
	"github.com/certen/mina-core/pkg/types"
)

// Parse decodes a block file's raw bytes into the uniform Block view.
// declaredVersion comes from classifying the file's blockchain_length
// against the hardfork threshold (see ParsePath + Decide); it controls
// which of the two on-disk schemas is expected.
func Parse(raw []byte, network string, declaredVersion Version) (*Block, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	switch declaredVersion {
	case V1:
		return decodeV1(outer, network)
	case V2:
		return decodeV2(outer, network)
	default:
		return nil, fmt.Errorf("block: unsupported version %d", declaredVersion)
	}
}

// Decide chooses V1 or V2 for a block based on its blockchain_length
// against the network's hardfork threshold (§3.2: "version is a monotonic
// function of blockchain_length"). Genesis files (no length component)
// decode as whichever version their state hash identifies.
func Decide(fc FileContents, hardforkLength types.BlockchainLength, mainnetGenesis, hardforkGenesis types.StateHash) Version {
	if !fc.HasLength {
		if fc.StateHash == hardforkGenesis {
			return V2
		}
		return V1
	}
	if fc.BlockchainLength >= hardforkLength {
		return V2
	}
	return V1
}

// decodeTaggedCommand decodes a "SignedCommand" tagged-sum command. Callers
// that already know a command's tag (decodeDiffPart, having peeked it to
// route ZkappCommand elsewhere) may call this directly; it still rejects any
// other tag defensively.
func decodeTaggedCommand(raw json.RawMessage) (command.UserCommandWithStatus, error) {
	tag, payload, err := taggedSum(raw)
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	if tag != "SignedCommand" {
		return command.UserCommandWithStatus{}, fmt.Errorf("%w: command tag %q", ErrUnknownVariant, tag)
	}
	return decodeSignedCommand(payload)
}

func decodeSignedCommand(payload json.RawMessage) (command.UserCommandWithStatus, error) {
	obj, err := asObject(payload)
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}

	var sc command.SignedCommand
	feePayer, err := requireString(obj, "fee_payer")
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	sc.FeePayer = types.PublicKey(feePayer)

	fee, err := requireUint64(obj, "fee")
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	sc.Fee = types.Amount(fee)

	nonce, err := requireUint64(obj, "nonce")
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	sc.Nonce = types.Nonce(nonce)

	validUntil, err := optionalUint64(obj, "valid_until")
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	sc.ValidUntil = types.GlobalSlot(validUntil)

	memoStr, err := requireString(obj, "memo")
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	memoBytes, err := command.DecodeMemo(memoStr)
	if err != nil {
		// Memos that fail the base58check envelope still decode for
		// display purposes using the raw string bytes; hashing callers
		// that need the exact wire bytes should treat this block as
		// suspect, but a malformed memo must not abort the whole parse.
		memoBytes = []byte(memoStr)
	}
	sc.Memo = memoBytes

	signer, err := requireString(obj, "signer")
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	sc.Signer = types.PublicKey(signer)

	bodyRaw, ok := obj["body"]
	if !ok {
		return command.UserCommandWithStatus{}, missingField("body")
	}
	bodyRaw, err = flattenEnvelope(bodyRaw)
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	bodyTag, bodyPayload, err := taggedSum(bodyRaw)
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	bodyObj, err := asObject(bodyPayload)
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	switch bodyTag {
	case "Payment":
		source, err := requireString(bodyObj, "source")
		if err != nil {
			return command.UserCommandWithStatus{}, err
		}
		receiver, err := requireString(bodyObj, "receiver")
		if err != nil {
			return command.UserCommandWithStatus{}, err
		}
		amount, err := requireUint64(bodyObj, "amount")
		if err != nil {
			return command.UserCommandWithStatus{}, err
		}
		token, _ := optionalString(bodyObj, "token")
		sc.Kind = command.KindPayment
		sc.Payment = &command.PaymentBody{
			Source:   types.PublicKey(source),
			Receiver: types.PublicKey(receiver),
			Amount:   types.Amount(amount),
			Token:    types.TokenAddress(token),
		}
	case "Delegation":
		delegator, err := requireString(bodyObj, "delegator")
		if err != nil {
			return command.UserCommandWithStatus{}, err
		}
		newDelegate, err := requireString(bodyObj, "new_delegate")
		if err != nil {
			return command.UserCommandWithStatus{}, err
		}
		sc.Kind = command.KindDelegation
		sc.Delegation = &command.DelegationBody{
			Delegator:   types.PublicKey(delegator),
			NewDelegate: types.PublicKey(newDelegate),
		}
	default:
		return command.UserCommandWithStatus{}, fmt.Errorf("%w: command body tag %q", ErrUnknownVariant, bodyTag)
	}

	statusRaw, ok := obj["status"]
	if !ok {
		return command.UserCommandWithStatus{}, missingField("status")
	}
	statusTag, statusPayload, err := taggedSum(statusRaw)
	if err != nil {
		return command.UserCommandWithStatus{}, err
	}
	uc := command.UserCommandWithStatus{Command: sc}
	switch statusTag {
	case "Applied":
		uc.Status = command.StatusApplied
	case "Failed":
		uc.Status = command.StatusFailed
		var reasons []string
		_ = json.Unmarshal(statusPayload, &reasons)
		uc.FailureReasons = reasons
	default:
		return command.UserCommandWithStatus{}, fmt.Errorf("%w: command status tag %q", ErrUnknownVariant, statusTag)
	}

	return uc, nil
}

// decodeZkappCommand decodes a "ZkappCommand" tagged-sum payload (§3.3) into
// a command.ZkappCommand. Mina's precomputed-block JSON has no public schema
// for the zkapp update tree, so the field names below mirror
// command.ZkappAccountUpdate directly rather than any captured wire sample,
// the same pragmatic, not byte-exact stance documented on
// command.encodeBinprot.
func decodeZkappCommand(payload json.RawMessage) (command.ZkappCommand, error) {
	obj, err := asObject(payload)
	if err != nil {
		return command.ZkappCommand{}, err
	}

	var zc command.ZkappCommand
	feePayer, err := requireString(obj, "fee_payer")
	if err != nil {
		return command.ZkappCommand{}, err
	}
	zc.FeePayer = types.PublicKey(feePayer)

	fee, err := requireUint64(obj, "fee")
	if err != nil {
		return command.ZkappCommand{}, err
	}
	zc.FeePayerFee = types.Amount(fee)

	nonce, err := requireUint64(obj, "nonce")
	if err != nil {
		return command.ZkappCommand{}, err
	}
	zc.FeePayerNonce = types.Nonce(nonce)

	memoStr, err := requireString(obj, "memo")
	if err != nil {
		return command.ZkappCommand{}, err
	}
	memoBytes, err := command.DecodeMemo(memoStr)
	if err != nil {
		memoBytes = []byte(memoStr)
	}
	zc.Memo = memoBytes

	updatesRaw, ok := obj["account_updates"]
	if !ok {
		return command.ZkappCommand{}, missingField("account_updates")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(updatesRaw, &items); err != nil {
		return command.ZkappCommand{}, fmt.Errorf("%w: account_updates: %v", ErrMalformedJSON, err)
	}
	zc.Updates = make([]*command.ZkappAccountUpdate, 0, len(items))
	for _, item := range items {
		u, err := decodeZkappAccountUpdate(item)
		if err != nil {
			return command.ZkappCommand{}, err
		}
		zc.Updates = append(zc.Updates, u)
	}

	statusRaw, ok := obj["status"]
	if !ok {
		return command.ZkappCommand{}, missingField("status")
	}
	statusTag, _, err := taggedSum(statusRaw)
	if err != nil {
		return command.ZkappCommand{}, err
	}
	switch statusTag {
	case "Applied":
		zc.Status = command.StatusApplied
	case "Failed":
		zc.Status = command.StatusFailed
	default:
		return command.ZkappCommand{}, fmt.Errorf("%w: zkapp status tag %q", ErrUnknownVariant, statusTag)
	}

	return zc, nil
}

func decodeZkappAccountUpdate(raw json.RawMessage) (*command.ZkappAccountUpdate, error) {
	obj, err := asObject(raw)
	if err != nil {
		return nil, err
	}

	pubKey, err := requireString(obj, "public_key")
	if err != nil {
		return nil, err
	}
	tokenID, _ := optionalString(obj, "token_id")

	balanceRaw, ok := obj["balance_change"]
	if !ok {
		return nil, missingField("balance_change")
	}
	flat, err := flattenEnvelope(balanceRaw)
	if err != nil {
		return nil, err
	}
	var balanceStr string
	if err := json.Unmarshal(flat, &balanceStr); err != nil {
		return nil, fmt.Errorf("%w: field %q is not a string: %v", ErrMalformedJSON, "balance_change", err)
	}
	var balanceChange int64
	if _, err := fmt.Sscanf(balanceStr, "%d", &balanceChange); err != nil {
		return nil, fmt.Errorf("%w: field %q is not numeric: %v", ErrMalformedJSON, "balance_change", err)
	}

	u := &command.ZkappAccountUpdate{
		PublicKey:     types.PublicKey(pubKey),
		TokenID:       types.TokenAddress(tokenID),
		BalanceChange: balanceChange,
	}

	if delegate, ok := optionalString(obj, "delegate"); ok {
		pk := types.PublicKey(delegate)
		u.Delegate = &pk
	}
	if v, ok := optionalString(obj, "verification_key"); ok {
		u.VerificationKey = &v
	}
	if v, ok := optionalString(obj, "permissions"); ok {
		u.Permissions = &v
	}
	if v, ok := optionalString(obj, "zkapp_uri"); ok {
		u.ZkappURI = &v
	}
	if v, ok := optionalString(obj, "token_symbol"); ok {
		u.TokenSymbol = &v
	}
	if v, ok := optionalString(obj, "timing"); ok {
		u.Timing = &v
	}
	if v, ok := optionalString(obj, "voting_for"); ok {
		u.VotingFor = &v
	}

	appState, err := optionalStringArray(obj, "app_state")
	if err != nil {
		return nil, err
	}
	u.AppState = appState

	actions, err := optionalStringArray(obj, "actions")
	if err != nil {
		return nil, err
	}
	u.Actions = actions

	events, err := optionalStringArray(obj, "events")
	if err != nil {
		return nil, err
	}
	u.Events = events

	if _, ok := obj["implicit_account_creation_fee"]; ok {
		b, err := requireBool(obj, "implicit_account_creation_fee")
		if err != nil {
			return nil, err
		}
		u.ImplicitAccountCreationFee = b
	}
	if _, ok := obj["increment_nonce"]; ok {
		b, err := requireBool(obj, "increment_nonce")
		if err != nil {
			return nil, err
		}
		u.IncrementNonce = b
	}
	if _, ok := obj["proved_state_precondition"]; ok {
		b, err := requireBool(obj, "proved_state_precondition")
		if err != nil {
			return nil, err
		}
		u.ProvedStatePrecondition = b
	}

	authTag, ok := optionalString(obj, "authorization")
	if ok {
		switch authTag {
		case "Signature":
			u.Authorization = command.AuthSignature
		case "Proof":
			u.Authorization = command.AuthProof
		case "None", "":
			u.Authorization = command.AuthNone
		default:
			return nil, fmt.Errorf("%w: authorization tag %q", ErrUnknownVariant, authTag)
		}
	}

	if childrenRaw, ok := obj["children"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(childrenRaw, &items); err != nil {
			return nil, fmt.Errorf("%w: children: %v", ErrMalformedJSON, err)
		}
		u.Children = make([]*command.ZkappAccountUpdate, 0, len(items))
		for _, item := range items {
			child, err := decodeZkappAccountUpdate(item)
			if err != nil {
				return nil, err
			}
			u.Children = append(u.Children, child)
		}
	}

	return u, nil
}

func optionalStringArray(obj map[string]json.RawMessage, name string) ([]string, error) {
	raw, ok := obj[name]
	if !ok {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: field %q is not an array: %v", ErrMalformedJSON, name, err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		flat, err := flattenEnvelope(item)
		if err != nil {
			return nil, err
		}
		var s string
		if err := json.Unmarshal(flat, &s); err != nil {
			return nil, fmt.Errorf("%w: field %q element is not a string: %v", ErrMalformedJSON, name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeCompletedWorks(raw json.RawMessage) ([]SnarkWork, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: completed_works: %v", ErrMalformedJSON, err)
	}
	works := make([]SnarkWork, 0, len(items))
	for _, item := range items {
		obj, err := asObject(item)
		if err != nil {
			return nil, err
		}
		prover, err := requireString(obj, "prover")
		if err != nil {
			return nil, err
		}
		fee, err := requireUint64(obj, "fee")
		if err != nil {
			return nil, err
		}
		works = append(works, SnarkWork{Prover: types.PublicKey(prover), Fee: types.Amount(fee)})
	}
	return works, nil
}

func decodeEpochData(raw json.RawMessage) (EpochData, error) {
	obj, err := asObject(raw)
	if err != nil {
		return EpochData{}, err
	}
	ledgerHash, err := requireString(obj, "ledger_hash")
	if err != nil {
		return EpochData{}, err
	}
	seedStr, err := requireString(obj, "seed")
	if err != nil {
		return EpochData{}, err
	}
	seed, _ := base64.StdEncoding.DecodeString(seedStr)
	totalCurrency, err := requireUint64(obj, "total_currency")
	if err != nil {
		return EpochData{}, err
	}
	epochLength, err := requireUint64(obj, "epoch_length")
	if err != nil {
		return EpochData{}, err
	}
	startCheckpoint, err := requireString(obj, "start_checkpoint")
	if err != nil {
		return EpochData{}, err
	}
	lockCheckpoint, err := requireString(obj, "lock_checkpoint")
	if err != nil {
		return EpochData{}, err
	}
	return EpochData{
		LedgerHash:      types.LedgerHash(ledgerHash),
		Seed:            seed,
		TotalCurrency:   types.Amount(totalCurrency),
		EpochLength:     uint32(epochLength),
		StartCheckpoint: types.StateHash(startCheckpoint),
		LockCheckpoint:  types.StateHash(lockCheckpoint),
	}, nil
}

func requireString(obj map[string]json.RawMessage, name string) (string, error) {
	raw, ok := obj[name]
	if !ok {
		return "", missingField(name)
	}
	flat, err := flattenEnvelope(raw)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(flat, &s); err != nil {
		return "", fmt.Errorf("%w: field %q is not a string: %v", ErrMalformedJSON, name, err)
	}
	return s, nil
}

func optionalString(obj map[string]json.RawMessage, name string) (string, bool) {
	s, err := requireString(obj, name)
	if err != nil {
		return "", false
	}
	return s, true
}

func requireUint64(obj map[string]json.RawMessage, name string) (uint64, error) {
	raw, ok := obj[name]
	if !ok {
		return 0, missingField(name)
	}
	flat, err := flattenEnvelope(raw)
	if err != nil {
		return 0, err
	}
	var s string
	if err := json.Unmarshal(flat, &s); err == nil {
		var v uint64
		_, scanErr := fmt.Sscanf(s, "%d", &v)
		if scanErr != nil {
			return 0, fmt.Errorf("%w: field %q is not numeric: %v", ErrMalformedJSON, name, scanErr)
		}
		return v, nil
	}
	var v uint64
	if err := json.Unmarshal(flat, &v); err != nil {
		return 0, fmt.Errorf("%w: field %q is not a number: %v", ErrMalformedJSON, name, err)
	}
	return v, nil
}

func optionalUint64(obj map[string]json.RawMessage, name string) (uint64, error) {
	if _, ok := obj[name]; !ok {
		return 0, nil
	}
	return requireUint64(obj, name)
}

func requireBool(obj map[string]json.RawMessage, name string) (bool, error) {
	raw, ok := obj[name]
	if !ok {
		return false, missingField(name)
	}
	flat, err := flattenEnvelope(raw)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(flat, &b); err != nil {
		return false, fmt.Errorf("%w: field %q is not a bool: %v", ErrMalformedJSON, name, err)
	}
	return b, nil
}
