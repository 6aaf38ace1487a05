package block

import (
	"encoding/json"
	"fmt"

	"github.com/certen/mina-core/pkg/command"
)

// decodeDiffPart parses one half (pre or post) of staged_ledger_diff: an
// ordered commands array, a completed_works array, and a coinbase tagged
// sum. Coinbase itself belongs to the diff-extractor (§4.B), not the
// decoder, so only commands and completed works are captured here.
func decodeDiffPart(raw json.RawMessage) (DiffPart, error) {
	obj, err := asObject(raw)
	if err != nil {
		return DiffPart{}, err
	}

	var part DiffPart

	if commandsRaw, ok := obj["commands"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(commandsRaw, &items); err != nil {
			return DiffPart{}, fmt.Errorf("%w: commands: %v", ErrMalformedJSON, err)
		}
		part.Commands = make([]command.UserCommandWithStatus, 0, len(items))
		for _, item := range items {
			// Post-hardfork diffs mix SignedCommand and ZkappCommand tags in
			// the same array, so each item's tag decides which decoder and
			// which DiffPart slice it lands in before either decoder runs.
			tag, payload, err := taggedSum(item)
			if err != nil {
				return DiffPart{}, err
			}
			if tag == "ZkappCommand" {
				zc, err := decodeZkappCommand(payload)
				if err != nil {
					return DiffPart{}, err
				}
				part.ZkappCommands = append(part.ZkappCommands, zc)
				continue
			}
			uc, err := decodeTaggedCommand(item)
			if err != nil {
				return DiffPart{}, err
			}
			part.Commands = append(part.Commands, uc)
		}
	}

	if worksRaw, ok := obj["completed_works"]; ok {
		works, err := decodeCompletedWorks(worksRaw)
		if err != nil {
			return DiffPart{}, err
		}
		part.CompletedWorks = works
	}

	return part, nil
}
