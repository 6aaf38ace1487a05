package block

import (
	"fmt"

	"github.com/certen/mina-core/pkg/types"
)

// ParseFile is the top-level entry point §4.A names `parse_from_path`: it
// extracts (network, blockchain_length, state_hash) from the file name,
// infers the version against the hardfork threshold, decodes the JSON
// body, and stamps the block with its filename-derived state hash — the
// block is content-addressed by the name it was stored under, not by any
// hash recomputed from its body (§3.2).
func ParseFile(path string, raw []byte, hardforkLength types.BlockchainLength, mainnetGenesis, hardforkGenesis types.StateHash) (*Block, error) {
	fc, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	version := Decide(fc, hardforkLength, mainnetGenesis, hardforkGenesis)

	b, err := Parse(raw, fc.Network, version)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", path, err)
	}
	b.StateHash = fc.StateHash
	if fc.HasLength && b.BlockchainLength != fc.BlockchainLength {
		return nil, fmt.Errorf("block %s: blockchain_length in body (%d) does not match filename (%d)", path, b.BlockchainLength, fc.BlockchainLength)
	}
	return b, nil
}
