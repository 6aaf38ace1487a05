package block

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/certen/mina-core/pkg/types"
)

// FileContents is the metadata a block file's name carries before any JSON
// decoding happens (§4.A NEW): `NETWORK-LENGTH-STATEHASH.json`, or
// `NETWORK-STATEHASH.json` for a genesis file with no length component.
type FileContents struct {
	Network          string
	BlockchainLength types.BlockchainLength // zero for a genesis file
	StateHash        types.StateHash
	HasLength        bool
}

var (
	namedPattern   = regexp.MustCompile(`^([A-Za-z0-9_]+)-(\d+)-([1-9A-HJ-NP-Za-km-z]+)\.json$`)
	genesisPattern = regexp.MustCompile(`^([A-Za-z0-9_]+)-([1-9A-HJ-NP-Za-km-z]+)\.json$`)
)

// ErrInvalidFilename is returned by ParsePath when the filename matches
// neither the length-bearing nor the genesis form (§4.A InvalidFile).
var ErrInvalidFilename = fmt.Errorf("block: filename does not match NETWORK-LENGTH-STATEHASH.json or NETWORK-STATEHASH.json")

// ParsePath extracts (network, blockchain_length, state_hash) from a block
// file's base name, matching `precomputed/mod.rs: extract_network_height_hash`
// (§4.A).
func ParsePath(path string) (FileContents, error) {
	name := filepath.Base(path)

	if m := namedPattern.FindStringSubmatch(name); m != nil {
		length, err := parseUint32(m[2])
		if err != nil {
			return FileContents{}, fmt.Errorf("%w: %v", ErrInvalidFilename, err)
		}
		return FileContents{
			Network:          m[1],
			BlockchainLength: types.BlockchainLength(length),
			StateHash:        types.StateHash(m[3]),
			HasLength:        true,
		}, nil
	}

	if m := genesisPattern.FindStringSubmatch(name); m != nil {
		return FileContents{
			Network:   m[1],
			StateHash: types.StateHash(m[2]),
			HasLength: false,
		}, nil
	}

	return FileContents{}, ErrInvalidFilename
}

func parseUint32(s string) (uint32, error) {
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q in length component", r)
		}
		v = v*10 + uint64(r-'0')
		if v > 0xffffffff {
			return 0, fmt.Errorf("length component overflows u32")
		}
	}
	return uint32(v), nil
}
