// Package base58check implements the base58check codec used throughout the
// Mina wire formats: StateHash, LedgerHash, PublicKey, TxnHash, and memo
// payloads are all base58check strings distinguished only by their version
// byte (§3.1, §6).
package base58check

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Version bytes for the value tags this core needs to distinguish. Mina
// assigns every base58check payload kind its own byte so a StateHash and a
// LedgerHash, which are otherwise both 32-byte digests, can't be confused.
const (
	VersionUserCommand    byte = 0x06
	VersionV1TxnHash       byte = 0x12
	VersionV2TxnHash       byte = 0x1d
	VersionUserCommandMemo byte = 0x14
	VersionStateHash       byte = 0x10
	VersionLedgerHash      byte = 0x0c
	VersionPublicKey       byte = 0xcb
)

// ErrChecksum is returned by Decode when the trailing checksum bytes do not
// match the payload.
var ErrChecksum = errors.New("base58check: checksum mismatch")

// ErrTooShort is returned by Decode when the input is shorter than the
// minimal version-byte-plus-checksum envelope.
var ErrTooShort = errors.New("base58check: input shorter than version+checksum envelope")

const checksumLen = 4

// Encode wraps payload in the version byte, appends a 4-byte double-sha256
// checksum (the `bs58` crate's `with_check_version` convention), and
// base58-encodes the result.
func Encode(version byte, payload []byte) string {
	body := make([]byte, 0, 1+len(payload))
	body = append(body, version)
	body = append(body, payload...)
	sum := checksum(body)
	full := append(body, sum...)
	return base58.Encode(full)
}

// Decode reverses Encode, verifying the version byte and checksum. It
// returns the payload with the version byte and checksum stripped.
func Decode(expectedVersion byte, s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("base58check: decode: %w", err)
	}
	if len(raw) < 1+checksumLen {
		return nil, ErrTooShort
	}
	body := raw[:len(raw)-checksumLen]
	sum := raw[len(raw)-checksumLen:]
	if !bytes.Equal(sum, checksum(body)) {
		return nil, ErrChecksum
	}
	if body[0] != expectedVersion {
		return nil, fmt.Errorf("base58check: version byte %#x, expected %#x", body[0], expectedVersion)
	}
	return body[1:], nil
}

// checksum is the first 4 bytes of sha256(sha256(body)).
func checksum(body []byte) []byte {
	first := sha256.Sum256(body)
	second := sha256.Sum256(first[:])
	return second[:checksumLen]
}
