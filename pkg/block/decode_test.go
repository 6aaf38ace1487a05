package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/mina-core/pkg/command"
	"github.com/certen/mina-core/pkg/types"
)

const v1Fixture = `{
  "version": 1,
  "data": {
    "version": 1,
    "t": {
      "protocol_state": {
        "previous_state_hash": "3NLprevious",
        "body": {
          "genesis_state_hash": "3NK4BpDSekaqsG6tx8Nse2zJchRft2JpnbvMiog55WCr5xJZV6VE",
          "blockchain_state": {
            "snarked_ledger_hash": "jxsnarked",
            "staged_ledger_hash": "jxstaged"
          },
          "consensus_state": {
            "blockchain_length": "2",
            "epoch_count": "0",
            "min_window_density": "77",
            "total_currency": "1000000000",
            "global_slot_since_genesis": "2",
            "block_creator": "B62qcreator",
            "block_stake_winner": "B62qwinner",
            "coinbase_receiver": "B62qcoinbase",
            "supercharge_coinbase": true,
            "last_vrf_output": "AAEC",
            "staking_epoch_data": {
              "ledger_hash": "jxstaking",
              "seed": "AAA=",
              "total_currency": "1",
              "epoch_length": "1",
              "start_checkpoint": "3NLstart",
              "lock_checkpoint": "3NLlock"
            },
            "next_epoch_data": {
              "ledger_hash": "jxnext",
              "seed": "AAA=",
              "total_currency": "1",
              "epoch_length": "1",
              "start_checkpoint": "3NLstart2",
              "lock_checkpoint": "3NLlock2"
            }
          }
        }
      },
      "staged_ledger_diff": {
        "diff": [
          {
            "commands": [
              ["SignedCommand", {
                "fee_payer": "B62qsender",
                "fee": "1",
                "nonce": "0",
                "signer": "B62qsender",
                "memo": "E4YM2vTHhWEg66xpj52JErHUBU4pZ1yageL4TVDDpTTSsv8mK6YaH",
                "body": ["Payment", {
                  "source": "B62qsender",
                  "receiver": "B62qreceiver",
                  "amount": "30",
                  "token": "1"
                }],
                "status": ["Applied"]
              }]
            ],
            "completed_works": [
              {"prover": "B62qprover", "fee": "2"}
            ]
          },
          null
        ]
      }
    }
  }
}`

func TestDecodeV1Fixture(t *testing.T) {
	b, err := Parse([]byte(v1Fixture), "mainnet", V1)
	require.NoError(t, err)

	assert.Equal(t, types.BlockchainLength(2), b.BlockchainLength)
	assert.Equal(t, types.PublicKey("B62qcoinbase"), b.CoinbaseReceiver)
	assert.True(t, b.SuperchargeCoinbase)
	assert.Equal(t, types.Amount(1000000000), b.TotalCurrency)
	assert.Nil(t, b.StagedLedgerDiff.PostDiff)

	cmds := b.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.KindPayment, cmds[0].Command.Kind)
	assert.Equal(t, types.Amount(30), cmds[0].Command.Payment.Amount)
	assert.Equal(t, command.StatusApplied, cmds[0].Status)

	assert.Equal(t, types.Amount(1), b.TxFees())
	assert.Equal(t, types.Amount(2), b.SnarkFees())
}

const v2Fixture = `{
  "version": 2,
  "data": {
    "protocol_state": {
      "previous_state_hash": "3NLprevious2",
      "body": {
        "genesis_state_hash": "3NK4BpDSekaqsG6tx8Nse2zJchRft2JpnbvMiog55WCr5xJZV6VE",
        "blockchain_state": {
          "snarked_ledger_hash": "jxsnarked2",
          "staged_ledger_hash": "jxstaged2"
        },
        "consensus_state": {
          "blockchain_length": "500000",
          "epoch_count": "10",
          "min_window_density": "77",
          "total_currency": "2000000000",
          "global_slot_since_genesis": "600000",
          "block_creator": "B62qcreator2",
          "block_stake_winner": "B62qwinner2",
          "coinbase_receiver": "B62qcoinbase2",
          "supercharge_coinbase": true,
          "last_vrf_output": "AAEC",
          "staking_epoch_data": {
            "ledger_hash": "jxstaking2",
            "seed": "AAA=",
            "total_currency": "1",
            "epoch_length": "1",
            "start_checkpoint": "3NLstart3",
            "lock_checkpoint": "3NLlock3"
          },
          "next_epoch_data": {
            "ledger_hash": "jxnext2",
            "seed": "AAA=",
            "total_currency": "1",
            "epoch_length": "1",
            "start_checkpoint": "3NLstart4",
            "lock_checkpoint": "3NLlock4"
          }
        }
      }
    },
    "staged_ledger_diff": {
      "diff": [
        {
          "commands": [
            ["SignedCommand", {
              "fee_payer": "B62qsender2",
              "fee": "1",
              "nonce": "0",
              "signer": "B62qsender2",
              "memo": "E4YM2vTHhWEg66xpj52JErHUBU4pZ1yageL4TVDDpTTSsv8mK6YaH",
              "body": ["Payment", {
                "source": "B62qsender2",
                "receiver": "B62qreceiver2",
                "amount": "40",
                "token": "1"
              }],
              "status": ["Applied"]
            }],
            ["ZkappCommand", {
              "fee_payer": "B62qzkfeepayer",
              "fee": "5",
              "nonce": "1",
              "memo": "E4YM2vTHhWEg66xpj52JErHUBU4pZ1yageL4TVDDpTTSsv8mK6YaH",
              "account_updates": [
                {
                  "public_key": "B62qzkaccount",
                  "token_id": "wSHV2S4qX9jFsLjQo8r1BsMLH2Zf5ndZE3E9QNvZCtrkCPbH",
                  "balance_change": "-1000000",
                  "authorization": "Signature",
                  "increment_nonce": true,
                  "children": [
                    {
                      "public_key": "B62qzkchild",
                      "token_id": "wSHV2S4qX9jFsLjQo8r1BsMLH2Zf5ndZE3E9QNvZCtrkCPbH",
                      "balance_change": "1000000",
                      "authorization": "Proof",
                      "proved_state_precondition": true
                    }
                  ]
                }
              ],
              "status": ["Applied"]
            }]
          ],
          "completed_works": [
            {"prover": "B62qprover2", "fee": "3"}
          ]
        },
        null
      ]
    },
    "tokens_used": ["1"],
    "accounts_accessed": ["B62qsender2", "B62qzkaccount"],
    "accounts_created": ["B62qzkchild"],
    "username_updates": {"B62qsender2": "alice"}
  }
}`

func TestDecodeV2Fixture(t *testing.T) {
	b, err := Parse([]byte(v2Fixture), "mainnet", V2)
	require.NoError(t, err)

	assert.Equal(t, types.BlockchainLength(500000), b.BlockchainLength)
	assert.Equal(t, types.PublicKey("B62qcoinbase2"), b.CoinbaseReceiver)
	assert.False(t, b.SuperchargeCoinbase, "V2 coinbase is never supercharged regardless of the raw field's value")
	assert.Equal(t, types.Amount(2000000000), b.TotalCurrency)
	assert.Equal(t, []types.TokenAddress{"1"}, b.TokensUsed)
	assert.Equal(t, []types.PublicKey{"B62qsender2", "B62qzkaccount"}, b.AccountsAccessed)
	assert.Equal(t, []types.PublicKey{"B62qzkchild"}, b.AccountsCreated)
	assert.Equal(t, "alice", b.UsernameUpdates[types.PublicKey("B62qsender2")])

	cmds := b.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, command.KindPayment, cmds[0].Command.Kind)
	assert.Equal(t, types.Amount(40), cmds[0].Command.Payment.Amount)

	zkapps := b.ZkappCommands()
	require.Len(t, zkapps, 1)
	assert.Equal(t, types.PublicKey("B62qzkfeepayer"), zkapps[0].FeePayer)
	require.Len(t, zkapps[0].Updates, 1)
	root := zkapps[0].Updates[0]
	assert.Equal(t, types.PublicKey("B62qzkaccount"), root.PublicKey)
	assert.Equal(t, int64(-1000000), root.BalanceChange)
	assert.Equal(t, command.AuthSignature, root.Authorization)
	assert.True(t, root.IncrementNonce)
	require.Len(t, root.Children, 1)
	assert.Equal(t, types.PublicKey("B62qzkchild"), root.Children[0].PublicKey)
	assert.Equal(t, int64(1000000), root.Children[0].BalanceChange)
	assert.Equal(t, command.AuthProof, root.Children[0].Authorization)
	assert.True(t, root.Children[0].ProvedStatePrecondition)
}

func TestDecodeV1MissingField(t *testing.T) {
	broken := `{"version":1,"data":{"version":1,"t":{}}}`
	_, err := Parse([]byte(broken), "mainnet", V1)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDecodeUnknownCommandVariant(t *testing.T) {
	_, _, err := taggedSum([]byte(`["NotACommand", {}]`))
	assert.NoError(t, err) // taggedSum itself never validates the tag

	_, err = decodeTaggedCommand([]byte(`["NotACommand", {}]`))
	assert.ErrorIs(t, err, ErrUnknownVariant)
}
