package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/mina-core/pkg/config"
)

const genesisHash = "3NK4BpDSekaqsG6tx8Nse2zJchRft2JpnbvMiog55WCr5xJZV6VE"

func genesisFixture() string {
	return `{
  "version": 1,
  "data": {
    "version": 1,
    "t": {
      "protocol_state": {
        "previous_state_hash": "3NLgenesisParent",
        "body": {
          "genesis_state_hash": "` + genesisHash + `",
          "blockchain_state": {
            "snarked_ledger_hash": "jxsnarked0",
            "staged_ledger_hash": "jxstaged0"
          },
          "consensus_state": {
            "blockchain_length": "1",
            "epoch_count": "0",
            "min_window_density": "77",
            "total_currency": "1000000000",
            "global_slot_since_genesis": "0",
            "block_creator": "B62qcreator",
            "block_stake_winner": "B62qwinner",
            "coinbase_receiver": "B62qcoinbase",
            "supercharge_coinbase": false,
            "last_vrf_output": "AAEC",
            "staking_epoch_data": {
              "ledger_hash": "jxstaking0", "seed": "AAA=", "total_currency": "1",
              "epoch_length": "1", "start_checkpoint": "3NLstart0", "lock_checkpoint": "3NLlock0"
            },
            "next_epoch_data": {
              "ledger_hash": "jxnext0", "seed": "AAA=", "total_currency": "1",
              "epoch_length": "1", "start_checkpoint": "3NLstart1", "lock_checkpoint": "3NLlock1"
            }
          }
        }
      },
      "staged_ledger_diff": {
        "diff": [
          {"commands": [], "completed_works": []},
          null
        ]
      }
    }
  }
}`
}

func childFixture(prevHash string) string {
	return `{
  "version": 1,
  "data": {
    "version": 1,
    "t": {
      "protocol_state": {
        "previous_state_hash": "` + prevHash + `",
        "body": {
          "genesis_state_hash": "` + genesisHash + `",
          "blockchain_state": {
            "snarked_ledger_hash": "jxsnarked1",
            "staged_ledger_hash": "jxstaged1"
          },
          "consensus_state": {
            "blockchain_length": "2",
            "epoch_count": "0",
            "min_window_density": "77",
            "total_currency": "1000720000000000",
            "global_slot_since_genesis": "1",
            "block_creator": "B62qcreator",
            "block_stake_winner": "B62qwinner",
            "coinbase_receiver": "B62qcoinbase",
            "supercharge_coinbase": false,
            "last_vrf_output": "AAED",
            "staking_epoch_data": {
              "ledger_hash": "jxstaking1", "seed": "AAA=", "total_currency": "1",
              "epoch_length": "1", "start_checkpoint": "3NLstart0", "lock_checkpoint": "3NLlock0"
            },
            "next_epoch_data": {
              "ledger_hash": "jxnext1", "seed": "AAA=", "total_currency": "1",
              "epoch_length": "1", "start_checkpoint": "3NLstart1", "lock_checkpoint": "3NLlock1"
            }
          }
        }
      },
      "staged_ledger_diff": {
        "diff": [
          {"commands": [], "completed_works": []},
          null
        ]
      }
    }
  }
}`
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewFromEnv()
	cfg.DataDir = t.TempDir()
	cfg.StoreBackend = "memdb"
	cfg.MainnetGenesisStateHash = genesisHash
	return cfg
}

func writeBlockFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestIngestFileAppendsEventLogAndCanonicity(t *testing.T) {
	cfg := testConfig(t)
	ix, err := New(cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	blocksDir := t.TempDir()
	genesisPath := writeBlockFile(t, blocksDir, "mainnet-"+genesisHash+".json", genesisFixture())
	childPath := writeBlockFile(t, blocksDir, "mainnet-2-3NLnext.json", childFixture(genesisHash))

	require.NoError(t, ix.IngestFile(genesisPath))
	require.NoError(t, ix.IngestFile(childPath))

	log, err := ix.EventLog().GetLog()
	require.NoError(t, err)
	// one NewBlock event plus one CanonicalUpdate event per ingested block
	assert.Len(t, log, 4)

	seq, err := ix.EventLog().NextSeqNum()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), seq)
}

func TestIngestFileRejectsUnparsableBlock(t *testing.T) {
	cfg := testConfig(t)
	ix, err := New(cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	blocksDir := t.TempDir()
	badPath := writeBlockFile(t, blocksDir, "mainnet-2-3NLbad.json", `{"not": "a block"}`)

	err = ix.IngestFile(badPath)
	assert.Error(t, err)
}

func TestIngestFileRejectsMissingFile(t *testing.T) {
	cfg := testConfig(t)
	ix, err := New(cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	err = ix.IngestFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

func TestCloseSucceedsAfterIngestion(t *testing.T) {
	cfg := testConfig(t)
	ix, err := New(cfg, nil)
	require.NoError(t, err)

	blocksDir := t.TempDir()
	genesisPath := writeBlockFile(t, blocksDir, "mainnet-"+genesisHash+".json", genesisFixture())
	require.NoError(t, ix.IngestFile(genesisPath))

	assert.NoError(t, ix.Close())
}
