package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"findare/crypto"
)

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, "findare-local", cfg.NetworkName)
	require.Equal(t, defaultMinReward, cfg.Policy.MinReward)

	_, err = os.Stat(path)
	require.NoError(t, err, "config file not written")
	_, err = os.Stat(cfg.AdminKeystorePath)
	require.NoError(t, err, "keystore not written")

	_, err = crypto.LoadFromKeystore(cfg.AdminKeystorePath, "")
	require.NoError(t, err, "generated keystore unreadable")
}

func TestLoadParsesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	keystorePath := filepath.Join(dir, "admin.keystore")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, crypto.SaveToKeystore(keystorePath, key, ""))

	contents := fmt.Sprintf(`RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
NetworkName = "testnet"
AdminKeystorePath = "%s"
LogFile = "findared.log"
LogMaxSizeMB = 64
LogMaxBackups = 5

[policy]
MinReward = "0.25"
MinClaimDeposit = "0.05"
`, keystorePath)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "testnet", cfg.NetworkName)
	require.Equal(t, 64, cfg.LogMaxSizeMB)
	require.Equal(t, 5, cfg.LogMaxBackups)

	limits, err := cfg.Policy.Limits()
	require.NoError(t, err)
	require.EqualValues(t, 250_000_000, limits.MinReward.Int64())
	require.EqualValues(t, 50_000_000, limits.MinClaimDeposit.Int64())
}

func TestLoadBackfillsMissingKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = ":8080"
DataDir = "./data"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.AdminKeystorePath, "keystore path not backfilled")
	_, err = os.Stat(cfg.AdminKeystorePath)
	require.NoError(t, err, "keystore not generated")

	// The backfilled path must be persisted so later loads agree.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.AdminKeystorePath, reloaded.AdminKeystorePath)
}

func TestValidateConfigRejectsBadPolicy(t *testing.T) {
	cfg := &Config{RPCAddress: ":8080", DataDir: "./data"}

	cfg.Policy = Policy{MinReward: "0", MinClaimDeposit: "0.01"}
	require.Error(t, ValidateConfig(cfg), "zero MinReward accepted")

	cfg.Policy = Policy{MinReward: "0.1", MinClaimDeposit: "bogus"}
	require.Error(t, ValidateConfig(cfg), "malformed MinClaimDeposit accepted")

	cfg.Policy = Policy{MinReward: "0.1", MinClaimDeposit: "0.01"}
	require.NoError(t, ValidateConfig(cfg))
}
